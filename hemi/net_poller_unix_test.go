// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

//go:build linux || darwin || freebsd

package hemi

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPoller(t *testing.T) (*Poller, string) {
	t.Helper()
	m := NewPoller(nil)
	require.NoError(t, m.Listen("127.0.0.1", 0))
	t.Cleanup(func() { m.Close() })
	ports := m.BoundPorts()
	require.Len(t, ports, 1)
	return m, net.JoinHostPort("127.0.0.1", strconv.Itoa(ports[0]))
}

func waitUntil(t *testing.T, m *Poller, done func() bool) {
	t.Helper()
	for i := 0; i < 500; i++ {
		require.NoError(t, m.Wait(10*time.Millisecond))
		if done() {
			return
		}
	}
	t.Fatal("poller never got there")
}

func TestPollerExchange(t *testing.T) {
	m, addr := newTestPoller(t)
	client, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer client.Close()
	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)

	var id ConnID
	waitUntil(t, m, func() bool {
		conns := m.Conns()
		if len(conns) == 0 {
			return false
		}
		id = conns[0]
		return m.Inbound(id).Len() == 4
	})
	assert.Equal(t, "ping", m.Inbound(id).String())
	assert.Equal(t, 0, m.Port(id), "the configured port")
	assert.Equal(t, client.LocalAddr().String(), m.RemoteAddr(id))

	m.Outbound(id).WriteString("pong")
	m.CloseAfterFlush(id)
	waitUntil(t, m, func() bool { return len(m.Conns()) == 0 })
	assert.Equal(t, []ConnID{id}, m.Disconnected())
	assert.Empty(t, m.Disconnected())

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := io.ReadAll(client)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(reply))
}

func TestPollerHalfClose(t *testing.T) {
	m, addr := newTestPoller(t)
	client, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer client.Close()
	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)
	require.NoError(t, client.(*net.TCPConn).CloseWrite())

	var id ConnID
	waitUntil(t, m, func() bool {
		conns := m.Conns()
		if len(conns) == 0 {
			return false
		}
		id = conns[0]
		return m.Inbound(id).Len() == 4 && m.ReadClosed(id)
	})
	require.NoError(t, m.Wait(10*time.Millisecond))
	assert.Equal(t, []ConnID{id}, m.Conns(), "still open for writing")
	assert.Empty(t, m.Disconnected())

	m.Outbound(id).WriteString("pong")
	m.CloseAfterFlush(id)
	waitUntil(t, m, func() bool { return len(m.Conns()) == 0 })

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := io.ReadAll(client)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(reply))
}

func TestPollerClientHangsUp(t *testing.T) {
	m, addr := newTestPoller(t)
	first, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	second, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer second.Close()

	waitUntil(t, m, func() bool { return len(m.Conns()) == 2 })
	conns := m.Conns()
	assert.Less(t, conns[0], conns[1])

	first.Close()
	waitUntil(t, m, func() bool { return len(m.Conns()) == 1 })
	assert.Len(t, m.Disconnected(), 1)
	assert.NoError(t, m.Close())
	assert.Empty(t, m.Conns())
}

func TestPollerListenFails(t *testing.T) {
	m := NewPoller(nil)
	assert.Error(t, m.Listen("example.com", 80))
	assert.Empty(t, m.BoundPorts())
}

// startPollerServer runs a server over a Poller until the test ends and returns its address.
func startPollerServer(t *testing.T, root string) string {
	t.Helper()
	config, err := ParseConfig([]byte(fmt.Sprintf("tickInterval: 5ms\nservers:\n  - listen: 8080\n    locations:\n      - root: %s\n", root)))
	require.NoError(t, err)

	m, addr := newTestPoller(t)
	server, err := NewServer(config, m, ServerDeps{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- server.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-stopped)
		assert.NoError(t, server.Shutdown())
	})
	return addr
}

func TestServerOverPoller(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello over tcp"), 0644))
	addr := startPollerServer(t, root)

	client := &http.Client{Timeout: 5 * time.Second}
	for i := 0; i < 2; i++ { // the second request reuses the connection
		resp, err := client.Get("http://" + addr + "/hello.txt")
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "hello over tcp", string(body))
	}
	client.CloseIdleConnections()
}

func TestServerOverPollerHalfClose(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello over tcp"), 0644))
	addr := startPollerServer(t, root)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("GET /hello.txt HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(reply)), nil)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "hello over tcp", string(body))
	assert.True(t, resp.Close)
}

// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Poll based multiplexer for Unix-like systems.

//go:build linux || darwin || freebsd

package hemi

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"

	"github.com/hexinfra/webserv/hemi/library/system"
)

const pollBacklog = unix.SOMAXCONN

type pollListener struct {
	fd    int
	port  int // as configured
	bound int // as bound. differs from port if port is 0
}

type pollConn struct {
	fd         int
	port       int
	remoteAddr string
	inbound    bytes.Buffer
	outbound   bytes.Buffer
	readClosed bool // peer shut down its write side
	closing    bool
}

// Poller is a Multiplexer over poll(2). It is not safe for concurrent use.
type Poller struct {
	// Assocs
	logger hclog.Logger
	// States
	listeners []pollListener
	conns     map[ConnID]*pollConn
	order     []ConnID // accept order, may hold closed ids
	gone      []ConnID
	lastID    ConnID
	fds       []unix.PollFd
	owners    []ConnID // owners[i] is the conn of fds[len(listeners)+i]
	chunk     []byte
}

func NewPoller(logger hclog.Logger) *Poller {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	m := new(Poller)
	m.logger = logger.Named("poller")
	m.conns = make(map[ConnID]*pollConn)
	m.chunk = make([]byte, _16K)
	return m
}

// Listen opens a listening socket on host:port.
func (m *Poller) Listen(host string, port int) error {
	fd, err := system.Listen(host, port, pollBacklog)
	if err != nil {
		return fmt.Errorf("listen %s: %w", net.JoinHostPort(host, strconv.Itoa(port)), err)
	}
	bound, err := system.LocalPort(fd)
	if err != nil {
		unix.Close(fd)
		return err
	}
	m.listeners = append(m.listeners, pollListener{fd: fd, port: port, bound: bound})
	m.logger.Info("listening", "addr", net.JoinHostPort(host, strconv.Itoa(bound)))
	return nil
}

// BoundPorts returns the ports actually listened on, in Listen order.
func (m *Poller) BoundPorts() []int {
	ports := make([]int, len(m.listeners))
	for i, listener := range m.listeners {
		ports[i] = listener.bound
	}
	return ports
}

func (m *Poller) Wait(timeout time.Duration) error {
	m.fds = m.fds[:0]
	m.owners = m.owners[:0]
	for _, listener := range m.listeners {
		m.fds = append(m.fds, unix.PollFd{Fd: int32(listener.fd), Events: unix.POLLIN})
	}
	for _, id := range m.order {
		conn, ok := m.conns[id]
		if !ok {
			continue
		}
		var events int16
		if !conn.readClosed {
			events |= unix.POLLIN
		}
		if conn.outbound.Len() > 0 {
			events |= unix.POLLOUT
		}
		m.fds = append(m.fds, unix.PollFd{Fd: int32(conn.fd), Events: events})
		m.owners = append(m.owners, id)
	}
	if _, err := unix.Poll(m.fds, int(timeout/time.Millisecond)); err != nil && err != unix.EINTR {
		return fmt.Errorf("poll: %w", err)
	}
	for i, listener := range m.listeners {
		if m.fds[i].Revents&unix.POLLIN != 0 {
			m.accept(listener)
		}
	}
	for i, id := range m.owners {
		revents := m.fds[len(m.listeners)+i].Revents
		if m.conns[id].readClosed {
			if revents&(unix.POLLHUP|unix.POLLERR) != 0 {
				m.drop(id)
				continue
			}
		} else if revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 && !m.receive(id) {
			continue
		}
		if revents&unix.POLLOUT != 0 && !m.send(id) {
			continue
		}
		if conn := m.conns[id]; conn.closing && conn.outbound.Len() == 0 {
			m.drop(id)
		}
	}
	m.compact()
	return nil
}

func (m *Poller) accept(listener pollListener) {
	for {
		fd, remoteAddr, err := system.Accept(listener.fd)
		if err != nil {
			if !errors.Is(err, system.ErrAgain) {
				m.logger.Warn("accept failed", "port", listener.port, "error", err)
			}
			return
		}
		m.lastID++
		m.conns[m.lastID] = &pollConn{fd: fd, port: listener.port, remoteAddr: remoteAddr}
		m.order = append(m.order, m.lastID)
		m.logger.Debug("connection accepted", "conn", m.lastID, "remote", remoteAddr)
	}
}

// receive returns false if the connection is gone.
func (m *Poller) receive(id ConnID) bool {
	conn := m.conns[id]
	file := system.FileOf(conn.fd)
	for {
		n, err := file.Read(m.chunk)
		if errors.Is(err, system.ErrAgain) {
			return true
		}
		if err != nil {
			m.logger.Debug("read failed", "conn", id, "error", err)
			m.drop(id)
			return false
		}
		if n == 0 { // EOF. the peer may still be reading
			conn.readClosed = true
			m.logger.Debug("read side closed", "conn", id)
			return true
		}
		conn.inbound.Write(m.chunk[:n])
	}
}

// send returns false if the connection is gone.
func (m *Poller) send(id ConnID) bool {
	conn := m.conns[id]
	file := system.FileOf(conn.fd)
	for conn.outbound.Len() > 0 {
		n, err := file.Write(conn.outbound.Bytes())
		if errors.Is(err, system.ErrAgain) {
			return true
		}
		if err != nil {
			m.logger.Debug("write failed", "conn", id, "error", err)
			m.drop(id)
			return false
		}
		conn.outbound.Next(n)
	}
	return true
}

func (m *Poller) drop(id ConnID) {
	conn, ok := m.conns[id]
	if !ok {
		return
	}
	if err := unix.Close(conn.fd); err != nil {
		m.logger.Warn("close failed", "conn", id, "error", err)
	}
	delete(m.conns, id)
	m.gone = append(m.gone, id)
	m.logger.Debug("connection closed", "conn", id)
}

func (m *Poller) compact() {
	if len(m.order) == len(m.conns) {
		return
	}
	order := m.order[:0]
	for _, id := range m.order {
		if _, ok := m.conns[id]; ok {
			order = append(order, id)
		}
	}
	m.order = order
}

func (m *Poller) Conns() []ConnID {
	ids := make([]ConnID, 0, len(m.conns))
	for _, id := range m.order {
		if _, ok := m.conns[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
func (m *Poller) Disconnected() []ConnID {
	gone := m.gone
	m.gone = nil
	return gone
}

func (m *Poller) Inbound(id ConnID) *bytes.Buffer  { return &m.conns[id].inbound }
func (m *Poller) Outbound(id ConnID) *bytes.Buffer { return &m.conns[id].outbound }
func (m *Poller) Port(id ConnID) int               { return m.conns[id].port }
func (m *Poller) RemoteAddr(id ConnID) string      { return m.conns[id].remoteAddr }
func (m *Poller) ReadClosed(id ConnID) bool        { return m.conns[id].readClosed }

func (m *Poller) CloseAfterFlush(id ConnID) {
	if conn, ok := m.conns[id]; ok {
		conn.closing = true
		if conn.outbound.Len() == 0 {
			m.drop(id)
			m.compact()
		}
	}
}

func (m *Poller) Close() error {
	var result *multierror.Error
	for _, id := range m.Conns() {
		m.drop(id)
	}
	m.order = nil
	for _, listener := range m.listeners {
		if err := unix.Close(listener.fd); err != nil {
			result = multierror.Append(result, err)
		}
	}
	m.listeners = nil
	return result.ErrorOrNil()
}

// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// HTTP/1.1 client.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

func makeRequest() []byte {
	target := U.RequestURI()
	return buildRequest(M, target, U.Host, H, B, K)
}

// buildRequest makes one request in wire format. A positive chunk sends body chunked.
func buildRequest(method string, target string, host string, header []string, body string, chunk int) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\nHost: %s\r\n", method, target, host)
	for _, field := range header {
		b.WriteString(field)
		b.WriteString("\r\n")
	}
	hasContent := body != "" || method == "POST" || method == "PUT"
	if !hasContent {
		b.WriteString("\r\n")
		return []byte(b.String())
	}
	if chunk <= 0 {
		b.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n")
		b.WriteString(body)
		return []byte(b.String())
	}
	b.WriteString("Transfer-Encoding: chunked\r\n\r\n")
	for rest := body; rest != ""; {
		size := min(chunk, len(rest))
		b.WriteString(strconv.FormatInt(int64(size), 16))
		b.WriteString("\r\n")
		b.WriteString(rest[:size])
		b.WriteString("\r\n")
		rest = rest[size:]
	}
	b.WriteString("0\r\n\r\n")
	return []byte(b.String())
}

type http1Client struct {
	// States
	addr       string
	request    []byte
	left       int
	timeout    time.Duration
	conns      int // connections opened
	statusGood int // 2xx, 3xx, 4xx
	statusBad  int // 5xx
	bytesIn    int64
}

func newHTTP1Client(addr string, request []byte, requests int, timeout time.Duration) *http1Client {
	c := new(http1Client)
	c.addr = addr
	c.request = request
	c.left = requests
	c.timeout = timeout
	return c
}

func (c *http1Client) bench(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.timeout}
	for c.left > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := dialer.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			return err
		}
		c.conns++
		err = c.exchange(conn)
		conn.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// exchange sends requests on conn until the server closes it or no requests are left.
func (c *http1Client) exchange(conn net.Conn) error {
	reader := bufio.NewReaderSize(conn, 16384)
	for c.left > 0 {
		conn.SetDeadline(time.Now().Add(c.timeout))
		if _, err := conn.Write(c.request); err != nil {
			return err
		}
		closed, err := c.recvResponse(reader)
		if err != nil {
			return err
		}
		c.left--
		if closed {
			return nil
		}
	}
	return nil
}

func (c *http1Client) recvResponse(reader *bufio.Reader) (closed bool, err error) {
	response, err := http.ReadResponse(reader, nil)
	if err != nil {
		return false, err
	}
	n, err := io.Copy(io.Discard, response.Body)
	response.Body.Close()
	if err != nil {
		return false, err
	}
	c.bytesIn += n
	if response.StatusCode >= 500 {
		c.statusBad++
	} else {
		c.statusGood++
	}
	return response.Close, nil
}

type benchReport struct {
	requests   int
	conns      int
	statusGood int
	statusBad  int
	bytesIn    int64
}

func (r *benchReport) add(c *http1Client) {
	r.requests += c.statusGood + c.statusBad
	r.conns += c.conns
	r.statusGood += c.statusGood
	r.statusBad += c.statusBad
	r.bytesIn += c.bytesIn
}

func (r *benchReport) String(elapsed time.Duration) string {
	rate := 0.0
	if seconds := elapsed.Seconds(); seconds > 0 {
		rate = float64(r.requests) / seconds
	}
	return fmt.Sprintf("requests=%d conns=%d good=%d bad=%d bytes=%d elapsed=%s rate=%.1f/s",
		r.requests, r.conns, r.statusGood, r.statusBad, r.bytesIn, elapsed.Round(time.Millisecond), rate)
}

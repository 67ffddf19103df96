// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Readiness multiplexer. The engine sees client sockets only as byte buffers behind this interface.

package hemi

import (
	"bytes"
	"time"
)

// ConnID identifies a client connection. IDs are never reused.
type ConnID int64

// Multiplexer owns the listening and client sockets.
type Multiplexer interface {
	// Wait waits up to timeout for readiness, then accepts new connections, fills inbound buffers, and flushes outbound buffers.
	Wait(timeout time.Duration) error
	// Conns returns the open connections in accept order.
	Conns() []ConnID
	// Disconnected returns the connections that went away since the last call.
	Disconnected() []ConnID
	Inbound(id ConnID) *bytes.Buffer
	Outbound(id ConnID) *bytes.Buffer
	Port(id ConnID) int
	RemoteAddr(id ConnID) string
	// ReadClosed tells whether the peer has finished sending.
	ReadClosed(id ConnID) bool
	// CloseAfterFlush closes id once its outbound buffer is empty.
	CloseAfterFlush(id ConnID)
	Close() error
}

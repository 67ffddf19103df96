// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Handlers turn a complete request into a response, possibly over many ticks.

package hemi

import (
	"errors"
	"io/fs"

	"github.com/hashicorp/go-hclog"
)

// handlerKind is the closed set of things a handler can be doing.
type handlerKind int8

const (
	handlerReady handlerKind = iota // response was made at dispatch
	handlerGet                      // reading a file
	handlerPost                     // appending to a file
	handlerPut                      // replacing a file
	handlerCGI                      // running a CGI program
)

var handlerKindNames = [...]string{
	handlerReady: "ready",
	handlerGet:   "get",
	handlerPost:  "post",
	handlerPut:   "put",
	handlerCGI:   "cgi",
}

func (k handlerKind) String() string { return handlerKindNames[k] }

// handler owns one request until its response is ready.
type handler struct {
	// Assocs
	logger hclog.Logger
	req    *Request
	vhost  *vhost
	task   Task // nil for handlerReady
	// States
	kind     handlerKind
	path     string // target file
	location string // "location" of POST and PUT responses
	existed  bool   // did the target exist before POST or PUT?
	response *Response
	done     bool
}

func newReadyHandler(logger hclog.Logger, req *Request, vhost *vhost, response *Response) *handler {
	return &handler{logger: logger, req: req, vhost: vhost, kind: handlerReady, response: response}
}

// advance polls the task, if any. It returns true once the response is ready.
func (h *handler) advance() bool {
	if h.done {
		return true
	}
	if h.kind == handlerReady {
		h.done = true
		return true
	}
	status, err := h.task.Poll()
	if status == TaskAgain {
		return false
	}
	if status == TaskFailed {
		h.fail(err)
	} else {
		h.succeed()
	}
	taskOutcomes.WithLabelValues(h.kind.String(), status.String()).Inc()
	if err := h.closeTask(); err != nil {
		h.logger.Warn("task close failed", "error", err)
	}
	h.done = true
	return true
}

func (h *handler) succeed() {
	switch h.kind {
	case handlerGet:
		h.response = NewResponse(StatusOK)
		h.response.SetContent(staticContentType(h.path), h.task.(*FileReader).Bytes())
	case handlerPost:
		if h.existed {
			h.response = NewResponse(StatusOK)
		} else {
			h.response = NewResponse(StatusCreated)
		}
		h.response.Header().Assign("Location", h.location)
	case handlerPut:
		if h.existed {
			h.response = NewResponse(StatusNoContent)
		} else {
			h.response = NewResponse(StatusCreated)
			h.response.Header().Assign("Location", h.location)
		}
	case handlerCGI:
		h.response = h.task.(*cgiPipeline).Response()
	default:
		BugExitln("unknown handler kind")
	}
}

func (h *handler) fail(err error) {
	status := int16(StatusInternalServerError)
	if h.kind != handlerCGI { // file open errors mean something to the client
		if errors.Is(err, fs.ErrNotExist) {
			status = StatusNotFound
		} else if errors.Is(err, fs.ErrPermission) {
			status = StatusForbidden
		}
	}
	h.logger.Error("request failed", "handler", h.kind, "status", status, "error", err)
	h.response = h.vhost.errorPages.response(status)
}

func (h *handler) closeTask() error {
	if h.task == nil {
		return nil
	}
	err := h.task.Close()
	h.task = nil
	return err
}

// close releases the handler whatever its state. Used when the connection goes away.
func (h *handler) close() error { return h.closeTask() }

func (h *handler) Response() *Response { return h.response }

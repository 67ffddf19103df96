// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// HTTP/1.x server. One goroutine drives every connection, one tick at a time. See RFC 9110 and 9112.

package hemi

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"golang.org/x/net/http/httpguts"
)

const (
	serverSoftware = "webserv/" + Version
	httpDateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
)

// ServerDeps are the collaborators of a Server. Zero fields get defaults.
type ServerDeps struct {
	Logger  hclog.Logger
	Clock   clockwork.Clock
	Backend ProcessBackend
}

// Server serves the connections of a Multiplexer with the configured virtual hosts.
type Server struct {
	// Assocs
	logger  hclog.Logger
	mux     Multiplexer
	backend ProcessBackend
	clock   clockwork.Clock
	// States
	config   *Config
	vhosts   map[int][]*vhost // by port, in config order
	fallback []*vhost         // for ports without servers
	conns    map[ConnID]*conn
	taskEnv  TaskEnv
	ticks    int64
}

// conn is the server side state of a connection.
type conn struct {
	// Assocs
	logger   hclog.Logger
	req      *Request   // being parsed
	handlers []*handler // in request order
	// States
	id         ConnID
	port       int
	remoteAddr string
	closing    bool // no more requests are read. closed once handlers are flushed
}

func NewServer(config *Config, mux Multiplexer, deps ServerDeps) (*Server, error) {
	s := new(Server)
	s.logger = deps.Logger
	if s.logger == nil {
		s.logger = hclog.NewNullLogger()
	}
	s.logger = s.logger.Named("server")
	s.clock = deps.Clock
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	s.backend = deps.Backend
	if s.backend == nil {
		s.backend = NewProcessBackend(s.logger.Named("proc"))
	}
	s.mux = mux
	s.config = config
	s.taskEnv = TaskEnv{Logger: s.logger, Clock: s.clock, Timeout: config.TimeoutDuration()}
	s.vhosts = make(map[int][]*vhost)
	for i := range config.Servers {
		_, port, err := config.Servers[i].HostPort()
		if err != nil {
			return nil, fmt.Errorf("servers[%d]: %w", i, err)
		}
		v := newVhost(&config.Servers[i], port, config, s.taskEnv)
		s.vhosts[port] = append(s.vhosts[port], v)
		if s.fallback == nil {
			s.fallback = []*vhost{v}
		}
	}
	if s.fallback == nil {
		return nil, errors.New("no servers")
	}
	s.conns = make(map[ConnID]*conn)
	return s, nil
}

func (s *Server) Logger() hclog.Logger { return s.logger }
func (s *Server) Ticks() int64         { return s.ticks }
func (s *Server) NumConns() int        { return len(s.conns) }

// Run ticks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("server is running", "servers", len(s.config.Servers), "tick", s.config.TickInterval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("server is stopping")
			return nil
		default:
		}
		if err := s.Tick(); err != nil {
			return err
		}
	}
}

// Tick waits for readiness once, then moves every connection forward as far as it can go without blocking.
func (s *Server) Tick() error {
	if err := s.mux.Wait(s.config.TickInterval); err != nil {
		return err
	}
	s.ticks++
	for _, id := range s.mux.Disconnected() {
		s.disconnect(id)
	}
	for _, id := range s.mux.Conns() {
		c, ok := s.conns[id]
		if !ok {
			c = s.connect(id)
		}
		s.receive(c)
		s.respond(c)
	}
	for _, vhosts := range s.vhosts {
		for _, v := range vhosts {
			if v.errorPages.pending() > 0 {
				v.errorPages.advance()
			}
		}
	}
	s.backend.Reap()
	return nil
}

func (s *Server) connect(id ConnID) *conn {
	c := &conn{id: id, port: s.mux.Port(id), remoteAddr: s.mux.RemoteAddr(id)}
	c.logger = s.logger.With("conn", int64(id))
	c.req = NewRequest(c.logger)
	s.conns[id] = c
	openConnections.Inc()
	c.logger.Debug("connection opened", "remote", c.remoteAddr, "port", c.port)
	return c
}

// disconnect releases everything c owns: the partial request and every pending handler.
func (s *Server) disconnect(id ConnID) {
	c, ok := s.conns[id]
	if !ok {
		return
	}
	var result *multierror.Error
	for _, h := range c.handlers {
		if err := h.close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		c.logger.Warn("handlers closed with errors", "error", err)
	}
	c.handlers = nil
	c.req.Reset()
	delete(s.conns, id)
	openConnections.Dec()
	c.logger.Debug("connection closed")
}

// receive parses every complete request in the inbound buffer of c.
func (s *Server) receive(c *conn) {
	inbound := s.mux.Inbound(c.id)
	s.parseInbound(c, inbound)
	if !c.closing && s.mux.ReadClosed(c.id) {
		c.logger.Debug("peer stopped sending", "unparsed", inbound.Len())
		c.closing = true
	}
}

// parseInbound turns the complete requests in inbound into handlers.
func (s *Server) parseInbound(c *conn, inbound *bytes.Buffer) {
	for !c.closing && inbound.Len() > 0 {
		result, err := c.req.Parse(inbound, s.config.ClientMaxBodySize)
		if result == ParseAgain {
			return
		}
		req := c.req
		c.req = NewRequest(c.logger)
		if result == ParseFailed {
			status := int16(StatusBadRequest)
			var parseError *ParseError
			if errors.As(err, &parseError) {
				status = parseError.Kind.Status()
				parseFailures.WithLabelValues(parseError.Kind.String()).Inc()
			}
			v := s.vhostOf(c.port, req.Hostname())
			c.handlers = append(c.handlers, newReadyHandler(c.logger, req, v, v.errorPages.response(status)))
			c.logger.Debug("unparsed input dropped", "size", inbound.Len())
			inbound.Reset()
			return
		}
		requestsParsed.WithLabelValues(req.Method()).Inc()
		if wantsClose(req) {
			c.closing = true
		}
		c.handlers = append(c.handlers, s.dispatch(c, req))
	}
}

// respond advances every handler of c and sends the finished responses that no earlier request is still waiting before.
func (s *Server) respond(c *conn) {
	sent := 0
	for i, h := range c.handlers {
		if h.advance() && i == sent {
			s.send(c, h, c.closing && i == len(c.handlers)-1)
			sent++
		}
	}
	if sent > 0 {
		n := copy(c.handlers, c.handlers[sent:])
		clear(c.handlers[n:])
		c.handlers = c.handlers[:n]
	}
	if c.closing && len(c.handlers) == 0 {
		s.mux.CloseAfterFlush(c.id)
	}
}

func (s *Server) send(c *conn, h *handler, last bool) {
	req, resp := h.req, h.Response()
	header := resp.Header()
	header.Assign("Date", s.clock.Now().UTC().Format(httpDateFormat))
	header.Assign("Server", serverSoftware)
	if last {
		header.Assign("Connection", "close")
	} else if req.VersionNum() == Version1_0 {
		header.Assign("Connection", "keep-alive")
	}
	if req.IsHEAD() {
		resp.OmitContent()
	}
	if _, err := resp.WriteTo(s.mux.Outbound(c.id)); err != nil {
		h.logger.Error("response not queued", "error", err)
		return
	}
	responsesSent.WithLabelValues(statusClass(resp.Status())).Inc()
	h.logger.Info("request served", "method", req.Method(), "target", req.Target(), "status", resp.Status(), "size", len(resp.Body()), "remote", c.remoteAddr)
}

// dispatch selects the handler of a complete request.
func (s *Server) dispatch(c *conn, req *Request) *handler {
	requestID := uuid.NewString()
	logger := c.logger.With("req", requestID)
	v := s.vhostOf(c.port, req.Hostname())
	uriPath, ok := decodePath(req.URIPath())
	if !ok {
		return newReadyHandler(logger, req, v, v.errorPages.response(StatusBadRequest))
	}
	loc := v.locate(uriPath)
	if loc == nil {
		return newReadyHandler(logger, req, v, v.errorPages.response(StatusNotFound))
	}
	if !loc.allows(req.MethodCode()) {
		response := v.errorPages.response(StatusMethodNotAllowed)
		response.Header().Assign("Allow", loc.allow)
		return newReadyHandler(logger, req, v, response)
	}
	env := s.taskEnv
	env.Logger = logger
	ctx := &handlerContext{
		logger:     logger,
		req:        req,
		vhost:      v,
		loc:        loc,
		backend:    s.backend,
		env:        env,
		uriPath:    uriPath,
		remoteAddr: c.remoteAddr,
		requestID:  requestID,
		tempDir:    s.config.TempDir,
	}
	if scriptName, pathInfo, interpreter, ok := loc.cgiScript(uriPath); ok {
		logger.Debug("cgi request", "script", scriptName, "pathInfo", pathInfo)
		return newCGIHandler(ctx, scriptName, pathInfo, interpreter)
	}
	return newStaticHandler(ctx)
}

func (s *Server) vhostOf(port int, hostname string) *vhost {
	vhosts, ok := s.vhosts[port]
	if !ok {
		vhosts = s.fallback
	}
	return selectVhost(vhosts, hostname)
}

// Shutdown releases every connection and the multiplexer.
func (s *Server) Shutdown() error {
	for id := range s.conns {
		s.disconnect(id)
	}
	for _, vhosts := range s.vhosts {
		for _, v := range vhosts {
			v.errorPages.close()
		}
	}
	s.backend.Reap()
	return s.mux.Close()
}

// wantsClose tells whether the connection must be closed after the response to req.
func wantsClose(req *Request) bool {
	connection := req.Header().Values("Connection")
	if httpguts.HeaderValuesContainsToken(connection, "close") {
		return true
	}
	return req.VersionNum() == Version1_0 && !httpguts.HeaderValuesContainsToken(connection, "keep-alive")
}

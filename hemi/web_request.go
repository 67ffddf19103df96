// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// HTTP/1.x requests. See RFC 9112.

package hemi

import (
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
)

const ( // method codes
	MethodGET     = 0x00000001
	MethodHEAD    = 0x00000002
	MethodPOST    = 0x00000004
	MethodPUT     = 0x00000008
	MethodDELETE  = 0x00000010
	MethodCONNECT = 0x00000020
	MethodOPTIONS = 0x00000040
	MethodTRACE   = 0x00000080
	MethodPATCH   = 0x00000100
)

var httpMethodCodes = map[string]uint32{
	"GET":     MethodGET,
	"HEAD":    MethodHEAD,
	"POST":    MethodPOST,
	"PUT":     MethodPUT,
	"DELETE":  MethodDELETE,
	"CONNECT": MethodCONNECT,
	"OPTIONS": MethodOPTIONS,
	"TRACE":   MethodTRACE,
	"PATCH":   MethodPATCH,
}

// methodCodesOf converts method names into a code mask. ok is false if any name is unknown.
func methodCodesOf(names []string) (mask uint32, ok bool) {
	for _, name := range names {
		code, known := httpMethodCodes[name]
		if !known {
			return 0, false
		}
		mask |= code
	}
	return mask, true
}

const ( // version numbers
	Version1_0 = 1000
	Version1_1 = 1001
)

// parseState is where a Request's parser will resume.
type parseState int8

const (
	parseStateStartLine parseState = iota
	parseStateHeader
	parseStateBody
	parseStateChunk
	parseStateTrailer
	parseStateDone
)

var parseStateNames = [...]string{
	parseStateStartLine: "start-line",
	parseStateHeader:    "header",
	parseStateBody:      "body",
	parseStateChunk:     "chunk",
	parseStateTrailer:   "trailer",
	parseStateDone:      "done",
}

func (s parseState) String() string { return parseStateNames[s] }

// Request is an HTTP/1.x request under assembly or assembled. It is owned by one connection at a time.
type Request struct {
	// Assocs
	logger hclog.Logger
	// States
	methodCode       uint32
	methodString     string
	uriPath          string
	queryString      string
	versionNum       int
	versionString    string
	header           Header
	body             []byte
	contentLength    int64    // declared (sized) or running total (chunked). never decreases
	chunked          bool     // transfer-encoding: chunked?
	trailersDeclared []string // names listed in "trailer" header fields
	trailersPending  []string // declared names not seen in the trailer section yet
	state            parseState
}

// NewRequest returns a Request ready for Parse. A nil logger discards the parser's traces.
func NewRequest(logger hclog.Logger) *Request {
	r := new(Request)
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	r.logger = logger
	return r
}

// Reset drops everything parsed so far so the Request can parse a new message.
func (r *Request) Reset() {
	*r = Request{logger: r.logger}
}

func (r *Request) MethodCode() uint32        { return r.methodCode }
func (r *Request) Method() string            { return r.methodString }
func (r *Request) IsGET() bool               { return r.methodCode == MethodGET }
func (r *Request) IsHEAD() bool              { return r.methodCode == MethodHEAD }
func (r *Request) IsPOST() bool              { return r.methodCode == MethodPOST }
func (r *Request) IsPUT() bool               { return r.methodCode == MethodPUT }
func (r *Request) IsDELETE() bool            { return r.methodCode == MethodDELETE }
func (r *Request) URIPath() string           { return r.uriPath }
func (r *Request) QueryString() string       { return r.queryString }
func (r *Request) VersionNum() int           { return r.versionNum }
func (r *Request) Version() string           { return r.versionString }
func (r *Request) Header() *Header           { return &r.header }
func (r *Request) Body() []byte              { return r.body }
func (r *Request) ContentLength() int64      { return r.contentLength }
func (r *Request) IsChunked() bool           { return r.chunked }
func (r *Request) TrailersPending() []string { return r.trailersPending }

// Target is the request-target as received.
func (r *Request) Target() string {
	if r.queryString == "" {
		return r.uriPath
	}
	return r.uriPath + "?" + r.queryString
}

// Hostname is the first "host" value without its port.
func (r *Request) Hostname() string {
	host := r.header.First("Host")
	if i := strings.LastIndexByte(host, ':'); i != -1 && !strings.HasSuffix(host, "]") {
		host = host[:i]
	}
	return host
}

// ContentType is the first "content-type" value, or "" if absent.
func (r *Request) ContentType() string { return r.header.First("Content-Type") }

// AppendTo appends r in wire format to dst. Chunked requests carry their body as one chunk followed by the declared trailers.
func (r *Request) AppendTo(dst []byte) []byte {
	dst = append(dst, r.methodString...)
	dst = append(dst, ' ')
	dst = append(dst, r.Target()...)
	dst = append(dst, ' ')
	dst = append(dst, r.versionString...)
	dst = append(dst, bytesCRLF...)
	r.header.Walk(func(name string, values []string) bool {
		if r.chunked && stringsHas(r.trailersDeclared, name) {
			return true // goes to trailer section
		}
		dst = appendFieldLine(dst, name, values)
		return true
	})
	dst = append(dst, bytesCRLF...)
	if !r.chunked {
		return append(dst, r.body...)
	}
	if len(r.body) > 0 {
		dst = strconv.AppendInt(dst, int64(len(r.body)), 16)
		dst = append(dst, bytesCRLF...)
		dst = append(dst, r.body...)
		dst = append(dst, bytesCRLF...)
	}
	dst = append(dst, "0\r\n"...)
	r.header.Walk(func(name string, values []string) bool {
		if stringsHas(r.trailersDeclared, name) {
			dst = appendFieldLine(dst, name, values)
		}
		return true
	})
	return append(dst, bytesCRLF...)
}

func appendFieldLine(dst []byte, name string, values []string) []byte {
	dst = append(dst, name...)
	dst = append(dst, ": "...)
	for i, value := range values {
		if i > 0 {
			dst = append(dst, ", "...)
		}
		dst = append(dst, value...)
	}
	return append(dst, bytesCRLF...)
}

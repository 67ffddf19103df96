// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// HTTP/1.x responses.

package hemi

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/valyala/bytebufferpool"
)

const ( // status codes
	// 2XX
	StatusOK        = 200
	StatusCreated   = 201
	StatusAccepted  = 202
	StatusNoContent = 204
	// 3XX
	StatusMovedPermanently = 301
	StatusFound            = 302
	StatusSeeOther         = 303
	StatusNotModified      = 304
	// 4XX
	StatusBadRequest                  = 400
	StatusForbidden                   = 403
	StatusNotFound                    = 404
	StatusMethodNotAllowed            = 405
	StatusRequestTimeout              = 408
	StatusConflict                    = 409
	StatusLengthRequired              = 411
	StatusContentTooLarge             = 413
	StatusURITooLong                  = 414
	StatusUnsupportedMediaType        = 415
	StatusRequestHeaderFieldsTooLarge = 431
	// 5XX
	StatusInternalServerError     = 500
	StatusNotImplemented          = 501
	StatusBadGateway              = 502
	StatusServiceUnavailable      = 503
	StatusGatewayTimeout          = 504
	StatusHTTPVersionNotSupported = 505
)

var http1Template = [16]byte{'H', 'T', 'T', 'P', '/', '1', '.', '1', ' ', 'x', 'x', 'x', ' ', '?', '\r', '\n'}
var http1Controls = [...][]byte{ // size: 506*24B
	// 2XX
	StatusOK:        []byte("HTTP/1.1 200 OK\r\n"),
	StatusCreated:   []byte("HTTP/1.1 201 Created\r\n"),
	StatusAccepted:  []byte("HTTP/1.1 202 Accepted\r\n"),
	StatusNoContent: []byte("HTTP/1.1 204 No Content\r\n"),
	// 3XX
	StatusMovedPermanently: []byte("HTTP/1.1 301 Moved Permanently\r\n"),
	StatusFound:            []byte("HTTP/1.1 302 Found\r\n"),
	StatusSeeOther:         []byte("HTTP/1.1 303 See Other\r\n"),
	StatusNotModified:      []byte("HTTP/1.1 304 Not Modified\r\n"),
	// 4XX
	StatusBadRequest:                  []byte("HTTP/1.1 400 Bad Request\r\n"),
	StatusForbidden:                   []byte("HTTP/1.1 403 Forbidden\r\n"),
	StatusNotFound:                    []byte("HTTP/1.1 404 Not Found\r\n"),
	StatusMethodNotAllowed:            []byte("HTTP/1.1 405 Method Not Allowed\r\n"),
	StatusRequestTimeout:              []byte("HTTP/1.1 408 Request Timeout\r\n"),
	StatusConflict:                    []byte("HTTP/1.1 409 Conflict\r\n"),
	StatusLengthRequired:              []byte("HTTP/1.1 411 Length Required\r\n"),
	StatusContentTooLarge:             []byte("HTTP/1.1 413 Content Too Large\r\n"),
	StatusURITooLong:                  []byte("HTTP/1.1 414 URI Too Long\r\n"),
	StatusUnsupportedMediaType:        []byte("HTTP/1.1 415 Unsupported Media Type\r\n"),
	StatusRequestHeaderFieldsTooLarge: []byte("HTTP/1.1 431 Request Header Fields Too Large\r\n"),
	// 5XX
	StatusInternalServerError:     []byte("HTTP/1.1 500 Internal Server Error\r\n"),
	StatusNotImplemented:          []byte("HTTP/1.1 501 Not Implemented\r\n"),
	StatusBadGateway:              []byte("HTTP/1.1 502 Bad Gateway\r\n"),
	StatusServiceUnavailable:      []byte("HTTP/1.1 503 Service Unavailable\r\n"),
	StatusGatewayTimeout:          []byte("HTTP/1.1 504 Gateway Timeout\r\n"),
	StatusHTTPVersionNotSupported: []byte("HTTP/1.1 505 HTTP Version Not Supported\r\n"),
}

// StatusText returns the reason phrase of a known status, or "" if unknown.
func StatusText(status int16) string {
	if status < 0 || int(status) >= len(http1Controls) || http1Controls[status] == nil {
		return ""
	}
	control := http1Controls[status]
	return string(control[len("HTTP/1.1 XXX ") : len(control)-2])
}

// statusForbidsContent reports statuses that never carry content. See RFC 9110 section 6.4.1.
func statusForbidsContent(status int16) bool {
	return status < 200 || status == StatusNoContent || status == StatusNotModified
}

// Response is an HTTP/1.1 response under construction. It is serialized once, by the connection that owns its request.
type Response struct {
	// States
	status      int16
	header      Header
	body        []byte
	omitContent bool // HEAD: keep content-length but send no content
}

// NewResponse returns an empty Response with the given status.
func NewResponse(status int16) *Response {
	r := new(Response)
	r.status = status
	return r
}

func (r *Response) Status() int16          { return r.status }
func (r *Response) SetStatus(status int16) { r.status = status }
func (r *Response) Header() *Header        { return &r.header }
func (r *Response) Body() []byte           { return r.body }
func (r *Response) SetBody(body []byte)    { r.body = body }
func (r *Response) OmitContent()           { r.omitContent = true }

// SetContent sets the body and its content type together.
func (r *Response) SetContent(contentType string, body []byte) {
	r.header.Assign("Content-Type", contentType)
	r.body = body
}

// AppendTo appends r in wire format to dst. A content-length is added unless one was set or the status forbids content.
func (r *Response) AppendTo(dst []byte) []byte {
	dst = append(dst, r.control()...)
	r.header.Walk(func(name string, values []string) bool {
		dst = appendFieldLine(dst, name, values)
		return true
	})
	forbidContent := statusForbidsContent(r.status)
	if !forbidContent && !r.header.Has("Content-Length") {
		dst = append(dst, "Content-Length: "...)
		dst = strconv.AppendInt(dst, int64(len(r.body)), 10)
		dst = append(dst, bytesCRLF...)
	}
	dst = append(dst, bytesCRLF...)
	if forbidContent || r.omitContent {
		return dst
	}
	return append(dst, r.body...)
}

// WriteTo serializes r through a pooled buffer and writes it to w in one call.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	buffer := bytebufferpool.Get()
	defer bytebufferpool.Put(buffer)

	buffer.B = r.AppendTo(buffer.B)
	n, err := w.Write(buffer.B)
	return int64(n), err
}

func (r *Response) control() []byte { // HTTP/1.1 xxx ?
	if r.status >= 0 && int(r.status) < len(http1Controls) && http1Controls[r.status] != nil {
		return http1Controls[r.status]
	}
	start := http1Template
	start[9] = byte(r.status/100 + '0')
	start[10] = byte(r.status/10%10 + '0')
	start[11] = byte(r.status%10 + '0')
	return start[:]
}

var webErrorPages = func() map[int16][]byte {
	const template = `<!doctype html>
<html lang="en">
<head>
<meta name="viewport" content="width=device-width,initial-scale=1.0">
<meta charset="utf-8">
<title>%d %s</title>
<style type="text/css">
body{text-align:center;}
header{font-size:72pt;}
main{font-size:36pt;}
footer{padding:20px;}
</style>
</head>
<body>
	<header>%d</header>
	<main>%s</main>
	<footer>Powered by Webserv</footer>
</body>
</html>`
	pages := make(map[int16][]byte)
	for status, control := range http1Controls {
		if status < 400 || control == nil {
			continue
		}
		phrase := control[len("HTTP/1.1 XXX ") : len(control)-2]
		pages[int16(status)] = []byte(fmt.Sprintf(template, status, phrase, status, phrase))
	}
	return pages
}()

// newErrorResponse makes an HTML response for status. page is used as the body when not nil.
func newErrorResponse(status int16, page []byte) *Response {
	if page == nil {
		if page = webErrorPages[status]; page == nil {
			page = []byte(strconv.Itoa(int(status)))
		}
	}
	resp := NewResponse(status)
	resp.SetContent("text/html; charset=utf-8", page)
	return resp
}

// responseFromCGI interprets the output of a CGI program. See RFC 3875 section 6.
//
// Output beginning with "HTTP/1." is a non-parsed header response and carries its own
// status line. Otherwise a CGI header section is expected, in which "Status" sets the
// status and "Location" without "Status" means 302. Output without a header section is
// wrapped as a 200 text/plain body.
func responseFromCGI(output []byte) (*Response, error) {
	resp := NewResponse(StatusOK)
	rest := output
	nph := strings.HasPrefix(WeakString(output), "HTTP/1.")
	if nph {
		line, size := cutLineLF(rest)
		if size == -1 {
			return nil, fmt.Errorf("cgi: incomplete status line")
		}
		if len(line) < len("HTTP/1.x 200") || line[len("HTTP/1.x")] != ' ' {
			return nil, fmt.Errorf("cgi: bad status line %q", line)
		}
		status, err := cgiStatusOf(string(line[len("HTTP/1.x "):]))
		if err != nil {
			return nil, err
		}
		resp.status = status
		rest = rest[size:]
	}
	header, body, ok := cutCGIHeader(rest)
	if !ok {
		if nph {
			return nil, fmt.Errorf("cgi: bad header section")
		}
		resp.SetContent("text/plain; charset=utf-8", output)
		return resp, nil
	}
	for _, field := range header {
		if cgiFramingField(field.name) { // framing is ours to decide
			continue
		}
		switch field.name {
		case "Status":
			if nph {
				continue
			}
			status, err := cgiStatusOf(field.value)
			if err != nil {
				return nil, err
			}
			resp.status = status
		case "Location":
			if !nph && !header.has("Status") {
				resp.status = StatusFound
			}
			resp.header.Append(field.name, field.value)
		default:
			resp.header.Append(field.name, field.value)
		}
	}
	resp.body = body
	return resp, nil
}

// cgiFramingField reports fields of CGI output that could disagree with the body we actually send.
func cgiFramingField(name string) bool {
	return strings.EqualFold(name, "Content-Length") || strings.EqualFold(name, "Transfer-Encoding") || strings.EqualFold(name, "Connection")
}

// cgiStatusOf parses "200" or "200 OK".
func cgiStatusOf(value string) (int16, error) {
	code, _, _ := strings.Cut(trimLWS(value), " ")
	if len(code) != 3 {
		return 0, fmt.Errorf("cgi: bad status %q", value)
	}
	status, err := strconv.Atoi(code)
	if err != nil || status < 100 {
		return 0, fmt.Errorf("cgi: bad status %q", value)
	}
	return int16(status), nil
}

type cgiField struct {
	name  string
	value string
}

type cgiFields []cgiField

func (fs cgiFields) has(name string) bool {
	for _, field := range fs {
		if field.name == name {
			return true
		}
	}
	return false
}

// cutCGIHeader splits output into its header fields and body. ok is false if output does not start with a header section.
func cutCGIHeader(output []byte) (fields cgiFields, body []byte, ok bool) {
	rest := output
	for {
		line, size := cutLineLF(rest)
		if size == -1 {
			return nil, nil, false
		}
		rest = rest[size:]
		if len(line) == 0 {
			if len(fields) == 0 {
				return nil, nil, false
			}
			return fields, rest, true
		}
		name, value, found := strings.Cut(string(line), ":")
		if !found || name == "" || hasLWS(name) {
			return nil, nil, false
		}
		fields = append(fields, cgiField{name, trimLWS(value)})
	}
}

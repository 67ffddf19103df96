// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Incremental HTTP/1.x request parser. See RFC 9112.

// The parser is resumable: each call consumes what it can from the input buffer, keeps all
// progress in the Request, and tells the caller to come back with more bytes if needed.

package hemi

import (
	"bytes"
	"strings"
)

// ParseResult is what Parse tells its caller.
type ParseResult int8

const (
	ParseOK        ParseResult = iota // request is complete
	ParseAgain                        // need more bytes, call Parse again after the next read
	ParseFailed                       // input is malformed, see the returned *ParseError
	parseInProcess                    // internal: state advanced, keep looping
)

// ParseErrorKind tells why a request failed to parse.
type ParseErrorKind int8

const (
	ParseEmptyLine ParseErrorKind = iota + 1
	ParseInvalidFormat
	ParseInvalidMethod
	ParseInvalidVersion
	ParseInvalidValue
	ParseInvalidField
	ParseInvalidSize
)

var parseErrorKindNames = [...]string{
	ParseEmptyLine:      "empty line",
	ParseInvalidFormat:  "invalid format",
	ParseInvalidMethod:  "invalid method",
	ParseInvalidVersion: "invalid version",
	ParseInvalidValue:   "invalid value",
	ParseInvalidField:   "invalid field",
	ParseInvalidSize:    "invalid size",
}

func (k ParseErrorKind) String() string {
	if k <= 0 || int(k) >= len(parseErrorKindNames) {
		return "unknown"
	}
	return parseErrorKindNames[k]
}

// Status is the response status for a request that failed with this kind.
func (k ParseErrorKind) Status() int16 {
	if k == ParseInvalidSize {
		return StatusContentTooLarge
	}
	return StatusBadRequest
}

// ParseError is returned by Parse along with ParseFailed.
type ParseError struct {
	Kind   ParseErrorKind
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return "http1: " + e.Kind.String()
	}
	return "http1: " + e.Kind.String() + ": " + e.Reason
}

// Is makes errors.Is(err, ErrInvalidSize) and friends match by kind.
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	return ok && t.Kind == e.Kind && t.Reason == ""
}

var ( // matchable with errors.Is
	ErrEmptyLine      = &ParseError{Kind: ParseEmptyLine}
	ErrInvalidFormat  = &ParseError{Kind: ParseInvalidFormat}
	ErrInvalidMethod  = &ParseError{Kind: ParseInvalidMethod}
	ErrInvalidVersion = &ParseError{Kind: ParseInvalidVersion}
	ErrInvalidValue   = &ParseError{Kind: ParseInvalidValue}
	ErrInvalidField   = &ParseError{Kind: ParseInvalidField}
	ErrInvalidSize    = &ParseError{Kind: ParseInvalidSize}
)

const (
	maxLineSize      = _16K // a start line, header line, or trailer line longer than this is refused
	maxChunkSizeLine = 256  // chunk-size [chunk-ext]
	maxChunkHexSize  = 15   // 15 hex digits always fit in an int64
)

// Parse consumes a prefix of buf and advances r. It must be called again with the same
// buf (grown by later reads) while it returns ParseAgain. Bytes of a following pipelined
// request are left in buf untouched.
func (r *Request) Parse(buf *bytes.Buffer, maxBodySize int64) (ParseResult, error) {
	for {
		var (
			result ParseResult
			err    error
		)
		if r.logger.IsTrace() {
			r.logger.Trace("parse", "state", r.state, "buffered", buf.Len())
		}
		switch r.state {
		case parseStateStartLine:
			result, err = r.parseStartLine(buf)
		case parseStateHeader:
			result, err = r.parseHeader(buf, maxBodySize)
		case parseStateBody:
			result, err = r.parseBody(buf)
		case parseStateChunk:
			result, err = r.parseChunk(buf, maxBodySize)
		case parseStateTrailer:
			result, err = r.parseTrailer(buf)
		default: // parseStateDone
			return ParseOK, nil
		}
		if err != nil {
			r.logger.Warn("request parsing failed", "state", r.state, "error", err)
			return ParseFailed, err
		}
		if result != parseInProcess {
			return result, nil
		}
	}
}

func (r *Request) parseStartLine(buf *bytes.Buffer) (ParseResult, error) { // request-line = method SP request-target SP HTTP-version CRLF
	line, ok, err := r.consumeLine(buf)
	if !ok {
		return ParseAgain, err
	}
	if line == "" {
		return ParseFailed, &ParseError{ParseEmptyLine, "request line is empty"}
	}
	if line[0] == ' ' {
		return ParseFailed, &ParseError{ParseInvalidFormat, "request line starts with space"}
	}
	tokens := strings.Split(line, " ")
	if len(tokens) != 3 || tokens[1] == "" || tokens[2] == "" {
		return ParseFailed, &ParseError{ParseInvalidFormat, "request line must have 3 tokens"}
	}

	methodCode, ok := httpMethodCodes[tokens[0]]
	if !ok {
		return ParseFailed, &ParseError{ParseInvalidMethod, tokens[0]}
	}
	r.methodCode, r.methodString = methodCode, tokens[0]

	r.uriPath, r.queryString, _ = strings.Cut(tokens[1], "?")

	versionNum, ok := versionNumOf(tokens[2])
	if !ok {
		return ParseFailed, &ParseError{ParseInvalidVersion, tokens[2]}
	}
	r.versionNum, r.versionString = versionNum, tokens[2]

	r.logger.Debug("got request line", "method", r.methodString, "path", r.uriPath, "query", r.queryString, "version", r.versionString)
	r.state = parseStateHeader
	return parseInProcess, nil
}

// versionNumOf accepts "HTTP/1.x" and returns 1000+x.
func versionNumOf(version string) (int, bool) {
	if len(version) != 8 || !strings.HasPrefix(version, "HTTP/") || version[6] != '.' {
		return 0, false
	}
	major, minor := version[5], version[7]
	if !byteIsDigit(major) || !byteIsDigit(minor) || major != '1' {
		return 0, false
	}
	return int(major-'0')*1000 + int(minor-'0'), true
}

func (r *Request) parseHeader(buf *bytes.Buffer, maxBodySize int64) (ParseResult, error) { // *( field-name ":" OWS field-value OWS CRLF ) CRLF
	for {
		line, ok, err := r.consumeLine(buf)
		if !ok {
			return ParseAgain, err
		}
		if line == "" { // end of header section
			break
		}
		name, values, err := splitFieldLine(line)
		if err != nil {
			return ParseFailed, err
		}
		r.header.Append(name, values...)
	}
	return r.examineHeader(maxBodySize)
}

// splitFieldLine splits "name: v1, v2" into its name and trimmed values.
func splitFieldLine(line string) (name string, values []string, err error) {
	colon := strings.IndexByte(line, ':')
	if colon == -1 {
		return "", nil, &ParseError{ParseInvalidField, "field line has no colon"}
	}
	name = line[:colon]
	if name == "" {
		return "", nil, &ParseError{ParseInvalidField, "field name is empty"}
	}
	if hasLWS(name) {
		return "", nil, &ParseError{ParseInvalidField, "field name has whitespace"}
	}
	return name, splitComma(line[colon+1:]), nil
}

func (r *Request) examineHeader(maxBodySize int64) (ParseResult, error) {
	// Host
	if n := r.header.Count("Host"); n > 1 || (n == 0 && r.versionNum >= Version1_1) {
		return ParseFailed, &ParseError{ParseInvalidField, "exactly one host is required"}
	}

	// Trailer
	if r.header.Has("Trailer") {
		for _, name := range r.header.Values("Trailer") {
			if name == "" || hasLWS(name) {
				return ParseFailed, &ParseError{ParseInvalidField, "bad trailer name"}
			}
			if trailerForbidden(name) {
				return ParseFailed, &ParseError{ParseInvalidField, name + " is not allowed in trailer"}
			}
			if !stringsHas(r.trailersDeclared, name) {
				r.trailersDeclared = append(r.trailersDeclared, name)
			}
		}
	}

	// POST & PUT must declare their content
	if r.methodCode&(MethodPOST|MethodPUT) != 0 && !r.header.Has("Content-Length") && !r.header.Has("Transfer-Encoding") {
		return ParseFailed, &ParseError{ParseInvalidField, "content-length or transfer-encoding is required for " + r.methodString}
	}

	// Transfer mode
	if r.header.Has("Transfer-Encoding") {
		codings := r.header.Values("Transfer-Encoding")
		if codings[len(codings)-1] != "chunked" {
			return ParseFailed, &ParseError{ParseInvalidValue, "only chunked transfer coding is supported"}
		}
		r.chunked = true
		r.trailersPending = append([]string(nil), r.trailersDeclared...)
		r.logger.Debug("content is chunked", "trailers", r.trailersDeclared)
		r.state = parseStateChunk
		return parseInProcess, nil
	}
	if r.header.Has("Content-Length") {
		size, ok := contentLengthOf(r.header.Values("Content-Length"))
		if !ok {
			return ParseFailed, &ParseError{ParseInvalidValue, "bad content-length"}
		}
		if size > maxBodySize {
			return ParseFailed, &ParseError{ParseInvalidSize, "content-length exceeds max body size"}
		}
		r.contentLength = size
		if size == 0 {
			r.state = parseStateDone
			return ParseOK, nil
		}
		r.logger.Debug("content is sized", "size", size)
		r.state = parseStateBody
		return parseInProcess, nil
	}
	r.state = parseStateDone // no content
	return ParseOK, nil
}

// contentLengthOf accepts one decimal value, or several identical ones.
func contentLengthOf(values []string) (int64, bool) {
	size, ok := decToI64(ConstBytes(values[0]))
	if !ok {
		return 0, false
	}
	for _, value := range values[1:] {
		if value != values[0] {
			return 0, false
		}
	}
	return size, true
}

func trailerForbidden(name string) bool {
	switch name {
	case "Transfer-Encoding", "Content-Length", "Trailer", "Host":
		return true
	}
	return false
}

func (r *Request) parseBody(buf *bytes.Buffer) (ParseResult, error) {
	if int64(buf.Len()) < r.contentLength {
		return ParseAgain, nil
	}
	r.body = append(r.body[:0], buf.Next(int(r.contentLength))...)
	r.state = parseStateDone
	return ParseOK, nil
}

func (r *Request) parseChunk(buf *bytes.Buffer, maxBodySize int64) (ParseResult, error) { // chunk-size [chunk-ext] CRLF chunk-data CRLF
	for {
		p := buf.Bytes()
		line, dataFrom := cutLine(p)
		if dataFrom == -1 {
			if len(p) > maxChunkSizeLine {
				return ParseFailed, &ParseError{ParseInvalidFormat, "chunk size line is too long"}
			}
			return ParseAgain, nil
		}
		size, err := chunkSizeOf(line)
		if err != nil {
			return ParseFailed, err
		}
		if r.contentLength+size > maxBodySize {
			return ParseFailed, &ParseError{ParseInvalidSize, "chunked content exceeds max body size"}
		}
		if size == 0 { // last-chunk
			if len(r.trailersDeclared) > 0 {
				buf.Next(dataFrom)
				r.logger.Debug("got last chunk, waiting for trailers", "pending", r.trailersPending)
				r.state = parseStateTrailer
				return parseInProcess, nil
			}
			if len(p) < dataFrom+len(bytesCRLF) {
				return ParseAgain, nil
			}
			if !bytes.Equal(p[dataFrom:dataFrom+len(bytesCRLF)], bytesCRLF) {
				return ParseFailed, &ParseError{ParseInvalidFormat, "last chunk must end with CRLF"}
			}
			buf.Next(dataFrom + len(bytesCRLF))
			r.state = parseStateDone
			return ParseOK, nil
		}
		dataEdge := dataFrom + int(size)
		if len(p) < dataEdge+len(bytesCRLF) {
			return ParseAgain, nil
		}
		if !bytes.Equal(p[dataEdge:dataEdge+len(bytesCRLF)], bytesCRLF) {
			return ParseFailed, &ParseError{ParseInvalidFormat, "chunk must end with CRLF"}
		}
		r.body = append(r.body, p[dataFrom:dataEdge]...)
		r.contentLength += size
		buf.Next(dataEdge + len(bytesCRLF))
		if r.logger.IsTrace() {
			r.logger.Trace("got chunk", "size", size, "total", r.contentLength)
		}
	}
}

// chunkSizeOf decodes "1*HEXDIG [ ; chunk-ext ]".
func chunkSizeOf(line []byte) (int64, error) {
	if semi := bytes.IndexByte(line, ';'); semi != -1 {
		line = line[:semi]
	}
	line = bytes.Trim(line, " \t")
	if len(line) > maxChunkHexSize {
		for _, b := range line {
			if _, ok := byteFromHex(b); !ok {
				return 0, &ParseError{ParseInvalidFormat, "bad chunk size"}
			}
		}
		return 0, &ParseError{ParseInvalidSize, "chunk size is too large"}
	}
	size, ok := hexToI64(line)
	if !ok {
		return 0, &ParseError{ParseInvalidFormat, "bad chunk size"}
	}
	return size, nil
}

func (r *Request) parseTrailer(buf *bytes.Buffer) (ParseResult, error) { // *( field-line CRLF ) CRLF
	for {
		line, ok, err := r.consumeLine(buf)
		if !ok {
			return ParseAgain, err
		}
		if line == "" { // end of trailer section
			if len(r.trailersPending) > 0 {
				return ParseFailed, &ParseError{ParseInvalidField, "declared trailer fields are missing: " + strings.Join(r.trailersPending, ", ")}
			}
			r.state = parseStateDone
			return ParseOK, nil
		}
		name, values, err := splitFieldLine(line)
		if err != nil {
			return ParseFailed, err
		}
		i := stringsIndex(r.trailersPending, name)
		if i == -1 {
			return ParseFailed, &ParseError{ParseInvalidField, name + " is not declared in trailer"}
		}
		r.trailersPending = append(r.trailersPending[:i], r.trailersPending[i+1:]...)
		r.header.Append(name, values...)
	}
}

// consumeLine removes one CRLF terminated line from buf. ok is false if the line is not complete yet; err is set if it never can be.
func (r *Request) consumeLine(buf *bytes.Buffer) (line string, ok bool, err error) {
	p := buf.Bytes()
	bytesLine, size := cutLine(p)
	if size == -1 {
		if len(p) > maxLineSize {
			return "", false, &ParseError{ParseInvalidSize, "line is too long"}
		}
		return "", false, nil
	}
	line = string(bytesLine)
	buf.Next(size)
	return line, true, nil
}

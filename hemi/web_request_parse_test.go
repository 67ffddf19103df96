// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package hemi

import (
	"bytes"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMaxBodySize = 1 * M

// requestView is what a test can compare of a Request.
type requestView struct {
	Method  string
	Path    string
	Query   string
	Version string
	Names   []string
	Fields  map[string][]string
	Body    string
	Length  int64
	Chunked bool
}

func viewOf(r *Request) requestView {
	v := requestView{
		Method:  r.Method(),
		Path:    r.URIPath(),
		Query:   r.QueryString(),
		Version: r.Version(),
		Names:   r.Header().Names(),
		Fields:  make(map[string][]string),
		Body:    string(r.Body()),
		Length:  r.ContentLength(),
		Chunked: r.IsChunked(),
	}
	r.Header().Walk(func(name string, values []string) bool {
		v.Fields[name] = values
		return true
	})
	return v
}

func parseAll(t *testing.T, input string) (*Request, *bytes.Buffer) {
	t.Helper()
	req := NewRequest(nil)
	buf := bytes.NewBufferString(input)
	result, err := req.Parse(buf, testMaxBodySize)
	require.NoError(t, err)
	require.Equal(t, ParseOK, result)
	return req, buf
}

func parseFail(t *testing.T, input string, maxBodySize int64) error {
	t.Helper()
	req := NewRequest(nil)
	result, err := req.Parse(bytes.NewBufferString(input), maxBodySize)
	require.Equal(t, ParseFailed, result)
	require.Error(t, err)
	return err
}

func TestParseGET(t *testing.T) {
	req, buf := parseAll(t, "GET /index.html?x=1 HTTP/1.1\r\nHost: example.com:8080\r\nAccept: text/html, */*\r\n\r\n")
	want := requestView{
		Method:  "GET",
		Path:    "/index.html",
		Query:   "x=1",
		Version: "HTTP/1.1",
		Names:   []string{"Host", "Accept"},
		Fields: map[string][]string{
			"Host":   {"example.com:8080"},
			"Accept": {"text/html", "*/*"},
		},
	}
	if diff := cmp.Diff(want, viewOf(req)); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "example.com", req.Hostname())
	assert.Equal(t, "/index.html?x=1", req.Target())
	assert.True(t, req.IsGET())
	assert.Equal(t, Version1_1, req.VersionNum())
	assert.Zero(t, buf.Len())
}

func TestParseChunkedABCD(t *testing.T) {
	req, buf := parseAll(t, "POST /upload HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n2\r\nab\r\n2\r\ncd\r\n0\r\n\r\n")
	assert.Equal(t, "abcd", string(req.Body()))
	assert.EqualValues(t, 4, req.ContentLength())
	assert.True(t, req.IsChunked())
	assert.Zero(t, buf.Len())
}

func TestParseChunkExtension(t *testing.T) {
	req, _ := parseAll(t, "PUT /f HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\nA;name=value\r\n0123456789\r\n0\r\n\r\n")
	assert.Equal(t, "0123456789", string(req.Body()))
}

func TestParseContentLengthZero(t *testing.T) {
	req, buf := parseAll(t, "POST /form HTTP/1.1\r\nHost: h\r\nContent-Length: 0\r\n\r\n")
	assert.Empty(t, req.Body())
	assert.Zero(t, req.ContentLength())
	assert.Zero(t, buf.Len())
}

func TestParseSizedBody(t *testing.T) {
	req := NewRequest(nil)
	buf := bytes.NewBufferString("PUT /f HTTP/1.1\r\nHost: h\r\nContent-Length: 5\r\n\r\nhel")
	result, err := req.Parse(buf, testMaxBodySize)
	require.NoError(t, err)
	require.Equal(t, ParseAgain, result)
	buf.WriteString("lo")
	result, err = req.Parse(buf, testMaxBodySize)
	require.NoError(t, err)
	require.Equal(t, ParseOK, result)
	assert.Equal(t, "hello", string(req.Body()))
}

func TestParseOversizeBeforeBody(t *testing.T) {
	err := parseFail(t, "POST /big HTTP/1.1\r\nHost: h\r\nContent-Length: 100\r\n\r\n", 10)
	assert.ErrorIs(t, err, ErrInvalidSize)

	var parseError *ParseError
	require.True(t, errors.As(err, &parseError))
	assert.Equal(t, int16(StatusContentTooLarge), parseError.Kind.Status())
}

func TestParseChunkedOversize(t *testing.T) {
	err := parseFail(t, "POST / HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n8\r\n12345678\r\n8\r\n", 10)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestParseTrailers(t *testing.T) {
	req, buf := parseAll(t, "POST /t HTTP/1.1\r\nHost: h\r\nTrailer: X-Sum\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nabcd\r\n0\r\nX-Sum: 42\r\n\r\n")
	assert.Equal(t, "abcd", string(req.Body()))
	assert.Equal(t, "42", req.Header().First("X-Sum"))
	assert.Empty(t, req.TrailersPending())
	assert.Zero(t, buf.Len())
}

func TestParseTrailersThenPipelined(t *testing.T) {
	next := "GET /b HTTP/1.1\r\nHost: h\r\n\r\n"
	req, buf := parseAll(t, "POST /t HTTP/1.1\r\nHost: h\r\nTrailer: X-Sum\r\nTransfer-Encoding: chunked\r\n\r\n0\r\nX-Sum: 0\r\n\r\n"+next)
	assert.Equal(t, "0", req.Header().First("X-Sum"))
	assert.Equal(t, next, buf.String(), "the empty line ending the trailers is consumed")
}

func TestParseTrailerErrors(t *testing.T) {
	head := "POST /t HTTP/1.1\r\nHost: h\r\nTrailer: X-Sum\r\nTransfer-Encoding: chunked\r\n\r\n0\r\n"
	assert.ErrorIs(t, parseFail(t, head+"\r\n", testMaxBodySize), ErrInvalidField, "declared trailer is missing")
	assert.ErrorIs(t, parseFail(t, head+"X-Other: 1\r\n\r\n", testMaxBodySize), ErrInvalidField, "undeclared trailer")
	assert.ErrorIs(t, parseFail(t, "POST /t HTTP/1.1\r\nHost: h\r\nTrailer: Content-Length\r\nTransfer-Encoding: chunked\r\n\r\n", testMaxBodySize), ErrInvalidField)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty line", "\r\n", ErrEmptyLine},
		{"two tokens", "GET /\r\n", ErrInvalidFormat},
		{"leading space", " GET / HTTP/1.1\r\n", ErrInvalidFormat},
		{"double space", "GET  / HTTP/1.1\r\n", ErrInvalidFormat},
		{"unknown method", "FETCH / HTTP/1.1\r\n", ErrInvalidMethod},
		{"lower case method", "get / HTTP/1.1\r\n", ErrInvalidMethod},
		{"http2", "GET / HTTP/2.0\r\n", ErrInvalidVersion},
		{"bad version", "GET / HTTX/1.1\r\n", ErrInvalidVersion},
		{"no host", "GET / HTTP/1.1\r\n\r\n", ErrInvalidField},
		{"two hosts", "GET / HTTP/1.1\r\nHost: a\r\nHost: b\r\n\r\n", ErrInvalidField},
		{"no colon", "GET / HTTP/1.1\r\nHost: h\r\nbroken\r\n\r\n", ErrInvalidField},
		{"space in name", "GET / HTTP/1.1\r\nHost: h\r\nX Y: 1\r\n\r\n", ErrInvalidField},
		{"post without length", "POST / HTTP/1.1\r\nHost: h\r\n\r\n", ErrInvalidField},
		{"bad content length", "PUT / HTTP/1.1\r\nHost: h\r\nContent-Length: 1x\r\n\r\n", ErrInvalidValue},
		{"conflicting lengths", "PUT / HTTP/1.1\r\nHost: h\r\nContent-Length: 1, 2\r\n\r\n", ErrInvalidValue},
		{"gzip coding", "PUT / HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: gzip\r\n\r\n", ErrInvalidValue},
		{"bad chunk size", "PUT / HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n", ErrInvalidFormat},
		{"negative chunk size", "PUT / HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n-1\r\n", ErrInvalidFormat},
		{"chunk without crlf", "PUT / HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n2\r\nabcd\r\n", ErrInvalidFormat},
		{"huge chunk size", "PUT / HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\nfffffffffffffffff\r\n", ErrInvalidSize},
		{"line too long", "GET /" + strings.Repeat("a", maxLineSize+1), ErrInvalidSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseFail(t, tt.input, testMaxBodySize)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseHTTP10WithoutHost(t *testing.T) {
	req, _ := parseAll(t, "GET / HTTP/1.0\r\n\r\n")
	assert.Equal(t, Version1_0, req.VersionNum())
	assert.Equal(t, "", req.Hostname())
}

func TestParseAgainOnPartialInput(t *testing.T) {
	req := NewRequest(nil)
	buf := bytes.NewBufferString("GET / HT")
	result, err := req.Parse(buf, testMaxBodySize)
	require.NoError(t, err)
	assert.Equal(t, ParseAgain, result)
	buf.WriteString("TP/1.1\r\nHost: h\r\n")
	result, err = req.Parse(buf, testMaxBodySize)
	require.NoError(t, err)
	assert.Equal(t, ParseAgain, result)
	buf.WriteString("\r\n")
	result, err = req.Parse(buf, testMaxBodySize)
	require.NoError(t, err)
	assert.Equal(t, ParseOK, result)
}

func TestParsePipelined(t *testing.T) {
	req, buf := parseAll(t, "GET /a HTTP/1.1\r\nHost: h\r\n\r\nGET /b HTTP/1.1\r\nHost: h\r\n\r\n")
	assert.Equal(t, "/a", req.URIPath())
	assert.Equal(t, "GET /b HTTP/1.1\r\nHost: h\r\n\r\n", buf.String(), "the next request is left untouched")

	req.Reset()
	result, err := req.Parse(buf, testMaxBodySize)
	require.NoError(t, err)
	require.Equal(t, ParseOK, result)
	assert.Equal(t, "/b", req.URIPath())
	assert.Zero(t, buf.Len())
}

func TestParseErrorMessages(t *testing.T) {
	err := &ParseError{ParseInvalidMethod, "FETCH"}
	assert.Equal(t, "http1: invalid method: FETCH", err.Error())
	assert.Equal(t, "http1: empty line", ErrEmptyLine.Error())
	assert.False(t, errors.Is(err, ErrInvalidFormat))
	assert.Equal(t, int16(StatusBadRequest), ParseInvalidFormat.Status())
	assert.Equal(t, "unknown", ParseErrorKind(0).String())
}

var splitInputs = []string{
	"GET /index.html?x=1 HTTP/1.1\r\nHost: example.com\r\nAccept: a, b\r\nAccept: c\r\n\r\n",
	"PUT /f HTTP/1.1\r\nHost: h\r\nContent-Length: 11\r\n\r\nhello world",
	"POST /t HTTP/1.1\r\nHost: h\r\nTrailer: X-Sum, X-Count\r\nTransfer-Encoding: chunked\r\n\r\n2\r\nab\r\n3;ext\r\ncde\r\n0\r\nX-Count: 2\r\nX-Sum: 5\r\n\r\n",
	"POST /u HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n1a\r\nabcdefghijklmnopqrstuvwxyz\r\n0\r\n\r\n",
}

// Feeding a request in any pieces gives the same request as feeding it at once.
func TestParseSplitProperty(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(0, 8)
	for _, input := range splitInputs {
		whole, _ := parseAll(t, input)
		want := viewOf(whole)
		for i := 0; i < 100; i++ {
			var cuts []uint16
			f.Fuzz(&cuts)
			got := parsePieces(t, input, cutPoints(cuts, len(input)))
			if diff := cmp.Diff(want, viewOf(got)); diff != "" {
				t.Fatalf("split parse of %q differs (-want +got):\n%s", input, diff)
			}
		}
		for cut := 0; cut <= len(input); cut++ {
			got := parsePieces(t, input, []int{cut})
			require.Equal(t, want, viewOf(got), "cut at %d", cut)
		}
	}
}

func cutPoints(cuts []uint16, size int) []int {
	points := make([]int, 0, len(cuts))
	for _, cut := range cuts {
		points = append(points, int(cut)%(size+1))
	}
	sort.Ints(points)
	return points
}

func parsePieces(t *testing.T, input string, points []int) *Request {
	t.Helper()
	req := NewRequest(nil)
	buf := new(bytes.Buffer)
	from := 0
	for _, to := range append(points, len(input)) {
		buf.WriteString(input[from:to])
		from = to
		result, err := req.Parse(buf, testMaxBodySize)
		require.NoError(t, err)
		if result == ParseOK {
			require.Equal(t, len(input), to, "complete before all bytes arrived")
			require.Zero(t, buf.Len())
			return req
		}
		require.Equal(t, ParseAgain, result)
	}
	t.Fatalf("request %q is never complete", input)
	return nil
}

// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package hemi

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A parsed request written back to the wire parses into the same request.
func TestRequestRoundTrip(t *testing.T) {
	for _, input := range splitInputs {
		first, _ := parseAll(t, input)
		wire := first.AppendTo(nil)

		second := NewRequest(nil)
		result, err := second.Parse(bytes.NewBuffer(wire), testMaxBodySize)
		require.NoError(t, err)
		require.Equal(t, ParseOK, result)
		if diff := cmp.Diff(viewOf(first), viewOf(second)); diff != "" {
			t.Errorf("round trip of %q differs (-first +second):\n%s", input, diff)
		}
	}
}

func TestRequestAppendToMergesLines(t *testing.T) {
	req, _ := parseAll(t, "GET / HTTP/1.1\r\nHost: h\r\nAccept: a\r\nAccept: b\r\n\r\n")
	assert.Equal(t, "GET / HTTP/1.1\r\nHost: h\r\nAccept: a, b\r\n\r\n", string(req.AppendTo(nil)))
}

func TestRequestAppendToChunked(t *testing.T) {
	req, _ := parseAll(t, "POST /t HTTP/1.1\r\nHost: h\r\nTrailer: X-Sum\r\nTransfer-Encoding: chunked\r\n\r\n2\r\nab\r\n2\r\ncd\r\n0\r\nX-Sum: 4\r\n\r\n")
	want := "POST /t HTTP/1.1\r\nHost: h\r\nTrailer: X-Sum\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nabcd\r\n0\r\nX-Sum: 4\r\n\r\n"
	assert.Equal(t, want, string(req.AppendTo(nil)))
}

func TestRequestReset(t *testing.T) {
	req, _ := parseAll(t, "PUT /f HTTP/1.1\r\nHost: h\r\nContent-Length: 2\r\n\r\nok")
	req.Reset()
	assert.Equal(t, "", req.Method())
	assert.Zero(t, req.Header().Len())
	assert.Empty(t, req.Body())
	assert.Zero(t, req.ContentLength())
}

func TestMethodCodesOf(t *testing.T) {
	mask, ok := methodCodesOf([]string{"GET", "POST"})
	require.True(t, ok)
	assert.EqualValues(t, MethodGET|MethodPOST, mask)
	_, ok = methodCodesOf([]string{"GET", "BREW"})
	assert.False(t, ok)
}

func TestRequestHostname(t *testing.T) {
	tests := map[string]string{
		"example.com":      "example.com",
		"example.com:8080": "example.com",
		"[::1]:8080":       "[::1]",
		"[::1]":            "[::1]",
	}
	for host, want := range tests {
		req, _ := parseAll(t, "GET / HTTP/1.1\r\nHost: "+host+"\r\n\r\n")
		assert.Equal(t, want, req.Hostname(), host)
	}
}

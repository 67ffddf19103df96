// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Common elements. Byte cursor helpers here are pure: they never keep state.

package hemi

import (
	"bytes"
	"strings"
	"unsafe"
)

const ( // units
	K = 1 << 10
	M = 1 << 20
	G = 1 << 30
)

const ( // sizes
	_4K  = 4 * K
	_16K = 16 * K
	_64K = 64 * K
	_1M  = 1 * M
)

var bytesCRLF = []byte("\r\n")

func ConstBytes(s string) (p []byte) { // WARNING: *DO NOT* mutate s through p!
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
func WeakString(p []byte) (s string) { // WARNING: *DO NOT* mutate p while s is in use!
	return unsafe.String(unsafe.SliceData(p), len(p))
}

// cutLine returns the bytes before the first CRLF in p, and the size of the line including its CRLF. size is -1 if p has no CRLF.
func cutLine(p []byte) (line []byte, size int) {
	eol := bytes.Index(p, bytesCRLF)
	if eol == -1 {
		return nil, -1
	}
	return p[:eol], eol + len(bytesCRLF)
}

// cutLineLF is like cutLine but also accepts a bare LF, as CGI programs often write one.
func cutLineLF(p []byte) (line []byte, size int) {
	eol := bytes.IndexByte(p, '\n')
	if eol == -1 {
		return nil, -1
	}
	size = eol + 1
	if eol > 0 && p[eol-1] == '\r' {
		eol--
	}
	return p[:eol], size
}

func trimLWS(s string) string { return strings.Trim(s, " \t") }
func hasLWS(s string) bool    { return strings.ContainsAny(s, " \t") }

// splitComma splits a field value on commas and trims each element.
func splitComma(s string) []string {
	values := strings.Split(s, ",")
	for i, value := range values {
		values[i] = trimLWS(value)
	}
	return values
}

func stringsHas(ss []string, s string) bool { return stringsIndex(ss, s) != -1 }
func stringsIndex(ss []string, s string) int {
	for i, x := range ss {
		if x == s {
			return i
		}
	}
	return -1
}

func hexToI64(hex []byte) (int64, bool) {
	if n := len(hex); n == 0 || n > 16 {
		return 0, false
	}
	var i64 int64
	for _, b := range hex {
		n, ok := byteFromHex(b)
		if !ok {
			return 0, false
		}
		i64 = i64<<4 + int64(n)
		if i64 < 0 {
			return 0, false
		}
	}
	return i64, true
}
func decToI64(dec []byte) (int64, bool) {
	if n := len(dec); n == 0 || n > 19 { // the max number of int64 is 19 bytes
		return 0, false
	}
	var i64 int64
	for _, b := range dec {
		if !byteIsDigit(b) {
			return 0, false
		}
		i64 = i64*10 + int64(b-'0')
		if i64 < 0 {
			return 0, false
		}
	}
	return i64, true
}

func byteIsDigit(b byte) bool { return b >= '0' && b <= '9' }
func byteFromHex(b byte) (n byte, ok bool) {
	if b >= '0' && b <= '9' {
		return b - '0', true
	}
	if b >= 'A' && b <= 'F' {
		return b - 'A' + 10, true
	}
	if b >= 'a' && b <= 'f' {
		return b - 'a' + 10, true
	}
	return 0, false
}

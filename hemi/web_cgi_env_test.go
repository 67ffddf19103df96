// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package hemi

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCGIEnviron(t *testing.T) {
	req, _ := parseAll(t, "POST /cgi-bin/app.py/extra?a=1 HTTP/1.1\r\nHost: example.com\r\nContent-Type: text/plain\r\nX-Forwarded-For: 10.0.0.1\r\nUser-Agent: test\r\nContent-Length: 3\r\n\r\nabc")
	environ := cgiEnviron(req, &cgiMeta{
		serverName: "example.com",
		serverPort: 8080,
		remoteAddr: "127.0.0.1:5555",
		scriptName: "/cgi-bin/app.py",
		scriptFile: "/srv/www/cgi-bin/app.py",
		pathInfo:   "/extra",
		requestID:  "id-1",
	})
	env := make(map[string]string)
	for _, kv := range environ {
		name, value, _ := strings.Cut(kv, "=")
		env[name] = value
	}
	want := map[string]string{
		"GATEWAY_INTERFACE":    "CGI/1.1",
		"SERVER_SOFTWARE":      "webserv/" + Version,
		"SERVER_PROTOCOL":      "HTTP/1.1",
		"SERVER_NAME":          "example.com",
		"SERVER_PORT":          "8080",
		"REQUEST_METHOD":       "POST",
		"REQUEST_URI":          "/cgi-bin/app.py/extra?a=1",
		"QUERY_STRING":         "a=1",
		"SCRIPT_NAME":          "/cgi-bin/app.py",
		"SCRIPT_FILENAME":      "/srv/www/cgi-bin/app.py",
		"PATH_INFO":            "/extra",
		"REMOTE_ADDR":          "127.0.0.1:5555",
		"REDIRECT_STATUS":      "200",
		"REQUEST_ID":           "id-1",
		"CONTENT_LENGTH":       "3",
		"CONTENT_TYPE":         "text/plain",
		"HTTP_HOST":            "example.com",
		"HTTP_X_FORWARDED_FOR": "10.0.0.1",
		"HTTP_USER_AGENT":      "test",
	}
	for name, value := range want {
		assert.Equal(t, value, env[name], name)
	}
	assert.NotContains(t, env, "HTTP_CONTENT_LENGTH")
	assert.NotContains(t, env, "HTTP_CONTENT_TYPE")
}

func TestCGIEnvironWithoutContent(t *testing.T) {
	req, _ := parseAll(t, "GET /cgi-bin/app.sh HTTP/1.1\r\nHost: h\r\n\r\n")
	environ := cgiEnviron(req, &cgiMeta{scriptName: "/cgi-bin/app.sh"})
	assert.Contains(t, environ, "CONTENT_LENGTH=0")
	for _, kv := range environ {
		assert.False(t, strings.HasPrefix(kv, "CONTENT_TYPE="))
	}
}

func TestCGIHeaderName(t *testing.T) {
	tests := []struct {
		name    string
		envName string
		ok      bool
	}{
		{"User-Agent", "HTTP_USER_AGENT", true},
		{"x-a1", "HTTP_X_A1", true},
		{"A=B", "", false},
		{"X_Forwarded", "", false},
		{"Na\x00me", "", false},
		{"Proxy", "", false},
		{"proxy", "", false},
	}
	for _, tt := range tests {
		envName, ok := cgiHeaderName(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.envName, envName, tt.name)
	}
}

func TestCGIEnvironSkipsUnsafeNames(t *testing.T) {
	req, _ := parseAll(t, "GET /cgi-bin/app.sh HTTP/1.1\r\nHost: h\r\nA=B: x\r\nProxy: http://evil:8080\r\nX-Ok: yes\r\n\r\n")
	environ := cgiEnviron(req, &cgiMeta{scriptName: "/cgi-bin/app.sh"})
	assert.Contains(t, environ, "HTTP_X_OK=yes")
	for _, kv := range environ {
		assert.False(t, strings.HasPrefix(kv, "HTTP_A"), kv)
		assert.False(t, strings.HasPrefix(kv, "HTTP_PROXY="), kv)
	}
}

// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// CGI meta-variables. See RFC 3875 section 4.1.

package hemi

import (
	"os"
	"strconv"
	"strings"
)

// cgiMeta is what the server knows about a CGI request besides the request itself.
type cgiMeta struct {
	serverName string
	serverPort int
	remoteAddr string
	scriptName string // URI path of the script
	scriptFile string // file path of the script
	pathInfo   string
	requestID  string
}

func cgiEnviron(req *Request, meta *cgiMeta) []string {
	env := make([]string, 0, 20+req.Header().Len())
	add := func(name string, value string) { env = append(env, name+"="+value) }

	add("GATEWAY_INTERFACE", "CGI/1.1")
	add("SERVER_SOFTWARE", "webserv/"+Version)
	add("SERVER_PROTOCOL", req.Version())
	add("SERVER_NAME", meta.serverName)
	add("SERVER_PORT", strconv.Itoa(meta.serverPort))
	add("REQUEST_METHOD", req.Method())
	add("REQUEST_URI", req.Target())
	add("QUERY_STRING", req.QueryString())
	add("SCRIPT_NAME", meta.scriptName)
	add("SCRIPT_FILENAME", meta.scriptFile)
	add("PATH_INFO", meta.pathInfo)
	add("REMOTE_ADDR", meta.remoteAddr)
	add("REDIRECT_STATUS", "200")
	add("REQUEST_ID", meta.requestID)
	add("CONTENT_LENGTH", strconv.Itoa(len(req.Body())))
	if contentType := req.ContentType(); contentType != "" {
		add("CONTENT_TYPE", contentType)
	}
	if path, ok := os.LookupEnv("PATH"); ok {
		add("PATH", path)
	}
	req.Header().Walk(func(name string, values []string) bool {
		switch name {
		case "Content-Length", "Content-Type", "Transfer-Encoding", "Trailer":
			return true
		}
		if envName, ok := cgiHeaderName(name); ok {
			add(envName, strings.Join(values, ", "))
		}
		return true
	})
	return env
}

// cgiHeaderName turns "User-Agent" into "HTTP_USER_AGENT". ok is false for names that must not reach the environment:
// names with bytes other than letters, digits and '-', and "Proxy", which would set HTTP_PROXY.
func cgiHeaderName(name string) (envName string, ok bool) {
	if strings.EqualFold(name, "Proxy") {
		return "", false
	}
	var b strings.Builder
	b.Grow(len("HTTP_") + len(name))
	b.WriteString("HTTP_")
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		case c == '-':
			c = '_'
		case c >= 'A' && c <= 'Z', byteIsDigit(c):
		default:
			return "", false
		}
		b.WriteByte(c)
	}
	return b.String(), true
}

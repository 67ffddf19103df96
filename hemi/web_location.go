// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Virtual hosts and their locations.

package hemi

import (
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// location maps a URI path prefix to a directory and the rules that apply under it.
type location struct {
	// States
	path        string            // URI prefix, like "/" or "/cgi-bin"
	root        string            // directory that path maps to
	index       string            // index file of directories. "" means none
	methods     uint32            // allowed method codes
	allow       string            // value of "allow" in 405 responses
	cgi         map[string]string // extension -> interpreter. "" runs the script itself
	uploadStore string            // POST target directory. "" means root
}

func newLocation(config *LocationConfig, uploadStore string) *location {
	l := new(location)
	l.path = config.Path
	l.root = strings.TrimRight(config.Root, "/")
	l.index = config.Index
	l.methods, _ = methodCodesOf(config.Methods) // checked by config
	l.allow = strings.Join(config.Methods, ", ")
	l.cgi = config.CGI
	l.uploadStore = config.UploadStore
	if l.uploadStore == "" {
		l.uploadStore = uploadStore
	}
	return l
}

// matches tells whether uriPath is under l. A prefix only matches at a segment boundary.
func (l *location) matches(uriPath string) bool {
	if !strings.HasPrefix(uriPath, l.path) {
		return false
	}
	return len(uriPath) == len(l.path) || strings.HasSuffix(l.path, "/") || uriPath[len(l.path)] == '/'
}

func (l *location) allows(methodCode uint32) bool { return l.methods&methodCode != 0 }

// resolve maps a decoded URI path to a file path under root. A trailing slash is kept.
func (l *location) resolve(uriPath string) string {
	clean := path.Clean("/" + uriPath) // never escapes "/"
	if strings.HasSuffix(uriPath, "/") && clean != "/" {
		clean += "/"
	}
	return l.root + clean
}

// cgiScript finds the first path segment that names a CGI script and splits the path there.
func (l *location) cgiScript(uriPath string) (scriptName string, pathInfo string, interpreter string, ok bool) {
	if len(l.cgi) == 0 {
		return "", "", "", false
	}
	for end := 0; end < len(uriPath); {
		next := strings.IndexByte(uriPath[end+1:], '/')
		if next == -1 {
			next = len(uriPath)
		} else {
			next += end + 1
		}
		segment := uriPath[:next]
		if interpreter, ok = l.cgi[filepath.Ext(segment)]; ok {
			return segment, uriPath[next:], interpreter, true
		}
		end = next
	}
	return "", "", "", false
}

// vhost is a virtual host: a server block on a port.
type vhost struct {
	// Assocs
	logger     hclog.Logger
	errorPages *errorPages
	// States
	port      int
	names     []string
	locations []*location // longest path first
}

func newVhost(config *ServerConfig, port int, global *Config, env TaskEnv) *vhost {
	v := new(vhost)
	v.port = port
	v.names = config.ServerNames
	name := "default"
	if len(v.names) > 0 {
		name = v.names[0]
	}
	v.logger = env.logger().Named(name)
	env.Logger = v.logger
	for i := range config.Locations {
		v.locations = append(v.locations, newLocation(&config.Locations[i], global.UploadStore))
	}
	sort.SliceStable(v.locations, func(i, j int) bool { return len(v.locations[i].path) > len(v.locations[j].path) })
	v.errorPages = newErrorPages(env, config.ErrorPages)
	return v
}

func (v *vhost) isForMe(hostname string) bool {
	for _, name := range v.names {
		if strings.EqualFold(name, hostname) {
			return true
		}
	}
	return false
}
func (v *vhost) hasNames() bool { return len(v.names) > 0 }

// locate returns the location with the longest prefix of uriPath, or nil.
func (v *vhost) locate(uriPath string) *location {
	for _, l := range v.locations {
		if l.matches(uriPath) {
			return l
		}
	}
	return nil
}

// selectVhost picks the vhost named hostname. Otherwise the first nameless one, otherwise the first one.
func selectVhost(vhosts []*vhost, hostname string) *vhost {
	for _, v := range vhosts {
		if v.isForMe(hostname) {
			return v
		}
	}
	for _, v := range vhosts {
		if !v.hasNames() {
			return v
		}
	}
	return vhosts[0]
}

// decodePath percent-decodes a URI path. ok is false if it is malformed.
func decodePath(uriPath string) (decoded string, ok bool) {
	if !strings.HasPrefix(uriPath, "/") {
		return "", false
	}
	decoded, err := url.PathUnescape(uriPath)
	if err != nil || strings.IndexByte(decoded, 0) != -1 {
		return "", false
	}
	return decoded, true
}

// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Configured error pages. They are loaded in the background; a generated page stands in until then.

package hemi

import (
	"github.com/hashicorp/go-hclog"
)

type errorPages struct {
	// Assocs
	logger hclog.Logger
	// States
	pages map[int16]*errorPage
}

type errorPage struct {
	path    string
	reader  *FileReader // nil once loaded or failed
	content []byte      // valid if loaded
	loaded  bool
}

func newErrorPages(env TaskEnv, paths map[int16]string) *errorPages {
	p := &errorPages{logger: env.logger(), pages: make(map[int16]*errorPage, len(paths))}
	for status, path := range paths {
		p.pages[status] = &errorPage{path: path, reader: NewFileReader(env, path)}
	}
	return p
}

// advance polls every page that is still loading.
func (p *errorPages) advance() {
	for status, page := range p.pages {
		if page.reader == nil {
			continue
		}
		switch taskStatus, err := page.reader.Poll(); taskStatus {
		case TaskDone:
			page.content, page.loaded = page.reader.Bytes(), true
			p.logger.Debug("error page loaded", "status", status, "file", page.path)
			page.reader.Close()
			page.reader = nil
		case TaskFailed:
			p.logger.Warn("error page unavailable, using generated page", "status", status, "file", page.path, "error", err)
			page.reader.Close()
			page.reader = nil
		}
	}
}

// page returns the configured page of status if it is loaded, or nil.
func (p *errorPages) page(status int16) []byte {
	page, ok := p.pages[status]
	if !ok {
		return nil
	}
	if page.reader != nil {
		p.advance()
	}
	if !page.loaded {
		return nil
	}
	return page.content
}

// pending is the number of pages still loading.
func (p *errorPages) pending() int {
	n := 0
	for _, page := range p.pages {
		if page.reader != nil {
			n++
		}
	}
	return n
}

func (p *errorPages) close() {
	for _, page := range p.pages {
		if page.reader != nil {
			page.reader.Close()
			page.reader = nil
		}
	}
}

// response makes an error response of status, with the configured page if loaded.
func (p *errorPages) response(status int16) *Response {
	return newErrorResponse(status, p.page(status))
}

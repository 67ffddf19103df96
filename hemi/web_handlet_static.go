// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Static handlers serve requests to the local file system.

package hemi

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// handlerContext is what dispatch knows about a request.
type handlerContext struct {
	// Assocs
	logger  hclog.Logger
	req     *Request
	vhost   *vhost
	loc     *location
	backend ProcessBackend
	// States
	env        TaskEnv
	uriPath    string // decoded
	remoteAddr string
	requestID  string
	tempDir    string
}

func (c *handlerContext) ready(response *Response) *handler {
	return newReadyHandler(c.logger, c.req, c.vhost, response)
}
func (c *handlerContext) failed(status int16) *handler {
	return c.ready(c.vhost.errorPages.response(status))
}
func (c *handlerContext) failedOn(err error) *handler {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return c.failed(StatusNotFound)
	case errors.Is(err, fs.ErrPermission):
		return c.failed(StatusForbidden)
	}
	c.logger.Error("file system error", "path", c.uriPath, "error", err)
	return c.failed(StatusInternalServerError)
}
func (c *handlerContext) task(kind handlerKind, task Task, filePath string) *handler {
	return &handler{logger: c.logger, req: c.req, vhost: c.vhost, task: task, kind: kind, path: filePath}
}

// newStaticHandler handles a request to a file or directory under the location's root.
func newStaticHandler(c *handlerContext) *handler {
	switch c.req.MethodCode() {
	case MethodGET, MethodHEAD:
		return staticGet(c)
	case MethodPOST:
		return staticPost(c)
	case MethodPUT:
		return staticPut(c)
	case MethodDELETE:
		return staticDelete(c)
	}
	return c.failed(StatusNotImplemented)
}

func staticGet(c *handlerContext) *handler {
	filePath := c.loc.resolve(c.uriPath)
	info, err := os.Stat(filePath)
	if err != nil {
		return c.failedOn(err)
	}
	if info.IsDir() {
		if !strings.HasSuffix(c.uriPath, "/") {
			response := NewResponse(StatusFound)
			response.Header().Assign("Location", c.req.URIPath()+"/")
			return c.ready(response)
		}
		if c.loc.index == "" { // no autoindex
			return c.failed(StatusForbidden)
		}
		filePath += c.loc.index
		if info, err = os.Stat(filePath); err != nil || !info.Mode().IsRegular() {
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return c.failedOn(err)
			}
			return c.failed(StatusForbidden)
		}
	} else if !info.Mode().IsRegular() {
		return c.failed(StatusForbidden)
	}
	if c.req.IsHEAD() {
		response := NewResponse(StatusOK)
		response.Header().Assign("Content-Type", staticContentType(filePath))
		response.Header().Assign("Content-Length", strconv.FormatInt(info.Size(), 10))
		return c.ready(response)
	}
	return c.task(handlerGet, NewFileReader(c.env, filePath), filePath)
}

// staticPost appends the content to the target, which is in the upload store if there is one.
func staticPost(c *handlerContext) *handler {
	filePath := c.loc.resolve(c.uriPath)
	if c.loc.uploadStore != "" {
		filePath = filepath.Join(c.loc.uploadStore, path.Base(c.uriPath))
	}
	return staticWrite(c, handlerPost, filePath, FileAppend)
}

func staticPut(c *handlerContext) *handler {
	return staticWrite(c, handlerPut, c.loc.resolve(c.uriPath), FileTruncate)
}

func staticWrite(c *handlerContext, kind handlerKind, filePath string, mode FileWriteMode) *handler {
	if strings.HasSuffix(c.uriPath, "/") {
		return c.failed(StatusConflict)
	}
	existed := false
	if info, err := os.Stat(filePath); err == nil {
		if info.IsDir() {
			return c.failed(StatusConflict)
		}
		existed = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return c.failedOn(err)
	}
	h := c.task(kind, NewFileWriter(c.env, filePath, c.req.Body(), mode), filePath)
	h.existed = existed
	h.location = c.req.URIPath()
	return h
}

func staticDelete(c *handlerContext) *handler {
	filePath := c.loc.resolve(c.uriPath)
	info, err := os.Lstat(filePath)
	if err != nil {
		return c.failedOn(err)
	}
	if info.IsDir() {
		return c.failed(StatusForbidden)
	}
	if err := os.Remove(filePath); err != nil {
		return c.failedOn(err)
	}
	c.logger.Info("file deleted", "file", filePath)
	return c.ready(NewResponse(StatusOK))
}

func staticContentType(filePath string) string {
	if p := strings.LastIndexByte(filePath, '.'); p >= 0 && p > strings.LastIndexByte(filePath, '/') {
		if mimeType, ok := staticDefaultMimeTypes[strings.ToLower(filePath[p+1:])]; ok {
			return mimeType
		}
	}
	return "application/octet-stream"
}

var staticDefaultMimeTypes = map[string]string{
	"7z":   "application/x-7z-compressed",
	"atom": "application/atom+xml",
	"bin":  "application/octet-stream",
	"bmp":  "image/x-ms-bmp",
	"css":  "text/css",
	"deb":  "application/octet-stream",
	"dll":  "application/octet-stream",
	"doc":  "application/msword",
	"dmg":  "application/octet-stream",
	"exe":  "application/octet-stream",
	"flv":  "video/x-flv",
	"gif":  "image/gif",
	"htm":  "text/html",
	"html": "text/html",
	"ico":  "image/x-icon",
	"img":  "application/octet-stream",
	"iso":  "application/octet-stream",
	"jar":  "application/java-archive",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"js":   "application/javascript",
	"json": "application/json",
	"m4a":  "audio/x-m4a",
	"mov":  "video/quicktime",
	"mp3":  "audio/mpeg",
	"mp4":  "video/mp4",
	"mpeg": "video/mpeg",
	"mpg":  "video/mpeg",
	"pdf":  "application/pdf",
	"png":  "image/png",
	"ppt":  "application/vnd.ms-powerpoint",
	"ps":   "application/postscript",
	"rar":  "application/x-rar-compressed",
	"rss":  "application/rss+xml",
	"rtf":  "application/rtf",
	"svg":  "image/svg+xml",
	"txt":  "text/plain",
	"war":  "application/java-archive",
	"webm": "video/webm",
	"webp": "image/webp",
	"xls":  "application/vnd.ms-excel",
	"xml":  "text/xml",
	"zip":  "application/zip",
}

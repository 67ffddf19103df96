// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// File tasks read or write a whole file in steps.

package hemi

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/hexinfra/webserv/hemi/library/system"
)

// FileReader reads a file, or an adopted descriptor, to its end.
type FileReader struct {
	// Assocs
	logger hclog.Logger
	proc   *ioProcessor // attached after open
	// States
	path     string // "" if adopted
	fd       int    // adopted descriptor, or -1
	deadline deadline
	data     []byte
	opened   bool
	done     bool
}

// NewFileReader returns a reader of path. Nothing is opened until the first Poll.
func NewFileReader(env TaskEnv, path string) *FileReader {
	r := &FileReader{path: path, fd: -1}
	r.logger = env.logger()
	r.deadline = newDeadline(env.clock(), env.Timeout)
	return r
}

// NewFileReaderFd returns a reader that takes over fd, such as a pipe.
func NewFileReaderFd(env TaskEnv, fd int) *FileReader {
	r := NewFileReader(env, "")
	r.fd = fd
	return r
}

func (r *FileReader) Poll() (TaskStatus, error) {
	if r.done {
		return TaskDone, nil
	}
	if !r.opened {
		return r.open()
	}
	data, progressed, err := r.proc.readStep(r.data)
	r.data = data
	if err != nil {
		return TaskFailed, ioFailure("read", r.name(), err)
	}
	if r.proc.Done() {
		r.finish()
		return TaskDone, nil
	}
	if progressed {
		r.deadline.renew()
	} else if r.deadline.expired() {
		r.logger.Error("file read timed out", "file", r.name(), "got", len(r.data))
		return TaskFailed, fmt.Errorf("%w: reading %s", ErrTimeout, r.name())
	}
	return TaskAgain, nil
}

func (r *FileReader) open() (TaskStatus, error) {
	var (
		file system.File
		err  error
	)
	if r.fd >= 0 {
		file, err = system.Adopt(r.fd)
		r.fd = -1 // owned by file from now on
	} else {
		file, err = system.Open(r.path, system.ModeRead, 0)
	}
	if err != nil {
		return TaskFailed, ioFailure("open", r.name(), err)
	}
	r.opened = true
	r.proc = newIOProcessor(file, false)
	size, regular, err := file.Stat()
	if err != nil {
		return TaskFailed, ioFailure("stat", r.name(), err)
	}
	if regular && size == 0 {
		r.finish()
		return TaskDone, nil
	}
	if regular {
		r.data = make([]byte, 0, size)
	}
	r.logger.Debug("file opened for reading", "file", r.name(), "size", size)
	r.deadline.renew()
	return TaskAgain, nil
}

func (r *FileReader) finish() {
	r.done = true
	if err := r.proc.Close(); err != nil {
		r.logger.Warn("close failed", "file", r.name(), "error", err)
	}
	r.proc = nil
	r.logger.Debug("file read", "file", r.name(), "size", len(r.data))
}

// Bytes returns what has been read. It is the whole file once Poll returned TaskDone.
func (r *FileReader) Bytes() []byte { return r.data }

func (r *FileReader) Close() error {
	if r.proc != nil {
		proc := r.proc
		r.proc = nil
		return proc.Close()
	}
	if r.fd >= 0 { // never opened
		fd := r.fd
		r.fd = -1
		return system.FileOf(fd).Close()
	}
	return nil
}

func (r *FileReader) name() string {
	if r.path == "" {
		return "(descriptor)"
	}
	return r.path
}

// FileWriteMode chooses what FileWriter does to an existing file.
type FileWriteMode int8

const (
	FileTruncate FileWriteMode = iota
	FileAppend
)

// FileWriter writes a buffer to a file, or an adopted descriptor.
type FileWriter struct {
	// Assocs
	logger hclog.Logger
	proc   *ioProcessor
	// States
	path     string
	fd       int
	mode     FileWriteMode
	perm     uint32
	deadline deadline
	data     []byte
	written  int
	opened   bool
	done     bool
}

// NewFileWriter returns a writer of data to path. Nothing is opened until the first Poll.
func NewFileWriter(env TaskEnv, path string, data []byte, mode FileWriteMode) *FileWriter {
	w := &FileWriter{path: path, fd: -1, mode: mode, perm: 0644, data: data}
	w.logger = env.logger()
	w.deadline = newDeadline(env.clock(), env.Timeout)
	return w
}

// NewFileWriterFd returns a writer that takes over fd.
func NewFileWriterFd(env TaskEnv, fd int, data []byte) *FileWriter {
	w := NewFileWriter(env, "", data, FileTruncate)
	w.fd = fd
	return w
}

// SetPerm sets the permission bits of a created file. Call it before the first Poll.
func (w *FileWriter) SetPerm(perm uint32) { w.perm = perm }

func (w *FileWriter) Poll() (TaskStatus, error) {
	if w.done {
		return TaskDone, nil
	}
	if !w.opened {
		return w.open()
	}
	n, err := w.proc.writeStep(w.data[w.written:])
	w.written += n
	if err != nil {
		return TaskFailed, ioFailure("write", w.name(), err)
	}
	if w.written == len(w.data) {
		w.finish()
		return TaskDone, nil
	}
	if n > 0 {
		w.deadline.renew()
	} else if w.deadline.expired() {
		w.logger.Error("file write timed out", "file", w.name(), "written", w.written, "size", len(w.data))
		return TaskFailed, fmt.Errorf("%w: writing %s", ErrTimeout, w.name())
	}
	return TaskAgain, nil
}

func (w *FileWriter) open() (TaskStatus, error) {
	var (
		file system.File
		err  error
	)
	if w.fd >= 0 {
		file, err = system.Adopt(w.fd)
		w.fd = -1
	} else if w.mode == FileAppend {
		file, err = system.Open(w.path, system.ModeAppend, w.perm)
	} else {
		file, err = system.Open(w.path, system.ModeTruncate, w.perm)
	}
	if err != nil {
		return TaskFailed, ioFailure("open", w.name(), err)
	}
	w.opened = true
	w.proc = newIOProcessor(file, true)
	if len(w.data) == 0 {
		w.finish()
		return TaskDone, nil
	}
	w.logger.Debug("file opened for writing", "file", w.name(), "size", len(w.data))
	w.deadline.renew()
	return TaskAgain, nil
}

func (w *FileWriter) finish() {
	w.done = true
	if err := w.proc.Close(); err != nil {
		w.logger.Warn("close failed", "file", w.name(), "error", err)
	}
	w.proc = nil
	w.logger.Debug("file written", "file", w.name(), "size", w.written)
}

// Written is the number of bytes written so far.
func (w *FileWriter) Written() int { return w.written }

func (w *FileWriter) Close() error {
	if w.proc != nil {
		proc := w.proc
		w.proc = nil
		return proc.Close()
	}
	if w.fd >= 0 {
		fd := w.fd
		w.fd = -1
		return system.FileOf(fd).Close()
	}
	return nil
}

func (w *FileWriter) name() string {
	if w.path == "" {
		return "(descriptor)"
	}
	return w.path
}

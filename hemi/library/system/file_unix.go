// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Non-blocking file abstraction for Unix-like systems.

//go:build linux || darwin || freebsd

package system

import (
	"errors"

	"golang.org/x/sys/unix"
)

const ( // open modes
	ModeRead     = unix.O_RDONLY
	ModeTruncate = unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC
	ModeAppend   = unix.O_WRONLY | unix.O_CREAT | unix.O_APPEND
)

// File is a raw non-blocking descriptor.
type File struct {
	fd int // the file descriptor. -1 if invalid
}

// Open opens path in non-blocking, close-on-exec mode.
func Open(path string, mode int, perm uint32) (File, error) {
	for {
		fd, err := unix.Open(path, mode|unix.O_NONBLOCK|unix.O_CLOEXEC, perm)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return File{fd: -1}, err
		}
		return File{fd: fd}, nil
	}
}

// Adopt takes over fd and makes it non-blocking. fd is closed if that fails.
func Adopt(fd int) (File, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return File{fd: -1}, err
	}
	return File{fd: fd}, nil
}

// FileOf wraps fd as is.
func FileOf(fd int) File { return File{fd: fd} }

func (f File) Fd() int     { return f.fd }
func (f File) Valid() bool { return f.fd >= 0 }

// Stat returns the size of f and whether it is a regular file.
func (f File) Stat() (size int64, regular bool, err error) {
	var stat unix.Stat_t
	if err = unix.Fstat(f.fd, &stat); err != nil {
		return 0, false, err
	}
	return stat.Size, stat.Mode&unix.S_IFMT == unix.S_IFREG, nil
}

// Ready tells whether f can be read (or written, if write is true) without blocking. It never waits.
func (f File) Ready(write bool) (bool, error) {
	var events int16 = unix.POLLIN
	if write {
		events = unix.POLLOUT
	}
	fds := []unix.PollFd{{Fd: int32(f.fd), Events: events}}
	n, err := unix.Poll(fds, 0)
	if err == unix.EINTR || n == 0 {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if fds[0].Revents&unix.POLLNVAL != 0 {
		return false, unix.EBADF
	}
	// POLLHUP and POLLERR are ready too: the next read or write reports them.
	return true, nil
}

// Read returns 0, nil on EOF and ErrAgain if nothing is available yet.
func (f File) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(f.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, againOr(err)
		}
		return n, nil
	}
}

// Write returns ErrAgain if nothing could be written yet.
func (f File) Write(p []byte) (int, error) {
	for {
		n, err := unix.Write(f.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, againOr(err)
		}
		return n, nil
	}
}

func (f File) Close() error {
	if f.fd < 0 {
		return nil
	}
	return unix.Close(f.fd)
}

// ErrAgain means the operation would block.
var ErrAgain = errors.New("resource temporarily unavailable")

func againOr(err error) error {
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return ErrAgain
	}
	return err
}

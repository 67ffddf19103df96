// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Process for Unix-like systems.

//go:build linux || darwin || freebsd

package system

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// ProcAttr describes a child whose stdin and stdout are files.
type ProcAttr struct {
	Path   string // executable
	Argv   []string
	Env    []string
	Dir    string // working directory. "" means current
	Stdin  string // read from this file
	Stdout string // created or truncated, then written
}

// Spawn starts a child as attr says and returns its pid. It never waits for the child.
func Spawn(attr *ProcAttr) (pid int, err error) {
	stdin, err := unix.Open(attr.Stdin, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, err
	}
	defer unix.Close(stdin)
	stdout, err := unix.Open(attr.Stdout, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC|unix.O_CLOEXEC, 0600)
	if err != nil {
		return 0, err
	}
	defer unix.Close(stdout)

	return syscall.ForkExec(attr.Path, attr.Argv, &syscall.ProcAttr{
		Dir:   attr.Dir,
		Env:   attr.Env,
		Files: []uintptr{uintptr(stdin), uintptr(stdout), uintptr(unix.Stderr)},
		Sys:   &syscall.SysProcAttr{Setpgid: true},
	})
}

// ExitState is how a child ended.
type ExitState struct {
	Exited   bool
	Code     int // valid if Exited
	Signaled bool
	Signal   syscall.Signal // valid if Signaled
}

// WaitNoHang reaps pid if it has ended. done is false while it is still running.
func WaitNoHang(pid int) (done bool, state ExitState, err error) {
	var status unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &status, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, state, err
		}
		if wpid == 0 {
			return false, state, nil
		}
		break
	}
	if status.Exited() {
		state.Exited, state.Code = true, status.ExitStatus()
	} else if status.Signaled() {
		state.Signaled, state.Signal = true, syscall.Signal(status.Signal())
	}
	return true, state, nil
}

// Kill sends SIGKILL to pid. A pid that is already gone is not an error.
func Kill(pid int) error {
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}

// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Process backend. Child processes are started and watched without ever blocking the engine.

package hemi

import (
	"errors"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/hexinfra/webserv/hemi/library/system"
)

// ProcessSpec describes a child to start. Its stdin and stdout are files.
type ProcessSpec struct {
	Path   string
	Argv   []string
	Env    []string
	Dir    string
	Stdin  string
	Stdout string
}

// ProcessState is how a child ended.
type ProcessState struct {
	Exited   bool
	Code     int
	Signaled bool
	Signal   int
}

// Failed reports an exit code of 2, which children use for setup failures, or death by signal.
func (s ProcessState) Failed() bool { return (s.Exited && s.Code == 2) || s.Signaled }

//go:generate mockgen -source=async_process.go -destination=mock_process_test.go -package=hemi

// ProcessBackend starts, watches, and stops child processes.
type ProcessBackend interface {
	Spawn(spec *ProcessSpec) (pid int, err error)
	// Wait reaps pid if it has ended. exited is false while it is still running.
	Wait(pid int) (exited bool, state ProcessState, err error)
	// Terminate kills pid. The backend reaps it later, in Reap.
	Terminate(pid int) error
	// Reap advances the reaping of terminated children by one step.
	Reap()
}

// NewProcessBackend returns the backend of this platform.
func NewProcessBackend(logger hclog.Logger) ProcessBackend {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &unixProcessBackend{logger: logger}
}

// unixProcessBackend
type unixProcessBackend struct {
	// Assocs
	logger hclog.Logger
	// States
	orphans []int // killed but not reaped yet
}

func (b *unixProcessBackend) Spawn(spec *ProcessSpec) (int, error) {
	pid, err := system.Spawn(&system.ProcAttr{
		Path:   spec.Path,
		Argv:   spec.Argv,
		Env:    spec.Env,
		Dir:    spec.Dir,
		Stdin:  spec.Stdin,
		Stdout: spec.Stdout,
	})
	if err != nil {
		return 0, err
	}
	b.logger.Debug("child spawned", "pid", pid, "path", spec.Path)
	return pid, nil
}

func (b *unixProcessBackend) Wait(pid int) (bool, ProcessState, error) {
	done, exit, err := system.WaitNoHang(pid)
	if err != nil || !done {
		return false, ProcessState{}, err
	}
	state := ProcessState{Exited: exit.Exited, Code: exit.Code, Signaled: exit.Signaled, Signal: int(exit.Signal)}
	b.logger.Debug("child ended", "pid", pid, "exited", state.Exited, "code", state.Code, "signaled", state.Signaled)
	return true, state, nil
}

func (b *unixProcessBackend) Terminate(pid int) error {
	if err := system.Kill(pid); err != nil {
		return err
	}
	b.logger.Debug("child killed", "pid", pid)
	b.orphans = append(b.orphans, pid)
	return nil
}

func (b *unixProcessBackend) Reap() {
	kept := b.orphans[:0]
	for _, pid := range b.orphans {
		done, _, err := system.WaitNoHang(pid)
		if err != nil {
			if !errors.Is(err, syscall.ECHILD) {
				b.logger.Warn("reap failed", "pid", pid, "error", err)
			}
			continue
		}
		if !done {
			kept = append(kept, pid)
			continue
		}
		b.logger.Trace("child reaped", "pid", pid)
	}
	b.orphans = kept
}

// Orphans is the number of killed children waiting to be reaped.
func (b *unixProcessBackend) Orphans() int { return len(b.orphans) }

// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Cooperative tasks. A task never blocks: each Poll does what can be done now and says whether to come back.

package hemi

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"
)

// TaskStatus is the result of one Poll.
type TaskStatus int8

const (
	TaskDone   TaskStatus = iota // finished, results are available
	TaskAgain                    // not finished, poll again later
	TaskFailed                   // finished with an error
)

var taskStatusNames = [...]string{
	TaskDone:   "done",
	TaskAgain:  "again",
	TaskFailed: "failed",
}

func (s TaskStatus) String() string { return taskStatusNames[s] }

// Task is a unit of non-blocking work. Poll returns a non-nil error iff it returns TaskFailed.
// Close releases everything the task owns and may be called in any state.
type Task interface {
	Poll() (TaskStatus, error)
	Close() error
}

var (
	ErrTimeout         = errors.New("task timed out")
	ErrExecutionFailed = errors.New("execution failed")
	ErrIOFailure       = errors.New("i/o failure")
)

// ioFailure wraps err in ErrIOFailure. err stays matchable with errors.Is.
func ioFailure(op string, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIOFailure, op, path, err)
}

// TaskEnv carries what a task takes from its owner.
type TaskEnv struct {
	Logger  hclog.Logger
	Clock   clockwork.Clock
	Timeout time.Duration // 0 means no deadline
}

func (e TaskEnv) logger() hclog.Logger {
	if e.Logger == nil {
		return hclog.NewNullLogger()
	}
	return e.Logger
}
func (e TaskEnv) clock() clockwork.Clock {
	if e.Clock == nil {
		return clockwork.NewRealClock()
	}
	return e.Clock
}

// deadline expires timeout after the last renewal. A zero timeout never expires.
type deadline struct {
	// Assocs
	clock clockwork.Clock
	// States
	timeout time.Duration
	expires time.Time
}

func newDeadline(clock clockwork.Clock, timeout time.Duration) deadline {
	d := deadline{clock: clock, timeout: timeout}
	d.renew()
	return d
}

func (d *deadline) renew() {
	if d.timeout > 0 {
		d.expires = d.clock.Now().Add(d.timeout)
	}
}
func (d *deadline) expired() bool {
	return d.timeout > 0 && d.clock.Now().After(d.expires)
}

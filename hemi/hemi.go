// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Package hemi is a cooperative HTTP/1.x engine. One goroutine drives every
// connection: bytes are parsed incrementally, requests are dispatched to
// non-blocking tasks (static files or CGI programs), and tasks are polled until
// they finish. Nothing in the engine blocks; "not yet" is a return value.

package hemi

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

const Version = "0.3.0"

var (
	_debugLevel atomic.Int32
	_tmpDir     atomic.Value // directory of the temp files
	_tmpOnce    sync.Once    // protects _tmpDir
)

// DebugLevel is set by the --debug flag. 2 and above turn on trace logging.
func DebugLevel() int32 { return _debugLevel.Load() }
func TmpDir() string {
	if dir, ok := _tmpDir.Load().(string); ok {
		return dir
	}
	return os.TempDir()
}

func SetDebugLevel(level int32) { _debugLevel.Store(level) }
func SetTmpDir(dir string) { // only once!
	_tmpOnce.Do(func() {
		_tmpDir.Store(dir)
		_mustMkdir(dir)
	})
}

func _mustMkdir(dir string) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		EnvExitln(err.Error())
	}
}

const ( // exit codes
	CodeBug = 20
	CodeUse = 21
	CodeEnv = 22
)

func BugExitln(v ...any) { _exitln(CodeBug, "[BUG] ", v...) }

func UseExitln(v ...any)          { _exitln(CodeUse, "[USE] ", v...) }
func UseExitf(f string, v ...any) { _exitf(CodeUse, "[USE] ", f, v...) }

func EnvExitln(v ...any) { _exitln(CodeEnv, "[ENV] ", v...) }

func _exitln(exitCode int, prefix string, v ...any) {
	fmt.Fprint(os.Stderr, prefix)
	fmt.Fprintln(os.Stderr, v...)
	os.Exit(exitCode)
}
func _exitf(exitCode int, prefix, f string, v ...any) {
	fmt.Fprintf(os.Stderr, prefix+f, v...)
	os.Exit(exitCode)
}

// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// CGI pipeline. A CGI program gets the request content through a temp file and gives its response through another. See RFC 3875.

package hemi

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
)

type cgiStage int8

const (
	cgiWritingInput cgiStage = iota
	cgiForking
	cgiWaitingChild
	cgiReadingOutput
	cgiDone
)

var cgiStageNames = [...]string{
	cgiWritingInput:  "writing-input",
	cgiForking:       "forking",
	cgiWaitingChild:  "waiting-child",
	cgiReadingOutput: "reading-output",
	cgiDone:          "done",
}

func (s cgiStage) String() string { return cgiStageNames[s] }

// cgiProgram is a resolved CGI script.
type cgiProgram struct {
	interpreter string // "" runs the script itself
	script      string // file path
}

func (p *cgiProgram) argv() []string {
	if p.interpreter == "" {
		return []string{p.script}
	}
	return []string{p.interpreter, p.script}
}
func (p *cgiProgram) path() string {
	if p.interpreter == "" {
		return p.script
	}
	return p.interpreter
}

// cgiPipeline runs one CGI request to completion. It is a Task.
type cgiPipeline struct {
	// Assocs
	logger  hclog.Logger
	clock   clockwork.Clock
	backend ProcessBackend
	writer  *FileWriter // while writing input
	reader  *FileReader // while reading output
	// States
	env        TaskEnv
	stage      cgiStage
	spec       ProcessSpec
	inputPath  string
	outputPath string
	pid        int // running child, or 0
	spawned    time.Time
	deadline   deadline
	response   *Response // valid when done
}

func newCGIPipeline(env TaskEnv, backend ProcessBackend, program *cgiProgram, environ []string, body []byte, tempDir string) *cgiPipeline {
	p := new(cgiPipeline)
	p.logger = env.logger()
	p.clock = env.clock()
	p.backend = backend
	p.env = env
	p.inputPath = filepath.Join(tempDir, tempFileName(p.clock, "input"))
	p.outputPath = filepath.Join(tempDir, tempFileName(p.clock, "output"))
	p.spec = ProcessSpec{
		Path:   program.path(),
		Argv:   program.argv(),
		Env:    environ,
		Dir:    filepath.Dir(program.script),
		Stdin:  p.inputPath,
		Stdout: p.outputPath,
	}
	p.writer = NewFileWriter(env, p.inputPath, body, FileTruncate)
	p.writer.SetPerm(0600)
	p.logger.Trace("cgi temp files", "input", p.inputPath, "output", p.outputPath)
	return p
}

func (p *cgiPipeline) Poll() (TaskStatus, error) {
	for {
		if p.logger.IsTrace() {
			p.logger.Trace("cgi poll", "stage", p.stage)
		}
		switch p.stage {
		case cgiWritingInput:
			status, err := p.writer.Poll()
			if status != TaskDone {
				return status, err
			}
			p.closeWriter()
			p.logger.Debug("cgi input written", "file", p.inputPath)
			p.stage = cgiForking
		case cgiForking:
			pid, err := p.backend.Spawn(&p.spec)
			if err != nil {
				p.logger.Error("cgi spawn failed", "path", p.spec.Path, "error", err)
				return TaskFailed, fmt.Errorf("%w: spawn %s: %w", ErrExecutionFailed, p.spec.Path, err)
			}
			p.pid, p.spawned = pid, p.clock.Now()
			p.deadline = newDeadline(p.clock, p.env.Timeout)
			p.stage = cgiWaitingChild
			return TaskAgain, nil
		case cgiWaitingChild:
			exited, state, err := p.backend.Wait(p.pid)
			if err != nil {
				return TaskFailed, fmt.Errorf("%w: wait %d: %w", ErrExecutionFailed, p.pid, err)
			}
			if !exited {
				if p.deadline.expired() {
					p.logger.Error("cgi timed out", "pid", p.pid, "timeout", p.env.Timeout)
					return TaskFailed, fmt.Errorf("%w: cgi %s", ErrTimeout, p.spec.Path)
				}
				return TaskAgain, nil
			}
			p.pid = 0
			cgiDuration.Observe(p.clock.Since(p.spawned).Seconds())
			if state.Failed() {
				p.logger.Error("cgi execution failed", "path", p.spec.Path, "code", state.Code, "signal", state.Signal)
				return TaskFailed, fmt.Errorf("%w: %s", ErrExecutionFailed, p.spec.Path)
			}
			p.reader = NewFileReader(p.env, p.outputPath)
			p.stage = cgiReadingOutput
		case cgiReadingOutput:
			status, err := p.reader.Poll()
			if status != TaskDone {
				return status, err
			}
			response, err := responseFromCGI(p.reader.Bytes())
			p.closeReader()
			if err != nil {
				p.logger.Error("bad cgi output", "path", p.spec.Path, "error", err)
				return TaskFailed, fmt.Errorf("%w: %w", ErrExecutionFailed, err)
			}
			p.response = response
			p.stage = cgiDone
		default: // cgiDone
			return TaskDone, nil
		}
	}
}

// Response is the response made from the program's output. It is nil until Poll returns TaskDone.
func (p *cgiPipeline) Response() *Response { return p.response }

func (p *cgiPipeline) Close() error {
	var result *multierror.Error
	if err := p.closeWriter(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := p.closeReader(); err != nil {
		result = multierror.Append(result, err)
	}
	if p.pid != 0 {
		if err := p.backend.Terminate(p.pid); err != nil {
			result = multierror.Append(result, fmt.Errorf("terminate %d: %w", p.pid, err))
		}
		p.pid = 0
	}
	p.removeTemp(p.inputPath)
	p.removeTemp(p.outputPath)
	return result.ErrorOrNil()
}

func (p *cgiPipeline) closeWriter() error {
	if p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	p.writer = nil
	return err
}
func (p *cgiPipeline) closeReader() error {
	if p.reader == nil {
		return nil
	}
	err := p.reader.Close()
	p.reader = nil
	return err
}

func (p *cgiPipeline) removeTemp(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.logger.Warn("failed to remove temp file", "file", path, "error", err)
	}
}

var tempSequence atomic.Uint64

// tempFileName makes a file name from the clock, a process-wide sequence, and tag.
func tempFileName(clock clockwork.Clock, tag string) string {
	var buf [64]byte
	p := strconv.AppendInt(buf[:0], clock.Now().UnixNano(), 10)
	p = append(p, '.')
	p = strconv.AppendUint(p, tempSequence.Add(1), 10)
	p = append(p, tag...)
	return "webserv-" + strconv.FormatUint(xxhash.Sum64(p), 16) + "-" + tag
}

// newCGIHandler runs the CGI script named by scriptName, a prefix of the request path.
func newCGIHandler(c *handlerContext, scriptName string, pathInfo string, interpreter string) *handler {
	scriptFile, err := filepath.Abs(c.loc.resolve(scriptName)) // the child runs in the script's directory
	if err != nil {
		return c.failedOn(err)
	}
	info, err := os.Stat(scriptFile)
	if err != nil {
		return c.failedOn(err)
	}
	if !info.Mode().IsRegular() {
		return c.failed(StatusForbidden)
	}
	serverName := c.req.Hostname()
	if serverName == "" && len(c.vhost.names) > 0 {
		serverName = c.vhost.names[0]
	}
	environ := cgiEnviron(c.req, &cgiMeta{
		serverName: serverName,
		serverPort: c.vhost.port,
		remoteAddr: c.remoteAddr,
		scriptName: scriptName,
		scriptFile: scriptFile,
		pathInfo:   pathInfo,
		requestID:  c.requestID,
	})
	program := &cgiProgram{interpreter: interpreter, script: scriptFile}
	pipeline := newCGIPipeline(c.env, c.backend, program, environ, c.req.Body(), c.tempDir)
	return c.task(handlerCGI, pipeline, scriptFile)
}

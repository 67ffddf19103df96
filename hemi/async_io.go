// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Single-descriptor processor used by file tasks.

package hemi

import (
	"github.com/hexinfra/webserv/hemi/library/system"
)

const ioStepBudget = 16 // transfers per step at most

// ioProcessor moves bytes between one non-blocking descriptor and memory, as far as readiness allows.
type ioProcessor struct {
	// Assocs
	file system.File
	// States
	write  bool // write to file? read otherwise
	events int  // number of steps that moved bytes
	done   bool // EOF seen, or everything written
}

func newIOProcessor(file system.File, write bool) *ioProcessor {
	return &ioProcessor{file: file, write: write}
}

// readStep appends what is readable now to dst. progressed is true if any byte moved or EOF was seen.
func (p *ioProcessor) readStep(dst []byte) (out []byte, progressed bool, err error) {
	var chunk [_16K]byte
	for i := 0; i < ioStepBudget && !p.done; i++ {
		ready, err := p.file.Ready(false)
		if err != nil {
			return dst, progressed, err
		}
		if !ready {
			break
		}
		n, err := p.file.Read(chunk[:])
		if err == system.ErrAgain {
			break
		}
		if err != nil {
			return dst, progressed, err
		}
		progressed = true
		p.events++
		if n == 0 {
			p.done = true
			break
		}
		dst = append(dst, chunk[:n]...)
	}
	return dst, progressed, nil
}

// writeStep writes as much of src as is writable now and returns how many bytes went out.
func (p *ioProcessor) writeStep(src []byte) (written int, err error) {
	for i := 0; i < ioStepBudget && written < len(src); i++ {
		ready, err := p.file.Ready(true)
		if err != nil {
			return written, err
		}
		if !ready {
			break
		}
		n, err := p.file.Write(src[written:])
		if err == system.ErrAgain {
			break
		}
		if err != nil {
			return written, err
		}
		if n == 0 {
			break
		}
		written += n
		p.events++
	}
	if written == len(src) {
		p.done = true
	}
	return written, nil
}

func (p *ioProcessor) Events() int  { return p.events }
func (p *ioProcessor) Done() bool   { return p.done }
func (p *ioProcessor) Close() error { return p.file.Close() }

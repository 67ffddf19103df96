// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Loggers log events.

package hemi

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// LogConfig
type LogConfig struct {
	Name   string // root logger name
	Level  string // "trace", "debug", "info", "warn", "error", "off"
	Format string // "text" or "json"
	Target string // "", "stderr", "stdout", "/path/to/file.log"
}

// NewLogger builds the root logger. The returned closer releases the target file, if any.
func NewLogger(config *LogConfig) (hclog.Logger, io.Closer, error) {
	level := hclog.Info
	if config.Level != "" {
		level = hclog.LevelFromString(config.Level)
	}
	if level == hclog.NoLevel {
		return nil, nil, fmt.Errorf("unknown log level %q", config.Level)
	}
	if DebugLevel() >= 2 {
		level = hclog.Trace
	}
	var (
		output io.Writer
		closer io.Closer = nopCloser{}
	)
	switch target := strings.TrimSpace(config.Target); target {
	case "", "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, err
		}
		output, closer = file, file
	}
	var jsonFormat bool
	switch config.Format {
	case "", "text":
	case "json":
		jsonFormat = true
	default:
		closer.Close()
		return nil, nil, fmt.Errorf("unknown log format %q", config.Format)
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       config.Name,
		Level:      level,
		Output:     output,
		JSONFormat: jsonFormat,
		TimeFormat: "2006-01-02T15:04:05.000Z0700",
	})
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// WithLogger returns a copy of ctx that carries logger.
func WithLogger(ctx context.Context, logger hclog.Logger) context.Context {
	return hclog.WithContext(ctx, logger)
}

// LoggerFrom returns the logger carried by ctx, or the default logger.
func LoggerFrom(ctx context.Context) hclog.Logger {
	return hclog.FromContext(ctx)
}

// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package hemi

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerToFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "webserv.log")
	logger, closer, err := NewLogger(&LogConfig{Name: "webserv", Level: "warn", Format: "json", Target: target})
	require.NoError(t, err)
	logger.Info("not logged")
	logger.Named("server").Warn("logged", "conn", 7)
	require.NoError(t, closer.Close())

	text, err := os.ReadFile(target)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(text)), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "logged", entry["@message"])
	assert.Equal(t, "webserv.server", entry["@module"])
	assert.EqualValues(t, 7, entry["conn"])
}

func TestNewLoggerErrors(t *testing.T) {
	_, _, err := NewLogger(&LogConfig{Level: "loud"})
	assert.ErrorContains(t, err, "log level")
	_, _, err = NewLogger(&LogConfig{Format: "xml"})
	assert.ErrorContains(t, err, "log format")
	_, _, err = NewLogger(&LogConfig{Target: filepath.Join(t.TempDir(), "none", "x.log")})
	assert.Error(t, err)
}

func TestNewLoggerDebugLevel(t *testing.T) {
	SetDebugLevel(2)
	t.Cleanup(func() { SetDebugLevel(0) })
	logger, closer, err := NewLogger(&LogConfig{Level: "warn", Target: "stdout"})
	require.NoError(t, err)
	defer closer.Close()
	assert.True(t, logger.IsTrace())

	SetDebugLevel(1)
	logger, _, err = NewLogger(&LogConfig{Level: "warn", Target: "stdout"})
	require.NoError(t, err)
	assert.False(t, logger.IsInfo())
}

func TestLoggerContext(t *testing.T) {
	logger, closer, err := NewLogger(&LogConfig{Name: "ctx", Target: "stdout"})
	require.NoError(t, err)
	defer closer.Close()
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, LoggerFrom(ctx))
	assert.Equal(t, hclog.Info, LoggerFrom(ctx).GetLevel())
	assert.NotNil(t, LoggerFrom(context.Background()))
}

func TestMetricsGatherer(t *testing.T) {
	requestsParsed.WithLabelValues("GET").Inc()
	families, err := MetricsGatherer().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["webserv_requests_parsed_total"])
	assert.True(t, names["webserv_open_connections"])
	assert.True(t, names["go_goroutines"])
}

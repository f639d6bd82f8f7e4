// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	logger := New(Config{Service: "test"})

	require.NotNil(t, logger)
	assert.NotNil(t, logger.Slog())
	assert.Nil(t, logger.file, "no file handle without LogDir")
	assert.NoError(t, logger.Close())
}

func TestDefault(t *testing.T) {
	logger := Default()

	require.NotNil(t, logger)
	assert.Equal(t, "chatbot", logger.config.Service)
	assert.Equal(t, LevelInfo, logger.config.Level)
}

func TestNew_WithLogDir_CreatesDatedFile(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")

	logger := New(Config{
		Service: "test-service",
		LogDir:  logDir,
		Quiet:   true,
	})
	defer logger.Close()

	require.NotNil(t, logger.file)

	expected := fmt.Sprintf("test-service_%s.log", time.Now().Format("2006-01-02"))
	assert.Equal(t, expected, filepath.Base(logger.file.Name()))

	info, err := os.Stat(logDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNew_WithLogDir_WritesJSONEntries(t *testing.T) {
	logDir := t.TempDir()

	logger := New(Config{
		Service: "test-service",
		LogDir:  logDir,
		Quiet:   true,
	})

	logger.Info("hello", "user_id", "u-1")
	require.NoError(t, logger.Close())

	entries := readLogEntries(t, logDir, "test-service")
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0]["msg"])
	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Equal(t, "u-1", entries[0]["user_id"])
	assert.Equal(t, "test-service", entries[0]["service"])
}

func TestNew_LevelFiltersEntries(t *testing.T) {
	logDir := t.TempDir()

	logger := New(Config{
		Service: "test-service",
		LogDir:  logDir,
		Level:   LevelWarn,
		Quiet:   true,
	})

	logger.Debug("dropped-debug")
	logger.Info("dropped-info")
	logger.Warn("kept-warn")
	logger.Error("kept-error")
	require.NoError(t, logger.Close())

	entries := readLogEntries(t, logDir, "test-service")
	require.Len(t, entries, 2)
	assert.Equal(t, "kept-warn", entries[0]["msg"])
	assert.Equal(t, "kept-error", entries[1]["msg"])
}

// A path component that is a regular file blocks MkdirAll for any
// caller, including privileged ones, so the fallback is exercised
// deterministically.
func TestNew_WithLogDir_UnusablePathFallsBackToStderr(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0640))

	logger := New(Config{
		Service: "test-service",
		LogDir:  filepath.Join(blocker, "logs"),
	})

	assert.Nil(t, logger.file, "file handle must stay nil when the directory cannot be created")
	require.NotNil(t, logger.Slog())

	// Must not panic without a file destination.
	logger.Info("still logging")
	assert.NoError(t, logger.Close())
}

func TestWith_AddsAttributesAndSharesFile(t *testing.T) {
	logDir := t.TempDir()

	logger := New(Config{
		Service: "test-service",
		LogDir:  logDir,
		Quiet:   true,
	})

	child := logger.With("thread_id", "t-9")
	require.NotNil(t, child)
	assert.Same(t, logger.file, child.file)

	child.Info("turn complete")
	logger.Info("no thread")
	require.NoError(t, logger.Close())

	entries := readLogEntries(t, logDir, "test-service")
	require.Len(t, entries, 2)
	assert.Equal(t, "t-9", entries[0]["thread_id"])
	_, hasThread := entries[1]["thread_id"]
	assert.False(t, hasThread, "parent logger must not inherit child attributes")
}

func TestClose_Idempotent(t *testing.T) {
	logger := New(Config{
		Service: "test-service",
		LogDir:  t.TempDir(),
		Quiet:   true,
	})

	require.NotNil(t, logger.file)
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{"tilde prefix", "~/logs", filepath.Join(home, "logs")},
		{"absolute path", "/var/log/chatbot", "/var/log/chatbot"},
		{"relative path", "logs", "logs"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandPath(tt.path))
		})
	}
}

// readLogEntries decodes every JSON line from today's log file.
func readLogEntries(t *testing.T, logDir, service string) []map[string]any {
	t.Helper()

	filename := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	require.NoError(t, err)

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

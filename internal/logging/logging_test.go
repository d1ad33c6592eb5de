// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ragchat/internal/config"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ragchat.log")
	logger, err := New(config.LogConfig{Level: "info", Format: "json", File: path})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("stream finished")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"stream finished"`)
	assert.Contains(t, string(data), `"logger":"ragchat"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud", Format: "console"})
	assert.Error(t, err)
}

func TestToFile_KeepsExplicitFile(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "explicit.log")
	logger, err := ToFile(config.LogConfig{Level: "debug", Format: "console", File: explicit}, filepath.Join(dir, "fallback.log"))
	require.NoError(t, err)
	logger.Debug("hello")
	_ = logger.Sync()

	_, err = os.Stat(explicit)
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "fallback.log"))
	assert.True(t, os.IsNotExist(err))
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)
	return dir
}

func TestDefault_IsValid(t *testing.T) {
	dir := withHome(t)
	cfg := Default()
	require.NoError(t, fillDefaults(cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, filepath.Join(dir, "session.json"), cfg.Session.Path)
	assert.Equal(t, filepath.Join(dir, "transcripts"), cfg.Archive.Dir)
	assert.Equal(t, "lruRagChatToken", cfg.Session.TokenKey)
	assert.Equal(t, "lruRagChatId", cfg.Session.ChatIDKey)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	withHome(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().API.ChatAPI, cfg.API.ChatAPI)
	assert.True(t, cfg.Archive.Enabled)
}

func TestLoad_TOML(t *testing.T) {
	dir := withHome(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[api]
chat_api = "https://chat.example.com/api/chat"
assistant_id = "helper"
source_filter = ["docs", "faq"]

[session]
backend = "sqlite"

[stream]
completion_sentinel = "Samtale fuldført!"

[ui]
markdown = false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com/api/chat", cfg.API.ChatAPI)
	assert.Equal(t, "helper", cfg.API.AssistantID)
	assert.Equal(t, []string{"docs", "faq"}, cfg.API.SourceFilter)
	assert.Equal(t, "sqlite", cfg.Session.Backend)
	assert.Equal(t, filepath.Join(dir, "session.db"), cfg.Session.Path)
	assert.Equal(t, "Samtale fuldført!", cfg.Stream.CompletionSentinel)
	assert.False(t, cfg.UI.Markdown)
	// Untouched sections keep their defaults.
	assert.Equal(t, 30, cfg.API.TimeoutSecs)
	assert.True(t, cfg.UI.ShowCitations)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoad_EnvOverrides(t *testing.T) {
	withHome(t)
	t.Setenv("RAGCHAT_API_APPLICATION_ID", "app-7")
	t.Setenv("RAGCHAT_API_SOURCE_FILTER", "a,b")
	t.Setenv("RAGCHAT_SESSION_BACKEND", "MEMORY")
	t.Setenv("RAGCHAT_SESSION_WATCH", "false")
	t.Setenv("RAGCHAT_LOG_LEVEL", "debug")
	t.Setenv("RAGCHAT_STREAM_CHUNK_SIZE", "16")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "app-7", cfg.API.ApplicationID)
	assert.Equal(t, []string{"a", "b"}, cfg.API.SourceFilter)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.False(t, cfg.Session.Watch)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 16, cfg.Stream.ChunkSize)
}

func TestLoad_InvalidTOML(t *testing.T) {
	dir := withHome(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[api\nchat_api = "), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	withHome(t)
	cfg := Default()
	require.NoError(t, fillDefaults(cfg))

	cfg.API.ChatAPI = "not a url"
	cfg.API.AssistantID = "a"
	cfg.API.ApplicationID = "b"
	cfg.Session.Backend = "etcd"
	cfg.Log.Format = "xml"
	cfg.Stream.ChunkSize = -1

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	fields := make([]string, 0, len(verrs))
	for _, v := range verrs {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, []string{
		"api.chat_api", "api.assistant_id", "session.backend", "log.format", "stream.chunk_size",
	}, fields)
	assert.Contains(t, err.Error(), "etcd")
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	dir := withHome(t)
	path := filepath.Join(dir, "nested", "config.toml")

	cfg := Default()
	cfg.API.AssistantID = "helper"
	cfg.Session.RedisPassword = "hunter2"
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "helper", loaded.API.AssistantID)
	assert.Equal(t, "hunter2", loaded.Session.RedisPassword)
}

func TestString_RedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Session.RedisPassword = "hunter2"
	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "[REDACTED]")
	assert.Equal(t, "hunter2", cfg.Session.RedisPassword)
}

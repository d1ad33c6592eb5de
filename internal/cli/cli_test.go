// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/fakeserver"
	"github.com/jeranaias/ragchat/internal/ragapi"
)

// =============================================================================
// HELPERS
// =============================================================================

// run executes the command line with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// newBackend starts a mock backend and isolates the config directory.
func newBackend(t *testing.T) (*fakeserver.Server, []string) {
	t.Helper()
	t.Setenv(config.HomeEnv, t.TempDir())

	srv := fakeserver.New(fakeserver.Config{RequireAPIKey: true})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return srv, []string{
		"--api", ts.URL + fakeserver.DefaultPrefix,
		"--assistant", "demo",
		"--log-level", "error",
	}
}

func with(base []string, args ...string) []string {
	return append(append([]string(nil), base...), args...)
}

// =============================================================================
// FLAGS
// =============================================================================

func TestParseUserValues(t *testing.T) {
	got, err := parseUserValues([]string{"dept=sales", "region=eu", "region=us", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]ragapi.UserValue{
		"dept":   {"sales"},
		"region": {"eu", "us"},
		"empty":  {""},
	}, got)

	got, err = parseUserValues(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseUserValues([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseUserValues([]string{"=x"})
	assert.Error(t, err)
}

func TestApplyFlags_TargetReplacesOther(t *testing.T) {
	cfg := config.Default()
	cfg.API.ApplicationID = "app-1"

	applyFlags(cfg, &globalOptions{assistantID: "asst-1", backend: "SQLite", logLevel: "debug"})
	assert.Equal(t, "asst-1", cfg.API.AssistantID)
	assert.Empty(t, cfg.API.ApplicationID)
	assert.Equal(t, "sqlite", cfg.Session.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)

	applyFlags(cfg, &globalOptions{applicationID: "app-2"})
	assert.Equal(t, "app-2", cfg.API.ApplicationID)
	assert.Empty(t, cfg.API.AssistantID)
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestAsk_StreamsAnswerAndArchives(t *testing.T) {
	srv, base := newBackend(t)

	out, err := run(t, with(base, "ask", "Hello")...)
	require.NoError(t, err)
	assert.Contains(t, out, "You said: Hello")
	assert.Contains(t, out, "/1")
	assert.Contains(t, out, "Can you say that again?")
	assert.Contains(t, out, "conversation complete")
	assert.NotContains(t, out, "You:") // the user typed it, no echo

	// The second question continues the same chat.
	_, err = run(t, with(base, "ask", "Again")...)
	require.NoError(t, err)
	reqs := srv.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].Body.ChatID)
	assert.NotEmpty(t, reqs[1].Body.ChatID)

	out, err = run(t, with(base, "history", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Hello")

	// Each ask is its own process: the snapshot holds the latest turn and
	// keeps the title from the first.
	out, err = run(t, with(base, "history", "show", "1")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Hello")
	assert.Contains(t, out, "You: Again")
	assert.Contains(t, out, "Assistant: You said: Again")
	assert.Contains(t, out, "Echo source")
	assert.NotContains(t, out, "Can you say that again?")
}

func TestAsk_NoTarget(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())

	_, err := run(t, "--log-level", "error", "ask", "Hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no assistant selected")
}

func TestAsk_FailureExitsQuietly(t *testing.T) {
	srv, base := newBackend(t)
	srv.Enqueue(fakeserver.Turn{Status: 500})

	out, err := run(t, with(base, "ask", "Hello")...)
	var exit *exitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.code)
	assert.Contains(t, out, "status 500")
}

func TestReplayAndReset(t *testing.T) {
	_, base := newBackend(t)

	_, err := run(t, with(base, "ask", "Hello")...)
	require.NoError(t, err)

	out, err := run(t, with(base, "replay")...)
	require.NoError(t, err)
	assert.Contains(t, out, "You: Hello")
	assert.Contains(t, out, "You said: Hello")

	out, err = run(t, with(base, "reset")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Conversation reset.")

	_, err = run(t, with(base, "replay")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no current chat")
}

func TestInfo_JSON(t *testing.T) {
	_, base := newBackend(t)

	out, err := run(t, with(base, "info", "--json")...)
	require.NoError(t, err)

	var info infoOutput
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.NotNil(t, info.Assistant)
	assert.Equal(t, "Demo assistant", info.Assistant.Name)
	assert.Equal(t, "demo", info.Target)
	assert.Empty(t, info.ChatID)
	assert.False(t, info.HasToken)
	assert.Equal(t, "file", info.Storage)
}

func TestExport_WritesFile(t *testing.T) {
	_, base := newBackend(t)
	_, err := run(t, with(base, "ask", "Hello")...)
	require.NoError(t, err)

	dir := t.TempDir()
	out, err := run(t, with(base, "export", "--format", "html", "--out", dir)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported to")

	files, err := filepath.Glob(filepath.Join(dir, "*.html"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "You said: Hello")
}

func TestHistory_Empty(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())

	out, err := run(t, "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No saved chats.")

	_, err = run(t, "history", "show", "1")
	assert.Error(t, err)
}

func TestConfigInitAndShow(t *testing.T) {
	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)

	out, err := run(t, "--assistant", "demo", "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "config.toml")

	_, err = run(t, "config", "init")
	assert.Error(t, err)

	out, err = run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"assistant_id": "demo"`)
}

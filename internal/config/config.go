// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	"github.com/jeranaias/ragchat/internal/util"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RAGCHAT_"

// HomeEnv relocates the configuration directory.
const HomeEnv = "RAGCHAT_HOME"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete ragchat configuration.
type Config struct {
	API     APIConfig     `toml:"api" json:"api" envPrefix:"API_"`
	Session SessionConfig `toml:"session" json:"session" envPrefix:"SESSION_"`
	Stream  StreamConfig  `toml:"stream" json:"stream" envPrefix:"STREAM_"`
	Archive ArchiveConfig `toml:"archive" json:"archive" envPrefix:"ARCHIVE_"`
	Log     LogConfig     `toml:"log" json:"log" envPrefix:"LOG_"`
	UI      UIConfig      `toml:"ui" json:"ui" envPrefix:"UI_"`
}

// APIConfig describes the chat backend.
type APIConfig struct {
	// ChatAPI is the chat endpoint, e.g. https://host/api/chat
	ChatAPI string `toml:"chat_api" json:"chat_api" env:"CHAT_API"`

	// Exactly one of AssistantID and ApplicationID selects the target.
	AssistantID   string `toml:"assistant_id" json:"assistant_id" env:"ASSISTANT_ID"`
	ApplicationID string `toml:"application_id" json:"application_id" env:"APPLICATION_ID"`

	TimeoutSecs       int     `toml:"timeout_secs" json:"timeout_secs" env:"TIMEOUT_SECS"`
	StreamTimeoutSecs int     `toml:"stream_timeout_secs" json:"stream_timeout_secs" env:"STREAM_TIMEOUT_SECS"`
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int     `toml:"burst" json:"burst" env:"BURST"`
	UserAgent         string  `toml:"user_agent" json:"user_agent" env:"USER_AGENT"`

	// SourceFilter restricts retrieval to these source ids
	SourceFilter []string `toml:"source_filter" json:"source_filter" env:"SOURCE_FILTER" envSeparator:","`
}

// SessionConfig configures session continuity.
type SessionConfig struct {
	// Address is the initial session address; a #chatId= marker resumes a chat
	Address string `toml:"address" json:"address" env:"ADDRESS"`

	// Backend is one of memory, file, sqlite, redis
	Backend string `toml:"backend" json:"backend" env:"BACKEND"`
	Path    string `toml:"path" json:"path" env:"PATH"`

	TokenKey  string `toml:"token_key" json:"token_key" env:"TOKEN_KEY"`
	ChatIDKey string `toml:"chat_id_key" json:"chat_id_key" env:"CHAT_ID_KEY"`

	// Watch follows writes made by other processes
	Watch bool `toml:"watch" json:"watch" env:"WATCH"`

	RedisAddr     string `toml:"redis_addr" json:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `toml:"redis_password" json:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `toml:"redis_db" json:"redis_db" env:"REDIS_DB"`
	RedisPrefix   string `toml:"redis_prefix" json:"redis_prefix" env:"REDIS_PREFIX"`
}

// StreamConfig configures response decoding.
type StreamConfig struct {
	ChunkSize int `toml:"chunk_size" json:"chunk_size" env:"CHUNK_SIZE"`

	// CompletionSentinel is the only status update shown to the user
	CompletionSentinel string `toml:"completion_sentinel" json:"completion_sentinel" env:"COMPLETION_SENTINEL"`
}

// ArchiveConfig configures local transcript snapshots.
type ArchiveConfig struct {
	Enabled        bool   `toml:"enabled" json:"enabled" env:"ENABLED"`
	Dir            string `toml:"dir" json:"dir" env:"DIR"`
	MaxTranscripts int    `toml:"max_transcripts" json:"max_transcripts" env:"MAX_TRANSCRIPTS"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `toml:"level" json:"level" env:"LEVEL"`
	Format string `toml:"format" json:"format" env:"FORMAT"` // console or json
	File   string `toml:"file" json:"file" env:"FILE"`       // empty = stderr
}

// UIConfig contains terminal UI preferences.
type UIConfig struct {
	Theme         string `toml:"theme" json:"theme" env:"THEME"` // auto, dark, light
	Markdown      bool   `toml:"markdown" json:"markdown" env:"MARKDOWN"`
	ShowCitations bool   `toml:"show_citations" json:"show_citations" env:"SHOW_CITATIONS"`
	HistoryFile   string `toml:"history_file" json:"history_file" env:"HISTORY_FILE"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration. Paths are left empty and
// resolved against ConfigDir by fillDefaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			ChatAPI:           "http://localhost:8080/api/chat",
			TimeoutSecs:       30,
			StreamTimeoutSecs: 60,
			RequestsPerSecond: 2,
			Burst:             4,
			UserAgent:         "ragchat",
		},
		Session: SessionConfig{
			Address:     "ragchat://local/",
			Backend:     "file",
			TokenKey:    "lruRagChatToken",
			ChatIDKey:   "lruRagChatId",
			Watch:       true,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "ragchat:",
		},
		Stream: StreamConfig{
			ChunkSize:          4096,
			CompletionSentinel: "conversation complete",
		},
		Archive: ArchiveConfig{
			Enabled:        true,
			MaxTranscripts: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		UI: UIConfig{
			Theme:         "auto",
			Markdown:      true,
			ShowCitations: true,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the ragchat directory (~/.ragchat or $RAGCHAT_HOME).
func ConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "could not determine home directory")
	}
	return filepath.Join(home, ".ragchat"), nil
}

// ConfigPathTOML returns the default config file path.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, util.DefaultDirPerm)
}

// ensureSecurePermissions tightens a config file to 0600. The file may hold
// a Redis password.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return errors.Wrapf(err, "fix insecure permissions (was %o)", mode)
		}
	}
	return nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the config file at path (the default location when empty),
// applies environment overrides, fills defaults and validates. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPathTOML()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "stat config file")
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := fillDefaults(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// LoadTOML decodes path on top of cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnvOverrides applies RAGCHAT_* environment variables, e.g.
// RAGCHAT_API_CHAT_API, RAGCHAT_API_ASSISTANT_ID, RAGCHAT_SESSION_BACKEND,
// RAGCHAT_LOG_LEVEL.
func (c *Config) ApplyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return errors.Wrap(err, "parse environment")
	}
	return nil
}

// fillDefaults completes empty values, resolving paths against ConfigDir.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.API.ChatAPI == "" {
		cfg.API.ChatAPI = defaults.API.ChatAPI
	}
	if cfg.API.UserAgent == "" {
		cfg.API.UserAgent = defaults.API.UserAgent
	}
	if cfg.Session.Address == "" {
		cfg.Session.Address = defaults.Session.Address
	}
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = defaults.Session.Backend
	}
	cfg.Session.Backend = strings.ToLower(cfg.Session.Backend)
	if cfg.Session.TokenKey == "" {
		cfg.Session.TokenKey = defaults.Session.TokenKey
	}
	if cfg.Session.ChatIDKey == "" {
		cfg.Session.ChatIDKey = defaults.Session.ChatIDKey
	}
	if cfg.Stream.ChunkSize == 0 {
		cfg.Stream.ChunkSize = defaults.Stream.ChunkSize
	}
	if strings.TrimSpace(cfg.Stream.CompletionSentinel) == "" {
		cfg.Stream.CompletionSentinel = defaults.Stream.CompletionSentinel
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}

	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if cfg.Session.Path == "" {
		switch cfg.Session.Backend {
		case "sqlite":
			cfg.Session.Path = filepath.Join(dir, "session.db")
		default:
			cfg.Session.Path = filepath.Join(dir, "session.json")
		}
	}
	if cfg.Archive.Dir == "" {
		cfg.Archive.Dir = filepath.Join(dir, "transcripts")
	}
	if cfg.UI.HistoryFile == "" {
		cfg.UI.HistoryFile = filepath.Join(dir, "repl_history")
	}
	return nil
}

// DefaultLogFile is where the TUI logs, since it owns the terminal.
func DefaultLogFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ragchat.log"), nil
}

// =============================================================================
// SAVING
// =============================================================================

// SaveTOML writes cfg to path with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), util.DefaultDirPerm); err != nil {
		return errors.Wrap(err, "create config directory")
	}

	var b strings.Builder
	b.WriteString("# ragchat configuration file\n")
	b.WriteString("# Environment variables (RAGCHAT_*) override these values.\n\n")
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return errors.Wrap(err, "encode config")
	}
	return util.AtomicWriteFile(path, []byte(b.String()), 0o600)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration. The chat target may be left unset here;
// commands that talk to the backend require it.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(c.API.ChatAPI); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		add("api.chat_api", "must be an absolute http(s) URL, got %q", c.API.ChatAPI)
	}
	if c.API.AssistantID != "" && c.API.ApplicationID != "" {
		add("api.assistant_id", "only one of assistant_id and application_id may be set")
	}
	if c.API.TimeoutSecs <= 0 {
		add("api.timeout_secs", "must be positive")
	}
	if c.API.StreamTimeoutSecs <= 0 {
		add("api.stream_timeout_secs", "must be positive")
	}
	if c.API.RequestsPerSecond <= 0 {
		add("api.requests_per_second", "must be positive")
	}
	if c.API.Burst < 1 {
		add("api.burst", "must be at least 1")
	}

	switch c.Session.Backend {
	case "memory", "file", "sqlite", "redis":
	default:
		add("session.backend", "invalid backend '%s', must be one of: memory, file, sqlite, redis", c.Session.Backend)
	}
	if c.Session.Backend == "redis" && c.Session.RedisAddr == "" {
		add("session.redis_addr", "required for the redis backend")
	}
	if c.Session.TokenKey == c.Session.ChatIDKey {
		add("session.chat_id_key", "must differ from token_key")
	}

	if c.Stream.ChunkSize < 1 || c.Stream.ChunkSize > 1<<20 {
		add("stream.chunk_size", "must be between 1 and 1048576")
	}
	if c.Archive.MaxTranscripts < 0 {
		add("archive.max_transcripts", "must not be negative")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		add("log.level", "invalid level '%s'", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		add("log.format", "invalid format '%s', must be console or json", c.Log.Format)
	}
	switch strings.ToLower(c.UI.Theme) {
	case "auto", "dark", "light":
	default:
		add("ui.theme", "invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// String renders the config as JSON with secrets redacted.
func (c *Config) String() string {
	safe := *c
	safe.API.SourceFilter = append([]string(nil), c.API.SourceFilter...)
	if safe.Session.RedisPassword != "" {
		safe.Session.RedisPassword = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

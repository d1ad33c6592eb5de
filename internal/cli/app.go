// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/logging"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/orchestrator"
	"github.com/jeranaias/ragchat/internal/projector"
	"github.com/jeranaias/ragchat/internal/ragapi"
	"github.com/jeranaias/ragchat/internal/session"
	"github.com/jeranaias/ragchat/internal/storage"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// loadConfig loads the layered configuration and applies flag overrides.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid flags")
	}
	return cfg, nil
}

// applyFlags overrides cfg with the flags that were set.
func applyFlags(cfg *config.Config, opts *globalOptions) {
	if opts.chatAPI != "" {
		cfg.API.ChatAPI = opts.chatAPI
	}
	// A target flag replaces whatever target the file chose.
	if opts.assistantID != "" {
		cfg.API.AssistantID = opts.assistantID
		cfg.API.ApplicationID = ""
	}
	if opts.applicationID != "" {
		cfg.API.ApplicationID = opts.applicationID
		cfg.API.AssistantID = ""
	}
	if opts.address != "" {
		cfg.Session.Address = opts.address
	}
	if opts.backend != "" {
		cfg.Session.Backend = strings.ToLower(opts.backend)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
}

// parseUserValues turns name=value flags into request user values. A name
// given several times collects all of its values.
func parseUserValues(vars []string) (map[string]ragapi.UserValue, error) {
	if len(vars) == 0 {
		return nil, nil
	}
	out := make(map[string]ragapi.UserValue, len(vars))
	for _, v := range vars {
		name, value, ok := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.Errorf("invalid --var %q, want name=value", v)
		}
		out[name] = append(out[name], value)
	}
	return out, nil
}

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app is the assembled client stack for one command.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	client     *ragapi.Client
	sessions   *session.Manager
	transcript *model.Transcript
	orch       *orchestrator.Orchestrator
	archive    *storage.TranscriptStore // nil when archiving is disabled
	sendOpts   orchestrator.SendOptions

	stopWatch context.CancelFunc
}

// newApp wires storage, session manager, client, projector and
// orchestrator from cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, vars []string) (*app, error) {
	userValues, err := parseUserValues(vars)
	if err != nil {
		return nil, err
	}

	if err := config.EnsureConfigDir(); err != nil {
		return nil, errors.Wrap(err, "create config directory")
	}

	store, err := session.OpenStorage(ctx, session.StorageConfig{
		Backend:       cfg.Session.Backend,
		Path:          cfg.Session.Path,
		RedisAddr:     cfg.Session.RedisAddr,
		RedisPassword: cfg.Session.RedisPassword,
		RedisDB:       cfg.Session.RedisDB,
		RedisPrefix:   cfg.Session.RedisPrefix,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open session storage")
	}

	address, err := session.ParseAddress(cfg.Session.Address)
	if err != nil {
		store.Close()
		return nil, errors.Wrap(err, "session address")
	}
	sessions := session.NewManager(store, address, session.Config{
		TokenKey:  cfg.Session.TokenKey,
		ChatIDKey: cfg.Session.ChatIDKey,
		Logger:    logger.Named("session"),
	})
	if err := sessions.Restore(ctx); err != nil {
		sessions.Close()
		return nil, errors.Wrap(err, "restore session")
	}

	client, err := ragapi.NewClient(&ragapi.ClientConfig{
		ChatAPI: cfg.API.ChatAPI,
		Target: ragapi.Target{
			AssistantID:   cfg.API.AssistantID,
			ApplicationID: cfg.API.ApplicationID,
		},
		Timeout:           time.Duration(cfg.API.TimeoutSecs) * time.Second,
		StreamTimeout:     time.Duration(cfg.API.StreamTimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		UserAgent:         cfg.API.UserAgent,
		Logger:            logger.Named("api"),
	})
	if err != nil {
		sessions.Close()
		if errors.Is(err, ragapi.ErrNoTarget) {
			return nil, errors.New("no assistant selected: set api.assistant_id in the config, RAGCHAT_API_ASSISTANT_ID, or --assistant")
		}
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		client:     client,
		sessions:   sessions,
		transcript: model.NewTranscript(),
		sendOpts: orchestrator.SendOptions{
			SourceFilter: cfg.API.SourceFilter,
			UserValues:   userValues,
		},
	}

	var recorder orchestrator.Recorder
	if cfg.Archive.Enabled {
		a.archive, err = storage.NewTranscriptStore(cfg.Archive.Dir, cfg.Archive.MaxTranscripts)
		if err != nil {
			sessions.Close()
			return nil, err
		}
		recorder = a.archive
	}

	proj := projector.New(a.transcript, projector.Config{
		CompletionSentinel: cfg.Stream.CompletionSentinel,
		Logger:             logger.Named("projector"),
	})
	a.orch = orchestrator.New(client, sessions, proj, orchestrator.Config{
		Recorder:  recorder,
		ChunkSize: cfg.Stream.ChunkSize,
		Logger:    logger.Named("orchestrator"),
	})

	if cfg.Session.Watch {
		wctx, cancel := context.WithCancel(ctx)
		a.stopWatch = cancel
		if err := sessions.Watch(wctx); err != nil {
			logger.Warn("session storage will not follow other processes", zap.Error(err))
		}
	}
	return a, nil
}

// credentials returns the chat token attached to outbound requests.
func (a *app) credentials() ragapi.Credentials {
	return ragapi.Credentials{ChatToken: a.sessions.Credentials().ChatToken}
}

// Close stops watchers and releases storage.
func (a *app) Close() {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	if err := a.sessions.Close(); err != nil {
		a.logger.Warn("close session storage", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// setup loads config and builds a stderr logger.
func setup(opts *globalOptions) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openArchive opens the transcript store named by the config.
func openArchive(opts *globalOptions) (*storage.TranscriptStore, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return storage.NewTranscriptStore(cfg.Archive.Dir, cfg.Archive.MaxTranscripts)
}

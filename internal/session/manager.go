// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Storage keys.
const (
	TokenKey  = "lruRagChatToken"
	ChatIDKey = "lruRagChatId"
)

// =============================================================================
// HANDLE
// =============================================================================

// Handle is the continuity state for one conversation.
type Handle struct {
	ChatID    string
	ChatToken string
}

// IsZero reports whether neither value is known.
func (h Handle) IsZero() bool {
	return h.ChatID == "" && h.ChatToken == ""
}

// Metadata is the session information carried by a response.
type Metadata struct {
	ChatID    string
	ChatToken string
}

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Config holds configuration for the session manager.
type Config struct {
	// TokenKey is the storage key for the chat token (default: lruRagChatToken)
	TokenKey string

	// ChatIDKey is the storage key for the chat id (default: lruRagChatId)
	ChatIDKey string

	Logger *zap.Logger
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		TokenKey:  TokenKey,
		ChatIDKey: ChatIDKey,
	}
}

// Manager owns the session Handle and keeps storage and address in sync.
type Manager struct {
	mu      sync.Mutex
	store   Storage
	address *Address
	handle  Handle

	tokenKey  string
	chatIDKey string
	logger    *zap.Logger

	onChange func(Handle)
}

// NewManager creates a manager. Call Restore to load persisted state.
func NewManager(store Storage, address *Address, cfg Config) *Manager {
	if cfg.TokenKey == "" {
		cfg.TokenKey = TokenKey
	}
	if cfg.ChatIDKey == "" {
		cfg.ChatIDKey = ChatIDKey
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if address == nil {
		address = &Address{}
	}
	return &Manager{
		store:     store,
		address:   address,
		tokenKey:  cfg.TokenKey,
		chatIDKey: cfg.ChatIDKey,
		logger:    cfg.Logger,
	}
}

// SetOnChange registers a callback invoked after the handle changes.
func (m *Manager) SetOnChange(fn func(Handle)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Address returns the navigable address.
func (m *Manager) Address() *Address {
	return m.address
}

// Handle returns the in-memory handle.
func (m *Manager) Handle() Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Restore loads the token and chat id from storage. A stored chat id is
// reflected into the address when the address carries none, the same way a
// reloaded page keeps its marker.
func (m *Manager) Restore(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(ctx); err != nil {
		return err
	}
	if _, ok := m.address.ChatID(); !ok && m.handle.ChatID != "" {
		m.address.SetChatID(m.handle.ChatID)
	}
	m.logger.Debug("session restored",
		zap.Bool("has_token", m.handle.ChatToken != ""),
		zap.String("chat_id", m.handle.ChatID))
	return nil
}

// Refresh re-reads storage so a write by another client wins. A marker that
// followed the old stored chat id follows the new one, or is cleared when
// the other client reset the session.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	before := m.handle
	if err := m.loadLocked(ctx); err != nil {
		m.mu.Unlock()
		return err
	}
	after := m.handle
	if after.ChatID != before.ChatID {
		if id, ok := m.address.ChatID(); !ok || id == before.ChatID {
			m.address.SetChatID(after.ChatID)
		}
	}
	fn := m.onChange
	m.mu.Unlock()

	if after != before && fn != nil {
		fn(after)
	}
	return nil
}

func (m *Manager) loadLocked(ctx context.Context) error {
	token, _, err := m.store.Get(ctx, m.tokenKey)
	if err != nil {
		return errors.Wrap(err, "load chat token")
	}
	chatID, _, err := m.store.Get(ctx, m.chatIDKey)
	if err != nil {
		return errors.Wrap(err, "load chat id")
	}
	m.handle = Handle{ChatID: chatID, ChatToken: token}
	return nil
}

// Observe records session metadata from a response. Values are stored only
// when the handle lacks them; absent values are not an error. Returns true
// when anything new was recorded.
func (m *Manager) Observe(ctx context.Context, md Metadata) (bool, error) {
	m.mu.Lock()

	changed := false
	if md.ChatID != "" && m.handle.ChatID == "" {
		if err := m.store.Set(ctx, m.chatIDKey, md.ChatID); err != nil {
			m.mu.Unlock()
			return false, errors.Wrap(err, "persist chat id")
		}
		m.handle.ChatID = md.ChatID
		m.address.SetChatID(md.ChatID)
		changed = true
	}
	if md.ChatToken != "" && m.handle.ChatToken == "" {
		if err := m.store.Set(ctx, m.tokenKey, md.ChatToken); err != nil {
			m.mu.Unlock()
			return changed, errors.Wrap(err, "persist chat token")
		}
		m.handle.ChatToken = md.ChatToken
		changed = true
	}

	handle := m.handle
	fn := m.onChange
	m.mu.Unlock()

	if changed {
		m.logger.Info("session established", zap.String("chat_id", handle.ChatID))
		if fn != nil {
			fn(handle)
		}
	}
	return changed, nil
}

// ResolveChatID picks the chat id for the next request: the address marker
// first, then the handle, otherwise "".
func (m *Manager) ResolveChatID() string {
	if id, ok := m.address.ChatID(); ok {
		return id
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle.ChatID
}

// Credentials returns the chat id and token to attach to the next request.
func (m *Manager) Credentials() Handle {
	chatID := m.ResolveChatID()
	m.mu.Lock()
	defer m.mu.Unlock()
	return Handle{ChatID: chatID, ChatToken: m.handle.ChatToken}
}

// Reset forgets the conversation: handle, storage and address marker.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	m.handle = Handle{}
	m.address.ClearChatID()
	errToken := m.store.Delete(ctx, m.tokenKey)
	errID := m.store.Delete(ctx, m.chatIDKey)
	fn := m.onChange
	m.mu.Unlock()

	if fn != nil {
		fn(Handle{})
	}
	if errToken != nil {
		return errors.Wrap(errToken, "clear chat token")
	}
	return errors.Wrap(errID, "clear chat id")
}

// Watch refreshes the handle whenever the storage reports an external write.
// Storages that cannot be watched are ignored.
func (m *Manager) Watch(ctx context.Context) error {
	w, ok := m.store.(Watcher)
	if !ok {
		return nil
	}
	return w.Watch(ctx, func() {
		if err := m.Refresh(ctx); err != nil {
			m.logger.Warn("refresh session", zap.Error(err))
		}
	})
}

// Close releases the storage.
func (m *Manager) Close() error {
	return m.store.Close()
}

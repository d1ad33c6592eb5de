// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Storage is durable client-local key/value storage.
type Storage interface {
	// Get returns the value for key. The bool is false when the key is unset.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Watcher is implemented by storages that can report writes made by other
// processes.
type Watcher interface {
	// Watch calls fn after every external change until ctx is done.
	Watch(ctx context.Context, fn func()) error
}

// Backend names accepted by OpenStorage.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// StorageConfig selects and configures a storage backend.
type StorageConfig struct {
	Backend string

	// Path is the file or database location for file and sqlite.
	Path string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// OpenStorage opens the configured backend.
func OpenStorage(ctx context.Context, cfg StorageConfig) (Storage, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		return NewMemoryStorage(), nil
	case "", BackendFile:
		if cfg.Path == "" {
			return nil, errors.New("file storage needs a path")
		}
		return NewFileStorage(cfg.Path), nil
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, errors.New("sqlite storage needs a path")
		}
		return NewSQLiteStorage(ctx, cfg.Path)
	case BackendRedis:
		return NewRedisStorage(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	default:
		return nil, errors.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// =============================================================================
// MEMORY STORAGE
// =============================================================================

// MemoryStorage keeps values for the lifetime of the process.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (s *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryStorage) Close() error { return nil }

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session keeps a chat's identity alive across requests and restarts.
//
// The backend hands out a chat id and a chat token in response headers. The
// Manager records them the first time they appear, persists the token (and
// chat id) in client-local Storage, and reflects the chat id into the
// navigable Address as a "#chatId=<id>" marker so the conversation can be
// resumed from the address alone.
//
// # Storage backends
//
//   - MemoryStorage: process-local, used in tests and with --ephemeral
//   - FileStorage: JSON file written atomically, watchable with fsnotify
//   - SQLiteStorage: single-table key/value store (modernc.org/sqlite)
//   - RedisStorage: shared store for several clients (go-redis)
//
// All backends are last-writer-wins.
package session

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage archives chat transcripts on disk.
//
// Each chat is one JSON file named after its chat id, rewritten atomically
// after every finished response. Snapshots feed the history and export
// commands.
//
// # Usage
//
//	store, err := storage.NewTranscriptStore(dir, 100)
//	err = store.Record(ctx, chatID, transcript)
//	metas, err := store.List()
//	st, err := store.Load(metas[0].ChatID)
//
// # Storage Location
//
// Snapshots live in ~/.ragchat/transcripts/.
package storage

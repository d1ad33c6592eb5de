// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the transcript data structures.
//
// # Key Types
//
//   - Message: one transcript entry with origin, kind, text and attachment
//   - Transcript: ordered, lock-protected list of messages plus read-more links
//   - Change: notification delivered to transcript subscribers
//   - Origin: who produced a message (user or assistant)
//
// # Usage
//
//	t := model.NewTranscript()
//	t.OnChange(func(c model.Change) { redraw() })
//	msg := t.Append(model.NewUserMessage("Hello", turnID))
//
// Only the projector mutates a transcript. Renderers read snapshots via
// Messages and Citations, which copy under the read lock.
package model

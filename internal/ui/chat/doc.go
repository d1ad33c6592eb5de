// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view.
//
// The view never mutates the transcript. It submits turns through the
// orchestrator and redraws from transcript snapshots. Transcript listeners
// run while the projector holds its lock, so the Bridge only flips an atomic
// flag and posts a message from a fresh goroutine; Update then reads the
// transcript on the program's own goroutine.
package chat

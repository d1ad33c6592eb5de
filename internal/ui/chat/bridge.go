// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ragchat/internal/model"
)

// Bridge carries transcript changes and input gate transitions into a
// running program. It implements orchestrator.InputGate.
//
// Nothing here blocks: callers may hold the projector lock.
type Bridge struct {
	mu   sync.RWMutex
	send func(tea.Msg)

	dirty    atomic.Bool
	disabled atomic.Bool
}

// NewBridge creates a detached bridge. Messages are dropped until Attach.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach routes messages to p.
func (b *Bridge) Attach(p *tea.Program) {
	b.AttachFunc(p.Send)
}

// AttachFunc routes messages to send.
func (b *Bridge) AttachFunc(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

// Watch subscribes the bridge to t.
func (b *Bridge) Watch(t *model.Transcript) {
	t.OnChange(b.transcriptChanged)
}

func (b *Bridge) transcriptChanged(model.Change) {
	// Only the first change after a redraw posts; later ones ride along.
	if b.dirty.CompareAndSwap(false, true) {
		b.post(TranscriptChangedMsg{})
	}
}

// Consume clears the dirty flag. Returns whether it was set.
func (b *Bridge) Consume() bool {
	return b.dirty.Swap(false)
}

// Disable closes the input gate.
func (b *Bridge) Disable() {
	b.disabled.Store(true)
	b.post(InputGateMsg{})
}

// Enable opens the input gate.
func (b *Bridge) Enable() {
	b.disabled.Store(false)
	b.post(InputGateMsg{})
}

// InputEnabled reports the current gate state.
func (b *Bridge) InputEnabled() bool {
	return !b.disabled.Load()
}

func (b *Bridge) post(msg tea.Msg) {
	b.mu.RLock()
	send := b.send
	b.mu.RUnlock()
	if send == nil {
		return
	}
	go send(msg)
}

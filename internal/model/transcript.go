// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/ragchat/internal/stream"
)

// MaxMessages bounds the transcript. When exceeded the oldest terminal
// messages are pruned.
const MaxMessages = 1000

// =============================================================================
// CHANGE NOTIFICATIONS
// =============================================================================

// ChangeType describes a transcript mutation.
type ChangeType int

const (
	ChangeAdded ChangeType = iota
	ChangeAppended
	ChangeSealed
	ChangeRemoved
	ChangeCleared
	ChangeCitations
)

// String returns a short name for logs.
func (c ChangeType) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeAppended:
		return "appended"
	case ChangeSealed:
		return "sealed"
	case ChangeRemoved:
		return "removed"
	case ChangeCleared:
		return "cleared"
	case ChangeCitations:
		return "citations"
	default:
		return fmt.Sprintf("change(%d)", int(c))
	}
}

// Change is delivered to subscribers after every mutation.
type Change struct {
	Type    ChangeType
	Message Message // Copy of the affected message; zero for ChangeCleared
	Delta   string  // Text added by ChangeAppended
	Rewrite bool    // Sanitization changed text that was already delivered
}

// =============================================================================
// TRANSCRIPT TYPE
// =============================================================================

// Transcript is the ordered list of messages shown to the user.
type Transcript struct {
	mu        sync.RWMutex
	messages  []*Message
	readMore  *ReadMore
	nextSeq   uint64
	listeners []func(Change)
	now       func() time.Time
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{
		readMore: NewReadMore(),
		nextSeq:  1,
		now:      time.Now,
	}
}

// OnChange registers fn to be called after every mutation. Callbacks run on
// the mutating goroutine, outside the transcript lock.
func (t *Transcript) OnChange(fn func(Change)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

func (t *Transcript) notify(c Change) {
	t.mu.RLock()
	listeners := make([]func(Change), len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.RUnlock()

	for _, fn := range listeners {
		fn(c)
	}
}

// =============================================================================
// MUTATION
// =============================================================================

// Append adds msg at the end, assigning its Seq and creation time.
func (t *Transcript) Append(msg Message) Message {
	t.mu.Lock()
	m := msg
	m.Seq = t.nextSeq
	t.nextSeq++
	if m.CreatedAt.IsZero() {
		m.CreatedAt = t.now()
	}
	t.messages = append(t.messages, &m)
	t.pruneLocked()
	out := m.clone()
	t.mu.Unlock()

	t.notify(Change{Type: ChangeAdded, Message: out})
	return out
}

// AppendText concatenates delta onto the open message seq and runs sanitize
// over the whole result. Returns false when seq is unknown or not open.
func (t *Transcript) AppendText(seq uint64, delta string, sanitize func(string) string) (Message, bool) {
	t.mu.Lock()
	m := t.findLocked(seq)
	if m == nil || !m.Open {
		t.mu.Unlock()
		return Message{}, false
	}
	before := m.Text
	after := before + delta
	if sanitize != nil {
		after = sanitize(after)
	}
	m.Text = after
	out := m.clone()
	t.mu.Unlock()

	c := Change{Type: ChangeAppended, Message: out}
	if strings.HasPrefix(after, before) {
		c.Delta = after[len(before):]
	} else {
		c.Delta = delta
		c.Rewrite = true
	}
	t.notify(c)
	return out, true
}

// Seal closes message seq for further appends.
func (t *Transcript) Seal(seq uint64) (Message, bool) {
	t.mu.Lock()
	m := t.findLocked(seq)
	if m == nil || m.Terminal {
		t.mu.Unlock()
		return Message{}, false
	}
	m.Open = false
	m.Terminal = true
	out := m.clone()
	t.mu.Unlock()

	t.notify(Change{Type: ChangeSealed, Message: out})
	return out, true
}

// Remove deletes message seq.
func (t *Transcript) Remove(seq uint64) bool {
	t.mu.Lock()
	for i, m := range t.messages {
		if m.Seq == seq {
			out := m.clone()
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			t.mu.Unlock()
			t.notify(Change{Type: ChangeRemoved, Message: out})
			return true
		}
	}
	t.mu.Unlock()
	return false
}

// RemoveWhere deletes every message matching pred and returns how many went.
func (t *Transcript) RemoveWhere(pred func(Message) bool) int {
	t.mu.Lock()
	kept := t.messages[:0]
	var removed []Message
	for _, m := range t.messages {
		if pred(m.clone()) {
			removed = append(removed, m.clone())
			continue
		}
		kept = append(kept, m)
	}
	for i := len(kept); i < len(t.messages); i++ {
		t.messages[i] = nil
	}
	t.messages = kept
	t.mu.Unlock()

	for _, m := range removed {
		t.notify(Change{Type: ChangeRemoved, Message: m})
	}
	return len(removed)
}

// Clear drops all messages and read-more links.
func (t *Transcript) Clear() {
	t.mu.Lock()
	t.messages = nil
	t.readMore = NewReadMore()
	t.mu.Unlock()

	t.notify(Change{Type: ChangeCleared})
}

// AddCitations records read-more links for message id.
func (t *Transcript) AddCitations(id string, links ...stream.Citation) {
	if len(links) == 0 {
		return
	}
	t.mu.Lock()
	t.readMore.Add(id, links...)
	var target Message
	for _, m := range t.messages {
		if m.ID == id && m.Origin == OriginAssistant {
			target = m.clone()
		}
	}
	t.mu.Unlock()

	t.notify(Change{Type: ChangeCitations, Message: target})
}

// pruneLocked drops the oldest terminal messages beyond MaxMessages.
func (t *Transcript) pruneLocked() {
	excess := len(t.messages) - MaxMessages
	if excess <= 0 {
		return
	}
	kept := make([]*Message, 0, MaxMessages)
	for _, m := range t.messages {
		if excess > 0 && m.Terminal {
			excess--
			continue
		}
		kept = append(kept, m)
	}
	t.messages = kept
}

func (t *Transcript) findLocked(seq uint64) *Message {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Seq == seq {
			return t.messages[i]
		}
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Messages returns a snapshot of all messages in order.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.clone()
	}
	return out
}

// Get returns message seq.
func (t *Transcript) Get(seq uint64) (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if m := t.findLocked(seq); m != nil {
		return m.clone(), true
	}
	return Message{}, false
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the newest message.
func (t *Transcript) Last() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1].clone(), true
}

// Suggestions returns the current follow-up questions in order.
func (t *Transcript) Suggestions() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Message
	for _, m := range t.messages {
		if m.IsSuggestion() {
			out = append(out, m.clone())
		}
	}
	return out
}

// Citations returns the read-more links recorded for message id.
func (t *Transcript) Citations(id string) []stream.Citation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.readMore.Get(id)
}

// CitationIDs returns the message ids with read-more links, oldest first.
func (t *Transcript) CitationIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.readMore.IDs()
}

// CheckInvariant verifies that at most one message is open and that it is
// the newest assistant message.
func (t *Transcript) CheckInvariant() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	open := -1
	lastAssistant := -1
	for i, m := range t.messages {
		if m.Origin == OriginAssistant {
			lastAssistant = i
		}
		if !m.Open {
			continue
		}
		if open >= 0 {
			return fmt.Errorf("messages %d and %d are both open", t.messages[open].Seq, m.Seq)
		}
		if m.Origin != OriginAssistant {
			return fmt.Errorf("open message %d is not an assistant message", m.Seq)
		}
		open = i
	}
	if open >= 0 && open != lastAssistant {
		return fmt.Errorf("open message %d is not the newest assistant message", t.messages[open].Seq)
	}
	return nil
}

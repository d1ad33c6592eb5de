// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package projector folds decoded stream events into a transcript.
//
// A Projector is a small state machine (Idle, Streaming, Closed) that holds
// an explicit handle to the one assistant message currently accepting text.
// ChatCompletion fragments are appended to that message; every other kind
// either creates a terminal entry, updates read-more links, or is ignored.
package projector

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/stream"
)

// DefaultCompletionSentinel is the StatusUpdate text surfaced to the user.
const DefaultCompletionSentinel = "conversation complete"

// Status texts for synthetic entries.
const (
	StatusNoResponse  = "no response received"
	StatusNoStream    = "Something went wrong - no response stream was returned"
	StatusInterrupted = "Something went wrong - the response was interrupted"
	StatusCancelled   = "Response cancelled"
)

// =============================================================================
// STATE
// =============================================================================

// State is the projector's streaming state.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config configures a Projector.
type Config struct {
	// CompletionSentinel is the only StatusUpdate text shown to the user.
	CompletionSentinel string

	Logger *zap.Logger
}

// DefaultConfig returns the default projector configuration.
func DefaultConfig() Config {
	return Config{CompletionSentinel: DefaultCompletionSentinel}
}

// Summary describes one finished stream.
type Summary struct {
	TurnID      string
	Events      int
	Kinds       map[stream.Kind]int
	Produced    bool // At least one ChatCompletion fragment carried text
	Surfaced    bool // A terminal assistant entry was added
	Synthetic   bool // A synthetic status entry was appended
	Interrupted bool
}

// =============================================================================
// PROJECTOR
// =============================================================================

// Projector is the sole mutator of a transcript.
type Projector struct {
	mu         sync.Mutex
	transcript *model.Transcript
	sentinel   string
	logger     *zap.Logger

	state    State
	open     uint64 // Seq of the open message, 0 when none
	openID   string
	turnID   string
	replay   bool
	produced bool
	surfaced bool
	events   int
	kinds    map[stream.Kind]int
}

// New creates a projector writing into t.
func New(t *model.Transcript, cfg Config) *Projector {
	if cfg.CompletionSentinel == "" {
		cfg.CompletionSentinel = DefaultCompletionSentinel
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Projector{
		transcript: t,
		sentinel:   cfg.CompletionSentinel,
		logger:     cfg.Logger,
		kinds:      make(map[stream.Kind]int),
	}
}

// Transcript returns the transcript being projected into.
func (p *Projector) Transcript() *model.Transcript {
	return p.transcript
}

// State returns the current state.
func (p *Projector) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// OpenMessage returns the message currently accepting text.
func (p *Projector) OpenMessage() (model.Message, bool) {
	p.mu.Lock()
	seq := p.open
	p.mu.Unlock()

	if seq == 0 {
		return model.Message{}, false
	}
	return p.transcript.Get(seq)
}

// BeginTurn starts a live request: stale suggestions are removed, the user's
// text is added and an empty open placeholder awaits the reply.
func (p *Projector) BeginTurn(text, turnID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sealOpenLocked()
	p.startLocked(turnID, false)
	p.transcript.RemoveWhere(model.Message.IsSuggestion)
	p.transcript.Append(model.NewUserMessage(text, turnID))

	placeholder := p.transcript.Append(model.NewPlaceholder(turnID))
	p.open = placeholder.Seq
	p.openID = placeholder.ID
}

// BeginReplay starts a history replay. No placeholder is added and message
// ids come from the events themselves.
func (p *Projector) BeginReplay(turnID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sealOpenLocked()
	p.startLocked(turnID, true)
}

func (p *Projector) startLocked(turnID string, replay bool) {
	p.state = StateStreaming
	p.turnID = turnID
	p.replay = replay
	p.produced = false
	p.surfaced = false
	p.events = 0
	p.kinds = make(map[stream.Kind]int)
}

// Apply projects one event. Events must be applied in arrival order.
func (p *Projector) Apply(ev stream.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateStreaming {
		p.startLocked(p.turnID, p.replay)
	}
	p.events++
	p.kinds[ev.Kind()]++

	switch e := ev.(type) {
	case stream.ChatCompletion:
		p.applyCompletionLocked(e)

	case stream.Images:
		p.appendAssistantLocked(model.Message{
			ID:         p.messageID(e),
			Kind:       stream.KindImages,
			Attachment: &model.Attachment{Kind: model.AttachmentImage, URL: strings.TrimSpace(e.URL())},
		})

	case stream.QuestionSuggestion:
		p.appendAssistantLocked(model.Message{
			ID:   p.messageID(e),
			Kind: stream.KindQuestionSuggestion,
			Text: strings.TrimSpace(e.Payload()),
		})

	case stream.UserInput:
		p.sealOpenLocked()
		p.transcript.RemoveWhere(model.Message.IsSuggestion)
		msg := model.NewUserMessage(e.Payload(), p.turnID)
		msg.ID = e.EventID()
		p.transcript.Append(msg)

	case stream.Citations:
		key := e.EventID()
		if key == "" {
			key = p.currentIDLocked()
		}
		p.transcript.AddCitations(key, e.Links...)

	case stream.StatusUpdate:
		if strings.TrimSpace(e.Payload()) != p.sentinel {
			p.logger.Debug("status update", zap.String("status", e.Payload()))
			return
		}
		status := model.NewStatus(e.Payload(), false)
		status.ID = p.messageID(e)
		p.appendAssistantLocked(status)

	case stream.ToolExecutionStart, stream.ToolExecutionResult:
		p.logger.Debug("tool event",
			zap.Stringer("kind", e.Kind()),
			zap.String("content", e.Payload()))

	default:
		p.logger.Debug("ignoring unclassified event",
			zap.String("type", string(ev.Kind())),
			zap.String("id", ev.EventID()))
	}
}

func (p *Projector) applyCompletionLocked(e stream.ChatCompletion) {
	// In replay every stored answer has its own id; a new id means a new message.
	if p.replay && p.open != 0 && e.EventID() != "" && p.openID != "" && e.EventID() != p.openID {
		p.sealOpenLocked()
	}

	if p.open != 0 {
		if m, ok := p.transcript.AppendText(p.open, e.Payload(), model.SanitizeLinks); ok {
			if m.Text != "" {
				p.produced = true
			}
			return
		}
		// The open message was removed underneath us; start a fresh one.
		p.open, p.openID = 0, ""
	}

	msg := p.transcript.Append(model.Message{
		ID:     p.messageID(e),
		TurnID: p.turnID,
		Origin: model.OriginAssistant,
		Kind:   stream.KindChatCompletion,
		Text:   model.SanitizeLinks(e.Payload()),
		Open:   true,
	})
	p.open, p.openID = msg.Seq, msg.ID
	if msg.Text != "" {
		p.produced = true
	}
}

// appendAssistantLocked adds a terminal assistant entry. An open message is
// sealed first so the open message is always the newest assistant entry.
func (p *Projector) appendAssistantLocked(msg model.Message) {
	p.sealOpenLocked()
	msg.Origin = model.OriginAssistant
	msg.TurnID = p.turnID
	msg.Open = false
	msg.Terminal = true
	p.transcript.Append(msg)
	p.surfaced = true
}

// sealOpenLocked closes the open message, withdrawing it if it never
// received any content.
func (p *Projector) sealOpenLocked() {
	if p.open == 0 {
		return
	}
	if m, ok := p.transcript.Get(p.open); ok && m.IsEmpty() {
		p.transcript.Remove(p.open)
	} else {
		p.transcript.Seal(p.open)
	}
	p.open, p.openID = 0, ""
}

// messageID picks the event's id, falling back to the turn id.
func (p *Projector) messageID(ev stream.Event) string {
	if id := ev.EventID(); id != "" {
		return id
	}
	return p.turnID
}

func (p *Projector) currentIDLocked() string {
	if p.open != 0 && p.openID != "" {
		return p.openID
	}
	return p.turnID
}

// =============================================================================
// END OF STREAM
// =============================================================================

// Finish ends the current stream. A nil cause is a clean end of stream; any
// other cause means the stream broke off. Exactly one synthetic status entry
// is added when the stream was interrupted, or when it ended without adding
// anything the user can see.
func (p *Projector) Finish(cause error) Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sealOpenLocked()

	sum := Summary{
		TurnID:   p.turnID,
		Events:   p.events,
		Kinds:    p.kinds,
		Produced: p.produced,
		Surfaced: p.surfaced,
	}

	switch {
	case cause != nil:
		text := StatusInterrupted
		if errors.Is(cause, context.Canceled) {
			text = StatusCancelled
		}
		p.transcript.Append(p.statusLocked(text))
		sum.Synthetic = true
		sum.Interrupted = true
		p.logger.Warn("stream ended early", zap.Error(cause), zap.Int("events", p.events))
	case !p.produced && !p.surfaced:
		p.transcript.Append(p.statusLocked(StatusNoResponse))
		sum.Synthetic = true
		p.logger.Warn("stream ended without a reply", zap.Int("events", p.events))
	}

	p.state = StateClosed
	p.kinds = make(map[stream.Kind]int)
	return sum
}

// Abort resolves a request that failed before any stream was read. The
// pending placeholder is withdrawn and one error status is added.
func (p *Projector) Abort(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sealOpenLocked()
	p.transcript.Append(p.statusLocked(status))
	p.state = StateClosed
}

func (p *Projector) statusLocked(text string) model.Message {
	msg := model.NewStatus(text, true)
	msg.TurnID = p.turnID
	return msg
}

// Reset clears the transcript and returns to Idle.
func (p *Projector) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.open, p.openID = 0, ""
	p.turnID = ""
	p.replay = false
	p.produced = false
	p.surfaced = false
	p.events = 0
	p.kinds = make(map[stream.Kind]int)
	p.state = StateIdle
	p.transcript.Clear()
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// ORIGIN TYPE
// =============================================================================

// Origin identifies who produced a message.
type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
)

// String returns the string representation of the origin.
func (o Origin) String() string {
	return string(o)
}

// DisplayName returns a human-readable name for the origin.
func (o Origin) DisplayName() string {
	switch o {
	case OriginUser:
		return "You"
	case OriginAssistant:
		return "Assistant"
	default:
		return string(o)
	}
}

// =============================================================================
// ATTACHMENT TYPE
// =============================================================================

// AttachmentKind classifies the side payload of a message.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentLink  AttachmentKind = "link"
)

// Attachment is an optional side payload such as an image reference.
type Attachment struct {
	Kind  AttachmentKind `json:"kind"`
	URL   string         `json:"url"`
	Title string         `json:"title,omitempty"`
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single transcript entry.
type Message struct {
	// Identity
	Seq       uint64    `json:"seq"`               // Assigned by the transcript, never reused
	ID        string    `json:"id,omitempty"`      // Server id; empty for local user input
	TurnID    string    `json:"turn_id,omitempty"` // Local correlation id of the request
	CreatedAt time.Time `json:"created_at"`

	// Classification
	Origin Origin      `json:"origin"`
	Kind   stream.Kind `json:"kind"`

	// Content
	Text       string      `json:"text"`
	Attachment *Attachment `json:"attachment,omitempty"`

	// Streaming state
	Open     bool `json:"open,omitempty"` // Accepts further ChatCompletion fragments
	Terminal bool `json:"terminal"`       // Will never change again
	IsError  bool `json:"is_error,omitempty"`
}

// NewUserMessage creates a terminal user message. It has no server id until
// the backend echoes it back.
func NewUserMessage(text, turnID string) Message {
	return Message{
		TurnID:   turnID,
		Origin:   OriginUser,
		Kind:     stream.KindUserInput,
		Text:     text,
		Terminal: true,
	}
}

// NewPlaceholder creates the empty, open assistant message shown while a
// reply is pending.
func NewPlaceholder(turnID string) Message {
	return Message{
		ID:     turnID,
		TurnID: turnID,
		Origin: OriginAssistant,
		Kind:   stream.KindChatCompletion,
		Open:   true,
	}
}

// NewStatus creates a terminal assistant status entry.
func NewStatus(text string, isError bool) Message {
	return Message{
		Origin:   OriginAssistant,
		Kind:     stream.KindStatusUpdate,
		Text:     text,
		Terminal: true,
		IsError:  isError,
	}
}

// IsSuggestion reports whether the message is a follow-up question.
func (m Message) IsSuggestion() bool {
	return m.Kind == stream.KindQuestionSuggestion
}

// IsStatus reports whether the message is a status entry.
func (m Message) IsStatus() bool {
	return m.Kind == stream.KindStatusUpdate
}

// IsEmpty reports whether the message has neither text nor attachment.
func (m Message) IsEmpty() bool {
	return m.Text == "" && m.Attachment == nil
}

// Preview returns the first line of the text truncated to width cells.
func (m Message) Preview(width int) string {
	text := m.Text
	if text == "" && m.Attachment != nil {
		text = m.Attachment.URL
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i] + " ..."
	}
	text = strings.TrimSpace(text)
	if width <= 0 || runewidth.StringWidth(text) <= width {
		return text
	}
	return runewidth.Truncate(text, width, "...")
}

// clone returns a deep copy safe to hand outside the transcript lock.
func (m *Message) clone() Message {
	c := *m
	if m.Attachment != nil {
		a := *m.Attachment
		c.Attachment = &a
	}
	return c
}

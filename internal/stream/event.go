// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

// =============================================================================
// EVENT KINDS
// =============================================================================

// Kind is the wire discriminator carried in an event's "type" field.
type Kind string

const (
	KindChatCompletion      Kind = "ChatCompletion"
	KindCitations           Kind = "Citations"
	KindToolExecutionStart  Kind = "ToolExecutionStart"
	KindToolExecutionResult Kind = "ToolExecutionResult"
	KindStatusUpdate        Kind = "StatusUpdate"
	KindImages              Kind = "Images"
	KindQuestionSuggestion  Kind = "QuestionSuggestion"
	KindUserInput           Kind = "UserInput"
)

// Known reports whether k is one of the kinds the backend documents.
func (k Kind) Known() bool {
	switch k {
	case KindChatCompletion, KindCitations, KindToolExecutionStart,
		KindToolExecutionResult, KindStatusUpdate, KindImages,
		KindQuestionSuggestion, KindUserInput:
		return true
	}
	return false
}

// String returns the wire name.
func (k Kind) String() string {
	return string(k)
}

// =============================================================================
// EVENT VARIANTS
// =============================================================================

// Event is one decoded stream record. The set of implementations is closed:
// every known Kind has its own type and anything else decodes to Unclassified.
type Event interface {
	// Kind returns the wire discriminator.
	Kind() Kind
	// EventID returns the server-assigned id, or "" when absent.
	EventID() string
	// Payload returns the textual content as received.
	Payload() string

	isEvent()
}

// base carries the fields shared by every variant.
type base struct {
	ID      string
	Content string
}

func (b base) EventID() string { return b.ID }
func (b base) Payload() string { return b.Content }
func (base) isEvent()          {}

// ChatCompletion is an incremental text fragment of an assistant reply.
type ChatCompletion struct{ base }

func (ChatCompletion) Kind() Kind { return KindChatCompletion }

// Citation is one read-more link referenced by an answer.
type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Citations carries source references decoded from the nested JSON payload.
type Citations struct {
	base
	Links []Citation
}

func (Citations) Kind() Kind { return KindCitations }

// ToolExecutionStart announces that the backend invoked a tool.
type ToolExecutionStart struct{ base }

func (ToolExecutionStart) Kind() Kind { return KindToolExecutionStart }

// ToolExecutionResult reports a tool's output.
type ToolExecutionResult struct{ base }

func (ToolExecutionResult) Kind() Kind { return KindToolExecutionResult }

// StatusUpdate is a backend progress message.
type StatusUpdate struct{ base }

func (StatusUpdate) Kind() Kind { return KindStatusUpdate }

// Images references an image. Content holds the image URL.
type Images struct{ base }

func (Images) Kind() Kind { return KindImages }

// URL returns the referenced image location.
func (e Images) URL() string { return e.Content }

// QuestionSuggestion is a follow-up question the user may pick.
type QuestionSuggestion struct{ base }

func (QuestionSuggestion) Kind() Kind { return KindQuestionSuggestion }

// UserInput replays a user turn. It appears only in history replay.
type UserInput struct{ base }

func (UserInput) Kind() Kind { return KindUserInput }

// Unclassified holds a well-formed record whose type is unknown or missing.
type Unclassified struct {
	base
	Type string
}

func (e Unclassified) Kind() Kind { return Kind(e.Type) }

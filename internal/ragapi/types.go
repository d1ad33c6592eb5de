// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ragapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Header names used by the backend.
const (
	HeaderAPIKey    = "X-API-Key"
	HeaderChatID    = "X-Chat-Id"
	HeaderChatToken = "X-Chat-Token"

	ContentTypeJSON = "application/json; charset=utf-8"
)

// Target selects the assistant or application a chat talks to.
// Exactly one field must be set.
type Target struct {
	AssistantID   string
	ApplicationID string
}

// Validate checks that exactly one id is set.
func (t Target) Validate() error {
	if (t.AssistantID == "") == (t.ApplicationID == "") {
		return ErrNoTarget
	}
	return nil
}

// ID returns whichever id is set.
func (t Target) ID() string {
	if t.AssistantID != "" {
		return t.AssistantID
	}
	return t.ApplicationID
}

// UserValue is one or more values for a named user variable. A single value
// is sent as a JSON string, several as an array.
type UserValue []string

// MarshalJSON implements json.Marshaler.
func (v UserValue) MarshalJSON() ([]byte, error) {
	if len(v) == 1 {
		return json.Marshal(v[0])
	}
	return json.Marshal([]string(v))
}

// UnmarshalJSON accepts a string or an array of strings.
func (v *UserValue) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*v = UserValue{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.Wrap(err, "user value must be a string or string array")
	}
	*v = many
	return nil
}

// SendRequest is a user turn.
type SendRequest struct {
	Message      string
	SourceFilter []string
	UserValues   map[string]UserValue
	ChatID       string
}

// Credentials authenticate the caller to an existing chat.
type Credentials struct {
	ChatToken string
}

// ChatBody is the JSON body posted for a user turn.
type ChatBody struct {
	Message       string               `json:"message"`
	SourceFilter  []string             `json:"sourceFilter,omitempty"`
	UserValues    map[string]UserValue `json:"userValues,omitempty"`
	ChatID        string               `json:"chatId,omitempty"`
	AssistantID   string               `json:"assistantId,omitempty"`
	ApplicationID string               `json:"applicationId,omitempty"`
}

// Source is a document collection the answer may draw from.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChatInit describes an assistant before the first turn.
type ChatInit struct {
	Name               string   `json:"name"`
	WelcomeMessage     string   `json:"welcomeMessage"`
	Sources            []Source `json:"sources"`
	SuggestedQuestions []string `json:"suggestedQuestions"`
}

// StreamResponse is an open event stream plus its session headers.
type StreamResponse struct {
	// Body is the event stream, nil when the backend sent no body.
	Body io.ReadCloser

	StatusCode int
	Header     http.Header
	ChatID     string
	ChatToken  string
}

// HasStream reports whether there is a body to read.
func (r *StreamResponse) HasStream() bool {
	return r != nil && r.Body != nil
}

// Close releases the body. Safe to call on a response without one.
func (r *StreamResponse) Close() error {
	if !r.HasStream() {
		return nil
	}
	return r.Body.Close()
}

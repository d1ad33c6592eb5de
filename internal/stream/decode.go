// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformedEvent is the sentinel wrapped by every MalformedEventError.
var ErrMalformedEvent = errors.New("malformed stream event")

// MalformedEventError reports a line that could not be decoded.
// It is never fatal: the caller logs it and moves on to the next line.
type MalformedEventError struct {
	Line  string
	Cause error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("%s: %v", ErrMalformedEvent, e.Cause)
}

// Unwrap exposes both the sentinel and the underlying parse error.
func (e *MalformedEventError) Unwrap() []error {
	return []error{ErrMalformedEvent, e.Cause}
}

// wireEvent is the JSON shape of one record.
type wireEvent struct {
	Type    *string         `json:"type"`
	ID      json.RawMessage `json:"id"`
	Content json.RawMessage `json:"content"`
}

// Decode parses one framed line into an Event.
func Decode(line string) (Event, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || trimmed[0] != '{' {
		return nil, malformed(line, errors.New("record is not a JSON object"))
	}

	var w wireEvent
	if err := json.Unmarshal([]byte(trimmed), &w); err != nil {
		return nil, malformed(line, err)
	}

	id, err := scalarText(w.ID)
	if err != nil {
		return nil, malformed(line, errors.Wrap(err, "id"))
	}
	content, err := contentText(w.Content)
	if err != nil {
		return nil, malformed(line, errors.Wrap(err, "content"))
	}

	b := base{ID: id, Content: content}
	kind := ""
	if w.Type != nil {
		kind = *w.Type
	}

	switch Kind(kind) {
	case KindChatCompletion:
		return ChatCompletion{b}, nil
	case KindCitations:
		links, err := decodeCitations(content)
		if err != nil {
			return nil, malformed(line, errors.Wrap(err, "citations payload"))
		}
		return Citations{base: b, Links: links}, nil
	case KindToolExecutionStart:
		return ToolExecutionStart{b}, nil
	case KindToolExecutionResult:
		return ToolExecutionResult{b}, nil
	case KindStatusUpdate:
		return StatusUpdate{b}, nil
	case KindImages:
		return Images{b}, nil
	case KindQuestionSuggestion:
		return QuestionSuggestion{b}, nil
	case KindUserInput:
		return UserInput{b}, nil
	default:
		return Unclassified{base: b, Type: kind}, nil
	}
}

func malformed(line string, cause error) error {
	return &MalformedEventError{Line: line, Cause: cause}
}

// scalarText accepts a JSON string or number and returns its text form.
func scalarText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errors.New("expected string or number")
	}
	return n.String(), nil
}

// contentText returns string content unquoted and any other JSON value raw.
func contentText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	return string(raw), nil
}

// decodeCitations parses a single link object or an array of them.
func decodeCitations(payload string) ([]Citation, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, errors.New("empty payload")
	}
	if payload[0] == '[' {
		var links []Citation
		if err := json.Unmarshal([]byte(payload), &links); err != nil {
			return nil, err
		}
		return links, nil
	}
	var link Citation
	if err := json.Unmarshal([]byte(payload), &link); err != nil {
		return nil, err
	}
	return []Citation{link}, nil
}

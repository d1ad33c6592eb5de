// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"net/url"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ChatIDMarker precedes the chat id in a navigable address.
const ChatIDMarker = "#chatId="

// Address is the navigable location of the current conversation.
type Address struct {
	mu  sync.RWMutex
	raw string
}

// ParseAddress validates raw as a URL and wraps it.
func ParseAddress(raw string) (*Address, error) {
	if _, err := url.Parse(raw); err != nil {
		return nil, errors.Wrap(err, "parse address")
	}
	return &Address{raw: raw}, nil
}

// String returns the full address including any marker.
func (a *Address) String() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.raw
}

// Base returns the address without its fragment.
func (a *Address) Base() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return stripFragment(a.raw)
}

// ChatID returns the id following the marker. The marker only counts when
// something precedes it.
func (a *Address) ChatID() (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	i := strings.Index(a.raw, ChatIDMarker)
	if i <= 0 {
		return "", false
	}
	id := a.raw[i+len(ChatIDMarker):]
	if id == "" {
		return "", false
	}
	return id, true
}

// SetChatID replaces the fragment with the chat id marker.
func (a *Address) SetChatID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.raw = stripFragment(a.raw)
	if id != "" {
		a.raw += ChatIDMarker + id
	}
}

// ClearChatID removes the marker.
func (a *Address) ClearChatID() {
	a.SetChatID("")
}

func stripFragment(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[:i]
	}
	return raw
}

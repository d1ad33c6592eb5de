// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress_ChatID(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"https://app.example/chat", "", false},
		{"https://app.example/chat#chatId=abc123", "abc123", true},
		{"https://app.example/chat#chatId=", "", false},
		{"#chatId=abc", "", false}, // nothing precedes the marker
		{"https://app.example/chat#other", "", false},
	}
	for _, tt := range tests {
		a, err := ParseAddress(tt.raw)
		require.NoError(t, err)
		got, ok := a.ChatID()
		assert.Equal(t, tt.wantOK, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestAddress_SetAndClear(t *testing.T) {
	a, err := ParseAddress("https://app.example/chat#old")
	require.NoError(t, err)

	a.SetChatID("abc")
	assert.Equal(t, "https://app.example/chat#chatId=abc", a.String())
	a.SetChatID("def")
	assert.Equal(t, "https://app.example/chat#chatId=def", a.String())
	assert.Equal(t, "https://app.example/chat", a.Base())

	a.ClearChatID()
	assert.Equal(t, "https://app.example/chat", a.String())
	_, ok := a.ChatID()
	assert.False(t, ok)
}

func TestParseAddress_Invalid(t *testing.T) {
	_, err := ParseAddress("http://[::1")
	assert.Error(t, err)
}

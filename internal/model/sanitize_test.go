// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLinks(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "no links here", "no links here"},
		{"markdown link untouched", "see [docs](https://d.io)", "see [docs](https://d.io)"},
		{
			"kramdown attribute list",
			`see [docs](https://d.io){:target="_blank"} now`,
			"see [docs](https://d.io) now",
		},
		{
			"attribute list without colon",
			`[a](u){target="_blank" rel="x"}`,
			"[a](u)",
		},
		{
			"html anchor gains safe attrs",
			`<a href="https://d.io">docs</a>`,
			`<a href="https://d.io" target="_blank" rel="noopener noreferrer">docs</a>`,
		},
		{
			"html anchor target replaced",
			`<A HREF='x' target=_self rel="opener">x</A>`,
			`<A HREF='x' target="_blank" rel="noopener noreferrer">x</A>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeLinks(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, SanitizeLinks(got), "must be idempotent")
		})
	}
}

func TestSanitizeLinks_PartialAnchorLeftAlone(t *testing.T) {
	// A tag split mid-stream is finished by a later fragment.
	partial := `text <a href="https://d`
	assert.Equal(t, partial, SanitizeLinks(partial))
}

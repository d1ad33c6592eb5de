// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/ragapi"
	"github.com/jeranaias/ragchat/internal/stream"
	"github.com/jeranaias/ragchat/internal/ui/styles"
)

// cursorGlyph marks the message still receiving text.
const cursorGlyph = "▍"

// =============================================================================
// MARKDOWN
// =============================================================================

// newMarkdownRenderer builds a glamour renderer, or nil when markdown is
// disabled or the renderer cannot be created.
func newMarkdownRenderer(style string, width int) *glamour.TermRenderer {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// transcriptRenderer turns transcript snapshots into viewport content.
type transcriptRenderer struct {
	theme         *styles.Theme
	markdown      *glamour.TermRenderer
	width         int
	showCitations bool
}

// render draws msgs. citations looks up the sources of a message id.
func (r *transcriptRenderer) render(msgs []model.Message, citations func(string) []stream.Citation, init *ragapi.ChatInit) string {
	var b strings.Builder

	if len(msgs) == 0 {
		r.renderWelcome(&b, init)
		return b.String()
	}

	// Sources are listed once, under the last entry carrying their id.
	last := make(map[string]int, len(msgs))
	for i, m := range msgs {
		if m.ID != "" {
			last[m.ID] = i
		}
	}

	suggestion := 0
	for i, m := range msgs {
		switch {
		case m.Origin == model.OriginUser:
			r.renderUser(&b, m)
		case m.IsSuggestion():
			suggestion++
			r.renderSuggestion(&b, suggestion, m.Text)
			continue
		case m.IsStatus():
			r.renderStatus(&b, m)
		default:
			r.renderAssistant(&b, m)
		}

		if r.showCitations && m.ID != "" && last[m.ID] == i && citations != nil {
			r.renderCitations(&b, citations(m.ID))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (r *transcriptRenderer) renderWelcome(b *strings.Builder, init *ragapi.ChatInit) {
	if init == nil {
		b.WriteString(r.theme.Status.Render("Ask a question to start the conversation."))
		b.WriteString("\n")
		return
	}
	if init.Name != "" {
		b.WriteString(r.theme.AssistantLabel.Render(init.Name))
		b.WriteString("\n")
	}
	if init.WelcomeMessage != "" {
		b.WriteString(r.bubble(r.theme.AssistantBubble, init.WelcomeMessage))
		b.WriteString("\n\n")
	}
	for i, q := range init.SuggestedQuestions {
		r.renderSuggestion(b, i+1, q)
	}
}

func (r *transcriptRenderer) renderUser(b *strings.Builder, m model.Message) {
	b.WriteString(r.theme.UserLabel.Render(model.OriginUser.DisplayName()))
	b.WriteString("\n")
	b.WriteString(r.bubble(r.theme.UserBubble, m.Text))
	b.WriteString("\n")
}

func (r *transcriptRenderer) renderAssistant(b *strings.Builder, m model.Message) {
	if m.Attachment != nil && m.Attachment.Kind == model.AttachmentImage {
		title := m.Attachment.Title
		if title == "" {
			title = "image"
		}
		b.WriteString(r.theme.Image.Render(fmt.Sprintf("[%s] %s", title, m.Attachment.URL)))
		b.WriteString("\n")
		return
	}

	if m.Open {
		text := m.Text
		if text == "" {
			text = r.theme.Status.Render("...")
		}
		b.WriteString(r.bubble(r.theme.AssistantBubble, text+r.theme.Cursor.Render(cursorGlyph)))
		b.WriteString("\n")
		return
	}

	if r.markdown != nil {
		if out, err := r.markdown.Render(m.Text); err == nil {
			b.WriteString(strings.TrimRight(out, "\n"))
			b.WriteString("\n")
			return
		}
	}
	b.WriteString(r.bubble(r.theme.AssistantBubble, m.Text))
	b.WriteString("\n")
}

func (r *transcriptRenderer) renderStatus(b *strings.Builder, m model.Message) {
	style := r.theme.Status
	if m.IsError {
		style = r.theme.StatusError
	}
	b.WriteString(style.Render(m.Text))
	b.WriteString("\n")
}

func (r *transcriptRenderer) renderSuggestion(b *strings.Builder, n int, text string) {
	b.WriteString(r.theme.SuggestionKey.Render(fmt.Sprintf("/%d", n)))
	b.WriteString(" ")
	b.WriteString(r.theme.Suggestion.Render(text))
	b.WriteString("\n")
}

func (r *transcriptRenderer) renderCitations(b *strings.Builder, links []stream.Citation) {
	for _, c := range links {
		title := c.Title
		if title == "" {
			title = c.URL
		}
		b.WriteString(r.theme.Citation.Render("  ↳ " + title + " " + c.URL))
		b.WriteString("\n")
	}
}

func (r *transcriptRenderer) bubble(style lipgloss.Style, text string) string {
	if w := r.width - 4; w > 0 {
		style = style.Width(w)
	}
	return style.Render(text)
}

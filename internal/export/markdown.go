// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/storage"
	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a transcript to Markdown.
func (e *MarkdownExporter) Export(st *storage.StoredTranscript) ([]byte, error) {
	if err := validate(st); err != nil {
		return nil, err
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(st.Title))
		fmt.Fprintf(&sb, "chat_id: %s\n", escapeYAML(st.ChatID))
		fmt.Fprintf(&sb, "date: %s\n", st.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "updated: %s\n", st.UpdatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "messages: %d\n", len(st.Messages))
		sb.WriteString("generator: ragchat\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(st.Title))

	for i, msg := range st.Messages {
		label := roleLabel(msg)
		if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.CreatedAt))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		sb.WriteString(e.formatMessage(msg))
		sb.WriteString("\n\n")

		if e.options.IncludeCitations && msg.Origin == model.OriginAssistant && !msg.IsStatus() {
			if links := st.Citations[msg.ID]; len(links) > 0 && !citedLater(st, i) {
				sb.WriteString(formatCitations(links))
				sb.WriteString("\n")
			}
		}

		if i < len(st.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from ragchat on %s*\n", time.Now().Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

func (e *MarkdownExporter) formatMessage(msg model.Message) string {
	switch {
	case msg.Attachment != nil && msg.Attachment.Kind == model.AttachmentImage:
		return fmt.Sprintf("![%s](%s)", escapeMarkdown(msg.Attachment.Title), msg.Attachment.URL)
	case msg.IsStatus():
		return "> _" + strings.TrimSpace(msg.Text) + "_"
	default:
		return strings.TrimRight(msg.Text, "\n")
	}
}

// citedLater reports whether a later assistant message shares the id at i,
// so the sources are listed once, under the last part of the answer.
func citedLater(st *storage.StoredTranscript, i int) bool {
	id := st.Messages[i].ID
	for _, m := range st.Messages[i+1:] {
		if m.ID == id && m.Origin == model.OriginAssistant && !m.IsStatus() {
			return true
		}
	}
	return false
}

func formatCitations(links []stream.Citation) string {
	var sb strings.Builder
	sb.WriteString("**Sources**\n\n")
	for _, l := range links {
		title := l.Title
		if title == "" {
			title = l.URL
		}
		fmt.Fprintf(&sb, "- [%s](%s)\n", escapeMarkdown(title), l.URL)
	}
	return sb.String()
}

// escapeMarkdown escapes characters that would break titles and headings.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML escapes special YAML characters in values.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}

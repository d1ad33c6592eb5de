// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/storage"
	"github.com/jeranaias/ragchat/internal/stream"
)

func sample() *storage.StoredTranscript {
	at := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	return &storage.StoredTranscript{
		ChatID:    "chat-1",
		Title:     "What is *NDJSON*?",
		CreatedAt: at,
		UpdatedAt: at.Add(time.Minute),
		Messages: []model.Message{
			{Origin: model.OriginUser, Kind: stream.KindUserInput, Text: "What is NDJSON?", CreatedAt: at},
			{ID: "a1", Origin: model.OriginAssistant, Kind: stream.KindChatCompletion, CreatedAt: at,
				Text: "One JSON value per line. See [the format notes](https://example.com/ndjson) or https://jsonlines.org.\n\n<script>alert(1)</script>"},
			{ID: "a1", Origin: model.OriginAssistant, Kind: stream.KindImages, CreatedAt: at,
				Attachment: &model.Attachment{Kind: model.AttachmentImage, URL: "https://example.com/diagram.png"}},
			{Origin: model.OriginAssistant, Kind: stream.KindStatusUpdate, Text: "conversation complete", CreatedAt: at},
		},
		Citations: map[string][]stream.Citation{
			"a1": {{Title: "NDJSON format", URL: "https://example.com/ndjson"}},
		},
	}
}

func TestNewExporter(t *testing.T) {
	for format, ext := range map[string]string{"md": ".md", "markdown": ".md", "HTML": ".html", "json": ".json"} {
		exp, err := NewExporter(format, nil)
		require.NoError(t, err, format)
		assert.Equal(t, ext, exp.FileExtension())
	}
	_, err := NewExporter("pdf", nil)
	assert.Error(t, err)
}

func TestExport_EmptyTranscript(t *testing.T) {
	for _, exp := range []Exporter{NewMarkdownExporter(nil), NewHTMLExporter(nil)} {
		_, err := exp.Export(&storage.StoredTranscript{ChatID: "x"})
		assert.Error(t, err)
		_, err = exp.Export(nil)
		assert.Error(t, err)
	}
}

// =============================================================================
// MARKDOWN
// =============================================================================

func TestMarkdownExporter(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(sample())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\n"))
	assert.Contains(t, md, `title: "What is *NDJSON*?"`)
	assert.Contains(t, md, "# What is \\*NDJSON\\*?")
	assert.Contains(t, md, "### You <sub>10:00:00</sub>")
	assert.Contains(t, md, "![](https://example.com/diagram.png)")
	assert.Contains(t, md, "> _conversation complete_")

	// Sources appear once, after the last part of the answer.
	assert.Equal(t, 1, strings.Count(md, "**Sources**"))
	assert.Greater(t, strings.Index(md, "**Sources**"), strings.Index(md, "diagram.png"))
	assert.Contains(t, md, "- [NDJSON format](https://example.com/ndjson)")
}

func TestMarkdownExporter_NoMetadata(t *testing.T) {
	opts := &Options{IncludeMetadata: false, IncludeTimestamps: false}
	out, err := NewMarkdownExporter(opts).Export(sample())
	require.NoError(t, err)
	md := string(out)
	assert.False(t, strings.HasPrefix(md, "---\n"))
	assert.Contains(t, md, "### You\n")
	assert.NotContains(t, md, "**Sources**")
}

// =============================================================================
// HTML
// =============================================================================

func TestHTMLExporter_LinksOpenInNewTab(t *testing.T) {
	out, err := NewHTMLExporter(nil).Export(sample())
	require.NoError(t, err)
	page := string(out)

	assert.Contains(t, page, `<a href="https://example.com/ndjson" target="_blank" rel="noopener noreferrer">the format notes</a>`)
	assert.Contains(t, page, `<a href="https://jsonlines.org" target="_blank" rel="noopener noreferrer">`)
	assert.Equal(t, strings.Count(page, "<a href="), strings.Count(page, `rel="noopener noreferrer"`))

	assert.NotContains(t, page, "<script>alert")
	assert.Contains(t, page, "<title>What is *NDJSON*?</title>")
	assert.Contains(t, page, `<img src="https://example.com/diagram.png"`)
	assert.Contains(t, page, "status-message")
}

func TestHTMLExporter_RenderMarkdown(t *testing.T) {
	e := NewHTMLExporter(&Options{Theme: "light"})
	got, err := e.RenderMarkdown("**bold** and <https://a.example>")
	require.NoError(t, err)
	assert.Contains(t, got, "<strong>bold</strong>")
	assert.Contains(t, got, `href="https://a.example" target="_blank" rel="noopener noreferrer"`)
	assert.Equal(t, "light", e.theme())
}

func TestHTMLExporter_EscapesTitleAndCitations(t *testing.T) {
	st := sample()
	st.Title = `<img src=x onerror=alert(1)>`
	st.Citations["a1"] = []stream.Citation{{Title: `<b>x</b>`, URL: `https://e.com/?a="b"`}}

	out, err := NewHTMLExporter(nil).Export(st)
	require.NoError(t, err)
	page := string(out)
	assert.NotContains(t, page, "<img src=x")
	assert.Contains(t, page, "&lt;b&gt;x&lt;/b&gt;")
	assert.Contains(t, page, `https://e.com/?a=&#34;b&#34;`)
}

// =============================================================================
// FILES
// =============================================================================

func TestExportToFile(t *testing.T) {
	opts := DefaultOptions()
	opts.OutputDir = filepath.Join(t.TempDir(), "out")

	path, err := ExportToFile(sample(), NewJSONExporter(opts), opts)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "chat_What_is_-NDJSON-"))
	assert.Equal(t, ".json", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var back storage.StoredTranscript
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "chat-1", back.ChatID)
	assert.Len(t, back.Messages, 4)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a-b-c_d", sanitizeFilename(`a/b:c d`))
	assert.Equal(t, "chat", sanitizeFilename(""))
	assert.Equal(t, 50, len([]rune(sanitizeFilename(strings.Repeat("é", 80)))))
}

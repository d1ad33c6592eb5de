// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/storage"
	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports transcripts to a standalone HTML page. Message text is
// rendered as Markdown; raw HTML in messages is dropped and every link opens
// in a new tab.
type HTMLExporter struct {
	options *Options
	md      goldmark.Markdown
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts, md: newMarkdown()}
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithASTTransformers(util.Prioritized(linkTargetTransformer{}, 100)),
		),
	)
}

// linkTargetTransformer forces target/rel on every link and autolink.
type linkTargetTransformer struct{}

func (linkTargetTransformer) Transform(doc *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindLink, ast.KindAutoLink:
			n.SetAttributeString("target", []byte("_blank"))
			n.SetAttributeString("rel", []byte("noopener noreferrer"))
		}
		return ast.WalkContinue, nil
	})
}

// Export converts a transcript to HTML.
func (e *HTMLExporter) Export(st *storage.StoredTranscript) ([]byte, error) {
	if err := validate(st); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", html.EscapeString(st.Title))
	sb.WriteString("    <meta name=\"generator\" content=\"ragchat\">\n")
	fmt.Fprintf(&sb, "    <meta name=\"date\" content=\"%s\">\n", st.CreatedAt.Format(time.RFC3339))
	sb.WriteString(css)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n", html.EscapeString(e.theme()))
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		sb.WriteString(e.renderHeader(st))
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for i, msg := range st.Messages {
		body, err := e.renderMessage(st, i, msg)
		if err != nil {
			return nil, err
		}
		sb.WriteString(body)
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	fmt.Fprintf(&sb, "            <p>Exported from <strong>ragchat</strong> on %s</p>\n",
		time.Now().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("        </footer>\n    </div>\n</body>\n</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

func (e *HTMLExporter) theme() string {
	if e.options.Theme == "light" {
		return "light"
	}
	return "dark"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) renderHeader(st *storage.StoredTranscript) string {
	var sb strings.Builder
	sb.WriteString("        <header class=\"header\">\n")
	fmt.Fprintf(&sb, "            <h1>%s</h1>\n", html.EscapeString(st.Title))
	sb.WriteString("            <div class=\"metadata\">\n")
	fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Chat:</strong> %s</span>\n", html.EscapeString(st.ChatID))
	fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Created:</strong> %s</span>\n", formatTimestamp(st.CreatedAt))
	fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Messages:</strong> %d</span>\n", len(st.Messages))
	sb.WriteString("            </div>\n        </header>\n")
	return sb.String()
}

func (e *HTMLExporter) renderMessage(st *storage.StoredTranscript, i int, msg model.Message) (string, error) {
	var sb strings.Builder

	class := string(msg.Origin) + "-message"
	if msg.IsStatus() {
		class = "status-message"
		if msg.IsError {
			class += " error-message"
		}
	}
	fmt.Fprintf(&sb, "            <div class=\"message %s\">\n", class)
	sb.WriteString("                <div class=\"message-header\">\n")
	fmt.Fprintf(&sb, "                    <span class=\"role-label\">%s</span>\n", roleLabel(msg))
	if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "                    <span class=\"timestamp\">%s</span>\n", formatShortTimestamp(msg.CreatedAt))
	}
	sb.WriteString("                </div>\n")

	sb.WriteString("                <div class=\"message-content\">\n")
	switch {
	case msg.Attachment != nil && msg.Attachment.Kind == model.AttachmentImage:
		fmt.Fprintf(&sb, "<img src=\"%s\" alt=\"%s\">\n",
			html.EscapeString(msg.Attachment.URL), html.EscapeString(msg.Attachment.Title))
	case msg.IsStatus():
		fmt.Fprintf(&sb, "<p><em>%s</em></p>\n", html.EscapeString(msg.Text))
	default:
		body, err := e.RenderMarkdown(msg.Text)
		if err != nil {
			return "", err
		}
		sb.WriteString(body)
	}
	sb.WriteString("                </div>\n")

	if e.options.IncludeCitations && msg.Origin == model.OriginAssistant && !msg.IsStatus() {
		if links := st.Citations[msg.ID]; len(links) > 0 && !citedLater(st, i) {
			sb.WriteString(renderCitations(links))
		}
	}

	sb.WriteString("            </div>\n")
	return sb.String(), nil
}

// RenderMarkdown renders message text to HTML with safe link attributes.
func (e *HTMLExporter) RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := e.md.Convert([]byte(src), &buf); err != nil {
		return "", errors.Wrap(err, "render markdown")
	}
	return buf.String(), nil
}

func renderCitations(links []stream.Citation) string {
	var sb strings.Builder
	sb.WriteString("                <div class=\"citations\">\n                    <strong>Sources</strong>\n                    <ul>\n")
	for _, l := range links {
		title := l.Title
		if title == "" {
			title = l.URL
		}
		fmt.Fprintf(&sb, "                        <li><a href=\"%s\" %s>%s</a></li>\n",
			html.EscapeString(l.URL), model.SafeLinkAttrs, html.EscapeString(title))
	}
	sb.WriteString("                    </ul>\n                </div>\n")
	return sb.String()
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

const css = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif; line-height: 1.6; }
        .dark-theme { background: #1e1e2e; color: #cdd6f4; }
        .light-theme { background: #ffffff; color: #1e1e2e; }
        .container { max-width: 860px; margin: 0 auto; padding: 32px 16px; }
        .header { margin-bottom: 24px; }
        .metadata { display: flex; gap: 16px; flex-wrap: wrap; font-size: 0.9em; opacity: 0.8; }
        .message { margin-bottom: 16px; padding: 12px 16px; border-radius: 8px; }
        .dark-theme .user-message { background: #313244; }
        .dark-theme .assistant-message { background: #181825; }
        .light-theme .user-message { background: #e6e9ef; }
        .light-theme .assistant-message { background: #f5f5f5; }
        .status-message { font-size: 0.9em; opacity: 0.8; }
        .error-message { color: #f38ba8; }
        .message-header { display: flex; justify-content: space-between; font-weight: 600; margin-bottom: 6px; }
        .timestamp { font-weight: 400; font-size: 0.85em; opacity: 0.7; }
        .message-content p { margin: 0.4em 0; }
        .message-content pre { padding: 8px; overflow-x: auto; border-radius: 4px; background: rgba(0,0,0,0.2); }
        .message-content img { max-width: 100%; }
        .citations { margin-top: 8px; font-size: 0.9em; }
        .citations ul { margin-left: 20px; }
        a { color: #89b4fa; }
        .footer { margin-top: 32px; font-size: 0.85em; opacity: 0.7; text-align: center; }
    </style>
`

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jeranaias/ragchat/internal/model"
)

// transcriptPrinter writes transcript changes to a line-oriented terminal as
// they happen. Text fragments are printed as deltas so the answer appears
// while it streams.
type transcriptPrinter struct {
	mu  sync.Mutex
	w   io.Writer
	t   *model.Transcript
	out strings.Builder // pending output, flushed after every change

	// echoUser prints user entries; off in the REPL, where the user just
	// typed them.
	echoUser      bool
	showCitations bool

	midLine     bool
	suggestions int
	cited       map[string]bool
}

func newTranscriptPrinter(w io.Writer, t *model.Transcript, showCitations bool) *transcriptPrinter {
	p := &transcriptPrinter{
		w:             w,
		t:             t,
		showCitations: showCitations,
		cited:         make(map[string]bool),
	}
	t.OnChange(p.onChange)
	return p
}

// SetEchoUser controls whether user entries are printed.
func (p *transcriptPrinter) SetEchoUser(on bool) {
	p.mu.Lock()
	p.echoUser = on
	p.mu.Unlock()
}

// onChange runs under the projector's lock and must not call back into it.
func (p *transcriptPrinter) onChange(c model.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := c.Message
	switch c.Type {
	case model.ChangeAdded:
		p.added(m)
	case model.ChangeAppended:
		p.out.WriteString(c.Delta)
		p.midLine = !strings.HasSuffix(c.Delta, "\n")
	case model.ChangeSealed:
		if m.Origin == model.OriginAssistant && !m.IsEmpty() {
			p.endLine()
		}
	case model.ChangeCleared:
		p.suggestions = 0
		p.cited = make(map[string]bool)
	}
	p.flush()
}

func (p *transcriptPrinter) added(m model.Message) {
	switch {
	case m.Origin == model.OriginUser:
		p.suggestions = 0
		if p.echoUser {
			p.endLine()
			p.out.WriteString(UserStyle.Render("You: ") + m.Text + "\n")
		}
	case m.IsSuggestion():
		p.endLine()
		p.suggestions++
		fmt.Fprintf(&p.out, "  %s %s\n", SuggestionStyle.Render(fmt.Sprintf("/%d", p.suggestions)), m.Text)
	case m.IsStatus():
		p.endLine()
		style := DimStyle
		if m.IsError {
			style = ErrorStyle
		}
		p.out.WriteString(style.Render(m.Text) + "\n")
	case m.Attachment != nil:
		p.endLine()
		fmt.Fprintf(&p.out, "%s %s\n", DimStyle.Render("["+string(m.Attachment.Kind)+"]"), m.Attachment.URL)
	case m.Text != "":
		p.endLine()
		p.out.WriteString(m.Text)
		p.midLine = !strings.HasSuffix(m.Text, "\n")
	}
}

// PrintCitations prints sources not shown yet. Call it after a request
// finishes.
func (p *transcriptPrinter) PrintCitations() {
	if !p.showCitations {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range p.t.CitationIDs() {
		if p.cited[id] {
			continue
		}
		p.cited[id] = true
		links := p.t.Citations(id)
		if len(links) == 0 {
			continue
		}
		p.endLine()
		p.out.WriteString(DimStyle.Render("Sources:") + "\n")
		for _, c := range links {
			title := c.Title
			if title == "" {
				title = c.URL
			}
			fmt.Fprintf(&p.out, "  - %s %s\n", title, DimStyle.Render(c.URL))
		}
	}
	p.flush()
}

func (p *transcriptPrinter) endLine() {
	if p.midLine {
		p.out.WriteString("\n")
		p.midLine = false
	}
}

func (p *transcriptPrinter) flush() {
	if p.out.Len() == 0 {
		return
	}
	io.WriteString(p.w, p.out.String())
	p.out.Reset()
}

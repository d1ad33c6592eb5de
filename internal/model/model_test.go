// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestOrigin_DisplayName(t *testing.T) {
	assert.Equal(t, "You", OriginUser.DisplayName())
	assert.Equal(t, "Assistant", OriginAssistant.DisplayName())
	assert.Equal(t, "bot", Origin("bot").DisplayName())
}

func TestMessage_Preview(t *testing.T) {
	m := Message{Text: "first line\nsecond line"}
	assert.Equal(t, "first line ...", m.Preview(0))
	assert.Equal(t, "firs...", m.Preview(7))

	img := Message{Attachment: &Attachment{Kind: AttachmentImage, URL: "https://i/x.png"}}
	assert.Equal(t, "https://i/x.png", img.Preview(40))

	wide := Message{Text: "日本語のテキスト"}
	assert.Equal(t, "日本...", wide.Preview(7))
}

func TestMessage_Constructors(t *testing.T) {
	u := NewUserMessage("hi", "t1")
	assert.Equal(t, OriginUser, u.Origin)
	assert.Empty(t, u.ID)
	assert.True(t, u.Terminal)

	p := NewPlaceholder("t1")
	assert.True(t, p.Open)
	assert.False(t, p.Terminal)
	assert.True(t, p.IsEmpty())
	assert.Equal(t, stream.KindChatCompletion, p.Kind)

	s := NewStatus("boom", true)
	assert.True(t, s.IsStatus())
	assert.True(t, s.IsError)
}

// =============================================================================
// TRANSCRIPT TESTS
// =============================================================================

func TestTranscript_AppendAssignsSeq(t *testing.T) {
	tr := NewTranscript()
	a := tr.Append(NewUserMessage("a", ""))
	b := tr.Append(NewUserMessage("b", ""))

	assert.Equal(t, uint64(1), a.Seq)
	assert.Equal(t, uint64(2), b.Seq)
	assert.False(t, a.CreatedAt.IsZero())
	assert.Equal(t, 2, tr.Len())

	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, "b", last.Text)
}

func TestTranscript_AppendTextOnlyWhenOpen(t *testing.T) {
	tr := NewTranscript()
	open := tr.Append(NewPlaceholder("t1"))
	closed := tr.Append(NewStatus("done", false))

	_, ok := tr.AppendText(closed.Seq, "x", nil)
	assert.False(t, ok)
	_, ok = tr.AppendText(999, "x", nil)
	assert.False(t, ok)

	tr.AppendText(open.Seq, "Hel", SanitizeLinks)
	m, ok := tr.AppendText(open.Seq, "lo", SanitizeLinks)
	require.True(t, ok)
	assert.Equal(t, "Hello", m.Text)

	sealed, ok := tr.Seal(open.Seq)
	require.True(t, ok)
	assert.False(t, sealed.Open)
	assert.True(t, sealed.Terminal)

	_, ok = tr.Seal(open.Seq)
	assert.False(t, ok, "sealing twice is a no-op")
	_, ok = tr.AppendText(open.Seq, "!", nil)
	assert.False(t, ok)
}

func TestTranscript_ChangeNotifications(t *testing.T) {
	tr := NewTranscript()
	var changes []Change
	tr.OnChange(func(c Change) { changes = append(changes, c) })

	m := tr.Append(NewPlaceholder("t1"))
	tr.AppendText(m.Seq, "see [a](u){:tar", SanitizeLinks)
	tr.AppendText(m.Seq, `get="_blank"} ok`, SanitizeLinks)
	tr.Seal(m.Seq)
	tr.Remove(m.Seq)
	tr.Clear()

	require.Len(t, changes, 6)
	assert.Equal(t, ChangeAdded, changes[0].Type)
	assert.Equal(t, "see [a](u){:tar", changes[1].Delta)
	assert.False(t, changes[1].Rewrite)
	assert.True(t, changes[2].Rewrite, "completed attribute list rewrites earlier text")
	assert.Equal(t, "see [a](u) ok", changes[2].Message.Text)
	assert.Equal(t, ChangeSealed, changes[3].Type)
	assert.Equal(t, ChangeRemoved, changes[4].Type)
	assert.Equal(t, ChangeCleared, changes[5].Type)
	assert.Equal(t, "cleared", changes[5].Type.String())
}

func TestTranscript_RemoveWhere(t *testing.T) {
	tr := NewTranscript()
	tr.Append(Message{Origin: OriginAssistant, Kind: stream.KindQuestionSuggestion, Text: "q1", Terminal: true})
	tr.Append(NewUserMessage("u", ""))
	tr.Append(Message{Origin: OriginAssistant, Kind: stream.KindQuestionSuggestion, Text: "q2", Terminal: true})

	assert.Len(t, tr.Suggestions(), 2)
	n := tr.RemoveWhere(Message.IsSuggestion)
	assert.Equal(t, 2, n)
	assert.Empty(t, tr.Suggestions())
	assert.Equal(t, 1, tr.Len())
}

func TestTranscript_SnapshotsAreCopies(t *testing.T) {
	tr := NewTranscript()
	tr.Append(Message{Origin: OriginAssistant, Attachment: &Attachment{Kind: AttachmentImage, URL: "a"}, Terminal: true})

	snap := tr.Messages()
	snap[0].Text = "mutated"
	snap[0].Attachment.URL = "mutated"

	fresh := tr.Messages()
	assert.Empty(t, fresh[0].Text)
	assert.Equal(t, "a", fresh[0].Attachment.URL)
}

func TestTranscript_CheckInvariant(t *testing.T) {
	tr := NewTranscript()
	require.NoError(t, tr.CheckInvariant())

	open := tr.Append(NewPlaceholder("t1"))
	require.NoError(t, tr.CheckInvariant())

	tr.Append(NewUserMessage("later user message is fine", ""))
	require.NoError(t, tr.CheckInvariant())

	tr.Append(NewStatus("newer assistant entry", false))
	assert.Error(t, tr.CheckInvariant())

	tr.Seal(open.Seq)
	require.NoError(t, tr.CheckInvariant())

	tr.Append(NewPlaceholder("t2"))
	tr.Append(NewPlaceholder("t3"))
	assert.Error(t, tr.CheckInvariant())
}

func TestTranscript_Citations(t *testing.T) {
	tr := NewTranscript()
	tr.AddCitations("m1", stream.Citation{Title: "A", URL: "u1"})
	tr.AddCitations("m1", stream.Citation{Title: "A again", URL: "u1"}, stream.Citation{Title: "B", URL: "u2"})
	tr.AddCitations("m0", stream.Citation{Title: "C", URL: "u3"})

	assert.Equal(t, []string{"m1", "m0"}, tr.CitationIDs())
	links := tr.Citations("m1")
	require.Len(t, links, 2)
	assert.Equal(t, "A", links[0].Title)
	assert.Nil(t, tr.Citations("missing"))

	tr.Clear()
	assert.Empty(t, tr.CitationIDs())
}

func TestTranscript_Prune(t *testing.T) {
	tr := NewTranscript()
	for i := 0; i < MaxMessages+5; i++ {
		tr.Append(NewUserMessage("m", ""))
	}
	assert.Equal(t, MaxMessages, tr.Len())
	msgs := tr.Messages()
	assert.Equal(t, uint64(6), msgs[0].Seq)
}

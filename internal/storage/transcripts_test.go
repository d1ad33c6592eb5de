// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/stream"
)

// steppingClock returns times one minute apart.
func steppingClock() func() time.Time {
	t := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func newTestStore(t *testing.T, limit int) *TranscriptStore {
	t.Helper()
	store, err := NewTranscriptStore(t.TempDir(), limit)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	store.now = steppingClock()
	return store
}

func sampleTranscript(question string) *model.Transcript {
	tr := model.NewTranscript()
	tr.Append(model.NewUserMessage(question, "turn-1"))
	tr.Append(model.Message{ID: "a1", Origin: model.OriginAssistant, Kind: stream.KindChatCompletion, Text: "Answer", Terminal: true})
	tr.Append(model.Message{ID: "a1", Origin: model.OriginAssistant, Kind: stream.KindQuestionSuggestion, Text: "More?", Terminal: true})
	tr.AddCitations("a1", stream.Citation{Title: "Doc", URL: "https://example.com/doc"})
	return tr
}

// =============================================================================
// SNAPSHOT
// =============================================================================

func TestSnapshot_DropsSuggestionsAndOpenMessages(t *testing.T) {
	tr := sampleTranscript("Hello")
	tr.Append(model.NewPlaceholder("turn-2"))

	st := Snapshot("chat-1", tr)
	if len(st.Messages) != 2 {
		t.Fatalf("Messages count = %d, want 2", len(st.Messages))
	}
	for _, m := range st.Messages {
		if m.IsSuggestion() || m.Open {
			t.Errorf("unexpected message in snapshot: %+v", m)
		}
	}
	if got := st.Citations["a1"]; len(got) != 1 || got[0].URL != "https://example.com/doc" {
		t.Errorf("Citations = %+v", st.Citations)
	}
}

// =============================================================================
// STORE
// =============================================================================

func TestTranscriptStore_RecordAndLoad(t *testing.T) {
	store := newTestStore(t, 10)

	if err := store.Record(context.Background(), "chat-1", sampleTranscript("What is NDJSON?")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	loaded, err := store.Load("chat-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ChatID != "chat-1" {
		t.Errorf("ChatID = %q, want chat-1", loaded.ChatID)
	}
	if loaded.Title != "What is NDJSON?" {
		t.Errorf("Title = %q", loaded.Title)
	}
	if len(loaded.Messages) != 2 {
		t.Errorf("Messages count = %d, want 2", len(loaded.Messages))
	}

	info, err := os.Stat(filepath.Join(store.BaseDir, "chat-1.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %o, want 600", info.Mode().Perm())
	}
}

func TestTranscriptStore_RecordKeepsCreatedAt(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	if err := store.Record(ctx, "chat-1", sampleTranscript("first")); err != nil {
		t.Fatal(err)
	}
	first, _ := store.Load("chat-1")

	if err := store.Record(ctx, "chat-1", sampleTranscript("second")); err != nil {
		t.Fatal(err)
	}
	second, _ := store.Load("chat-1")

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("UpdatedAt did not advance")
	}
	if second.Title != "first" {
		t.Errorf("Title = %q, want the original title", second.Title)
	}
}

func TestTranscriptStore_LoadNotFound(t *testing.T) {
	store := newTestStore(t, 10)
	_, err := store.Load("missing")
	if !errors.Is(err, ErrTranscriptNotFound) {
		t.Errorf("Expected ErrTranscriptNotFound, got %v", err)
	}
}

func TestTranscriptStore_ChatIDIsEscaped(t *testing.T) {
	store := newTestStore(t, 10)

	if err := store.Record(context.Background(), "../evil/id", sampleTranscript("x")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	entries, _ := os.ReadDir(store.BaseDir)
	if len(entries) != 1 || strings.Contains(entries[0].Name(), "/") {
		t.Fatalf("unexpected files: %v", entries)
	}
	if _, err := store.Load("../evil/id"); err != nil {
		t.Errorf("Load failed: %v", err)
	}

	if err := store.Delete(".."); !errors.Is(err, ErrInvalidChatID) {
		t.Errorf("Expected ErrInvalidChatID, got %v", err)
	}
}

func TestTranscriptStore_ListNewestFirstAndLimit(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Record(ctx, id, sampleTranscript("question "+id)); err != nil {
			t.Fatal(err)
		}
	}

	metas, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("List count = %d, want 2", len(metas))
	}
	if metas[0].ChatID != "c" || metas[1].ChatID != "b" {
		t.Errorf("order = %s, %s; want c, b", metas[0].ChatID, metas[1].ChatID)
	}
	if metas[0].Preview != "question c" {
		t.Errorf("Preview = %q", metas[0].Preview)
	}

	st, err := store.Resolve("2")
	if err != nil || st.ChatID != "b" {
		t.Errorf("Resolve(2) = %v, %v", st, err)
	}
	if _, err := store.Resolve("9"); !errors.Is(err, ErrTranscriptNotFound) {
		t.Errorf("Resolve(9) err = %v", err)
	}
}

func TestTranscriptStore_SkipsCorruptFiles(t *testing.T) {
	store := newTestStore(t, 0)
	if err := os.WriteFile(filepath.Join(store.BaseDir, "bad.json"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(context.Background(), "good", sampleTranscript("ok")); err != nil {
		t.Fatal(err)
	}
	metas, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 || metas[0].ChatID != "good" {
		t.Errorf("List = %+v", metas)
	}
}

func TestTranscriptStore_SearchAndDelete(t *testing.T) {
	store := newTestStore(t, 0)
	ctx := context.Background()
	_ = store.Record(ctx, "one", sampleTranscript("about kittens"))
	_ = store.Record(ctx, "two", sampleTranscript("about trains"))

	results, err := store.Search("TRAINS")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ChatID != "two" {
		t.Errorf("Search = %+v", results)
	}
	// Message text is searched too.
	results, _ = store.Search("answer")
	if len(results) != 2 {
		t.Errorf("Search(answer) count = %d, want 2", len(results))
	}

	if err := store.Delete("two"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete("two"); !errors.Is(err, ErrTranscriptNotFound) {
		t.Errorf("second Delete err = %v", err)
	}
}

func TestFormatList(t *testing.T) {
	if got := FormatList(nil); got != "No saved chats." {
		t.Errorf("FormatList(nil) = %q", got)
	}
	out := FormatList([]TranscriptMeta{{ChatID: "abc", Title: "Hello", MessageCount: 3, UpdatedAt: time.Now()}})
	if !strings.Contains(out, "abc") || !strings.Contains(out, "Hello") {
		t.Errorf("FormatList output missing fields:\n%s", out)
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/pkg/errors"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/stream"
	"github.com/jeranaias/ragchat/internal/util"
)

// =============================================================================
// STORED TRANSCRIPT TYPE
// =============================================================================

// StoredTranscript is a persisted snapshot of one chat.
type StoredTranscript struct {
	ChatID    string    `json:"chat_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages  []model.Message              `json:"messages"`
	Citations map[string][]stream.Citation `json:"citations,omitempty"`
}

// TranscriptMeta contains metadata for listing transcripts.
type TranscriptMeta struct {
	ChatID       string    `json:"chat_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

// Snapshot copies the settled state of t. Suggestions are transient and
// open messages unfinished, so neither is kept.
func Snapshot(chatID string, t *model.Transcript) *StoredTranscript {
	st := &StoredTranscript{ChatID: chatID}
	for _, m := range t.Messages() {
		if m.IsSuggestion() || m.Open {
			continue
		}
		st.Messages = append(st.Messages, m)
	}
	for _, id := range t.CitationIDs() {
		if st.Citations == nil {
			st.Citations = make(map[string][]stream.Citation)
		}
		st.Citations[id] = t.Citations(id)
	}
	return st
}

// Preview returns the first user message truncated to width cells.
func (st *StoredTranscript) Preview(width int) string {
	for _, m := range st.Messages {
		if m.Origin == model.OriginUser && m.Text != "" {
			return m.Preview(width)
		}
	}
	return ""
}

// Meta returns the listing metadata.
func (st *StoredTranscript) Meta() TranscriptMeta {
	return TranscriptMeta{
		ChatID:       st.ChatID,
		Title:        st.Title,
		CreatedAt:    st.CreatedAt,
		UpdatedAt:    st.UpdatedAt,
		MessageCount: len(st.Messages),
		Preview:      st.Preview(80),
	}
}

// =============================================================================
// TRANSCRIPT STORE
// =============================================================================

// TranscriptStore keeps one JSON file per chat id.
type TranscriptStore struct {
	// BaseDir is the directory for snapshots (default: ~/.ragchat/transcripts/)
	BaseDir string

	// MaxTranscripts limits stored snapshots (0 = unlimited)
	MaxTranscripts int

	now func() time.Time
}

// NewTranscriptStore creates a store rooted at baseDir.
func NewTranscriptStore(baseDir string, limit int) (*TranscriptStore, error) {
	if err := os.MkdirAll(baseDir, util.DefaultDirPerm); err != nil {
		return nil, errors.Wrap(err, "create transcript directory")
	}
	return &TranscriptStore{BaseDir: baseDir, MaxTranscripts: limit, now: time.Now}, nil
}

// Record snapshots t under chatID, keeping the original creation time.
func (s *TranscriptStore) Record(_ context.Context, chatID string, t *model.Transcript) error {
	st := Snapshot(chatID, t)
	if prev, err := s.Load(chatID); err == nil {
		st.CreatedAt = prev.CreatedAt
		if st.Title == "" {
			st.Title = prev.Title
		}
	}
	return s.Save(st)
}

// Save persists a snapshot.
func (s *TranscriptStore) Save(st *StoredTranscript) error {
	path, err := s.filePath(st.ChatID)
	if err != nil {
		return err
	}

	if st.Title == "" {
		st.Title = generateTitle(st)
	}
	st.UpdatedAt = s.now()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = st.UpdatedAt
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode transcript")
	}
	if err := util.AtomicWriteFile(path, data, 0o600); err != nil {
		return err
	}

	if s.MaxTranscripts > 0 {
		s.enforceLimit()
	}
	return nil
}

// generateTitle uses the first user message.
func generateTitle(st *StoredTranscript) string {
	if p := st.Preview(50); p != "" {
		return p
	}
	return "New chat"
}

// enforceLimit removes the oldest snapshots when over the limit.
func (s *TranscriptStore) enforceLimit() {
	metas, err := s.List()
	if err != nil || len(metas) <= s.MaxTranscripts {
		return
	}
	// List is newest first.
	for _, m := range metas[s.MaxTranscripts:] {
		_ = s.Delete(m.ChatID)
	}
}

// Load retrieves a snapshot by chat id.
func (s *TranscriptStore) Load(chatID string) (*StoredTranscript, error) {
	path, err := s.filePath(chatID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTranscriptNotFound
		}
		return nil, errors.Wrap(err, "read transcript")
	}

	var st StoredTranscript
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errors.Wrapf(err, "decode transcript %s", chatID)
	}
	return &st, nil
}

// LoadByIndex loads a snapshot by its position in List (0 = most recent).
func (s *TranscriptStore) LoadByIndex(index int) (*StoredTranscript, error) {
	metas, err := s.List()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(metas) {
		return nil, ErrTranscriptNotFound
	}
	return s.Load(metas[index].ChatID)
}

// Resolve loads by chat id, or by 1-based list position when ref is a small
// number that is not itself a stored chat id.
func (s *TranscriptStore) Resolve(ref string) (*StoredTranscript, error) {
	st, err := s.Load(ref)
	if err == nil || !errors.Is(err, ErrTranscriptNotFound) {
		return st, err
	}
	n, convErr := strconv.Atoi(ref)
	if convErr != nil || n < 1 {
		return nil, ErrTranscriptNotFound
	}
	return s.LoadByIndex(n - 1)
}

// List returns all snapshots, most recently updated first.
func (s *TranscriptStore) List() ([]TranscriptMeta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TranscriptMeta{}, nil
		}
		return nil, errors.Wrap(err, "list transcripts")
	}

	metas := []TranscriptMeta{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.BaseDir, entry.Name()))
		if err != nil {
			continue
		}
		var st StoredTranscript
		if err := json.Unmarshal(data, &st); err != nil || st.ChatID == "" {
			continue // corrupted
		}
		metas = append(metas, st.Meta())
	}

	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Search finds snapshots whose title or any message contains query.
func (s *TranscriptStore) Search(query string) ([]TranscriptMeta, error) {
	all, err := s.List()
	if err != nil || query == "" {
		return all, err
	}

	query = strings.ToLower(query)
	var results []TranscriptMeta
	for _, meta := range all {
		if strings.Contains(strings.ToLower(meta.Title), query) {
			results = append(results, meta)
			continue
		}
		st, err := s.Load(meta.ChatID)
		if err != nil {
			continue
		}
		for _, m := range st.Messages {
			if strings.Contains(strings.ToLower(m.Text), query) {
				results = append(results, meta)
				break
			}
		}
	}
	return results, nil
}

// Delete removes a snapshot.
func (s *TranscriptStore) Delete(chatID string) error {
	path, err := s.filePath(chatID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrTranscriptNotFound
		}
		return errors.Wrap(err, "delete transcript")
	}
	return nil
}

// filePath maps a chat id to its file. Chat ids come from the server, so
// they are escaped before touching the filesystem.
func (s *TranscriptStore) filePath(chatID string) (string, error) {
	name := url.PathEscape(chatID)
	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidChatID
	}
	return filepath.Join(s.BaseDir, name+".json"), nil
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrTranscriptNotFound is returned when no snapshot exists.
	ErrTranscriptNotFound = &TranscriptError{Message: "transcript not found"}

	// ErrInvalidChatID is returned for ids that cannot name a file.
	ErrInvalidChatID = &TranscriptError{Message: "invalid chat id"}
)

// TranscriptError represents a transcript store error.
type TranscriptError struct {
	Message string
}

// Error implements the error interface.
func (e *TranscriptError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing transcript errors.
func (e *TranscriptError) Is(target error) bool {
	t, ok := target.(*TranscriptError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatList renders metas as a table for the history command.
func FormatList(metas []TranscriptMeta) string {
	if len(metas) == 0 {
		return "No saved chats."
	}

	var sb strings.Builder
	sb.WriteString(pad("#", 4) + " " + pad("Chat", 14) + " " + pad("Updated", 17) + " " + pad("Msgs", 5) + " Title\n")
	sb.WriteString(strings.Repeat("-", 72) + "\n")
	for i, m := range metas {
		sb.WriteString(pad(strconv.Itoa(i+1), 4) + " " +
			pad(runewidth.Truncate(m.ChatID, 14, "…"), 14) + " " +
			pad(m.UpdatedAt.Local().Format("2006-01-02 15:04"), 17) + " " +
			pad(strconv.Itoa(m.MessageCount), 5) + " " +
			runewidth.Truncate(m.Title, 30, "...") + "\n")
	}
	return sb.String()
}

func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}

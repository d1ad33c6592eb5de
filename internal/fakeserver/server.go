// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fakeserver emulates the chat backend for tests and local demos.
//
// It serves the three backend routes, streams scripted or echoed NDJSON
// events in configurable chunks, hands out chat ids and tokens, and records
// every request it receives.
package fakeserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/jeranaias/ragchat/internal/ragapi"
	"github.com/jeranaias/ragchat/internal/security"
)

// DefaultPrefix is the route prefix of the chat API.
const DefaultPrefix = "/api/chat"

// Turn scripts one response to a chat request.
type Turn struct {
	// Lines are written as NDJSON records.
	Lines []string

	// ChunkSize splits the payload into writes of this many bytes (0 = one write).
	ChunkSize int

	// Delay is slept between chunks.
	Delay time.Duration

	// Status overrides the HTTP status (default 200).
	Status int

	// NoBody sends headers only.
	NoBody bool

	// NoTrailingNewline leaves the last record unterminated.
	NoTrailingNewline bool

	// ChatID and ChatToken override the generated session headers.
	ChatID    string
	ChatToken string

	// OmitSession suppresses the session headers.
	OmitSession bool
}

// Recorded is one request seen by the server.
type Recorded struct {
	Method string
	Path   string
	Header http.Header
	Body   ragapi.ChatBody
}

// Config configures a Server.
type Config struct {
	Prefix string

	// RequireAPIKey rejects requests without a valid X-API-Key.
	RequireAPIKey bool

	// Compress gzips responses when the client accepts it.
	Compress bool

	// AccessLog receives combined-format access logs when set.
	AccessLog io.Writer

	// Sentinel is the completion status sent by the echo responder.
	Sentinel string

	Init   ragapi.ChatInit
	Logger *zap.Logger
}

// Server is an in-memory chat backend.
type Server struct {
	mu        sync.Mutex
	cfg       Config
	handler   http.Handler
	script    []Turn
	requests  []Recorded
	tokens    map[string]string   // chat id -> token
	histories map[string][]string // chat id -> NDJSON lines
	now       func() time.Time
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Sentinel == "" {
		cfg.Sentinel = "conversation complete"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Init.Name == "" {
		cfg.Init = ragapi.ChatInit{
			Name:               "Demo assistant",
			WelcomeMessage:     "Ask me anything about the demo documents.",
			Sources:            []ragapi.Source{{ID: "docs", Name: "Documentation"}},
			SuggestedQuestions: []string{"What can you do?"},
		}
	}

	s := &Server{
		cfg:       cfg,
		tokens:    make(map[string]string),
		histories: make(map[string][]string),
		now:       time.Now,
	}

	r := mux.NewRouter()
	api := r.PathPrefix(cfg.Prefix).Subrouter()
	api.HandleFunc("", s.handleChat).Methods(http.MethodPost)
	api.HandleFunc("/", s.handleChat).Methods(http.MethodPost)
	api.HandleFunc("/{target}", s.handleInit).Methods(http.MethodGet)
	api.HandleFunc("/{target}/history/{chatID}", s.handleHistory).Methods(http.MethodGet)

	var h http.Handler = r
	if cfg.Compress {
		h = handlers.CompressHandler(h)
	}
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h)
	if cfg.AccessLog != nil {
		h = handlers.CombinedLoggingHandler(cfg.AccessLog, h)
	}
	s.handler = h
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Enqueue appends scripted turns. Without a script the server echoes.
func (s *Server) Enqueue(turns ...Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, turns...)
}

// SetHistory stores the replay stream for chatID.
func (s *Server) SetHistory(chatID string, lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[chatID] = append([]string(nil), lines...)
}

// Requests returns every request recorded so far.
func (s *Server) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Recorded(nil), s.requests...)
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	if !s.cfg.RequireAPIKey {
		return true
	}
	if security.ValidAPIKey(r.Header.Get(ragapi.HeaderAPIKey), s.now()) {
		return true
	}
	http.Error(w, "invalid api key", http.StatusUnauthorized)
	return false
}

func (s *Server) record(r *http.Request, body ragapi.ChatBody) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Recorded{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body ragapi.ChatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.record(r, body)
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	s.record(r, body)
	if !s.authorize(w, r) {
		return
	}
	if (body.AssistantID == "") == (body.ApplicationID == "") {
		http.Error(w, "exactly one of assistantId or applicationId is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	chatID := body.ChatID
	if known := s.tokens[chatID]; chatID != "" && known != "" && r.Header.Get(ragapi.HeaderChatToken) != known {
		s.mu.Unlock()
		http.Error(w, "chat token does not match chat", http.StatusForbidden)
		return
	}

	var turn Turn
	scripted := len(s.script) > 0
	if scripted {
		turn = s.script[0]
		s.script = s.script[1:]
	}
	if turn.ChatID != "" {
		chatID = turn.ChatID
	} else if chatID == "" {
		chatID = uuid.NewString()
	}
	if turn.ChatToken != "" {
		s.tokens[chatID] = turn.ChatToken
	} else if s.tokens[chatID] == "" {
		s.tokens[chatID] = uuid.NewString()
	}
	token := s.tokens[chatID]
	s.mu.Unlock()

	if !scripted {
		turn = s.echoTurn(chatID, body.Message)
	}
	if turn.ChatID == "" {
		turn.ChatID = chatID
	}
	if turn.ChatToken == "" {
		turn.ChatToken = token
	}
	s.writeTurn(w, r, turn)
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	s.record(r, ragapi.ChatBody{})
	if !s.authorize(w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.cfg.Init)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.record(r, ragapi.ChatBody{})
	if !s.authorize(w, r) {
		return
	}
	chatID := mux.Vars(r)["chatID"]

	s.mu.Lock()
	lines, ok := s.histories[chatID]
	token := s.tokens[chatID]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "unknown chat", http.StatusNotFound)
		return
	}
	if token != "" && r.Header.Get(ragapi.HeaderChatToken) != token {
		http.Error(w, "chat token does not match chat", http.StatusForbidden)
		return
	}
	s.writeTurn(w, r, Turn{Lines: lines, OmitSession: true})
}

// echoTurn answers with the user's own words, a citation, a follow-up
// question and the completion sentinel. The exchange is kept for replay.
func (s *Server) echoTurn(chatID, message string) Turn {
	answerID := uuid.NewString()
	var lines []string
	for _, word := range strings.SplitAfter("You said: "+message, " ") {
		lines = append(lines, Event("ChatCompletion", answerID, word))
	}
	link, _ := json.Marshal(map[string]string{"title": "Echo source", "url": "https://example.invalid/echo"})
	lines = append(lines,
		Event("Citations", answerID, string(link)),
		Event("QuestionSuggestion", answerID, "Can you say that again?"),
		Event("StatusUpdate", answerID, s.cfg.Sentinel),
	)

	s.mu.Lock()
	history := s.histories[chatID]
	history = append(history, Event("UserInput", uuid.NewString(), message))
	history = append(history, Event("ChatCompletion", answerID, "You said: "+message))
	s.histories[chatID] = history
	s.mu.Unlock()

	return Turn{Lines: lines, ChunkSize: 16}
}

func (s *Server) writeTurn(w http.ResponseWriter, r *http.Request, turn Turn) {
	if !turn.OmitSession {
		if turn.ChatID != "" {
			w.Header().Set(ragapi.HeaderChatID, turn.ChatID)
		}
		if turn.ChatToken != "" {
			w.Header().Set(ragapi.HeaderChatToken, turn.ChatToken)
		}
	}
	status := turn.Status
	if status == 0 {
		status = http.StatusOK
	}
	if turn.NoBody || status >= 300 {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(status)

	payload := strings.Join(turn.Lines, "\n")
	if !turn.NoTrailingNewline && payload != "" {
		payload += "\n"
	}
	flusher, _ := w.(http.Flusher)
	for _, chunk := range split(payload, turn.ChunkSize) {
		if _, err := io.WriteString(w, chunk); err != nil {
			s.cfg.Logger.Debug("client went away", zap.Error(err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if turn.Delay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(turn.Delay):
			}
		}
	}
}

func split(payload string, size int) []string {
	if size <= 0 || len(payload) <= size {
		if payload == "" {
			return nil
		}
		return []string{payload}
	}
	var out []string
	for len(payload) > size {
		out = append(out, payload[:size])
		payload = payload[size:]
	}
	if payload != "" {
		out = append(out, payload)
	}
	return out
}

// Event encodes one NDJSON record.
func Event(kind, id, content string) string {
	rec := map[string]string{"type": kind, "content": content}
	if id != "" {
		rec["id"] = id
	}
	data, err := json.Marshal(rec)
	if err != nil {
		panic(fmt.Sprintf("encode event: %v", err))
	}
	return string(data)
}

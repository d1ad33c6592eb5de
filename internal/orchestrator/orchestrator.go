// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator runs one chat request at a time through the pipeline:
// send, observe session headers, frame, decode, project.
//
// Every request is an explicit Request value that callers can inspect or
// cancel. A second request while one is active is rejected with ErrBusy.
// Requests are never retried.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/projector"
	"github.com/jeranaias/ragchat/internal/ragapi"
	"github.com/jeranaias/ragchat/internal/session"
	"github.com/jeranaias/ragchat/internal/stream"
)

var (
	// ErrBusy is returned when a request is already active.
	ErrBusy = errors.New("a request is already in progress")

	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoStream is returned when the backend answered without a body.
	ErrNoStream = errors.New("backend returned no response stream")

	// ErrNoChat is returned by Replay when no chat id is known.
	ErrNoChat = errors.New("no chat to replay")
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// InputGate is the user-input affordance disabled while a request runs.
type InputGate interface {
	Disable()
	Enable()
}

type nopGate struct{}

func (nopGate) Disable() {}
func (nopGate) Enable()  {}

// Backend is the subset of the chat client the orchestrator needs.
type Backend interface {
	Send(ctx context.Context, req ragapi.SendRequest, creds ragapi.Credentials) (*ragapi.StreamResponse, error)
	History(ctx context.Context, chatID string, creds ragapi.Credentials) (*ragapi.StreamResponse, error)
}

// Recorder archives the transcript after a finished stream.
type Recorder interface {
	Record(ctx context.Context, chatID string, t *model.Transcript) error
}

// =============================================================================
// REQUEST
// =============================================================================

// RequestKind distinguishes live sends from history replays.
type RequestKind int

const (
	KindSend RequestKind = iota
	KindReplay
)

// String returns the kind name.
func (k RequestKind) String() string {
	if k == KindReplay {
		return "replay"
	}
	return "send"
}

// Request is one in-flight call.
type Request struct {
	id      string
	kind    RequestKind
	text    string
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// ID returns the local correlation id shared by the turn's messages.
func (r *Request) ID() string { return r.id }

// Kind returns whether this is a send or a replay.
func (r *Request) Kind() RequestKind { return r.kind }

// Text returns the user's message (empty for replays).
func (r *Request) Text() string { return r.text }

// StartedAt returns when the request began.
func (r *Request) StartedAt() time.Time { return r.started }

// Cancel abandons the request. Chunks not yet read are never read.
func (r *Request) Cancel() { r.cancel() }

// Done is closed when the request has fully finished.
func (r *Request) Done() <-chan struct{} { return r.done }

// SendOptions are optional fields of a user turn.
type SendOptions struct {
	SourceFilter []string
	UserValues   map[string]ragapi.UserValue
}

// Result describes a finished request.
type Result struct {
	RequestID string
	ChatID    string
	Summary   projector.Summary
	Duration  time.Duration
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Config configures an Orchestrator.
type Config struct {
	Gate      InputGate
	Recorder  Recorder
	ChunkSize int
	Logger    *zap.Logger

	// NewID generates request ids (default: uuid.NewString)
	NewID func() string
}

// Orchestrator wires the backend, session manager and projector together.
type Orchestrator struct {
	backend   Backend
	sessions  *session.Manager
	projector *projector.Projector

	gate      InputGate
	recorder  Recorder
	chunkSize int
	logger    *zap.Logger
	newID     func() string

	mu     sync.Mutex
	active *Request
}

// New creates an Orchestrator.
func New(backend Backend, sessions *session.Manager, proj *projector.Projector, cfg Config) *Orchestrator {
	if cfg.Gate == nil {
		cfg.Gate = nopGate{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = stream.DefaultChunkSize
	}
	return &Orchestrator{
		backend:   backend,
		sessions:  sessions,
		projector: proj,
		gate:      cfg.Gate,
		recorder:  cfg.Recorder,
		chunkSize: cfg.ChunkSize,
		logger:    cfg.Logger,
		newID:     cfg.NewID,
	}
}

// SetGate replaces the input gate. Used by UIs that are built after the
// orchestrator.
func (o *Orchestrator) SetGate(g InputGate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if g == nil {
		g = nopGate{}
	}
	o.gate = g
}

// Transcript returns the transcript being projected into.
func (o *Orchestrator) Transcript() *model.Transcript {
	return o.projector.Transcript()
}

// Sessions returns the session manager.
func (o *Orchestrator) Sessions() *session.Manager {
	return o.sessions
}

// Active returns the in-flight request, or nil.
func (o *Orchestrator) Active() *Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Busy reports whether a request is in flight.
func (o *Orchestrator) Busy() bool {
	return o.Active() != nil
}

func (o *Orchestrator) begin(ctx context.Context, kind RequestKind, text string) (*Request, context.Context, InputGate, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != nil {
		return nil, nil, nil, ErrBusy
	}
	rctx, cancel := context.WithCancel(ctx)
	req := &Request{
		id:      o.newID(),
		kind:    kind,
		text:    text,
		started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	o.active = req
	return req, rctx, o.gate, nil
}

func (o *Orchestrator) finish(req *Request, gate InputGate) {
	req.cancel()
	o.mu.Lock()
	if o.active == req {
		o.active = nil
	}
	o.mu.Unlock()
	gate.Enable()
	close(req.done)
}

// Send runs one user turn to completion. The transcript receives the user's
// message immediately; failures become exactly one status entry. The returned
// error is informational: the transcript already reflects it.
func (o *Orchestrator) Send(ctx context.Context, text string, opts SendOptions) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyMessage
	}

	req, rctx, gate, err := o.begin(ctx, KindSend, text)
	if err != nil {
		return Result{}, err
	}
	defer o.finish(req, gate)
	gate.Disable()

	o.projector.BeginTurn(text, req.id)

	creds := o.sessions.Credentials()
	resp, err := o.backend.Send(rctx, ragapi.SendRequest{
		Message:      text,
		SourceFilter: opts.SourceFilter,
		UserValues:   opts.UserValues,
		ChatID:       creds.ChatID,
	}, ragapi.Credentials{ChatToken: creds.ChatToken})

	return o.run(rctx, req, resp, err)
}

// Replay rebuilds the transcript from the backend's stored history of the
// current chat. The transcript is only cleared once the history stream is
// open; a failed fetch adds its status below the existing entries.
func (o *Orchestrator) Replay(ctx context.Context) (Result, error) {
	creds := o.sessions.Credentials()
	if creds.ChatID == "" {
		return Result{}, ErrNoChat
	}

	req, rctx, gate, err := o.begin(ctx, KindReplay, "")
	if err != nil {
		return Result{}, err
	}
	defer o.finish(req, gate)
	gate.Disable()

	o.projector.BeginReplay(req.id)

	resp, err := o.backend.History(rctx, creds.ChatID, ragapi.Credentials{ChatToken: creds.ChatToken})
	if err == nil && resp.HasStream() {
		o.projector.Reset()
		o.projector.BeginReplay(req.id)
	}
	return o.run(rctx, req, resp, err)
}

// run handles the response of a send or replay.
func (o *Orchestrator) run(ctx context.Context, req *Request, resp *ragapi.StreamResponse, sendErr error) (Result, error) {
	log := o.logger.With(zap.String("request_id", req.id), zap.Stringer("kind", req.kind))
	res := Result{RequestID: req.id}

	if sendErr != nil {
		log.Warn("request failed", zap.Error(sendErr))
		o.projector.Abort(failureStatus(sendErr))
		res.Duration = time.Since(req.started)
		return res, errors.Wrap(sendErr, req.kind.String())
	}
	defer resp.Close()

	if _, err := o.sessions.Observe(ctx, session.Metadata{ChatID: resp.ChatID, ChatToken: resp.ChatToken}); err != nil {
		// The reply is still worth showing.
		log.Warn("persist session", zap.Error(err))
	}
	res.ChatID = o.sessions.ResolveChatID()

	if !resp.HasStream() {
		log.Warn("response had no body")
		o.projector.Abort(projector.StatusNoStream)
		res.Duration = time.Since(req.started)
		return res, ErrNoStream
	}

	reader := stream.NewReaderSize(resp.Body, o.chunkSize)
	readErr := reader.Events(ctx, log, o.projector.Apply)
	res.Summary = o.projector.Finish(readErr)
	res.Duration = time.Since(req.started)

	chunks, n := reader.Stats()
	log.Info("stream finished",
		zap.Int("events", res.Summary.Events),
		zap.Int("chunks", chunks),
		zap.Int64("bytes", n),
		zap.Duration("duration", res.Duration),
		zap.Bool("synthetic_status", res.Summary.Synthetic))

	if o.recorder != nil && res.ChatID != "" {
		if err := o.recorder.Record(context.WithoutCancel(ctx), res.ChatID, o.projector.Transcript()); err != nil {
			log.Warn("archive transcript", zap.Error(err))
		}
	}

	if readErr != nil {
		return res, errors.Wrap(readErr, "read stream")
	}
	return res, nil
}

// Reset abandons any active request and starts fresh: the transcript and the
// session are both cleared.
func (o *Orchestrator) Reset(ctx context.Context) error {
	if req := o.Active(); req != nil {
		req.Cancel()
		select {
		case <-req.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	o.projector.Reset()
	return o.sessions.Reset(ctx)
}

// failureStatus turns a request error into the user-facing status text.
func failureStatus(err error) string {
	switch {
	case ragapi.IsCancelled(err) || errors.Is(err, context.Canceled):
		return projector.StatusCancelled
	case ragapi.IsTimeout(err):
		return "Something went wrong - the assistant did not answer in time"
	}
	if code := ragapi.StatusCode(err); code != 0 {
		return fmt.Sprintf("Something went wrong - the assistant answered with status %d", code)
	}
	return "Something went wrong - could not reach the assistant"
}

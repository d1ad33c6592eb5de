// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ragchat/internal/fakeserver"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/projector"
	"github.com/jeranaias/ragchat/internal/ragapi"
	"github.com/jeranaias/ragchat/internal/security"
	"github.com/jeranaias/ragchat/internal/session"
)

type recordingGate struct {
	mu    sync.Mutex
	calls []string
}

func (g *recordingGate) Disable() { g.record("disable") }
func (g *recordingGate) Enable()  { g.record("enable") }

func (g *recordingGate) record(call string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
}

func (g *recordingGate) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

type recorder struct {
	mu      sync.Mutex
	chatIDs []string
	lens    []int
}

func (r *recorder) Record(_ context.Context, chatID string, t *model.Transcript) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chatIDs = append(r.chatIDs, chatID)
	r.lens = append(r.lens, t.Len())
	return nil
}

type fixture struct {
	srv      *fakeserver.Server
	orch     *Orchestrator
	sessions *session.Manager
	store    *session.MemoryStorage
	gate     *recordingGate
	rec      *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := fakeserver.New(fakeserver.Config{RequireAPIKey: true})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	client, err := ragapi.NewClient(&ragapi.ClientConfig{
		ChatAPI:           ts.URL + fakeserver.DefaultPrefix,
		Target:            ragapi.Target{AssistantID: "helper"},
		Keys:              security.KeySource{Now: time.Now},
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)

	addr, err := session.ParseAddress("ragchat://local/")
	require.NoError(t, err)
	store := session.NewMemoryStorage()
	sessions := session.NewManager(store, addr, session.DefaultConfig())

	gate := &recordingGate{}
	rec := &recorder{}
	proj := projector.New(model.NewTranscript(), projector.DefaultConfig())
	orch := New(client, sessions, proj, Config{Gate: gate, Recorder: rec, ChunkSize: 7})

	return &fixture{srv: srv, orch: orch, sessions: sessions, store: store, gate: gate, rec: rec}
}

func texts(msgs []model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

// =============================================================================
// SEND
// =============================================================================

func TestSend_EchoTurn(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.Send(context.Background(), "  Hi  ", SendOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RequestID)
	assert.NotEmpty(t, res.ChatID)
	assert.True(t, res.Summary.Produced)
	assert.False(t, res.Summary.Synthetic)

	msgs := f.orch.Transcript().Messages()
	assert.Equal(t, []string{"Hi", "You said: Hi", "Can you say that again?", "conversation complete"}, texts(msgs))
	assert.Equal(t, model.OriginUser, msgs[0].Origin)
	assert.True(t, msgs[2].IsSuggestion())
	require.NoError(t, f.orch.Transcript().CheckInvariant())

	assert.Equal(t, res.ChatID, f.sessions.ResolveChatID())
	assert.Equal(t, []string{"disable", "enable"}, f.gate.Calls())
	assert.Equal(t, []string{res.ChatID}, f.rec.chatIDs)
	assert.False(t, f.orch.Busy())
}

func TestSend_SecondTurnCarriesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.orch.Send(ctx, "one", SendOptions{})
	require.NoError(t, err)
	_, err = f.orch.Send(ctx, "two", SendOptions{SourceFilter: []string{"docs"}})
	require.NoError(t, err)

	reqs := f.srv.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].Body.ChatID)
	assert.Empty(t, reqs[0].Header.Get(ragapi.HeaderChatToken))
	assert.Equal(t, first.ChatID, reqs[1].Body.ChatID)
	assert.NotEmpty(t, reqs[1].Header.Get(ragapi.HeaderChatToken))
	assert.Equal(t, []string{"docs"}, reqs[1].Body.SourceFilter)

	// The first turn's suggestion is gone once the second turn starts.
	sugg := f.orch.Transcript().Suggestions()
	require.Len(t, sugg, 1)
	assert.Equal(t, "Can you say that again?", sugg[0].Text)
}

func TestSend_EmptyMessage(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Send(context.Background(), "   ", SendOptions{})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, f.orch.Transcript().Len())
	assert.Empty(t, f.srv.Requests())
}

func TestSend_BusyRejected(t *testing.T) {
	f := newFixture(t)
	f.srv.Enqueue(fakeserver.Turn{
		Lines:     []string{fakeserver.Event("ChatCompletion", "a", "slow answer")},
		ChunkSize: 2,
		Delay:     20 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.Send(context.Background(), "first", SendOptions{})
		done <- err
	}()
	require.Eventually(t, f.orch.Busy, time.Second, 5*time.Millisecond)

	_, err := f.orch.Send(context.Background(), "second", SendOptions{})
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, <-done)
	assert.Len(t, f.srv.Requests(), 1)
	assert.Equal(t, []string{"first", "slow answer"}, texts(f.orch.Transcript().Messages()))
}

func TestSend_StatusFailure(t *testing.T) {
	f := newFixture(t)
	f.srv.Enqueue(fakeserver.Turn{Status: http.StatusInternalServerError})

	_, err := f.orch.Send(context.Background(), "Hi", SendOptions{})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, ragapi.StatusCode(err))

	msgs := f.orch.Transcript().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hi", msgs[0].Text)
	assert.True(t, msgs[1].IsError)
	assert.Contains(t, msgs[1].Text, "500")
	assert.Empty(t, f.rec.chatIDs)
	assert.Equal(t, []string{"disable", "enable"}, f.gate.Calls())
}

func TestSend_NoBody(t *testing.T) {
	f := newFixture(t)
	f.srv.Enqueue(fakeserver.Turn{NoBody: true, ChatID: "abc", ChatToken: "tok"})

	_, err := f.orch.Send(context.Background(), "Hi", SendOptions{})
	assert.ErrorIs(t, err, ErrNoStream)

	last, ok := f.orch.Transcript().Last()
	require.True(t, ok)
	assert.Equal(t, projector.StatusNoStream, last.Text)
	// Headers are still honoured.
	assert.Equal(t, "abc", f.sessions.ResolveChatID())
}

func TestSend_EmptyStream(t *testing.T) {
	f := newFixture(t)
	f.srv.Enqueue(fakeserver.Turn{Lines: []string{fakeserver.Event("StatusUpdate", "", "thinking")}})

	res, err := f.orch.Send(context.Background(), "Hi", SendOptions{})
	require.NoError(t, err)
	assert.True(t, res.Summary.Synthetic)

	assert.Equal(t, []string{"Hi", projector.StatusNoResponse}, texts(f.orch.Transcript().Messages()))
}

func TestSend_MalformedLinesSkipped(t *testing.T) {
	f := newFixture(t)
	f.srv.Enqueue(fakeserver.Turn{
		Lines: []string{
			fakeserver.Event("ChatCompletion", "a", "Hel"),
			`{"type": broken`,
			fakeserver.Event("ChatCompletion", "a", "lo"),
		},
		NoTrailingNewline: true,
	})

	_, err := f.orch.Send(context.Background(), "Hi", SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", "Hello"}, texts(f.orch.Transcript().Messages()))
}

func TestSend_UnterminatedCompletionStatus(t *testing.T) {
	f := newFixture(t)
	f.srv.Enqueue(fakeserver.Turn{
		Lines:             []string{`{"type":"StatusUpdate","content":"conversation complete"}`},
		NoTrailingNewline: true,
	})

	res, err := f.orch.Send(context.Background(), "q", SendOptions{})
	require.NoError(t, err)
	assert.False(t, res.Summary.Synthetic)

	msgs := f.orch.Transcript().Messages()
	assert.Equal(t, []string{"q", "conversation complete"}, texts(msgs))
	assert.False(t, msgs[1].IsError)
}

func TestSend_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.srv.Enqueue(fakeserver.Turn{
		Lines:     []string{fakeserver.Event("ChatCompletion", "a", "a long and slow answer")},
		ChunkSize: 4,
		Delay:     50 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.Send(context.Background(), "Hi", SendOptions{})
		done <- err
	}()
	require.Eventually(t, f.orch.Busy, time.Second, 5*time.Millisecond)
	req := f.orch.Active()
	require.NotNil(t, req)
	assert.Equal(t, KindSend, req.Kind())
	assert.Equal(t, "Hi", req.Text())
	req.Cancel()

	err := <-done
	require.Error(t, err)
	<-req.Done()

	last, ok := f.orch.Transcript().Last()
	require.True(t, ok)
	assert.Equal(t, projector.StatusCancelled, last.Text)
	assert.Nil(t, f.orch.Active())
}

// =============================================================================
// REPLAY / RESET
// =============================================================================

func TestReplay_RebuildsTranscript(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Send(ctx, "Hi", SendOptions{})
	require.NoError(t, err)

	res, err := f.orch.Replay(ctx)
	require.NoError(t, err)
	assert.False(t, res.Summary.Synthetic)

	msgs := f.orch.Transcript().Messages()
	assert.Equal(t, []string{"Hi", "You said: Hi"}, texts(msgs))
	assert.Equal(t, model.OriginUser, msgs[0].Origin)
	assert.Equal(t, model.OriginAssistant, msgs[1].Origin)
	assert.False(t, msgs[1].Open)

	last := f.srv.Requests()[1]
	assert.Equal(t, http.MethodGet, last.Method)
	assert.Contains(t, last.Path, "/history/"+res.ChatID)
}

func TestReplay_FailureKeepsTranscript(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.srv.Enqueue(fakeserver.Turn{
		ChatID: "unknown-to-history",
		Lines:  []string{fakeserver.Event("ChatCompletion", "a", "Hello")},
	})

	_, err := f.orch.Send(ctx, "Hi", SendOptions{})
	require.NoError(t, err)

	_, err = f.orch.Replay(ctx)
	require.Error(t, err)
	assert.Equal(t, 404, ragapi.StatusCode(err))

	msgs := f.orch.Transcript().Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"Hi", "Hello"}, texts(msgs[:2]))
	assert.True(t, msgs[2].IsError)
	assert.Contains(t, msgs[2].Text, "404")
	assert.Nil(t, f.orch.Active())
}

func TestReplay_NoChat(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Replay(context.Background())
	assert.True(t, errors.Is(err, ErrNoChat))
	assert.Empty(t, f.srv.Requests())
}

func TestReset_ClearsTranscriptAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Send(ctx, "Hi", SendOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, f.sessions.ResolveChatID())

	require.NoError(t, f.orch.Reset(ctx))
	assert.Zero(t, f.orch.Transcript().Len())
	assert.Empty(t, f.sessions.ResolveChatID())
	assert.True(t, f.sessions.Credentials().IsZero())

	_, ok, err := f.store.Get(ctx, session.TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFailureStatus(t *testing.T) {
	assert.Equal(t, projector.StatusCancelled, failureStatus(context.Canceled))
	assert.Equal(t, projector.StatusCancelled, failureStatus(&ragapi.ClientError{Type: ragapi.ErrTypeCancelled}))
	assert.Contains(t, failureStatus(&ragapi.ClientError{Type: ragapi.ErrTypeStatus, StatusCode: 403}), "403")
	assert.Contains(t, failureStatus(&ragapi.ClientError{Type: ragapi.ErrTypeTimeout}), "in time")
	assert.Contains(t, failureStatus(errors.New("dial tcp: refused")), "could not reach")
}

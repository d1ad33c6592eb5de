// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ragapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/jeranaias/ragchat/internal/security"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// KeyProvider supplies the X-API-Key for each request.
type KeyProvider interface {
	Key() string
}

// ClientConfig holds configuration options for the backend client.
type ClientConfig struct {
	// ChatAPI is the chat endpoint, e.g. https://rag.example/api/chat
	ChatAPI string

	// Target is the assistant or application to talk to
	Target Target

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// StreamTimeout bounds the wait for response headers on streaming
	// requests (default: 60s). The body itself may take as long as it needs.
	StreamTimeout time.Duration

	// RequestsPerSecond limits outbound requests (default: 2, burst 4)
	RequestsPerSecond float64
	Burst             int

	// UserAgent is sent on every request
	UserAgent string

	// Keys overrides the API key source (default: security.KeySource{})
	Keys KeyProvider

	// HTTPClient overrides the transport, mainly for tests
	HTTPClient *http.Client

	Logger *zap.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:           30 * time.Second,
		StreamTimeout:     60 * time.Second,
		RequestsPerSecond: 2,
		Burst:             4,
		UserAgent:         "ragchat",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat backend. It is safe for concurrent use.
type Client struct {
	config     *ClientConfig
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	keys       KeyProvider
	logger     *zap.Logger
}

// NewClient validates config and creates a client.
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()

	// Fill in defaults for any zero values
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.StreamTimeout == 0 {
		config.StreamTimeout = defaults.StreamTimeout
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}

	if err := config.Target.Validate(); err != nil {
		return nil, err
	}
	u, err := url.Parse(config.ChatAPI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &ClientError{Type: ErrTypeConfig, Message: "invalid chat api url " + config.ChatAPI, Cause: err}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = config.StreamTimeout
		// No client-wide timeout: it would cut long streams short.
		httpClient = &http.Client{Transport: transport}
	}

	keys := config.Keys
	if keys == nil {
		keys = security.KeySource{}
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config:     config,
		endpoint:   strings.TrimRight(config.ChatAPI, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		keys:       keys,
		logger:     logger,
	}, nil
}

// Target returns the configured target.
func (c *Client) Target() Target {
	return c.config.Target
}

// =============================================================================
// SEND
// =============================================================================

// Send posts a user turn and returns the open event stream. A non-2xx status
// is an error; a 2xx response without a body returns a StreamResponse whose
// HasStream is false. The caller must Close the response.
func (c *Client) Send(ctx context.Context, req SendRequest, creds Credentials) (*StreamResponse, error) {
	body := ChatBody{
		Message:       norm.NFC.String(req.Message),
		SourceFilter:  req.SourceFilter,
		UserValues:    req.UserValues,
		ChatID:        req.ChatID,
		AssistantID:   c.config.Target.AssistantID,
		ApplicationID: c.config.Target.ApplicationID,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConfig, Message: "failed to marshal request", Cause: err}
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data), creds)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", ContentTypeJSON)

	c.logger.Debug("sending chat turn",
		zap.String("chat_id", req.ChatID),
		zap.Int("message_len", len(body.Message)),
		zap.Bool("has_token", creds.ChatToken != ""))

	return c.openStream(httpReq, "chat request failed")
}

// History fetches the stored event stream of chatID for replay.
func (c *Client) History(ctx context.Context, chatID string, creds Credentials) (*StreamResponse, error) {
	if chatID == "" {
		return nil, &ClientError{Type: ErrTypeConfig, Message: "history needs a chat id"}
	}
	u := c.endpoint + "/" + url.PathEscape(c.config.Target.ID()) + "/history/" + url.PathEscape(chatID)

	httpReq, err := c.newRequest(ctx, http.MethodGet, u, nil, creds)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/x-ndjson")

	c.logger.Debug("fetching chat history", zap.String("chat_id", chatID))
	return c.openStream(httpReq, "history request failed")
}

func (c *Client) openStream(req *http.Request, failMsg string) (*StreamResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(failMsg, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drainAndClose(resp.Body)
		return nil, &ClientError{Type: ErrTypeStatus, Message: failMsg, StatusCode: resp.StatusCode}
	}

	out := &StreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		ChatID:     resp.Header.Get(HeaderChatID),
		ChatToken:  resp.Header.Get(HeaderChatToken),
	}

	if resp.Body == nil || resp.Body == http.NoBody || resp.ContentLength == 0 {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return out, nil
	}

	// Peek so an empty chunked body is reported as "no stream" rather than
	// as a stream that produced nothing.
	br := bufio.NewReader(resp.Body)
	if _, err := br.Peek(1); err != nil {
		resp.Body.Close()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		return nil, transportError(failMsg, err)
	}
	out.Body = readCloser{Reader: br, Closer: resp.Body}
	return out, nil
}

// =============================================================================
// INIT
// =============================================================================

// Init fetches the assistant description shown before the first turn.
func (c *Client) Init(ctx context.Context, creds Credentials) (*ChatInit, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	u := c.endpoint + "/" + url.PathEscape(c.config.Target.ID())
	req, err := c.newRequest(ctx, http.MethodGet, u, nil, creds)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError("init request failed", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{Type: ErrTypeStatus, Message: "init request failed", StatusCode: resp.StatusCode}
	}

	var init ChatInit
	if err := json.NewDecoder(resp.Body).Decode(&init); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode init response", Cause: err}
	}
	return &init, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Client) newRequest(ctx context.Context, method, u string, body io.Reader, creds Credentials) (*http.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, transportError("rate limiter", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConfig, Message: "failed to create request", Cause: err}
	}
	req.Header.Set(HeaderAPIKey, c.keys.Key())
	req.Header.Set("User-Agent", c.config.UserAgent)
	if creds.ChatToken != "" {
		req.Header.Set(HeaderChatToken, creds.ChatToken)
	}
	return req, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// drainAndClose lets the transport reuse the connection.
func drainAndClose(r io.ReadCloser) {
	if r == nil {
		return
	}
	io.Copy(io.Discard, io.LimitReader(r, 64<<10))
	r.Close()
}

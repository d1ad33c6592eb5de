// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jeranaias/ragchat/internal/orchestrator"
	"github.com/jeranaias/ragchat/internal/ragapi"
	"github.com/jeranaias/ragchat/internal/ui/styles"
)

// InitLoader fetches the assistant description shown before the first turn.
type InitLoader interface {
	Init(ctx context.Context, creds ragapi.Credentials) (*ragapi.ChatInit, error)
}

// Options configures the chat view.
type Options struct {
	Theme  *styles.Theme
	Loader InitLoader
	Logger *zap.Logger

	// Title is shown in the header until the assistant's name is known.
	Title string

	SendOptions   orchestrator.SendOptions
	Markdown      bool
	ShowCitations bool

	// ReplayOnStart rebuilds the transcript from history when a chat id is
	// already known.
	ReplayOnStart bool
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	ctx    context.Context
	orch   *orchestrator.Orchestrator
	bridge *Bridge
	loader InitLoader
	logger *zap.Logger

	theme    *styles.Theme
	keys     KeyMap
	renderer *transcriptRenderer
	markdown bool

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	title         string
	init          *ragapi.ChatInit
	sendOpts      orchestrator.SendOptions
	replayOnStart bool

	inputEnabled bool
	pending      bool // A command was issued and has not reported back
	notice       string
	showHelp     bool

	width  int
	height int
	ready  bool
}

// New creates the chat view. It subscribes to the orchestrator's transcript
// and installs its Bridge as the orchestrator's input gate; call
// Bridge().Attach once the program exists.
func New(ctx context.Context, orch *orchestrator.Orchestrator, opts Options) Model {
	if opts.Theme == nil {
		opts.Theme = styles.NewTheme()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Title == "" {
		opts.Title = "ragchat"
	}

	bridge := NewBridge()
	bridge.Watch(orch.Transcript())
	orch.SetGate(bridge)

	ti := textinput.New()
	ti.Placeholder = "Ask a question, or /1 to pick a suggestion..."
	ti.Prompt = "> "
	ti.PromptStyle = opts.Theme.InputPrompt
	ti.PlaceholderStyle = opts.Theme.InputPlaceholder
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = opts.Theme.Spinner

	m := Model{
		ctx:    ctx,
		orch:   orch,
		bridge: bridge,
		loader: opts.Loader,
		logger: opts.Logger,

		theme:    opts.Theme,
		keys:     DefaultKeyMap(),
		markdown: opts.Markdown,
		renderer: &transcriptRenderer{
			theme:         opts.Theme,
			width:         80,
			showCitations: opts.ShowCitations,
		},

		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,

		title:         opts.Title,
		sendOpts:      opts.SendOptions,
		replayOnStart: opts.ReplayOnStart,
		inputEnabled:  true,
	}
	if m.markdown {
		m.renderer.markdown = newMarkdownRenderer(m.theme.GlamourStyle(), 76)
	}
	return m
}

// Bridge returns the bridge that feeds this view.
func (m Model) Bridge() *Bridge {
	return m.bridge
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.loader != nil {
		cmds = append(cmds, m.loadInitCmd())
	}
	if m.replayOnStart && m.orch.Sessions().ResolveChatID() != "" {
		cmds = append(cmds, m.replayCmd())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TranscriptChangedMsg:
		m.refresh()
		return m, nil

	case InputGateMsg:
		m.syncGate()
		return m, nil

	case SendDoneMsg:
		m.pending = false
		m.notice = ""
		m.reportErr("send", msg.Err)
		m.syncGate()
		m.refresh()
		return m, nil

	case ReplayDoneMsg:
		m.pending = false
		if errors.Is(msg.Err, orchestrator.ErrNoChat) {
			m.notice = "No conversation to replay yet."
		} else {
			m.reportErr("replay", msg.Err)
		}
		m.syncGate()
		m.refresh()
		return m, nil

	case ResetDoneMsg:
		m.pending = false
		if msg.Err != nil {
			m.notice = "Reset failed: " + msg.Err.Error()
		} else {
			m.notice = "Started a new conversation."
		}
		m.syncGate()
		m.refresh()
		return m, nil

	case InitLoadedMsg:
		if msg.Err != nil {
			m.logger.Warn("could not load assistant description", zap.Error(msg.Err))
			return m, nil
		}
		m.init = msg.Init
		if m.init != nil && m.init.Name != "" {
			m.title = m.init.Name
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(m.width, m.height)

	// Layout: header + viewport + input area + status bar
	const (
		headerHeight    = 2
		inputAreaHeight = 3
		statusBarHeight = 2
	)
	vh := m.height - headerHeight - inputAreaHeight - statusBarHeight
	if vh < 1 {
		vh = 1
	}
	vw := m.width
	if vw < 1 {
		vw = 1
	}
	m.viewport.Width = vw
	m.viewport.Height = vh

	const promptLen = 2 // "> "
	iw := m.width - 4 - promptLen
	if iw < 10 {
		iw = 10
	}
	m.input.Width = iw

	m.renderer.width = vw
	if m.markdown {
		m.renderer.markdown = newMarkdownRenderer(m.theme.GlamourStyle(), vw-4)
	}

	m.ready = true
	m.refresh()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if req := m.orch.Active(); req != nil {
			req.Cancel()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.showHelp {
			m.showHelp = false
			m.refresh()
			return m, nil
		}
		if req := m.orch.Active(); req != nil {
			req.Cancel()
			m.notice = "Cancelling..."
		}
		return m, nil

	case key.Matches(msg, m.keys.Reset):
		return m.startReset()

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.viewport.LineUp(1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.viewport.LineDown(1)
		return m, nil
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	case key.Matches(msg, m.keys.Home):
		m.viewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.End):
		m.viewport.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		if !m.acceptsInput() {
			return m, nil
		}
		value := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		return m.submit(value)
	}

	if !m.acceptsInput() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit handles a line typed by the user.
func (m Model) submit(value string) (tea.Model, tea.Cmd) {
	if value == "" {
		return m, nil
	}
	if !strings.HasPrefix(value, "/") {
		return m.startSend(value)
	}

	cmd := strings.ToLower(strings.Fields(value)[0])
	switch cmd {
	case "/replay":
		return m.startReplay()
	case "/reset", "/new":
		return m.startReset()
	case "/help":
		m.showHelp = !m.showHelp
		m.refresh()
		return m, nil
	case "/quit", "/exit":
		return m, tea.Quit
	}

	if n, err := strconv.Atoi(cmd[1:]); err == nil {
		text, ok := m.suggestion(n)
		if !ok {
			m.notice = fmt.Sprintf("There is no suggestion %d.", n)
			return m, nil
		}
		return m.startSend(text)
	}

	m.notice = fmt.Sprintf("Unknown command %s. Try /help.", cmd)
	return m, nil
}

// suggestion returns the n-th (1-based) follow-up question on screen.
func (m Model) suggestion(n int) (string, bool) {
	var texts []string
	for _, s := range m.orch.Transcript().Suggestions() {
		texts = append(texts, s.Text)
	}
	if len(texts) == 0 && m.orch.Transcript().Len() == 0 && m.init != nil {
		texts = m.init.SuggestedQuestions
	}
	if n < 1 || n > len(texts) {
		return "", false
	}
	return texts[n-1], true
}

func (m Model) acceptsInput() bool {
	return m.inputEnabled && !m.pending
}

// syncGate mirrors the bridge's gate state onto the input line.
func (m *Model) syncGate() {
	m.inputEnabled = m.bridge.InputEnabled()
	if m.inputEnabled {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

// reportErr surfaces errors the transcript does not already show.
func (m *Model) reportErr(op string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, orchestrator.ErrBusy):
		m.notice = "Please wait for the current response to finish."
	case errors.Is(err, orchestrator.ErrEmptyMessage):
	default:
		m.logger.Debug("request finished with error", zap.String("op", op), zap.Error(err))
	}
}

// refresh redraws the viewport from the current transcript.
func (m *Model) refresh() {
	m.bridge.Consume()

	if m.showHelp {
		m.viewport.SetContent(m.renderHelp())
		m.viewport.GotoTop()
		return
	}

	t := m.orch.Transcript()
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderer.render(t.Messages(), t.Citations, m.init))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func (m Model) startSend(text string) (tea.Model, tea.Cmd) {
	m.pending = true
	m.notice = ""
	m.viewport.GotoBottom()
	return m, m.sendCmd(text)
}

func (m Model) startReplay() (tea.Model, tea.Cmd) {
	m.pending = true
	m.notice = "Loading conversation history..."
	return m, m.replayCmd()
}

func (m Model) startReset() (tea.Model, tea.Cmd) {
	m.pending = true
	m.notice = ""
	return m, m.resetCmd()
}

func (m Model) sendCmd(text string) tea.Cmd {
	ctx, orch, opts := m.ctx, m.orch, m.sendOpts
	return func() tea.Msg {
		res, err := orch.Send(ctx, text, opts)
		return SendDoneMsg{Result: res, Err: err}
	}
}

func (m Model) replayCmd() tea.Cmd {
	ctx, orch := m.ctx, m.orch
	return func() tea.Msg {
		res, err := orch.Replay(ctx)
		return ReplayDoneMsg{Result: res, Err: err}
	}
}

func (m Model) resetCmd() tea.Cmd {
	ctx, orch := m.ctx, m.orch
	return func() tea.Msg {
		return ResetDoneMsg{Err: orch.Reset(ctx)}
	}
}

func (m Model) loadInitCmd() tea.Cmd {
	ctx, loader, sessions := m.ctx, m.loader, m.orch.Sessions()
	return func() tea.Msg {
		creds := ragapi.Credentials{ChatToken: sessions.Credentials().ChatToken}
		desc, err := loader.Init(ctx, creds)
		return InitLoadedMsg{Init: desc, Err: err}
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/ragchat/internal/orchestrator"
	"github.com/jeranaias/ragchat/internal/util"
)

func newChatCmd(opts *globalOptions) *cobra.Command {
	var vars []string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive line-oriented chat",
		Long: `Interactive chat that prints answers as they stream.

Type a question and press Enter. Commands:
  /N        ask suggestion number N
  /replay   reprint the conversation from the server
  /reset    start a new conversation
  /quit     leave (or Ctrl+D)

Ctrl+C while an answer streams cancels it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), cmd.OutOrStdout(), opts, vars)
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "user value sent with every question, as name=value (repeatable)")
	return cmd
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineEditor provides input history and line editing for interactive chat.
type lineEditor struct {
	line        *liner.State
	historyFile string
}

func newLineEditor(historyFile string) *lineEditor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	e := &lineEditor{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	return e
}

// ReadInput reads a line with history navigation.
func (e *lineEditor) ReadInput(prompt string) (string, error) {
	input, err := e.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		e.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (e *lineEditor) Close() {
	defer e.line.Close()
	if e.historyFile == "" {
		return
	}
	var sb strings.Builder
	if _, err := e.line.WriteHistory(&sb); err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(e.historyFile), util.DefaultDirPerm); err != nil {
		return
	}
	_ = util.AtomicWriteFile(e.historyFile, []byte(sb.String()), 0o600)
}

// =============================================================================
// REPL
// =============================================================================

func runChat(ctx context.Context, w io.Writer, opts *globalOptions, vars []string) error {
	cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger, vars)
	if err != nil {
		return err
	}
	defer a.Close()

	printer := newTranscriptPrinter(w, a.transcript, cfg.UI.ShowCitations)
	printWelcome(ctx, w, a)

	editor := newLineEditor(cfg.UI.HistoryFile)
	defer editor.Close()

	for {
		input, err := editor.ReadInput("ragchat> ")
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or a closed stdin
			fmt.Fprintln(w)
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			text, quit := handleSlash(ctx, w, a, printer, input)
			if quit {
				return nil
			}
			if text == "" {
				continue
			}
			input = text
		}

		turnCtx, cancel := interruptible(ctx)
		_, err = a.orch.Send(turnCtx, input, a.sendOpts)
		cancel()
		printer.PrintCitations()
		if err != nil && !errors.Is(err, orchestrator.ErrEmptyMessage) {
			logger.Debug("turn failed", zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// handleSlash runs a REPL command. It returns text to send when the command
// selects a suggestion, and quit when the REPL should end.
func handleSlash(ctx context.Context, w io.Writer, a *app, printer *transcriptPrinter, input string) (text string, quit bool) {
	cmd := strings.ToLower(strings.Fields(input)[0])
	switch cmd {
	case "/quit", "/exit":
		return "", true
	case "/reset", "/new":
		if err := a.orch.Reset(ctx); err != nil {
			fmt.Fprintln(w, ErrorStyle.Render("Reset failed: ")+err.Error())
		} else {
			fmt.Fprintln(w, DimStyle.Render("Started a new conversation."))
		}
		return "", false
	case "/replay":
		printer.SetEchoUser(true)
		defer printer.SetEchoUser(false)
		if _, err := a.orch.Replay(ctx); errors.Is(err, orchestrator.ErrNoChat) {
			fmt.Fprintln(w, DimStyle.Render("No conversation to replay yet."))
		}
		printer.PrintCitations()
		return "", false
	case "/help":
		fmt.Fprintln(w, DimStyle.Render("/N ask suggestion N, /replay, /reset, /quit"))
		return "", false
	}

	if n, err := strconv.Atoi(cmd[1:]); err == nil {
		suggestions := a.transcript.Suggestions()
		if n < 1 || n > len(suggestions) {
			fmt.Fprintln(w, WarningStyle.Render(fmt.Sprintf("There is no suggestion %d.", n)))
			return "", false
		}
		text := suggestions[n-1].Text
		fmt.Fprintln(w, UserStyle.Render("You: ")+text)
		return text, false
	}

	fmt.Fprintln(w, WarningStyle.Render("Unknown command "+cmd+". Try /help."))
	return "", false
}

// printWelcome shows the assistant's name and greeting. Failures only cost
// the greeting.
func printWelcome(ctx context.Context, w io.Writer, a *app) {
	desc, err := a.client.Init(ctx, a.credentials())
	if err != nil {
		a.logger.Debug("assistant description unavailable", zap.Error(err))
		return
	}
	if desc.Name != "" {
		fmt.Fprintln(w, TitleStyle.Render(desc.Name))
	}
	if desc.WelcomeMessage != "" {
		fmt.Fprintln(w, desc.WelcomeMessage)
	}
	if id := a.sessions.ResolveChatID(); id != "" {
		fmt.Fprintln(w, DimStyle.Render("Continuing chat "+id+". Type /replay to see it, /reset to start over."))
	}
	fmt.Fprintln(w)
}

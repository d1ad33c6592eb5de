// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/logging"
	"github.com/jeranaias/ragchat/internal/ui/chat"
	"github.com/jeranaias/ragchat/internal/ui/styles"
)

func newTUICmd(opts *globalOptions) *cobra.Command {
	var vars []string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Full-screen chat (the default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), opts, vars)
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "user value sent with every question, as name=value (repeatable)")
	return cmd
}

func runTUI(ctx context.Context, opts *globalOptions, vars []string) error {
	if !IsTTY() || !IsStdoutTTY() {
		return errors.New("the full-screen chat needs a terminal; use 'ragchat chat' or 'ragchat ask' instead")
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	// The program owns the terminal, so logs go to a file.
	logFile, err := config.DefaultLogFile()
	if err != nil {
		return err
	}
	logger, err := logging.ToFile(cfg.Log, logFile)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger, vars)
	if err != nil {
		return err
	}
	defer a.Close()

	m := chat.New(ctx, a.orch, chat.Options{
		Theme:         styles.NewThemeFor(cfg.UI.Theme),
		Loader:        a.client,
		Logger:        logger.Named("tui"),
		Title:         a.client.Target().ID(),
		SendOptions:   a.sendOpts,
		Markdown:      cfg.UI.Markdown,
		ShowCitations: cfg.UI.ShowCitations,
		ReplayOnStart: true,
	})
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),       // Use alternate screen buffer
		tea.WithMouseCellMotion(), // Wheel scrolls the transcript
	)
	m.Bridge().Attach(p)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		<-runCtx.Done()
		p.Quit()
	}()

	logger.Info("tui started", zap.String("target", a.client.Target().ID()))
	if _, err := p.Run(); err != nil {
		return errors.Wrap(err, "run chat ui")
	}
	return nil
}

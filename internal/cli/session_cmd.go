// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/ragchat/internal/orchestrator"
)

func newReplayCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Print the current conversation as stored by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			printer := newTranscriptPrinter(cmd.OutOrStdout(), a.transcript, cfg.UI.ShowCitations)
			printer.SetEchoUser(true)

			ctx, cancel := interruptible(ctx)
			defer cancel()
			_, err = a.orch.Replay(ctx)
			printer.PrintCitations()
			if errors.Is(err, orchestrator.ErrNoChat) {
				return errors.New("no current chat; ask something first or pass --url with #chatId=")
			}
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			return nil
		},
	}
}

func newResetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the current conversation",
		Long:  "Clears the stored chat id and token so the next question starts a new chat.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.orch.Reset(ctx); err != nil {
				return errors.Wrap(err, "reset session")
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Conversation reset."))
			return nil
		},
	}
}

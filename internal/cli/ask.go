// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newAskCmd(opts *globalOptions) *cobra.Command {
	var vars []string
	cmd := &cobra.Command{
		Use:   "ask [QUESTION...]",
		Short: "Ask one question and stream the answer to stdout",
		Long: `Ask one question in the current conversation and print the answer as it
streams. Without arguments the question is read from stdin.

The exit status is 1 when no answer arrived.`,
		Example: `  ragchat ask "What is the refund policy?"
  echo "Summarize the handbook" | ragchat ask`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			if question == "" && !IsTTY() {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "read question from stdin")
				}
				question = string(data)
			}
			if strings.TrimSpace(question) == "" {
				return errors.New("no question given")
			}
			return runAsk(cmd.Context(), cmd.OutOrStdout(), opts, vars, question)
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "user value sent with the question, as name=value (repeatable)")
	return cmd
}

func runAsk(ctx context.Context, w io.Writer, opts *globalOptions, vars []string, question string) error {
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

	ctx, cancel := interruptible(ctx)
	defer cancel()

	res, err := a.orch.Send(ctx, question, a.sendOpts)
	printer.PrintCitations()
	if err != nil {
		// The failure is already printed as a status line.
		return &exitError{code: 1, err: err}
	}
	if !res.Summary.Produced && !res.Summary.Surfaced {
		return &exitError{code: 1, err: errors.New("no answer")}
	}
	return nil
}

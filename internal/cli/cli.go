// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath    string
	envFile       string
	chatAPI       string
	assistantID   string
	applicationID string
	address       string
	backend       string
	logLevel      string
}

// exitError ends the process with code without printing anything more;
// the command has already reported the failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	var vars []string

	root := &cobra.Command{
		Use:           "ragchat",
		Short:         "Chat with a retrieval-augmented assistant from the terminal",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadDotEnv(opts.envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), opts, vars)
		},
	}
	root.Flags().StringArrayVar(&vars, "var", nil, "user value sent with every question, as name=value (repeatable)")

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.ragchat/config.toml)")
	flags.StringVar(&opts.envFile, "env-file", "", "load environment variables from this file (default .env when present)")
	flags.StringVar(&opts.chatAPI, "api", "", "chat API endpoint, e.g. https://host/api/chat")
	flags.StringVar(&opts.assistantID, "assistant", "", "assistant id to talk to")
	flags.StringVar(&opts.applicationID, "application", "", "application id to talk to")
	flags.StringVar(&opts.address, "url", "", "session address; a #chatId= marker resumes that chat")
	flags.StringVar(&opts.backend, "session-backend", "", "session storage: memory, file, sqlite or redis")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newTUICmd(opts),
		newChatCmd(opts),
		newAskCmd(opts),
		newInfoCmd(opts),
		newReplayCmd(opts),
		newResetCmd(opts),
		newHistoryCmd(opts),
		newExportCmd(opts),
		newConfigCmd(opts),
		newMockServerCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:"), err)
	return 1
}

// loadDotEnv loads path, or .env in the working directory when path is
// empty. Variables already set in the environment win.
func loadDotEnv(path string) error {
	if path != "" {
		return errors.Wrapf(godotenv.Load(path), "load %s", path)
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return errors.Wrap(err, "load .env")
	}
	return nil
}

// interruptible returns a context cancelled by Ctrl+C.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/fakeserver"
	"github.com/jeranaias/ragchat/internal/logging"
)

func newMockServerCmd() *cobra.Command {
	var (
		addr       string
		cfg        fakeserver.Config
		accessLogs bool
	)
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run a local chat backend that echoes questions",
		Long: `Runs an in-memory chat backend speaking the same protocol as the real
service. Every question is answered with an echo, one source, one follow-up
suggestion and the completion status. Chats and their history are kept
until the server stops.`,
		Example: `  ragchat mock-server --addr 127.0.0.1:8080 &
  ragchat --api http://127.0.0.1:8080/api/chat --assistant demo ask hello`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(config.LogConfig{Level: "info", Format: "console"})
			if err != nil {
				return err
			}
			defer logger.Sync()
			cfg.Logger = logger.Named("mock")
			if accessLogs {
				cfg.AccessLog = os.Stdout
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return errors.Wrapf(err, "listen on %s", addr)
			}
			srv := &http.Server{
				Handler:           fakeserver.New(cfg),
				ReadHeaderTimeout: 10 * time.Second,
			}

			prefix := cfg.Prefix
			if prefix == "" {
				prefix = fakeserver.DefaultPrefix
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mock chat API listening on http://%s%s\n", ln.Addr(), prefix)

			ctx, cancel := interruptible(cmd.Context())
			defer cancel()
			go func() {
				<-ctx.Done()
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				srv.Shutdown(shutdownCtx)
			}()

			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "serve")
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	flags.StringVar(&cfg.Prefix, "prefix", fakeserver.DefaultPrefix, "path of the chat API")
	flags.BoolVar(&cfg.RequireAPIKey, "require-key", true, "reject requests without a valid X-API-Key")
	flags.BoolVar(&cfg.Compress, "gzip", false, "gzip responses")
	flags.StringVar(&cfg.Sentinel, "sentinel", "", "completion status text (default \"conversation complete\")")
	flags.BoolVar(&accessLogs, "access-log", true, "print an access log line per request")
	return cmd
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/ragchat/internal/ragapi"
)

// infoOutput is the JSON form of the info command.
type infoOutput struct {
	Assistant *ragapi.ChatInit `json:"assistant,omitempty"`
	Error     string           `json:"error,omitempty"`
	ChatAPI   string           `json:"chat_api"`
	Target    string           `json:"target"`
	ChatID    string           `json:"chat_id,omitempty"`
	HasToken  bool             `json:"has_token"`
	Address   string           `json:"address"`
	Storage   string           `json:"storage"`
}

func newInfoCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the assistant description and the current session",
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

			handle := a.sessions.Credentials()
			out := infoOutput{
				ChatAPI:  cfg.API.ChatAPI,
				Target:   a.client.Target().ID(),
				ChatID:   handle.ChatID,
				HasToken: handle.ChatToken != "",
				Address:  a.sessions.Address().String(),
				Storage:  cfg.Session.Backend,
			}
			desc, err := a.client.Init(ctx, a.credentials())
			if err != nil {
				out.Error = err.Error()
			} else {
				out.Assistant = desc
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return errors.Wrap(enc.Encode(out), "encode info")
			}
			printInfo(w, out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printInfo(w io.Writer, out infoOutput) {
	if a := out.Assistant; a != nil {
		fmt.Fprintln(w, TitleStyle.Render(a.Name))
		if a.WelcomeMessage != "" {
			fmt.Fprintln(w, a.WelcomeMessage)
		}
		fmt.Fprintln(w)
		for _, s := range a.Sources {
			fmt.Fprintln(w, RenderLabel("Source")+ValueStyle.Render(s.Name)+" "+DimStyle.Render("("+s.ID+")"))
		}
		for i, q := range a.SuggestedQuestions {
			fmt.Fprintln(w, RenderLabel(fmt.Sprintf("Question %d", i+1))+ValueStyle.Render(q))
		}
	} else {
		fmt.Fprintln(w, WarningStyle.Render("Assistant unavailable: "+out.Error))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, RenderLabel("Chat API")+ValueStyle.Render(out.ChatAPI))
	fmt.Fprintln(w, RenderLabel("Target")+ValueStyle.Render(out.Target))
	chat := out.ChatID
	if chat == "" {
		chat = "(none)"
	}
	fmt.Fprintln(w, RenderLabel("Chat")+ValueStyle.Render(chat))
	token := "no"
	if out.HasToken {
		token = "yes"
	}
	fmt.Fprintln(w, RenderLabel("Token")+ValueStyle.Render(token))
	fmt.Fprintln(w, RenderLabel("Address")+ValueStyle.Render(out.Address))
	fmt.Fprintln(w, RenderLabel("Storage")+ValueStyle.Render(out.Storage))
}

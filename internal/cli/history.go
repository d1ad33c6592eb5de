// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/storage"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse chats saved on this machine",
		Long: `Chats are saved locally after every answer. REF is a chat id or the
number shown by 'history list' (1 is the most recent).`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved chats, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openArchive(opts)
			if err != nil {
				return err
			}
			metas, err := store.List()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), storage.FormatList(metas))
			if len(metas) == 0 {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "search QUERY",
		Short: "Find saved chats containing QUERY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openArchive(opts)
			if err != nil {
				return err
			}
			metas, err := store.Search(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), storage.FormatList(metas))
			if len(metas) == 0 {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show REF",
		Short: "Print a saved chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openArchive(opts)
			if err != nil {
				return err
			}
			st, err := store.Resolve(args[0])
			if err != nil {
				return err
			}
			printStored(cmd.OutOrStdout(), st)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete REF",
		Short: "Delete a saved chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openArchive(opts)
			if err != nil {
				return err
			}
			st, err := store.Resolve(args[0])
			if err != nil {
				return err
			}
			if err := store.Delete(st.ChatID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Deleted chat "+st.ChatID))
			return nil
		},
	})

	return cmd
}

// printStored writes a saved chat in the same layout the REPL uses.
func printStored(w io.Writer, st *storage.StoredTranscript) {
	fmt.Fprintln(w, TitleStyle.Render(st.Title))
	fmt.Fprintln(w, DimStyle.Render(fmt.Sprintf("chat %s, updated %s", st.ChatID, st.UpdatedAt.Local().Format("2006-01-02 15:04"))))
	fmt.Fprintln(w)

	// Sources go under the last entry with their id.
	last := make(map[string]int, len(st.Messages))
	for i, m := range st.Messages {
		if m.ID != "" {
			last[m.ID] = i
		}
	}

	for i, m := range st.Messages {
		switch {
		case m.Origin == model.OriginUser:
			fmt.Fprintln(w, UserStyle.Render("You: ")+m.Text)
		case m.IsStatus():
			style := DimStyle
			if m.IsError {
				style = ErrorStyle
			}
			fmt.Fprintln(w, style.Render(m.Text))
		case m.Attachment != nil:
			fmt.Fprintf(w, "%s %s\n", DimStyle.Render("["+string(m.Attachment.Kind)+"]"), m.Attachment.URL)
		default:
			fmt.Fprintln(w, AssistantStyle.Render("Assistant: ")+m.Text)
		}

		if m.ID == "" || last[m.ID] != i {
			continue
		}
		for _, c := range st.Citations[m.ID] {
			title := c.Title
			if title == "" {
				title = c.URL
			}
			fmt.Fprintf(w, "  - %s %s\n", title, DimStyle.Render(c.URL))
		}
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ragchat/internal/export"
)

func newExportCmd(opts *globalOptions) *cobra.Command {
	exportOpts := export.DefaultOptions()
	var format string
	var noCitations bool

	cmd := &cobra.Command{
		Use:   "export [REF]",
		Short: "Write a saved chat as markdown, html or json",
		Long: `Write a saved chat to a file. REF is a chat id or the number shown by
'history list'; the most recent chat is used when it is omitted.`,
		Example: `  ragchat export --format html --open
  ragchat export 3 --format markdown --out ~/notes`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := "1"
			if len(args) == 1 {
				ref = args[0]
			}
			exportOpts.IncludeCitations = !noCitations

			exporter, err := export.NewExporter(format, exportOpts)
			if err != nil {
				return err
			}
			store, err := openArchive(opts)
			if err != nil {
				return err
			}
			st, err := store.Resolve(ref)
			if err != nil {
				return err
			}
			path, err := export.ExportToFile(st, exporter, exportOpts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Exported to ")+path)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&format, "format", "f", "markdown", "output format: "+strings.Join(export.Formats, ", "))
	flags.StringVarP(&exportOpts.OutputDir, "out", "o", exportOpts.OutputDir, "output directory")
	flags.BoolVar(&exportOpts.OpenAfterExport, "open", false, "open the file afterwards")
	flags.StringVar(&exportOpts.Theme, "theme", exportOpts.Theme, "html theme: light or dark")
	flags.BoolVar(&exportOpts.IncludeTimestamps, "timestamps", exportOpts.IncludeTimestamps, "include message times")
	flags.BoolVar(&noCitations, "no-citations", false, "leave out sources")
	return cmd
}

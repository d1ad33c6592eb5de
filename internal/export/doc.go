// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders archived transcripts as Markdown, HTML or JSON.
//
// # Formats
//
//   - Markdown: YAML front matter, one section per message, sources listed
//     under the answer they belong to
//   - HTML: standalone page; message text goes through goldmark and every
//     link carries target="_blank" rel="noopener noreferrer"
//   - JSON: the stored snapshot as is
//
// # Usage
//
//	exp, err := export.NewExporter("html", export.DefaultOptions())
//	path, err := export.ExportToFile(transcript, exp, nil)
package export

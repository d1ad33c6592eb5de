// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the ragchat TUI.
//
// Colors are Lip Gloss AdaptiveColors, so they follow the terminal's light or
// dark background. A Theme bundles the styles the chat view uses:
//
//	theme := styles.NewThemeFor(cfg.UI.Theme)
//	fmt.Println(theme.UserLabel.Render("You"))
package styles

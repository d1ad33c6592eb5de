// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads ragchat configuration.
//
// # Configuration Precedence
//
// Values are resolved in this order, later wins:
//   - Built-in defaults
//   - ~/.ragchat/config.toml (or the --config path)
//   - Environment variables (RAGCHAT_*, also read from a .env file)
//   - Command-line flags
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.ChatAPI)
package config

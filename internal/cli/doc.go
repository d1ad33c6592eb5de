// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the ragchat command line.
//
// Commands:
//
//	ragchat [tui]             full-screen chat (default)
//	ragchat chat              line-oriented chat with history
//	ragchat ask QUESTION      one question, streamed to stdout
//	ragchat info              assistant description and session state
//	ragchat replay            print the current chat from the server
//	ragchat reset             forget the current chat
//	ragchat history ...       list, show, search or delete saved chats
//	ragchat export [REF]      write a saved chat as markdown, html or json
//	ragchat config ...        show, locate or initialize the config file
//	ragchat mock-server       run a local backend for trying things out
//
// Configuration is layered: defaults, config file, .env, RAGCHAT_*
// environment variables, then flags.
package cli

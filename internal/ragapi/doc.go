// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ragapi provides the HTTP client for the retrieval-augmented chat
// backend.
//
// The client knows three calls:
//
//   - Send: POST a user message, returning the NDJSON event stream and the
//     X-Chat-Id / X-Chat-Token session headers
//   - Init: GET the assistant's name, welcome text, sources and starter
//     questions
//   - History: GET the stored event stream of an existing chat for replay
//
// Every request carries the rotating X-API-Key and, once known, the chat
// token. Reading the stream is left to package stream.
//
// Example:
//
//	client, err := ragapi.NewClient(&ragapi.ClientConfig{
//	    ChatAPI: "https://rag.example/api/chat",
//	    Target:  ragapi.Target{AssistantID: "lru-helper"},
//	})
//	resp, err := client.Send(ctx, ragapi.SendRequest{Message: "Hi"}, ragapi.Credentials{})
//	defer resp.Close()
package ragapi

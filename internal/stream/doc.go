// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream turns a chunked NDJSON response body into typed chat events.
//
// The package has three layers:
//
//   - Framer: buffers raw bytes and yields complete, trimmed lines no matter
//     where the network split the chunks.
//   - Decode: parses one line into an Event. Unknown types become
//     Unclassified; unparseable lines return a *MalformedEventError.
//   - Reader: pulls chunks from an io.Reader and exposes the lines as a lazy,
//     one-shot sequence.
//
// # Usage
//
//	r := stream.NewReader(resp.Body)
//	err := r.Events(ctx, logger, func(ev stream.Event) {
//	    projector.Apply(ev)
//	})
package stream

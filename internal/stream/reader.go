// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"io"

	"github.com/mattn/go-runewidth"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultChunkSize is the read buffer used when none is configured.
const DefaultChunkSize = 4096

// Reader yields the lines of a chunked response body one at a time.
// It is single-use: once Next returns io.EOF the sequence is exhausted.
type Reader struct {
	src     io.Reader
	framer  Framer
	chunk   []byte
	pending []string
	done    bool
	chunks  int
	bytes   int64
}

// NewReader creates a Reader with the default chunk size.
func NewReader(src io.Reader) *Reader {
	return NewReaderSize(src, DefaultChunkSize)
}

// NewReaderSize creates a Reader that reads at most size bytes per chunk.
func NewReaderSize(src io.Reader, size int) *Reader {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Reader{src: src, chunk: make([]byte, size)}
}

// Next returns the next complete line. It blocks on the underlying source and
// returns io.EOF after the final (possibly unterminated) line has been
// delivered. A read error is returned as is; lines already framed before the
// error are delivered first.
func (r *Reader) Next(ctx context.Context) (string, error) {
	for {
		if len(r.pending) > 0 {
			line := r.pending[0]
			r.pending = r.pending[1:]
			return line, nil
		}
		if r.done {
			return "", io.EOF
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.chunks++
			r.bytes += int64(n)
			r.pending = append(r.pending, r.framer.Push(r.chunk[:n])...)
		}
		if err == nil {
			continue
		}

		r.done = true
		if errors.Is(err, io.EOF) {
			// A record without a trailing newline is still a record.
			if rest, ok := r.framer.Flush(); ok {
				r.pending = append(r.pending, rest)
			}
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", errors.Wrap(err, "read stream")
	}
}

// Process calls fn for every line until the source is exhausted.
// Returns nil on a clean end of stream.
func (r *Reader) Process(ctx context.Context, fn func(line string)) error {
	for {
		line, err := r.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		fn(line)
	}
}

// Lines drains the source and returns every line read before it ended.
func (r *Reader) Lines(ctx context.Context) ([]string, error) {
	var lines []string
	err := r.Process(ctx, func(line string) {
		lines = append(lines, line)
	})
	return lines, err
}

// Events decodes every line and hands well-formed events to fn.
// Malformed lines are logged and skipped.
func (r *Reader) Events(ctx context.Context, logger *zap.Logger, fn func(Event)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	return r.Process(ctx, func(line string) {
		ev, err := Decode(line)
		if err != nil {
			logger.Warn("skipping malformed stream line",
				zap.Error(err),
				zap.String("line", preview(line)))
			return
		}
		fn(ev)
	})
}

// Stats returns the number of chunks and bytes read so far.
func (r *Reader) Stats() (chunks int, bytes int64) {
	return r.chunks, r.bytes
}

// preview shortens a line for logging without splitting a rune.
func preview(s string) string {
	return runewidth.Truncate(s, 200, "...")
}

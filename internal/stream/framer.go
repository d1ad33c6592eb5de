// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import "bytes"

// Framer accumulates stream chunks and splits them into lines.
//
// Lines are yielded with the trailing newline removed and surrounding
// whitespace trimmed. Blank lines carry no record and are dropped. A Framer
// is owned by a single stream read and is not safe for concurrent use.
type Framer struct {
	buf []byte
}

// Push appends a chunk and returns every line it completed, in order.
// The unterminated tail stays buffered until a later Push or Flush.
func (f *Framer) Push(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	f.buf = append(f.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimSpace(f.buf[:i]); len(line) > 0 {
			lines = append(lines, string(line))
		}
		f.buf = f.buf[i+1:]
	}

	// Compact so a long stream doesn't pin the whole history in memory.
	if len(f.buf) == 0 {
		f.buf = nil
	} else if cap(f.buf) > 4*len(f.buf)+4096 {
		f.buf = append([]byte(nil), f.buf...)
	}
	return lines
}

// Flush returns the buffered remainder at end of input. The second result is
// false when the remainder is empty after trimming. The buffer is cleared.
func (f *Framer) Flush() (string, bool) {
	rest := bytes.TrimSpace(f.buf)
	f.buf = nil
	if len(rest) == 0 {
		return "", false
	}
	return string(rest), true
}

// Buffered reports how many bytes are waiting for a newline.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

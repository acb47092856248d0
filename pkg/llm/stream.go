// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"strings"
	"unicode/utf8"
)

// send delivers chunk unless ctx is done first. Producers use it so an
// abandoned consumer never leaves the goroutine blocked.
func send(ctx context.Context, out chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// Collect drains a stream into a single response. It returns the first
// error chunk, or ctx's error if the stream was cut by cancellation.
func Collect(ctx context.Context, chunks <-chan StreamChunk) (*ChatResponse, error) {
	var b strings.Builder
	resp := &ChatResponse{}
	for chunk := range chunks {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		b.WriteString(chunk.Content)
		if chunk.Usage != nil {
			resp.Usage = *chunk.Usage
		}
		if chunk.Done {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp.Content = b.String()
	return resp, nil
}

// utf8Carry splits p into the longest prefix made of whole runes and the
// trailing bytes of an incomplete rune, which belong to the next read.
func utf8Carry(p []byte) (complete, rest []byte) {
	// A rune is at most 4 bytes, so only the tail needs checking.
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(p[i]) {
			continue
		}
		if utf8.FullRune(p[i:]) {
			return p, nil
		}
		return p[:i], p[i:]
	}
	return p, nil
}

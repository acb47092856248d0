// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunk splits extracted text into overlapping windows.
package chunk

import (
	"github.com/jllopis/noterag/pkg/errors"
	"github.com/jllopis/noterag/pkg/memory"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Separators are tried in order when choosing where a window ends.
var Separators = []string{"\n\n", "\n", " "}

// Span is a chunk as rune offsets into the source text, [Start, End).
type Span struct {
	Start int
	End   int
}

// Splitter cuts text into windows of at most Size runes; each window after
// the first starts Overlap runes before the previous one ended.
type Splitter struct {
	Size    int
	Overlap int
}

// New validates the window parameters.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, errors.Newf(errors.CodeInvalidInput, "chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, errors.Newf(errors.CodeInvalidInput, "chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Splitter{Size: size, Overlap: overlap}, nil
}

// Default returns a Splitter with DefaultSize and DefaultOverlap.
func Default() *Splitter {
	return &Splitter{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Split returns the chunks of text in order. Chunks are contiguous slices
// of text, so dropping each chunk's overlap with its predecessor and
// concatenating gives text back unchanged.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	spans := s.spans(runes)
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = string(runes[sp.Start:sp.End])
	}
	return out
}

// Spans returns the rune offsets of each chunk of text.
func (s *Splitter) Spans(text string) []Span {
	return s.spans([]rune(text))
}

// SplitDocument chunks text and pairs every chunk with meta.
func (s *Splitter) SplitDocument(text string, meta memory.Metadata) []memory.Passage {
	chunks := s.Split(text)
	out := make([]memory.Passage, len(chunks))
	for i, c := range chunks {
		out[i] = memory.Passage{Text: c, Metadata: meta}
	}
	return out
}

func (s *Splitter) spans(runes []rune) []Span {
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= s.Size {
		return []Span{{Start: 0, End: n}}
	}

	var out []Span
	start := 0
	for {
		end := start + s.Size
		if end >= n {
			out = append(out, Span{Start: start, End: n})
			return out
		}
		end = s.breakPoint(runes, start, end)
		out = append(out, Span{Start: start, End: end})
		start = end - s.Overlap
	}
}

// breakPoint picks where the window [start, limit) ends: just after the
// last occurrence of the highest-priority separator in the second half of
// the window. The window always reaches past the overlap so the next one
// starts further on.
func (s *Splitter) breakPoint(runes []rune, start, limit int) int {
	minEnd := start + max(s.Overlap+1, s.Size/2)
	for _, sep := range Separators {
		sepRunes := []rune(sep)
		for i := limit - len(sepRunes); i >= start; i-- {
			end := i + len(sepRunes)
			if end < minEnd {
				break
			}
			if matchAt(runes, i, sepRunes) {
				return end
			}
		}
	}
	return limit
}

func matchAt(runes []rune, i int, sep []rune) bool {
	if i+len(sep) > len(runes) {
		return false
	}
	for j, r := range sep {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}

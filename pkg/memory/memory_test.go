// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jllopis/noterag/pkg/errors"
)

// fakeEmbedder returns fixed vectors per text and counts calls.
type fakeEmbedder struct {
	vectors map[string][]float64
	dflt    []float64
	failOn  string
	calls   atomic.Int64

	mu       sync.Mutex
	inFlight int
	peak     int
	gate     chan struct{}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	f.calls.Add(1)

	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failOn != "" && text == f.failOn {
		return nil, errors.New(errors.CodeEmbeddingProvider, "embedding provider returned status 500", fmt.Errorf("text %q", text))
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	if f.dflt != nil {
		return f.dflt, nil
	}
	return []float64{1, 1, 1}, nil
}

func passages(texts ...string) []Passage {
	out := make([]Passage, len(texts))
	for i, t := range texts {
		out[i] = Passage{Text: t, Metadata: Metadata{DocumentID: fmt.Sprintf("doc-%d", i), Title: t}}
	}
	return out
}

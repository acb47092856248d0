// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package corpus

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/noterag/pkg/errors"
)

// SeedWatcher keeps a store in sync with a seed file. It polls the file's
// modification time and re-imports it when it moves forward. Documents
// without an id get one derived from the file path and their position, so
// a reload updates them in place instead of adding copies, and documents
// that did not change are not written again. Documents removed from the
// file are left in the store.
type SeedWatcher struct {
	store    Store
	path     string
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	lastMod time.Time
	loads   int

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a SeedWatcher.
type WatcherOption func(*SeedWatcher)

// WithWatchInterval sets the polling interval.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *SeedWatcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *SeedWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewSeedWatcher creates a watcher for the seed file at path.
func NewSeedWatcher(store Store, path string, opts ...WatcherOption) *SeedWatcher {
	w := &SeedWatcher{
		store:    store,
		path:     path,
		interval: time.Second,
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start imports the file once and then watches it until ctx is done or
// Stop is called. The first import's error is returned; later failures
// are logged and retried on the next change.
func (w *SeedWatcher) Start(ctx context.Context) error {
	info, err := os.Stat(w.path)
	if err != nil {
		close(w.doneCh)
		return errors.New(errors.CodeInvalidInput, "stat seed file", err).WithContext("path", w.path)
	}
	if err := w.load(ctx, info.ModTime()); err != nil {
		close(w.doneCh)
		return err
	}
	go w.watch(ctx)
	return nil
}

// Stop stops the watcher and waits for it to exit.
func (w *SeedWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

// Loads reports how many imports completed.
func (w *SeedWatcher) Loads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loads
}

func (w *SeedWatcher) watch(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if mod, changed := w.changed(); changed {
				if err := w.load(ctx, mod); err != nil {
					w.logger.Error("corpus.seed.reload.error",
						slog.String("path", w.path),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

func (w *SeedWatcher) changed() (time.Time, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		// The file may be mid-rewrite; try again next tick.
		return time.Time{}, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return info.ModTime(), info.ModTime().After(w.lastMod)
}

func (w *SeedWatcher) load(ctx context.Context, mod time.Time) error {
	w.mu.Lock()
	// Recorded first so a failing file is not retried every tick.
	w.lastMod = mod
	w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		return errors.New(errors.CodeInvalidInput, "open seed file", err).WithContext("path", w.path)
	}
	docs, err := ParseSeed(f)
	f.Close()
	if err != nil {
		return err
	}
	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(w.path+"#"+strconv.Itoa(i))).String()
		}
	}

	if _, err := Import(ctx, w.store, docs); err != nil {
		return err
	}

	w.mu.Lock()
	w.loads++
	w.mu.Unlock()
	w.logger.Info("corpus.seed.loaded",
		slog.String("path", w.path),
		slog.Int("documents", len(docs)),
	)
	return nil
}

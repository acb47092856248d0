// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package corpus stores the note documents that vector stores are built
// from and notifies subscribers whenever an owner's documents change.
package corpus

import (
	"context"
	"sync"
	"time"

	"github.com/jllopis/noterag/pkg/errors"
)

// Document is one note. Content holds the serialized block tree and is
// empty for documents that were never authored.
type Document struct {
	ID        string    `json:"id" yaml:"id"`
	OwnerID   string    `json:"ownerId" yaml:"owner"`
	Title     string    `json:"title" yaml:"title"`
	Content   string    `json:"content,omitempty" yaml:"content,omitempty"`
	ParentID  string    `json:"parentId,omitempty" yaml:"parent,omitempty"`
	Archived  bool      `json:"archived" yaml:"archived,omitempty"`
	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// Provider returns the documents a vector store is built from.
type Provider interface {
	// Documents returns the owner's non-archived documents in creation order.
	Documents(ctx context.Context, ownerID string) ([]Document, error)
}

// ChangeFunc is called with the owner whose documents changed.
type ChangeFunc func(ownerID string)

// Store is a mutable corpus.
type Store interface {
	Provider
	Get(ctx context.Context, id string) (Document, error)
	// Put creates or updates a document. An empty ID gets a new UUID. A
	// parent chain that leads back to the document is CodeInvalidInput.
	Put(ctx context.Context, doc Document) (Document, error)
	// Archive hides the document and all its descendants.
	Archive(ctx context.Context, id string) error
	// Restore brings an archived document and its descendants back. A
	// document whose parent is still archived is moved to the top level.
	Restore(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	// Subscribe registers fn to run after every successful mutation.
	Subscribe(fn ChangeFunc)
}

func parentCycleError(doc Document) error {
	return errors.New(errors.CodeInvalidInput, "document cannot descend from itself", nil).
		WithContext("id", doc.ID).
		WithContext("parent", doc.ParentID)
}

type notifier struct {
	mu  sync.RWMutex
	fns []ChangeFunc
}

func (n *notifier) Subscribe(fn ChangeFunc) {
	if fn == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fns = append(n.fns, fn)
}

func (n *notifier) notify(ownerID string) {
	n.mu.RLock()
	fns := append([]ChangeFunc(nil), n.fns...)
	n.mu.RUnlock()
	for _, fn := range fns {
		fn(ownerID)
	}
}

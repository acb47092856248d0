// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package corpus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/noterag/pkg/errors"
)

// InMemory is a map-backed Store.
type InMemory struct {
	notifier

	mu    sync.RWMutex
	docs  map[string]Document
	order []string
	now   func() time.Time
}

// NewInMemory creates an empty in-memory corpus.
func NewInMemory() *InMemory {
	return &InMemory{
		docs: make(map[string]Document),
		now:  time.Now,
	}
}

func (m *InMemory) Documents(_ context.Context, ownerID string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Document{}
	for _, id := range m.order {
		d := m.docs[id]
		if d.OwnerID == ownerID && !d.Archived {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *InMemory) Get(_ context.Context, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return Document{}, errors.New(errors.CodeNotFound, "document not found", nil).WithContext("id", id)
	}
	return d, nil
}

func (m *InMemory) Put(_ context.Context, doc Document) (Document, error) {
	if doc.OwnerID == "" {
		return Document{}, errors.New(errors.CodeInvalidInput, "document owner is required", nil)
	}
	m.mu.Lock()
	now := m.now().UTC()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if m.leadsTo(doc.ParentID, doc.ID) {
		m.mu.Unlock()
		return Document{}, parentCycleError(doc)
	}
	if prev, ok := m.docs[doc.ID]; ok {
		if prev.OwnerID != doc.OwnerID {
			m.mu.Unlock()
			return Document{}, errors.New(errors.CodeInvalidInput, "document belongs to another owner", nil).
				WithContext("id", doc.ID)
		}
		doc.CreatedAt = prev.CreatedAt
	} else {
		m.order = append(m.order, doc.ID)
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
	}
	doc.UpdatedAt = now
	m.docs[doc.ID] = doc
	m.mu.Unlock()

	m.notify(doc.OwnerID)
	return doc, nil
}

func (m *InMemory) Archive(_ context.Context, id string) error {
	return m.setArchived(id, true)
}

func (m *InMemory) Restore(_ context.Context, id string) error {
	return m.setArchived(id, false)
}

func (m *InMemory) setArchived(id string, archived bool) error {
	m.mu.Lock()
	root, ok := m.docs[id]
	if !ok {
		m.mu.Unlock()
		return errors.New(errors.CodeNotFound, "document not found", nil).WithContext("id", id)
	}
	now := m.now().UTC()
	for _, docID := range m.subtree(id) {
		d := m.docs[docID]
		d.Archived = archived
		d.UpdatedAt = now
		m.docs[docID] = d
	}
	if !archived && root.ParentID != "" {
		if parent, ok := m.docs[root.ParentID]; !ok || parent.Archived {
			root = m.docs[id]
			root.ParentID = ""
			m.docs[id] = root
		}
	}
	m.mu.Unlock()

	m.notify(root.OwnerID)
	return nil
}

// subtree returns id and all its descendants. Callers hold m.mu.
func (m *InMemory) subtree(id string) []string {
	out := []string{id}
	seen := map[string]bool{id: true}
	for i := 0; i < len(out); i++ {
		for _, docID := range m.order {
			if !seen[docID] && m.docs[docID].ParentID == out[i] {
				seen[docID] = true
				out = append(out, docID)
			}
		}
	}
	return out
}

// leadsTo reports whether the parent chain starting at parentID reaches
// id. Callers hold m.mu.
func (m *InMemory) leadsTo(parentID, id string) bool {
	seen := map[string]bool{}
	for cur := parentID; cur != "" && !seen[cur]; cur = m.docs[cur].ParentID {
		if cur == id {
			return true
		}
		seen[cur] = true
	}
	return false
}

func (m *InMemory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	d, ok := m.docs[id]
	if !ok {
		m.mu.Unlock()
		return errors.New(errors.CodeNotFound, "document not found", nil).WithContext("id", id)
	}
	delete(m.docs, id)
	for i, docID := range m.order {
		if docID == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.notify(d.OwnerID)
	return nil
}

var _ Store = (*InMemory)(nil)

// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package corpus

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/noterag/pkg/errors"

	_ "modernc.org/sqlite"
)

const documentTable = "documents"

// SQLite persists documents in a SQLite database.
type SQLite struct {
	notifier

	db  *sql.DB
	own bool
}

// OpenSQLite opens (or creates) the database at path and ensures schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.CodeCorpus, "open sqlite corpus", err).WithContext("path", path)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	s, err := NewSQLite(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.own = true
	return s, nil
}

// NewSQLite wraps an existing database handle and ensures schema.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if err := ensureSQLiteSchema(db); err != nil {
		return nil, errors.New(errors.CodeCorpus, "ensure corpus schema", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database when it was opened by OpenSQLite.
func (s *SQLite) Close() error {
	if !s.own {
		return nil
	}
	return s.db.Close()
}

func ensureSQLiteSchema(db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			parent_document TEXT NOT NULL DEFAULT '',
			is_archived INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`, documentTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user ON %s(user_id);`, documentTable, documentTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user_parent ON %s(user_id, parent_document);`, documentTable, documentTable),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const documentColumns = `id, user_id, title, content, parent_document, is_archived, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (Document, error) {
	var (
		d                Document
		archived         int
		created, updated int64
	)
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Title, &d.Content, &d.ParentID, &archived, &created, &updated); err != nil {
		return Document{}, err
	}
	d.Archived = archived != 0
	d.CreatedAt = time.UnixMilli(created).UTC()
	d.UpdatedAt = time.UnixMilli(updated).UTC()
	return d, nil
}

func (s *SQLite) Documents(ctx context.Context, ownerID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE user_id = ? AND is_archived = 0 ORDER BY created_at, rowid`,
		documentColumns, documentTable), ownerID)
	if err != nil {
		return nil, errors.New(errors.CodeCorpus, "query documents", err).WithContext("owner_id", ownerID)
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, errors.New(errors.CodeCorpus, "scan document", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeCorpus, "iterate documents", err)
	}
	return out, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, documentColumns, documentTable), id)
	d, err := scanDocument(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Document{}, errors.New(errors.CodeNotFound, "document not found", nil).WithContext("id", id)
	}
	if err != nil {
		return Document{}, errors.New(errors.CodeCorpus, "load document", err).WithContext("id", id)
	}
	return d, nil
}

func (s *SQLite) Put(ctx context.Context, doc Document) (Document, error) {
	if doc.OwnerID == "" {
		return Document{}, errors.New(errors.CodeInvalidInput, "document owner is required", nil)
	}
	now := time.Now().UTC()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	} else if prev, err := s.Get(ctx, doc.ID); err == nil {
		if prev.OwnerID != doc.OwnerID {
			return Document{}, errors.New(errors.CodeInvalidInput, "document belongs to another owner", nil).
				WithContext("id", doc.ID)
		}
		doc.CreatedAt = prev.CreatedAt
	} else if !errors.IsCode(err, errors.CodeNotFound) {
		return Document{}, err
	}
	if cycle, err := s.leadsTo(ctx, doc.ParentID, doc.ID); err != nil {
		return Document{}, err
	} else if cycle {
		return Document{}, parentCycleError(doc)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	archived := 0
	if doc.Archived {
		archived = 1
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			parent_document = excluded.parent_document,
			is_archived = excluded.is_archived,
			updated_at = excluded.updated_at`, documentTable, documentColumns),
		doc.ID, doc.OwnerID, doc.Title, doc.Content, doc.ParentID, archived,
		doc.CreatedAt.UnixMilli(), doc.UpdatedAt.UnixMilli())
	if err != nil {
		return Document{}, errors.New(errors.CodeCorpus, "store document", err).WithContext("id", doc.ID)
	}
	// Millisecond precision is what the table keeps.
	doc.CreatedAt = time.UnixMilli(doc.CreatedAt.UnixMilli()).UTC()
	doc.UpdatedAt = time.UnixMilli(doc.UpdatedAt.UnixMilli()).UTC()

	s.notify(doc.OwnerID)
	return doc, nil
}

// leadsTo reports whether the parent chain starting at parentID reaches id.
func (s *SQLite) leadsTo(ctx context.Context, parentID, id string) (bool, error) {
	if parentID == "" {
		return false, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`WITH RECURSIVE ancestors(id) AS (
			SELECT ?
			UNION
			SELECT d.parent_document FROM %[1]s d JOIN ancestors a ON d.id = a.id
			WHERE d.parent_document != ''
		)
		SELECT COUNT(*) FROM ancestors WHERE id = ?`, documentTable), parentID, id).Scan(&n)
	if err != nil {
		return false, errors.New(errors.CodeCorpus, "check parent chain", err).WithContext("id", id)
	}
	return n > 0, nil
}

func (s *SQLite) Archive(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, true)
}

func (s *SQLite) Restore(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, false)
}

func (s *SQLite) setArchived(ctx context.Context, id string, archived bool) error {
	root, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	flag := 0
	if archived {
		flag = 1
	}
	now := time.Now().UTC().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.CodeCorpus, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`WITH RECURSIVE subtree(id) AS (
			SELECT id FROM %[1]s WHERE id = ?
			UNION
			SELECT d.id FROM %[1]s d JOIN subtree ON d.parent_document = subtree.id
		)
		UPDATE %[1]s SET is_archived = ?, updated_at = ? WHERE id IN (SELECT id FROM subtree)`, documentTable),
		id, flag, now)
	if err != nil {
		return errors.New(errors.CodeCorpus, "update archive flag", err).WithContext("id", id)
	}

	if !archived && root.ParentID != "" {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %[1]s SET parent_document = ''
			WHERE id = ? AND NOT EXISTS (SELECT 1 FROM %[1]s p WHERE p.id = ? AND p.is_archived = 0)`, documentTable),
			id, root.ParentID)
		if err != nil {
			return errors.New(errors.CodeCorpus, "detach restored document", err).WithContext("id", id)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.New(errors.CodeCorpus, "commit transaction", err)
	}

	s.notify(root.OwnerID)
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	root, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, documentTable), id); err != nil {
		return errors.New(errors.CodeCorpus, "delete document", err).WithContext("id", id)
	}
	s.notify(root.OwnerID)
	return nil
}

var _ Store = (*SQLite)(nil)

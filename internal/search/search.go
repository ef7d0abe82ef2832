// Package search provides full-text search over record titles, tags,
// and bodies.
//
// The index is an in-memory SQLite FTS5 table rebuilt from the current
// record set on demand. Like the structural index it is derived state:
// the note namespace stays the single source of truth.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/arlowhite/gitadr/internal/record"
)

const schema = `
CREATE VIRTUAL TABLE records USING fts5(
	id UNINDEXED,
	title,
	tags,
	body
);
`

// Index is a rebuildable full-text index.
type Index struct {
	db *sql.DB
}

// New opens an empty in-memory index.
func New() (*Index, error) {
	db, err := sql.Open("sqlite3", "file::memory:")
	if err != nil {
		return nil, fmt.Errorf("opening search index: %w", err)
	}
	// One connection: an in-memory database exists per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating search schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the index.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Rebuild replaces the index contents with the given record set.
func (ix *Index) Rebuild(ctx context.Context, records []record.Record) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (id, title, tags, body) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Title, strings.Join(r.Tags, " "), r.Body); err != nil {
			return fmt.Errorf("indexing %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Hit is one search result, best matches first.
type Hit struct {
	ID      string
	Title   string
	Snippet string
}

// Search runs an FTS5 query and returns up to limit hits ordered by
// relevance. limit <= 0 means a default of 20.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := ix.db.QueryContext(ctx,
		`SELECT id, title, snippet(records, 3, '[', ']', '...', 12)
		 FROM records WHERE records MATCH ? ORDER BY rank LIMIT ?`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.Title, &h.Snippet); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

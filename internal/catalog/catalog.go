// Package catalog records ingested documents and the index entries they produced.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/shiori/internal/models"
)

// ErrNotFound is returned when no document matches a lookup.
var ErrNotFound = errors.New("document not found")

// Catalog is a SQLite-backed record of ingested documents.
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the catalog database at dbPath.
// Parent directories are created if they do not exist.
func Open(dbPath string) (*Catalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		path TEXT,
		content_hash TEXT,
		entries_digest TEXT,
		pages INTEGER NOT NULL DEFAULT 0,
		chunks INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(path);
	CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);

	CREATE TABLE IF NOT EXISTS document_entries (
		document_id TEXT NOT NULL,
		entry_id INTEGER NOT NULL,
		PRIMARY KEY (document_id, entry_id),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Record stores doc and its entry ids in one transaction. CreatedAt is set
// when zero.
func (c *Catalog) Record(ctx context.Context, doc *models.CatalogDocument) error {
	if doc.ID == "" {
		return errors.New("catalog document requires an id")
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, source, path, content_hash, entries_digest, pages, chunks, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Source, doc.Path, doc.ContentHash, doc.EntriesDigest, doc.Pages, doc.Chunks, doc.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert document %s: %w", doc.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_entries (document_id, entry_id) VALUES (?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range doc.EntryIDs {
		if _, err := stmt.ExecContext(ctx, doc.ID, int64(id)); err != nil {
			return fmt.Errorf("insert entry %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// Get returns a document by id with its entry ids.
func (c *Catalog) Get(ctx context.Context, id string) (*models.CatalogDocument, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, source, path, content_hash, entries_digest, pages, chunks, created_at
		 FROM documents WHERE id = ?`, id,
	)
	return c.scanOne(ctx, row, id)
}

// LatestByPath returns the most recently recorded document ingested from path.
func (c *Catalog) LatestByPath(ctx context.Context, path string) (*models.CatalogDocument, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, source, path, content_hash, entries_digest, pages, chunks, created_at
		 FROM documents WHERE path = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, path,
	)
	return c.scanOne(ctx, row, path)
}

func (c *Catalog) scanOne(ctx context.Context, row *sql.Row, key string) (*models.CatalogDocument, error) {
	var doc models.CatalogDocument
	var path, hash, digest sql.NullString
	err := row.Scan(&doc.ID, &doc.Source, &path, &hash, &digest, &doc.Pages, &doc.Chunks, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	doc.Path = path.String
	doc.ContentHash = hash.String
	doc.EntriesDigest = digest.String

	ids, err := c.entryIDs(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	doc.EntryIDs = ids
	return &doc, nil
}

func (c *Catalog) entryIDs(ctx context.Context, docID string) ([]uint64, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT entry_id FROM document_entries WHERE document_id = ? ORDER BY entry_id`, docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, uint64(id))
	}
	return ids, rows.Err()
}

// List returns documents newest first. Entry ids are not loaded.
func (c *Catalog) List(ctx context.Context, offset, limit int) ([]*models.CatalogDocument, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, source, path, content_hash, entries_digest, pages, chunks, created_at
		 FROM documents ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []*models.CatalogDocument{}
	for rows.Next() {
		var doc models.CatalogDocument
		var path, hash, digest sql.NullString
		if err := rows.Scan(&doc.ID, &doc.Source, &path, &hash, &digest, &doc.Pages, &doc.Chunks, &doc.CreatedAt); err != nil {
			return nil, err
		}
		doc.Path = path.String
		doc.ContentHash = hash.String
		doc.EntriesDigest = digest.String
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// Count returns the number of recorded documents and the total chunks they produced.
func (c *Catalog) Count(ctx context.Context) (docs int64, chunks int64, err error) {
	err = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(chunks), 0) FROM documents`,
	).Scan(&docs, &chunks)
	return docs, chunks, err
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

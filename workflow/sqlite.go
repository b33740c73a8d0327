// ABOUTME: SQLite-backed record store for orchestrators that must survive restarts.
// ABOUTME: Records are stored as JSON documents keyed by workflow id.
package workflow

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteStore persists whole records as JSON rows. It implements Store and is
// interchangeable with MemoryStore; record JSON is the only schema, so
// adding record fields needs no migration.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates the workflow database at path.
func OpenSqlite(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			record TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SqliteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// Create inserts a fresh record at the discovery stage.
func (s *SqliteStore) Create(goal, locator string) (*Record, error) {
	rec := NewRecord(goal, locator)
	if err := s.upsert(rec); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Get loads one record by id.
func (s *SqliteStore) Get(id string) (*Record, error) {
	var doc string
	err := s.db.QueryRow("SELECT record FROM workflows WHERE id = ?", id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query workflow: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", id, err)
	}
	return &rec, nil
}

// Replace overwrites the stored record. The id must already exist.
func (s *SqliteStore) Replace(id string, rec *Record) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	return s.upsert(rec)
}

// Delete removes the record by id.
func (s *SqliteStore) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM workflows WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear removes all records.
func (s *SqliteStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM workflows"); err != nil {
		return fmt.Errorf("clear workflows: %w", err)
	}
	return nil
}

// List returns all records ordered by creation time.
func (s *SqliteStore) List() ([]*Record, error) {
	rows, err := s.db.Query("SELECT record FROM workflows")
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*Record
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, fmt.Errorf("decode workflow: %w", err)
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	return recs, nil
}

func (s *SqliteStore) upsert(rec *Record) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode workflow %s: %w", rec.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO workflows (id, record, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			record = excluded.record`,
		rec.ID.String(),
		string(doc),
		rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	)
	if err != nil {
		return fmt.Errorf("upsert workflow %s: %w", rec.ID, err)
	}
	return nil
}

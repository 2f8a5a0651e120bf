package approval

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// OpenSQLiteStore opens or creates the database at path, creating parent
// directories as needed. Use ":memory:" for an in-memory database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create approval directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, path: path}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

// OpenReadOnly opens the database at path for reading only. Nothing is
// created: a missing database yields an empty store that approves nothing.
func OpenReadOnly(path string) (Store, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return NewMemoryStore(path), nil
	}

	db, err := sql.Open("sqlite", "file:"+filepath.ToSlash(path)+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS approvals (
		project TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		revision TEXT NOT NULL DEFAULT '',
		approved_at INTEGER NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (project, fingerprint)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the approval for project and fingerprint.
func (s *SQLiteStore) Get(ctx context.Context, project, fingerprint string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT project, fingerprint, revision, approved_at, note FROM approvals WHERE project = ? AND fingerprint = ?",
		project, fingerprint,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("query approval: %w", err)
	}
	return rec, true, nil
}

// Put inserts or replaces an approval.
func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ApprovedAt.IsZero() {
		rec.ApprovedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (project, fingerprint, revision, approved_at, note)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project, fingerprint) DO UPDATE SET
			revision = excluded.revision,
			approved_at = excluded.approved_at,
			note = excluded.note`,
		rec.Project, rec.Fingerprint, rec.Revision, rec.ApprovedAt.UnixNano(), rec.Note,
	)
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

// Delete removes every approval of project.
func (s *SQLiteStore) Delete(ctx context.Context, project string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM approvals WHERE project = ?", project)
	if err != nil {
		return 0, fmt.Errorf("delete approvals: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete approvals: %w", err)
	}
	return int(n), nil
}

// List returns every approval.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT project, fingerprint, revision, approved_at, note FROM approvals ORDER BY project, approved_at",
	)
	if err != nil {
		return nil, fmt.Errorf("query approvals: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Location returns the database path.
func (s *SQLiteStore) Location() string {
	if s.path == ":memory:" {
		return ""
	}
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec        Record
		approvedAt int64
	)
	if err := row.Scan(&rec.Project, &rec.Fingerprint, &rec.Revision, &approvedAt, &rec.Note); err != nil {
		return Record{}, err
	}
	rec.ApprovedAt = time.Unix(0, approvedAt)
	return rec, nil
}

// Package store persists download history in a local sqlite database.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/omniget/omniget/internal/logx"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Record is one finished (or failed) download in the history.
type Record struct {
	ID          int64
	URL         string
	Platform    string
	Title       string
	FilePath    string
	FileSize    int64
	FileCount   int
	Status      string
	Error       string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Store wraps the history database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	// sqlite is single-writer; more connections just contend.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) runMigrations() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}

	// This driver works with modernc.org/sqlite as well.
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Add inserts a record and returns its id.
func (s *Store) Add(rec *Record) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var completedAt any
	if !rec.CompletedAt.IsZero() {
		completedAt = rec.CompletedAt.UTC()
	}

	res, err := s.db.Exec(`
		INSERT INTO history (url, platform, title, file_path, file_size, file_count, status, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.URL, rec.Platform, rec.Title, rec.FilePath, rec.FileSize, rec.FileCount,
		rec.Status, rec.Error, rec.CreatedAt.UTC(), completedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert history record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	rec.ID = id
	return id, nil
}

// Recent returns the newest records, most recent first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, url, platform, title, file_path, file_size, file_count, status, error, created_at, completed_at
		FROM history ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Search matches title or URL, most recent first.
func (s *Store) Search(query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	like := "%" + query + "%"
	rows, err := s.db.Query(`
		SELECT id, url, platform, title, file_path, file_size, file_count, status, error, created_at, completed_at
		FROM history
		WHERE title LIKE ? OR url LIKE ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, like, like, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Clear deletes all history and returns how many rows were removed.
func (s *Store) Clear() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM history`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	logx.Info("cleared %d history records", n)
	return n, nil
}

// DeleteOlderThan prunes records created before the cutoff.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM history WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Stats summarizes the history.
type Stats struct {
	Total      int64
	Completed  int64
	Failed     int64
	TotalBytes int64
}

// Summary computes history-wide counters.
func (s *Store) Summary() (Stats, error) {
	var st Stats
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN file_size ELSE 0 END), 0)
		FROM history`).Scan(&st.Total, &st.Completed, &st.Failed, &st.TotalBytes)
	return st, err
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var rec Record
		var completedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.URL, &rec.Platform, &rec.Title, &rec.FilePath,
			&rec.FileSize, &rec.FileCount, &rec.Status, &rec.Error, &rec.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			rec.CompletedAt = completedAt.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Package sqlite provides the default local vocabulary store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/DoyleJ11/kkuko-relay/internal/store"
	"github.com/DoyleJ11/kkuko-relay/internal/store/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const migrationTable = "schema_migrations"

// Store persists words in a SQLite file.
type Store struct {
	sqlDB *sql.DB
}

var _ store.WordStore = (*Store)(nil)

// Open opens a SQLite word store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer; the hub is the only caller on the hot path
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Upsert inserts word or replaces the theme of an existing one.
func (s *Store) Upsert(ctx context.Context, word, theme string) error {
	if word == "" {
		return store.ErrInvalidWord
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO words (word, themes, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(word) DO UPDATE SET
		   themes = excluded.themes,
		   updated_at = excluded.updated_at`,
		word, theme, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert word: %w", err)
	}
	return nil
}

// ListAll returns every word in insertion order.
func (s *Store) ListAll(ctx context.Context) ([]store.Entry, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, word, themes, updated_at FROM words ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list words: %w", err)
	}
	return scanEntries(rows)
}

// Find returns words containing keyword.
func (s *Store) Find(ctx context.Context, keyword string) ([]store.Entry, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, word, themes, updated_at FROM words WHERE word LIKE ? ESCAPE '\' ORDER BY id`,
		store.LikePattern(keyword),
	)
	if err != nil {
		return nil, fmt.Errorf("find words: %w", err)
	}
	return scanEntries(rows)
}

// Delete removes one word.
func (s *Store) Delete(ctx context.Context, word string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM words WHERE word = ?`, word)
	if err != nil {
		return fmt.Errorf("delete word: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete word: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]store.Entry, error) {
	defer rows.Close()

	entries := []store.Entry{}
	for rows.Next() {
		var (
			e       store.Entry
			updated int64
		)
		if err := rows.Scan(&e.ID, &e.Word, &e.Theme, &updated); err != nil {
			return nil, fmt.Errorf("scan word: %w", err)
		}
		e.UpdatedAt = time.UnixMilli(updated).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate words: %w", err)
	}
	return entries, nil
}

// applyMigrations runs each embedded *.sql file once, in name order.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var found int
		err := sqlDB.QueryRow(`SELECT 1 FROM `+migrationTable+` WHERE name = ?`, file).Scan(&found)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check migration %s: %w", file, err)
		}

		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(upSection(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`, file, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// upSection returns the SQL between "-- +migrate Up" and "-- +migrate Down".
func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	if i := strings.Index(content, up); i >= 0 {
		content = content[i+len(up):]
	}
	if i := strings.Index(content, down); i >= 0 {
		content = content[:i]
	}
	return content
}

package tool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteStoreSchema = `
CREATE TABLE IF NOT EXISTS file_aliases (
	package TEXT NOT NULL,
	key TEXT NOT NULL,
	path TEXT NOT NULL,
	registered_at TEXT NOT NULL,
	PRIMARY KEY (package, key)
);`

// SQLiteStoreConfig configures the SQLite-backed alias store.
type SQLiteStoreConfig struct {
	DSN string
}

// SQLiteStore persists file aliases in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed alias store.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("tool: sqlite store dsn is required")
	}
	inMemory := cfg.DSN == ":memory:" || strings.Contains(cfg.DSN, "mode=memory")
	if !strings.HasPrefix(cfg.DSN, "file:") && !inMemory {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o750); err != nil {
			return nil, fmt.Errorf("tool: create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("tool: sqlite store open: %w", err)
	}
	if inMemory {
		// Every connection to an in-memory DSN gets its own database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tool: sqlite store set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteStoreSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tool: sqlite store create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// List returns all aliases ordered by package and key.
func (s *SQLiteStore) List(ctx context.Context) ([]FileAlias, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, errors.New("tool: sqlite store is nil")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT package, key, path, registered_at
FROM file_aliases
ORDER BY package ASC, key ASC`)
	if err != nil {
		return nil, fmt.Errorf("tool: sqlite list file aliases: %w", err)
	}
	defer rows.Close()

	aliases := []FileAlias{}
	for rows.Next() {
		alias, err := scanAlias(rows)
		if err != nil {
			return nil, err
		}
		aliases = append(aliases, alias)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tool: sqlite file alias rows: %w", err)
	}
	return aliases, nil
}

// Get returns an alias by package and key.
func (s *SQLiteStore) Get(ctx context.Context, pkg, key string) (FileAlias, bool, error) {
	if err := ctx.Err(); err != nil {
		return FileAlias{}, false, err
	}
	if s == nil || s.db == nil {
		return FileAlias{}, false, errors.New("tool: sqlite store is nil")
	}

	row := s.db.QueryRowContext(ctx, `
SELECT package, key, path, registered_at
FROM file_aliases
WHERE package = ? AND key = ?`, pkg, key)
	alias, err := scanAlias(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FileAlias{}, false, nil
		}
		return FileAlias{}, false, err
	}
	return alias, true, nil
}

// Upsert inserts or replaces an alias.
func (s *SQLiteStore) Upsert(ctx context.Context, alias FileAlias) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("tool: sqlite store is nil")
	}
	if err := validateAlias(alias); err != nil {
		return err
	}
	if alias.RegisteredAt.IsZero() {
		alias.RegisteredAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO file_aliases (package, key, path, registered_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(package, key) DO UPDATE SET
	path = excluded.path,
	registered_at = excluded.registered_at`,
		alias.Package,
		alias.Key,
		alias.Path,
		alias.RegisteredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("tool: sqlite upsert file alias: %w", err)
	}
	return nil
}

// Delete removes an alias. Deleting a missing alias is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, pkg, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("tool: sqlite store is nil")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM file_aliases WHERE package = ? AND key = ?`, pkg, key); err != nil {
		return fmt.Errorf("tool: sqlite delete file alias: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlias(row rowScanner) (FileAlias, error) {
	var (
		alias FileAlias
		at    string
	)
	if err := row.Scan(&alias.Package, &alias.Key, &alias.Path, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FileAlias{}, err
		}
		return FileAlias{}, fmt.Errorf("tool: sqlite scan file alias: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return FileAlias{}, fmt.Errorf("tool: sqlite parse registered_at: %w", err)
	}
	alias.RegisteredAt = parsed
	return alias, nil
}

var _ Store = (*SQLiteStore)(nil)

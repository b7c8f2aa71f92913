package versionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const (
	keyVersion  = "version"
	keyMetadata = "metadata"
)

// SQLiteStore keeps the state in a key/value table of a sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the sqlite database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open version db: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS ota_state (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at INTEGER NOT NULL DEFAULT (unixepoch())
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize version db schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) get(ctx context.Context, key string) (sql.NullString, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM ota_state WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return sql.NullString{}, nil
	}
	return v, err
}

func (s *SQLiteStore) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ota_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = unixepoch()
	`, key, value)
	if err != nil {
		log.WithError(err).WithField("key", key).Debug("failed to write version db")
	}
	return err
}

func (s *SQLiteStore) CurrentVersion(ctx context.Context) (string, error) {
	v, err := s.get(ctx, keyVersion)
	if err != nil {
		return "", err
	}
	return v.String, nil
}

func (s *SQLiteStore) SetCurrentVersion(ctx context.Context, v string) error {
	return s.set(ctx, keyVersion, v)
}

func (s *SQLiteStore) Metadata(ctx context.Context) (string, bool, error) {
	v, err := s.get(ctx, keyMetadata)
	if err != nil {
		return "", false, err
	}
	return v.String, v.Valid, nil
}

func (s *SQLiteStore) SetMetadata(ctx context.Context, v string) error {
	return s.set(ctx, keyMetadata, v)
}

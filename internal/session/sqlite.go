package session

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLStore is a Store backed by SQLite, for sessions that survive a restart
type SQLStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and applies migrations.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string, ttl time.Duration) (*SQLStore, error) {
	if ttl == 0 {
		ttl = DefaultTTL
	}

	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path
	}
	dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite serialises writers, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLStore{db: db, ttl: ttl, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// Load returns the stored state of a page, refreshing the session's last access
func (s *SQLStore) Load(ctx context.Context, sessionID, page string) ([]byte, bool, error) {
	now := s.now()

	var lastAccess int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_access FROM sessions WHERE id = ?`, sessionID).Scan(&lastAccess)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session: %w", err)
	}

	if now.Sub(time.Unix(0, lastAccess)) > s.ttl {
		if err := s.Delete(ctx, sessionID); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_access = ? WHERE id = ?`, now.UnixNano(), sessionID); err != nil {
		return nil, false, fmt.Errorf("failed to touch session: %w", err)
	}

	var state []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT state FROM page_states WHERE session_id = ? AND page = ?`, sessionID, page).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load page state: %w", err)
	}
	return state, true, nil
}

// Save stores the state of a page, creating the session if needed
func (s *SQLStore) Save(ctx context.Context, sessionID, page string, state []byte) error {
	now := s.now().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO sessions (id, created_at, last_access) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET last_access = excluded.last_access`,
		sessionID, now, now); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO page_states (session_id, page, state, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(session_id, page) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		sessionID, page, state, now); err != nil {
		return fmt.Errorf("failed to save page state: %w", err)
	}

	return tx.Commit()
}

// Delete removes a session and its page states
func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM page_states WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete page states: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return tx.Commit()
}

// CleanupExpired removes sessions not accessed within the TTL
func (s *SQLStore) CleanupExpired(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl).UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
DELETE FROM page_states WHERE session_id IN (SELECT id FROM sessions WHERE last_access < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to delete expired page states: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE last_access < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), tx.Commit()
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Package sqlite provides a SessionRepository backed by a pure-Go SQLite
// driver, suitable for single-node deployments with no cgo toolchain.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/makerflow/runner/internal/core/ports"
	coreerrors "github.com/makerflow/runner/pkg/errors"
)

// Store is a ports.SessionRepository backed by SQLite.
type Store struct {
	db *sql.DB
}

// Config configures the SQLite connection.
type Config struct {
	// Path is the database file path, or ":memory:" for an ephemeral store.
	Path string
	// WAL enables Write-Ahead Logging for concurrent readers.
	WAL bool
}

// Open opens (creating if necessary) the session store at cfg.Path and
// runs its migration.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, &coreerrors.PersistenceError{Op: "open", Cause: err}
	}

	// SQLite serializes writes; a single connection avoids SQLITE_BUSY
	// under concurrent session saves.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &coreerrors.PersistenceError{Op: "ping", Cause: err}
	}

	s := &Store{db: db}
	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, &coreerrors.PersistenceError{Op: "configure_pragmas", Cause: err}
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, &coreerrors.PersistenceError{Op: "migrate", Cause: err}
	}
	return s, nil
}

func (s *Store) configurePragmas(ctx context.Context, wal bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if wal {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id    TEXT PRIMARY KEY,
			domain        TEXT NOT NULL,
			prompt        TEXT NOT NULL,
			status        TEXT NOT NULL,
			context_json  TEXT NOT NULL,
			metadata_json TEXT,
			updated_at    INTEGER NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`)
	return err
}

func (s *Store) Save(ctx context.Context, record ports.SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, domain, prompt, status, context_json, metadata_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			domain = excluded.domain,
			prompt = excluded.prompt,
			status = excluded.status,
			context_json = excluded.context_json,
			metadata_json = excluded.metadata_json,
			updated_at = excluded.updated_at
	`, record.SessionID, record.Domain, record.Prompt, record.Status,
		record.ContextJSON, nullString(record.MetadataJSON), record.UpdatedAt)
	if err != nil {
		return &coreerrors.PersistenceError{Op: "save_session", Cause: err}
	}
	return nil
}

func (s *Store) Load(ctx context.Context, sessionID string) (ports.SessionRecord, error) {
	var rec ports.SessionRecord
	var metadataJSON sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, domain, prompt, status, context_json, metadata_json, updated_at
		FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&rec.SessionID, &rec.Domain, &rec.Prompt, &rec.Status,
		&rec.ContextJSON, &metadataJSON, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return ports.SessionRecord{}, &coreerrors.PersistenceError{
			Op:    "load_session",
			Cause: fmt.Errorf("session %q not found", sessionID),
		}
	}
	if err != nil {
		return ports.SessionRecord{}, &coreerrors.PersistenceError{Op: "load_session", Cause: err}
	}
	if metadataJSON.Valid {
		rec.MetadataJSON = metadataJSON.String
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, limit int) ([]ports.SessionRecord, error) {
	query := `
		SELECT session_id, domain, prompt, status, context_json, metadata_json, updated_at
		FROM sessions ORDER BY updated_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &coreerrors.PersistenceError{Op: "list_sessions", Cause: err}
	}
	defer rows.Close()

	var out []ports.SessionRecord
	for rows.Next() {
		var rec ports.SessionRecord
		var metadataJSON sql.NullString
		if err := rows.Scan(&rec.SessionID, &rec.Domain, &rec.Prompt, &rec.Status,
			&rec.ContextJSON, &metadataJSON, &rec.UpdatedAt); err != nil {
			return nil, &coreerrors.PersistenceError{Op: "scan_session", Cause: err}
		}
		if metadataJSON.Valid {
			rec.MetadataJSON = metadataJSON.String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

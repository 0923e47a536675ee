// Package store persists the sandbox registry and command history in sqlite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultHistoryLimit caps RecentCommands when the caller passes no limit.
const DefaultHistoryLimit = 50

// Entry is one executed command.
type Entry struct {
	ID         string        `json:"id"`
	Sandbox    string        `json:"sandbox"`
	Command    string        `json:"command"`
	Base       string        `json:"base"`
	Kind       string        `json:"kind,omitempty"` // empty on success
	OK         bool          `json:"ok"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"durationMs"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Store wraps the state database. Each Store carries an instance id so rows
// written by an earlier process can be told apart from our own.
type Store struct {
	db       *sql.DB
	instance string
}

// Open creates or opens the database at path and initializes the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers well
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, instance: uuid.NewString()}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Instance returns the id this process writes registry rows under.
func (s *Store) Instance() string {
	return s.instance
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	-- Sandbox directories created by any server instance
	CREATE TABLE IF NOT EXISTS sandboxes (
		path       TEXT PRIMARY KEY,
		owner      TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		removed_at INTEGER
	);

	-- Command history
	CREATE TABLE IF NOT EXISTS commands (
		id          TEXT PRIMARY KEY,
		sandbox     TEXT NOT NULL,
		command     TEXT NOT NULL,
		base        TEXT NOT NULL,
		kind        TEXT NOT NULL DEFAULT '',
		ok          INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commands_created ON commands(created_at);
	CREATE INDEX IF NOT EXISTS idx_sandboxes_live ON sandboxes(removed_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// RecordCreated registers a freshly created sandbox directory as owned by this instance.
func (s *Store) RecordCreated(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sandboxes (path, owner, created_at, removed_at)
		VALUES (?, ?, ?, NULL)
		ON CONFLICT(path) DO UPDATE SET
			owner = excluded.owner,
			created_at = excluded.created_at,
			removed_at = NULL
	`, path, s.instance, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record sandbox %s: %w", path, err)
	}
	return nil
}

// RecordRemoved marks a sandbox directory as gone.
func (s *Store) RecordRemoved(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sandboxes SET removed_at = ? WHERE path = ? AND removed_at IS NULL`,
		time.Now().Unix(), path)
	if err != nil {
		return fmt.Errorf("failed to record removal of %s: %w", path, err)
	}
	return nil
}

// OrphanedSandboxes lists live registry rows written by other instances.
func (s *Store) OrphanedSandboxes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM sandboxes WHERE removed_at IS NULL AND owner != ? ORDER BY created_at`,
		s.instance)
	if err != nil {
		return nil, fmt.Errorf("failed to query sandboxes: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan sandbox: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// RecordCommand appends a command to the history. A missing ID or timestamp is filled in.
func (s *Store) RecordCommand(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	ok := 0
	if e.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commands (id, sandbox, command, base, kind, ok, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Sandbox, e.Command, e.Base, e.Kind, ok, e.Duration.Milliseconds(), e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record command: %w", err)
	}
	return nil
}

// RecentCommands returns up to limit entries, newest first.
func (s *Store) RecentCommands(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sandbox, command, base, kind, ok, duration_ms, created_at
		FROM commands
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			ok         int
			durationMS int64
			createdMS  int64
		)
		if err := rows.Scan(&e.ID, &e.Sandbox, &e.Command, &e.Base, &e.Kind, &ok, &durationMS, &createdMS); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		e.OK = ok == 1
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.DurationMS = durationMS
		e.CreatedAt = time.UnixMilli(createdMS)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

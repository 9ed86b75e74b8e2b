// Package storage provides the SQLite-backed document store for user
// profiles, conversation history and extracted nutrition records. It is
// the exclusive owner of persisted state; no other component touches the
// database directly.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// MetricsRecorder receives per-operation outcomes. Optional.
type MetricsRecorder interface {
	RecordStoreOp(op, status string)
}

// Store wraps the SQLite database connection.
type Store struct {
	conn    *sql.DB
	path    string
	metrics MetricsRecorder
}

// New opens (or creates) the database at dbPath and initializes the schema.
func New(ctx context.Context, dbPath string) (*Store, error) {
	// Ensure directory exists (skip for in-memory database)
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	// WAL mode so reads (profile/history) do not block the fire-and-forget
	// writes issued by concurrent event tasks.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=30000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := initSchema(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{conn: conn, path: dbPath}, nil
}

// SetMetrics sets the optional metrics recorder.
func (s *Store) SetMetrics(recorder MetricsRecorder) {
	s.metrics = recorder
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Ready verifies the database connection for the readiness probe.
func (s *Store) Ready(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) recordOp(op string, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordStoreOp(op, status)
}

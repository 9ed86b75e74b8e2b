package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// initSchema creates all necessary tables and indexes.
// Note: WAL mode and pragmas are configured in db.go.
func initSchema(ctx context.Context, db *sql.DB) error {
	if err := createProfilesTable(ctx, db); err != nil {
		return err
	}
	if err := createHistoryTable(ctx, db); err != nil {
		return err
	}
	return createRecordsTable(ctx, db)
}

func createProfilesTable(ctx context.Context, db *sql.DB) error {
	// One JSON document per user; fields are merged, never wholesale
	// replaced (see MergeProfile).
	query := `
	CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create profiles table: %w", err)
	}
	return nil
}

func createHistoryTable(ctx context.Context, db *sql.DB) error {
	// Append-only conversation log. The rowid breaks ties between turns
	// written within the same millisecond, keeping per-user order total.
	query := `
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		role TEXT CHECK(role IN ('user', 'assistant')) NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_user_id ON history(user_id, id);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	return nil
}

func createRecordsTable(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_user_kind_time ON records(user_id, kind, created_at);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	return nil
}

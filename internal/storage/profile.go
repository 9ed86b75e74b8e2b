package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// GetProfile returns the stored profile document for userID. An absent
// document yields an empty profile and no error; callers can treat the
// result as usable even when err is non-nil (it is always a valid,
// possibly empty, profile).
func (s *Store) GetProfile(ctx context.Context, userID string) (Profile, error) {
	query := `SELECT doc FROM profiles WHERE user_id = ?`

	var raw string
	err := s.conn.QueryRowContext(ctx, query, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		s.recordOp("get_profile", nil)
		return Profile{}, nil
	}
	if err != nil {
		s.recordOp("get_profile", err)
		slog.WarnContext(ctx, "failed to read profile",
			"user_id", userID,
			"error", err)
		return Profile{}, fmt.Errorf("query profile: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		s.recordOp("get_profile", err)
		slog.WarnContext(ctx, "corrupt profile document",
			"user_id", userID,
			"error", err)
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}

	s.recordOp("get_profile", nil)
	return profile, nil
}

// MergeProfile upserts the user document, merging partial into the
// stored fields. Fields absent from partial survive; the document is
// created when missing. The read-merge-write runs in a transaction so
// concurrent merges resolve to last-write-wins per field set rather
// than corrupting the document.
func (s *Store) MergeProfile(ctx context.Context, userID string, partial Profile) error {
	if len(partial) == 0 {
		partial = Profile{}
	}

	start := time.Now()
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		s.recordOp("merge_profile", err)
		return fmt.Errorf("begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current := Profile{}
	var raw string
	err = tx.QueryRowContext(ctx, `SELECT doc FROM profiles WHERE user_id = ?`, userID).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// create-on-write
	case err != nil:
		s.recordOp("merge_profile", err)
		return fmt.Errorf("read profile for merge: %w", err)
	default:
		if decodeErr := json.Unmarshal([]byte(raw), &current); decodeErr != nil {
			// A corrupt document is replaced rather than wedging every
			// future merge.
			slog.ErrorContext(ctx, "replacing corrupt profile document",
				"user_id", userID,
				"error", decodeErr)
			current = Profile{}
		}
	}

	for k, v := range partial {
		current[k] = v
	}

	doc, err := json.Marshal(current)
	if err != nil {
		s.recordOp("merge_profile", err)
		return fmt.Errorf("encode profile: %w", err)
	}

	query := `
		INSERT INTO profiles (user_id, doc, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			doc = excluded.doc,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, userID, string(doc), time.Now().UnixMilli()); err != nil {
		s.recordOp("merge_profile", err)
		return fmt.Errorf("write profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.recordOp("merge_profile", err)
		return fmt.Errorf("commit merge: %w", err)
	}

	s.recordOp("merge_profile", nil)
	if duration := time.Since(start); duration > 100*time.Millisecond {
		slog.WarnContext(ctx, "slow database operation",
			"operation", "MergeProfile",
			"duration_ms", duration.Milliseconds(),
			"user_id", userID)
	}
	return nil
}

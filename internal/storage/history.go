package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AppendHistory appends one immutable turn with a server timestamp.
// Failures are the caller's to log and ignore; a failed append must
// never surface to the end user.
func (s *Store) AppendHistory(ctx context.Context, userID, role, content string) error {
	if role != RoleUser && role != RoleAssistant {
		err := fmt.Errorf("invalid history role %q", role)
		s.recordOp("append_history", err)
		return err
	}

	query := `INSERT INTO history (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	_, err := s.conn.ExecContext(ctx, query, userID, role, content, time.Now().UnixMilli())
	if err != nil {
		s.recordOp("append_history", err)
		slog.ErrorContext(ctx, "failed to append history turn",
			"user_id", userID,
			"role", role,
			"error", err)
		return fmt.Errorf("append history: %w", err)
	}

	s.recordOp("append_history", nil)
	return nil
}

// RecentHistory returns the most recent limit turns for userID in
// chronological order, ready to replay to the generation API. The rows
// are read newest-first and reversed before returning.
func (s *Store) RecentHistory(ctx context.Context, userID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, user_id, role, content, created_at
		FROM history
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.conn.QueryContext(ctx, query, userID, limit)
	if err != nil {
		s.recordOp("recent_history", err)
		slog.WarnContext(ctx, "failed to query history",
			"user_id", userID,
			"error", err)
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		if err := rows.Scan(&turn.ID, &turn.UserID, &turn.Role, &turn.Content, &turn.CreatedAt); err != nil {
			s.recordOp("recent_history", err)
			return nil, fmt.Errorf("scan history turn: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		s.recordOp("recent_history", err)
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	// Reverse newest-first into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	s.recordOp("recent_history", nil)
	return turns, nil
}

// CountTurns returns the total number of stored turns, for the
// readiness probe.
func (s *Store) CountTurns(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return count, nil
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// AppendRecord appends one structured record with a server timestamp.
// Same fire-and-forget tolerance as AppendHistory: the caller logs and
// moves on.
func (s *Store) AppendRecord(ctx context.Context, userID, kind string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.recordOp("append_record", err)
		return fmt.Errorf("encode record payload: %w", err)
	}

	query := `INSERT INTO records (id, user_id, kind, payload, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err = s.conn.ExecContext(ctx, query, uuid.NewString(), userID, kind, string(raw), time.Now().UnixMilli())
	if err != nil {
		s.recordOp("append_record", err)
		slog.ErrorContext(ctx, "failed to append record",
			"user_id", userID,
			"kind", kind,
			"error", err)
		return fmt.Errorf("append record: %w", err)
	}

	s.recordOp("append_record", nil)
	return nil
}

// Aggregate returns all records of the given kind at or after since, in
// chronological order, for caller-side summation. An absent collection
// or a query failure yields an empty slice; the error is informational.
func (s *Store) Aggregate(ctx context.Context, userID, kind string, since time.Time) ([]Record, error) {
	query := `
		SELECT id, user_id, kind, payload, created_at
		FROM records
		WHERE user_id = ? AND kind = ? AND created_at >= ?
		ORDER BY created_at ASC
	`
	rows, err := s.conn.QueryContext(ctx, query, userID, kind, since.UnixMilli())
	if err != nil {
		s.recordOp("aggregate", err)
		slog.WarnContext(ctx, "failed to query records",
			"user_id", userID,
			"kind", kind,
			"error", err)
		return []Record{}, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []Record{}
	for rows.Next() {
		var record Record
		var raw string
		if err := rows.Scan(&record.ID, &record.UserID, &record.Kind, &raw, &record.CreatedAt); err != nil {
			s.recordOp("aggregate", err)
			return []Record{}, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &record.Payload); err != nil {
			// A single corrupt payload should not hide its siblings.
			slog.WarnContext(ctx, "skipping corrupt record payload",
				"record_id", record.ID,
				"user_id", userID,
				"error", err)
			continue
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		s.recordOp("aggregate", err)
		return []Record{}, fmt.Errorf("iterate records: %w", err)
	}

	s.recordOp("aggregate", nil)
	return records, nil
}

// CountRecords returns the total number of stored records, for the
// readiness probe.
func (s *Store) CountRecords(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

package storage

import (
	"context"
	"testing"
	"time"
)

func TestAppendAndAggregateRecords(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	since := time.Now().Add(-time.Minute)

	payloads := []map[string]any{
		{"item": "rice", "kcal": 250.0},
		{"item": "salad", "kcal": 120.0},
	}
	for _, payload := range payloads {
		if err := store.AppendRecord(ctx, "U1", KindNutrition, payload); err != nil {
			t.Fatalf("AppendRecord failed: %v", err)
		}
	}

	records, err := store.Aggregate(ctx, "U1", KindNutrition, since)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Payload["item"] != "rice" {
		t.Errorf("Expected chronological order, first item %v", records[0].Payload["item"])
	}
	for _, record := range records {
		if record.ID == "" {
			t.Error("Record should have a server-assigned ID")
		}
		if record.CreatedAt == 0 {
			t.Error("Record should have a server-assigned timestamp")
		}
	}
}

func TestAggregateSinceBoundaryInclusive(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.AppendRecord(ctx, "U1", KindNutrition, map[string]any{"kcal": 100.0}); err != nil {
		t.Fatalf("AppendRecord failed: %v", err)
	}
	records, err := store.Aggregate(ctx, "U1", KindNutrition, time.Now().Add(-time.Second))
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected the just-written record at/after boundary, got %d", len(records))
	}

	// A boundary in the future excludes it.
	records, err = store.Aggregate(ctx, "U1", KindNutrition, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records after a future boundary, got %d", len(records))
	}
}

func TestAggregateAbsentCollectionReturnsEmpty(t *testing.T) {
	store := setupTestStore(t)

	records, err := store.Aggregate(context.Background(), "U-unknown", KindNutrition, time.Time{})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if records == nil {
		t.Error("Aggregate should return an empty slice, not nil")
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
}

func TestAggregateFiltersByKind(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_ = store.AppendRecord(ctx, "U1", KindNutrition, map[string]any{"kcal": 80.0})
	_ = store.AppendRecord(ctx, "U1", "exercise", map[string]any{"minutes": 30.0})

	records, err := store.Aggregate(ctx, "U1", KindNutrition, time.Time{})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 nutrition record, got %d", len(records))
	}
	if records[0].Payload["kcal"] != 80.0 {
		t.Errorf("Unexpected payload: %v", records[0].Payload)
	}
}

func TestReadyAndCounts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.Ready(ctx); err != nil {
		t.Fatalf("Ready failed: %v", err)
	}

	_ = store.AppendHistory(ctx, "U1", RoleUser, "hello")
	_ = store.AppendRecord(ctx, "U1", KindNutrition, map[string]any{"kcal": 1.0})

	turns, err := store.CountTurns(ctx)
	if err != nil || turns != 1 {
		t.Errorf("Expected 1 turn, got %d (err=%v)", turns, err)
	}
	recordCount, err := store.CountRecords(ctx)
	if err != nil || recordCount != 1 {
		t.Errorf("Expected 1 record, got %d (err=%v)", recordCount, err)
	}
}

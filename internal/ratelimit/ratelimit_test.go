package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	t.Parallel()
	l := New(10, 5)
	if l.maxTokens != 10 {
		t.Errorf("maxTokens = %v, want 10", l.maxTokens)
	}
	if l.refillRate != 5 {
		t.Errorf("refillRate = %v, want 5", l.refillRate)
	}
	if l.tokens != 10 {
		t.Errorf("initial tokens = %v, want 10", l.tokens)
	}
}

func TestNewPerSecond(t *testing.T) {
	t.Parallel()
	l := NewPerSecond(50)
	if l.refillRate != 50 {
		t.Errorf("refillRate = %v, want 50", l.refillRate)
	}
	if l.maxTokens != 50 {
		t.Errorf("maxTokens = %v, want 50", l.maxTokens)
	}
}

func TestAllow(t *testing.T) {
	t.Parallel()
	t.Run("allows when tokens available", func(t *testing.T) {
		t.Parallel()
		l := New(5, 1)
		for i := 0; i < 5; i++ {
			if !l.Allow() {
				t.Errorf("Allow() = false on attempt %d, want true", i+1)
			}
		}
	})

	t.Run("denies when no tokens", func(t *testing.T) {
		t.Parallel()
		l := New(2, 0) // No refill
		l.Allow()
		l.Allow()
		if l.Allow() {
			t.Error("Allow() = true when no tokens, want false")
		}
	})

	t.Run("refills over time", func(t *testing.T) {
		t.Parallel()
		l := New(1, 100) // Fast refill for testing
		l.Allow()

		time.Sleep(20 * time.Millisecond)

		if !l.Allow() {
			t.Error("Allow() = false after refill time, want true")
		}
	})
}

func TestWait(t *testing.T) {
	t.Parallel()
	t.Run("returns immediately when tokens available", func(t *testing.T) {
		t.Parallel()
		l := New(5, 1)

		start := time.Now()
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
			t.Errorf("Wait() took %v, expected near-instant", elapsed)
		}
	})

	t.Run("blocks until refill", func(t *testing.T) {
		t.Parallel()
		l := New(1, 50) // 20ms per token
		l.Allow()

		start := time.Now()
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
			t.Errorf("Wait() returned after %v, expected to block for a refill", elapsed)
		}
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		t.Parallel()
		l := New(1, 0.001) // Effectively never refills
		l.Allow()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if err := l.Wait(ctx); err == nil {
			t.Error("Wait() = nil with exhausted bucket, want context error")
		}
	})
}

func TestConcurrentAllow(t *testing.T) {
	t.Parallel()
	l := New(100, 0) // No refill: exactly 100 grants possible

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow() {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 100 {
		t.Errorf("granted = %d, want exactly 100", granted)
	}
}

func TestAvailable(t *testing.T) {
	t.Parallel()
	l := New(3, 0)
	l.Allow()
	if got := l.Available(); got != 2 {
		t.Errorf("Available() = %v, want 2", got)
	}
}

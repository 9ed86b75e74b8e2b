// Package ratelimit provides a token bucket rate limiter used to pace
// outbound messaging API calls.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter implements a token bucket. Safe for concurrent use.
//
// Tokens refill at refillRate per second up to maxTokens; each send
// consumes one token.
type Limiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

// New creates a limiter with the given burst capacity and refill rate
// (tokens per second). The bucket starts full.
func New(maxTokens, refillRate float64) *Limiter {
	return &Limiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// NewPerSecond creates a limiter allowing rps requests per second with
// a one-second burst.
func NewPerSecond(rps float64) *Limiter {
	return New(rps, rps)
}

// refill adds tokens for the time elapsed since the last refill.
// Must be called with mu held.
func (l *Limiter) refill() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()

	l.tokens += elapsed * l.refillRate
	if l.tokens > l.maxTokens {
		l.tokens = l.maxTokens
	}
	l.lastRefill = now
}

// Allow consumes a token if one is available. Non-blocking.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()

	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		return true
	}
	return false
}

// Wait blocks until a token is available or the context is done.
// It computes the exact sleep needed rather than polling.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()

		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}

		waitTime := time.Duration((1 - l.tokens) / l.refillRate * float64(time.Second))
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// Available returns the current token count. Useful for monitoring.
func (l *Limiter) Available() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	return l.tokens
}

// Package dedup provides an in-memory expiring set of webhook event IDs.
// LINE delivers events at-least-once and retries whole payloads on
// timeout; the cache suppresses duplicate processing within a bounded
// window. It is not persisted: a process restart may allow exactly one
// duplicate reprocessing, which is an accepted tradeoff.
package dedup

import (
	"sync"
	"time"
)

// DefaultTTL is how long an event ID is remembered.
const DefaultTTL = 10 * time.Minute

// DefaultSweepInterval is how often expired entries are removed in bulk.
// Expiry is also checked lazily on lookup, so the sweep only bounds
// memory, not correctness.
const DefaultSweepInterval = time.Minute

// SizeReporter receives the cache size after each sweep.
type SizeReporter interface {
	ReportDedupCacheSize(n int)
}

// Cache is a concurrent-safe expiring set of event identifiers.
// Entries expire lazily on lookup and in bulk via a periodic sweep;
// no per-entry timers are created.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]time.Time // event ID -> expiry
	ttl     time.Duration
	stop    chan struct{}
	stopped sync.Once

	reporter SizeReporter

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a dedup cache with the given TTL and starts its sweep
// goroutine. Call Stop when done.
func New(ttl time.Duration) *Cache {
	return NewWithSweep(ttl, DefaultSweepInterval)
}

// NewWithSweep creates a dedup cache with explicit TTL and sweep interval.
func NewWithSweep(ttl, sweepInterval time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		stop: make(chan struct{}),
		now:  time.Now,
	}
	if sweepInterval > 0 {
		go c.sweepLoop(sweepInterval)
	}
	return c
}

// SetReporter registers an optional size reporter (e.g. a metrics gauge).
func (c *Cache) SetReporter(r SizeReporter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reporter = r
}

// ShouldProcess returns true and records the event ID the first time it
// is seen; it returns false for any call with the same ID before expiry.
// An empty ID is always processed (some event kinds carry no ID).
func (c *Cache) ShouldProcess(eventID string) bool {
	if eventID == "" {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if expiry, ok := c.seen[eventID]; ok {
		if now.Before(expiry) {
			return false
		}
		// Lazy expiry: the sweep hasn't caught this one yet.
		delete(c.seen, eventID)
	}

	c.seen[eventID] = now.Add(c.ttl)
	return true
}

// Len returns the current number of remembered event IDs, including any
// not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Stop terminates the sweep goroutine. Safe to call multiple times.
func (c *Cache) Stop() {
	c.stopped.Do(func() { close(c.stop) })
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, expiry := range c.seen {
		if !now.Before(expiry) {
			delete(c.seen, id)
		}
	}
	if c.reporter != nil {
		c.reporter.ReportDedupCacheSize(len(c.seen))
	}
}

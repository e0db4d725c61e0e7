// Package guard provides the dedup/rate-limit capability injected into any
// component that needs alert suppression. Keeping it behind an interface
// keeps suppression policy out of the selector/tracker decision logic, so
// their unit tests run against the in-memory implementation.
package guard

import (
	"context"
	"sync"
	"time"
)

// Guard decides whether an event identified by key, carrying the given
// observed value, should be allowed through. A guard remembers the last
// value it allowed per key for the given TTL; repeats of the same value
// inside the TTL are suppressed, while a changed value is allowed
// immediately (a new observation, not a repeat).
type Guard interface {
	// Allow reports whether the event should fire, recording it if so.
	Allow(ctx context.Context, key, value string, ttl time.Duration) bool
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryGuard is an in-process Guard backed by a TTL map. It is safe for
// concurrent use.
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryGuard creates an empty MemoryGuard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Ensure MemoryGuard implements Guard.
var _ Guard = (*MemoryGuard)(nil)

// Allow implements Guard.
func (g *MemoryGuard) Allow(_ context.Context, key, value string, ttl time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if entry, ok := g.entries[key]; ok {
		if now.Before(entry.expiresAt) && entry.value == value {
			return false
		}
	}

	g.entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl)}

	// Opportunistic cleanup keeps the map from growing without bound on
	// long-running processes.
	if len(g.entries) > 4096 {
		for k, e := range g.entries {
			if now.After(e.expiresAt) {
				delete(g.entries, k)
			}
		}
	}

	return true
}

// SetNowFunc overrides the clock, for tests.
func (g *MemoryGuard) SetNowFunc(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

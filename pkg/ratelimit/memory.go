package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/clock"
	"golang.org/x/time/rate"
)

// entry holds per-key state for every strategy; a key is normally used with
// one strategy only.
type entry struct {
	stamps []time.Time // sliding window, oldest first

	windowStart time.Time // fixed window
	count       int

	bucket      *rate.Limiter // token bucket
	bucketLimit Limit

	last time.Time
}

// Memory is a process-local Limiter guarded by a single mutex.
type Memory struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]*entry
	longest time.Duration
}

var _ Limiter = (*Memory)(nil)

// NewMemory returns an empty limiter reading time from c (nil means the
// real clock).
func NewMemory(c clock.Clock) *Memory {
	return &Memory{
		clock:   clock.OrReal(c),
		entries: make(map[string]*entry),
	}
}

func (m *Memory) Allow(_ context.Context, key string, limit Limit) bool {
	if !limit.Valid() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	e := m.lookup(key, limit, now, false)
	if e == nil {
		return true
	}
	return m.used(e, limit, now) < limit.Max
}

func (m *Memory) Record(ctx context.Context, key string, limit Limit) bool {
	return m.RecordN(ctx, key, limit, 1)
}

func (m *Memory) RecordN(_ context.Context, key string, limit Limit, n int) bool {
	if !limit.Valid() || n < 1 || n > limit.Max {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	e := m.lookup(key, limit, now, true)
	e.last = now

	switch limit.Strategy {
	case TokenBucket:
		return e.bucket.AllowN(now, n)
	case FixedWindow:
		if m.used(e, limit, now)+n > limit.Max {
			return false
		}
		e.count += n
		return true
	default:
		if m.used(e, limit, now)+n > limit.Max {
			return false
		}
		for range n {
			e.stamps = append(e.stamps, now)
		}
		return true
	}
}

func (m *Memory) Remaining(_ context.Context, key string, limit Limit) int {
	if !limit.Valid() {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	e := m.lookup(key, limit, now, false)
	if e == nil {
		return limit.Max
	}
	return max(limit.Max-m.used(e, limit, now), 0)
}

func (m *Memory) TimeUntilReset(_ context.Context, key string, limit Limit) time.Duration {
	if !limit.Valid() {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	e := m.lookup(key, limit, now, false)
	if e == nil {
		return 0
	}

	switch limit.Strategy {
	case TokenBucket:
		tokens := e.bucket.TokensAt(now)
		if tokens >= 1 {
			return 0
		}
		perToken := limit.Window / time.Duration(limit.Max)
		return time.Duration((1 - tokens) * float64(perToken))
	case FixedWindow:
		if m.used(e, limit, now) < limit.Max {
			return 0
		}
		return e.windowStart.Add(limit.Window).Sub(now)
	default:
		if m.used(e, limit, now) < limit.Max {
			return 0
		}
		return e.stamps[0].Add(limit.Window).Sub(now)
	}
}

func (m *Memory) Reset(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Sweep removes keys with no activity newer than the longest window seen.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock.Now().Add(-m.longest)
	removed := 0
	for key, e := range m.entries {
		if !e.last.After(cutoff) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// lookup returns the entry for key, creating it when create is set. Must be
// called with mu held.
func (m *Memory) lookup(key string, limit Limit, now time.Time, create bool) *entry {
	if limit.Window > m.longest {
		m.longest = limit.Window
	}

	e, ok := m.entries[key]
	if !ok {
		if !create {
			return nil
		}
		e = &entry{last: now}
		m.entries[key] = e
	}

	if limit.Strategy == TokenBucket && (e.bucket == nil || e.bucketLimit != limit) {
		every := limit.Window / time.Duration(limit.Max)
		e.bucket = rate.NewLimiter(rate.Every(every), limit.Max)
		e.bucketLimit = limit
	}
	return e
}

// used counts attempts in the current window, pruning stale state. Must be
// called with mu held.
func (m *Memory) used(e *entry, limit Limit, now time.Time) int {
	switch limit.Strategy {
	case TokenBucket:
		return limit.Max - int(e.bucket.TokensAt(now))
	case FixedWindow:
		start := windowStart(now, limit.Window)
		if !e.windowStart.Equal(start) {
			e.windowStart = start
			e.count = 0
		}
		return e.count
	default:
		cutoff := now.Add(-limit.Window)
		i := 0
		for i < len(e.stamps) && !e.stamps[i].After(cutoff) {
			i++
		}
		if i > 0 {
			e.stamps = append(e.stamps[:0], e.stamps[i:]...)
		}
		return len(e.stamps)
	}
}

// windowStart floors now to a multiple of window since the Unix epoch.
func windowStart(now time.Time, window time.Duration) time.Time {
	n := now.UnixNano()
	return time.Unix(0, n-n%int64(window)).UTC()
}

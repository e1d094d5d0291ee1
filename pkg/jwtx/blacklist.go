package jwtx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/clock"
)

// Revocation is a durable blacklist row. Only the token id and its original
// expiry are ever stored.
type Revocation struct {
	JTI       string
	ExpiresAt time.Time
}

// RevocationStore persists revocations so they survive restarts. This
// interface avoids importing the store package.
type RevocationStore interface {
	SaveRevocation(ctx context.Context, r Revocation) error
	ListRevocations(ctx context.Context, now time.Time) ([]Revocation, error)
	DeleteExpiredRevocations(ctx context.Context, now time.Time) (int64, error)
}

// Blacklist holds revoked token ids until their original expiry (plus
// grace). Each entry schedules its own eviction; Sweep catches anything a
// timer missed, for example when the clock is driven manually.
type Blacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	timers  map[string]*time.Timer
	grace   time.Duration
	clock   clock.Clock
	store   RevocationStore
	log     *slog.Logger
}

// NewBlacklist returns an empty blacklist. store may be nil.
func NewBlacklist(c clock.Clock, grace time.Duration, store RevocationStore, log *slog.Logger) *Blacklist {
	if log == nil {
		log = slog.Default()
	}
	return &Blacklist{
		entries: make(map[string]time.Time),
		timers:  make(map[string]*time.Timer),
		grace:   grace,
		clock:   clock.OrReal(c),
		store:   store,
		log:     log,
	}
}

// Load restores unexpired revocations from the store.
func (b *Blacklist) Load(ctx context.Context) (int, error) {
	if b.store == nil {
		return 0, nil
	}
	rows, err := b.store.ListRevocations(ctx, b.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("jwtx: load revocations: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range rows {
		b.addLocked(r.JTI, r.ExpiresAt)
	}
	return len(rows), nil
}

// Add revokes jti until exp. The entry is visible to Contains before Add
// returns; persistence happens afterwards.
func (b *Blacklist) Add(ctx context.Context, jti string, exp time.Time) error {
	if jti == "" {
		return fmt.Errorf("%w: missing jti", ErrMalformedClaims)
	}
	if !b.clock.Now().Before(exp.Add(b.grace)) {
		return nil // already past any verification window
	}

	b.mu.Lock()
	b.addLocked(jti, exp)
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.SaveRevocation(ctx, Revocation{JTI: jti, ExpiresAt: exp}); err != nil {
			return fmt.Errorf("jwtx: persist revocation: %w", err)
		}
	}
	return nil
}

func (b *Blacklist) addLocked(jti string, exp time.Time) {
	if cur, ok := b.entries[jti]; ok && !exp.After(cur) {
		return
	}
	b.entries[jti] = exp

	if t, ok := b.timers[jti]; ok {
		t.Stop()
	}
	delay := exp.Add(b.grace).Sub(b.clock.Now())
	b.timers[jti] = time.AfterFunc(delay, func() { b.evict(jti, exp) })
}

func (b *Blacklist) evict(jti string, exp time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.entries[jti]; ok && cur.Equal(exp) {
		delete(b.entries, jti)
		delete(b.timers, jti)
	}
}

// Contains reports whether jti is revoked.
func (b *Blacklist) Contains(jti string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[jti]
	return ok
}

// Sweep drops entries whose verification window has closed.
func (b *Blacklist) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	removed := 0
	for jti, exp := range b.entries {
		if !now.Before(exp.Add(b.grace)) {
			if t, ok := b.timers[jti]; ok {
				t.Stop()
				delete(b.timers, jti)
			}
			delete(b.entries, jti)
			removed++
		}
	}
	return removed
}

// PurgeStore deletes expired rows from the durable store.
func (b *Blacklist) PurgeStore(ctx context.Context) (int64, error) {
	if b.store == nil {
		return 0, nil
	}
	n, err := b.store.DeleteExpiredRevocations(ctx, b.clock.Now().Add(-b.grace))
	if err != nil {
		return 0, fmt.Errorf("jwtx: purge revocations: %w", err)
	}
	return n, nil
}

// Len returns the number of revoked ids held in memory.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Stop cancels every pending eviction timer.
func (b *Blacklist) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for jti, t := range b.timers {
		t.Stop()
		delete(b.timers, jti)
	}
}

// Package csrf issues and validates anti-forgery tokens bound to a session.
//
// Tokens are 256-bit random values. The store keeps only their SHA-256
// fingerprints, so a memory dump does not yield usable tokens.
package csrf

import (
	"errors"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/clock"
	"github.com/aussiebroadwan/careportal/pkg/cryptox"
)

// Transport names for the double-submit pattern.
const (
	CookieName = "csrf-token"
	HeaderName = "X-CSRF-Token"
)

var (
	ErrMissing           = errors.New("csrf: token missing")
	ErrMismatchedSession = errors.New("csrf: token bound to another session")
	ErrExpired           = errors.New("csrf: token expired")
	ErrUnknown           = errors.New("csrf: token unknown")
	ErrCookieMismatch    = errors.New("csrf: header and cookie tokens differ")
)

// Config tunes the store. Zero fields take the defaults.
type Config struct {
	TTL             time.Duration // default 1h
	MaxPerSession   int           // default 5, oldest evicted beyond this
	RotateAfterUses int           // default 100
	RotateAtAge     float64       // fraction of TTL, default 0.8
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.MaxPerSession <= 0 {
		c.MaxPerSession = 5
	}
	if c.RotateAfterUses <= 0 {
		c.RotateAfterUses = 100
	}
	if c.RotateAtAge <= 0 || c.RotateAtAge > 1 {
		c.RotateAtAge = 0.8
	}
	return c
}

// Token is an issued CSRF token. Value is only populated by Issue.
type Token struct {
	Value     string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	UseCount  int
}

type record struct {
	sessionID string
	issuedAt  time.Time
	expiresAt time.Time
	useCount  int
}

// Store holds outstanding tokens for every session.
type Store struct {
	mu        sync.RWMutex
	cfg       Config
	clock     clock.Clock
	tokens    map[string]*record  // fingerprint -> record
	bySession map[string][]string // session -> fingerprints, oldest first
}

// NewStore returns an empty store.
func NewStore(cfg Config, c clock.Clock) *Store {
	return &Store{
		cfg:       cfg.withDefaults(),
		clock:     clock.OrReal(c),
		tokens:    make(map[string]*record),
		bySession: make(map[string][]string),
	}
}

// TTL returns the configured token lifetime.
func (s *Store) TTL() time.Duration { return s.cfg.TTL }

// Issue mints a token for sessionID, evicting the session's oldest token when
// the per-session cap is reached.
func (s *Store) Issue(sessionID string) (Token, error) {
	if sessionID == "" {
		return Token{}, ErrMissing
	}

	value, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return Token{}, err
	}
	fp := cryptox.FingerprintToken(value)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	rec := &record{
		sessionID: sessionID,
		issuedAt:  now,
		expiresAt: now.Add(s.cfg.TTL),
	}

	owned := s.bySession[sessionID]
	for len(owned) >= s.cfg.MaxPerSession {
		delete(s.tokens, owned[0])
		owned = owned[1:]
	}
	s.tokens[fp] = rec
	s.bySession[sessionID] = append(slices.Clone(owned), fp)

	return Token{
		Value:     value,
		SessionID: sessionID,
		IssuedAt:  rec.issuedAt,
		ExpiresAt: rec.expiresAt,
	}, nil
}

// Validate checks that token exists, belongs to sessionID and has not
// expired. A successful validation increments the token's use count.
func (s *Store) Validate(token, sessionID string) error {
	if token == "" || sessionID == "" {
		return ErrMissing
	}
	fp := cryptox.FingerprintToken(token)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tokens[fp]
	if !ok {
		return ErrUnknown
	}
	if rec.sessionID != sessionID {
		return ErrMismatchedSession
	}
	if s.clock.Now().After(rec.expiresAt) {
		s.removeLocked(fp, rec.sessionID)
		return ErrExpired
	}
	rec.useCount++
	return nil
}

// ValidateDoubleSubmit requires the header and cookie copies to match byte
// for byte before validating the token itself.
func (s *Store) ValidateDoubleSubmit(header, cookie, sessionID string) error {
	if header == "" || cookie == "" {
		return ErrMissing
	}
	if !cryptox.Equal(header, cookie) {
		return ErrCookieMismatch
	}
	return s.Validate(header, sessionID)
}

// Lookup returns the token's bookkeeping without counting a use.
func (s *Store) Lookup(token string) (Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tokens[cryptox.FingerprintToken(token)]
	if !ok {
		return Token{}, false
	}
	return Token{
		SessionID: rec.sessionID,
		IssuedAt:  rec.issuedAt,
		ExpiresAt: rec.expiresAt,
		UseCount:  rec.useCount,
	}, true
}

// ShouldRotate reports whether the caller should reissue: the token has
// lived past RotateAtAge of its TTL, has reached RotateAfterUses, or is no
// longer known.
func (s *Store) ShouldRotate(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tokens[cryptox.FingerprintToken(token)]
	if !ok {
		return true
	}
	lifetime := rec.expiresAt.Sub(rec.issuedAt)
	threshold := time.Duration(math.Round(float64(lifetime) * s.cfg.RotateAtAge))
	return s.clock.Now().Sub(rec.issuedAt) > threshold || rec.useCount >= s.cfg.RotateAfterUses
}

// Rotate revokes old and issues a replacement for sessionID.
func (s *Store) Rotate(old, sessionID string) (Token, error) {
	s.Revoke(old)
	return s.Issue(sessionID)
}

// Revoke removes a single token. It reports whether the token existed.
func (s *Store) Revoke(token string) bool {
	fp := cryptox.FingerprintToken(token)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tokens[fp]
	if !ok {
		return false
	}
	s.removeLocked(fp, rec.sessionID)
	return true
}

// RevokeAllForSession removes every token of sessionID and returns the count.
func (s *Store) RevokeAllForSession(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.bySession[sessionID]
	for _, fp := range owned {
		delete(s.tokens, fp)
	}
	delete(s.bySession, sessionID)
	return len(owned)
}

// Purge removes expired tokens and returns how many were dropped.
func (s *Store) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for fp, rec := range s.tokens {
		if now.After(rec.expiresAt) {
			s.removeLocked(fp, rec.sessionID)
			removed++
		}
	}
	return removed
}

// Len returns the number of outstanding tokens.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// CountForSession returns the outstanding tokens for sessionID.
func (s *Store) CountForSession(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySession[sessionID])
}

func (s *Store) removeLocked(fp, sessionID string) {
	delete(s.tokens, fp)
	owned := slices.DeleteFunc(s.bySession[sessionID], func(v string) bool { return v == fp })
	if len(owned) == 0 {
		delete(s.bySession, sessionID)
		return
	}
	s.bySession[sessionID] = owned
}

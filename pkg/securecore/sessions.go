package securecore

import (
	"sync"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/jwtx"
)

// SessionRecord ties a session to the identity it was issued for. It is
// held in memory only.
type SessionRecord struct {
	SessionID string
	UserID    string
	Email     string
	Role      jwtx.Role
	CreatedAt time.Time
	ExpiresAt time.Time
}

type sessionStore struct {
	mu      sync.RWMutex
	records map[string]SessionRecord
}

func newSessionStore() *sessionStore {
	return &sessionStore{records: make(map[string]SessionRecord)}
}

func (s *sessionStore) put(r SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.SessionID] = r
}

func (s *sessionStore) get(id string, now time.Time) (SessionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok || now.After(r.ExpiresAt) {
		return SessionRecord{}, false
	}
	return r, true
}

func (s *sessionStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	delete(s.records, id)
	return ok
}

func (s *sessionStore) purge(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []string
	for id, r := range s.records {
		if now.After(r.ExpiresAt) {
			delete(s.records, id)
			expired = append(expired, id)
		}
	}
	return expired
}

func (s *sessionStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

package domain

import "time"

// RevokedToken is a persisted JWT revocation. Rows are deleted once the
// token could no longer verify anyway.
type RevokedToken struct {
	ID        string // ULID
	JTI       string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the revoked token has passed its expiry.
func (r *RevokedToken) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

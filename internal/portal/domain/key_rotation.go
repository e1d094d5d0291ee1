package domain

import "time"

// KeyRotation is one entry of the encryption key audit trail. Key material
// is never stored.
type KeyRotation struct {
	ID            string // ULID
	KeyID         string
	Version       int
	Algorithm     string // AES-256-GCM or CHACHA20-POLY1305
	Reason        string // initial, scheduled or manual
	RotatedAt     time.Time
	ExpiresAt     time.Time
	RetiredKeyIDs []string
}

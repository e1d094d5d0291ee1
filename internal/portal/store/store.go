package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/careportal/internal/portal/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement it and
// expose one sub-repository per table.
type Store interface {
	RevokedTokens() RevokedTokens
	KeyRotations() KeyRotations

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped view of the repositories.
type Tx interface {
	RevokedTokens() RevokedTokens
	KeyRotations() KeyRotations
}

type RevokedTokens interface {
	// CreateRevokedToken inserts a revocation. A second insert for the same
	// jti returns ErrAlreadyExists.
	CreateRevokedToken(ctx context.Context, r domain.RevokedToken) error

	// GetRevokedTokenByJTI returns ErrNotFound when jti was never revoked.
	GetRevokedTokenByJTI(ctx context.Context, jti string) (domain.RevokedToken, error)

	// ListActiveRevokedTokens returns revocations expiring after now.
	ListActiveRevokedTokens(ctx context.Context, now time.Time) ([]domain.RevokedToken, error)

	// DeleteExpiredRevokedTokens is housekeeping; it returns the rows removed.
	DeleteExpiredRevokedTokens(ctx context.Context, now time.Time) (int64, error)
}

type KeyRotations interface {
	// CreateKeyRotation appends to the audit trail.
	CreateKeyRotation(ctx context.Context, r domain.KeyRotation) error

	// ListKeyRotations returns the trail newest first, at most limit rows
	// (limit <= 0 means all).
	ListKeyRotations(ctx context.Context, limit int) ([]domain.KeyRotation, error)

	// LatestKeyRotation returns ErrNotFound on an empty trail.
	LatestKeyRotation(ctx context.Context) (domain.KeyRotation, error)
}

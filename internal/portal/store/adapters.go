package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/careportal/internal/portal/domain"
	"github.com/aussiebroadwan/careportal/pkg/fieldcrypt"
	"github.com/aussiebroadwan/careportal/pkg/idx"
	"github.com/aussiebroadwan/careportal/pkg/jwtx"
)

// RevocationAdapter adapts a Store to jwtx.RevocationStore so the jwtx
// package never imports the domain package.
type RevocationAdapter struct {
	store Store
}

// NewRevocationAdapter creates a new adapter that implements jwtx.RevocationStore.
func NewRevocationAdapter(s Store) *RevocationAdapter {
	return &RevocationAdapter{store: s}
}

// SaveRevocation persists r. Saving an already revoked jti is not an error.
func (a *RevocationAdapter) SaveRevocation(ctx context.Context, r jwtx.Revocation) error {
	now := time.Now().UTC()
	err := a.store.RevokedTokens().CreateRevokedToken(ctx, domain.RevokedToken{
		ID:        idx.New().String(),
		JTI:       r.JTI,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: now,
	})
	if errors.Is(err, ErrAlreadyExists) {
		return nil
	}
	return err
}

// ListRevocations returns revocations still in force at now.
func (a *RevocationAdapter) ListRevocations(ctx context.Context, now time.Time) ([]jwtx.Revocation, error) {
	rows, err := a.store.RevokedTokens().ListActiveRevokedTokens(ctx, now)
	if err != nil {
		return nil, err
	}

	out := make([]jwtx.Revocation, len(rows))
	for i, row := range rows {
		out[i] = jwtx.Revocation{JTI: row.JTI, ExpiresAt: row.ExpiresAt}
	}
	return out, nil
}

// DeleteExpiredRevocations removes rows whose tokens have expired.
func (a *RevocationAdapter) DeleteExpiredRevocations(ctx context.Context, now time.Time) (int64, error) {
	return a.store.RevokedTokens().DeleteExpiredRevokedTokens(ctx, now)
}

// RotationAdapter adapts a Store to fieldcrypt.RotationRecorder.
type RotationAdapter struct {
	store Store
}

// NewRotationAdapter creates a new adapter that implements fieldcrypt.RotationRecorder.
func NewRotationAdapter(s Store) *RotationAdapter {
	return &RotationAdapter{store: s}
}

// RecordRotation appends ev to the audit trail.
func (a *RotationAdapter) RecordRotation(ctx context.Context, ev fieldcrypt.RotationEvent) error {
	return a.store.KeyRotations().CreateKeyRotation(ctx, domain.KeyRotation{
		ID:            idx.NewAt(ev.RotatedAt).String(),
		KeyID:         ev.KeyID,
		Version:       ev.Version,
		Algorithm:     ev.Algorithm,
		Reason:        ev.Reason,
		RotatedAt:     ev.RotatedAt,
		ExpiresAt:     ev.ExpiresAt,
		RetiredKeyIDs: ev.RetiredKeyIDs,
	})
}

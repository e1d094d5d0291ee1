package sqlite

import (
	"context"
	"strings"

	"github.com/aussiebroadwan/careportal/internal/portal/domain"
)

type keyRotationsRepo struct {
	db dbtx
}

const (
	createKeyRotation = `INSERT INTO key_rotations
(id, key_id, version, algorithm, reason, rotated_at, expires_at, retired_key_ids)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectKeyRotation = `SELECT id, key_id, version, algorithm, reason, rotated_at, expires_at, retired_key_ids
FROM key_rotations ORDER BY rotated_at DESC, version DESC`
)

func (r *keyRotationsRepo) CreateKeyRotation(ctx context.Context, k domain.KeyRotation) error {
	_, err := r.db.ExecContext(ctx, createKeyRotation,
		k.ID, k.KeyID, k.Version, k.Algorithm, k.Reason,
		toMillis(k.RotatedAt), toMillis(k.ExpiresAt), strings.Join(k.RetiredKeyIDs, " "))
	return mapConstraint(err)
}

func (r *keyRotationsRepo) ListKeyRotations(ctx context.Context, limit int) ([]domain.KeyRotation, error) {
	query := selectKeyRotation
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.KeyRotation
	for rows.Next() {
		k, err := scanKeyRotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *keyRotationsRepo) LatestKeyRotation(ctx context.Context) (domain.KeyRotation, error) {
	k, err := scanKeyRotation(r.db.QueryRowContext(ctx, selectKeyRotation+` LIMIT 1`))
	if err != nil {
		return domain.KeyRotation{}, mapNotFound(err)
	}
	return k, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKeyRotation(s scanner) (domain.KeyRotation, error) {
	var (
		k                domain.KeyRotation
		rotated, expires int64
		retired          string
	)
	if err := s.Scan(&k.ID, &k.KeyID, &k.Version, &k.Algorithm, &k.Reason, &rotated, &expires, &retired); err != nil {
		return domain.KeyRotation{}, err
	}
	k.RotatedAt = fromMillis(rotated)
	k.ExpiresAt = fromMillis(expires)
	k.RetiredKeyIDs = splitAndFilter(retired)
	return k, nil
}

package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/careportal/internal/portal/domain"
)

type revokedTokensRepo struct {
	db dbtx
}

const (
	createRevokedToken = `INSERT INTO revoked_tokens (id, jti, expires_at, created_at) VALUES (?, ?, ?, ?)`

	getRevokedTokenByJTI = `SELECT id, jti, expires_at, created_at FROM revoked_tokens WHERE jti = ?`

	listActiveRevokedTokens = `SELECT id, jti, expires_at, created_at FROM revoked_tokens
WHERE expires_at > ? ORDER BY expires_at`

	deleteExpiredRevokedTokens = `DELETE FROM revoked_tokens WHERE expires_at <= ?`
)

func (r *revokedTokensRepo) CreateRevokedToken(ctx context.Context, t domain.RevokedToken) error {
	_, err := r.db.ExecContext(ctx, createRevokedToken,
		t.ID, t.JTI, toMillis(t.ExpiresAt), toMillis(t.CreatedAt))
	return mapConstraint(err)
}

func (r *revokedTokensRepo) GetRevokedTokenByJTI(ctx context.Context, jti string) (domain.RevokedToken, error) {
	var (
		t                  domain.RevokedToken
		expires, createdAt int64
	)
	err := r.db.QueryRowContext(ctx, getRevokedTokenByJTI, jti).Scan(&t.ID, &t.JTI, &expires, &createdAt)
	if err != nil {
		return domain.RevokedToken{}, mapNotFound(err)
	}
	t.ExpiresAt = fromMillis(expires)
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}

func (r *revokedTokensRepo) ListActiveRevokedTokens(ctx context.Context, now time.Time) ([]domain.RevokedToken, error) {
	rows, err := r.db.QueryContext(ctx, listActiveRevokedTokens, toMillis(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RevokedToken
	for rows.Next() {
		var (
			t                  domain.RevokedToken
			expires, createdAt int64
		)
		if err := rows.Scan(&t.ID, &t.JTI, &expires, &createdAt); err != nil {
			return nil, err
		}
		t.ExpiresAt = fromMillis(expires)
		t.CreatedAt = fromMillis(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *revokedTokensRepo) DeleteExpiredRevokedTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteExpiredRevokedTokens, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

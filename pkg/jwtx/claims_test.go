package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestValidateIssuer(t *testing.T) {
	c := &jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "careportal"},
	}

	t.Run("matching issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer("careportal"))
	})

	t.Run("empty expected issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer(""))
	})

	t.Run("mismatched issuer", func(t *testing.T) {
		err := c.ValidateIssuer("billing")
		require.ErrorIs(t, err, jwtx.ErrIssuer)
		require.ErrorIs(t, err, jwtx.ErrMalformedClaims)
	})
}

func TestValidateAudience(t *testing.T) {
	c := &jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Audience: []string{"portal", "records"}},
	}

	require.NoError(t, c.ValidateAudience([]string{"portal"}))
	require.NoError(t, c.ValidateAudience([]string{"foo", "records"}))
	require.NoError(t, c.ValidateAudience(nil))
	require.ErrorIs(t, c.ValidateAudience([]string{"admin"}), jwtx.ErrAudience)
}

func TestValidateExpiryAndIssuedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	leeway := 30 * time.Second

	t.Run("expired beyond leeway", func(t *testing.T) {
		c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		}}
		require.ErrorIs(t, c.ValidateExpiry(now, leeway), jwtx.ErrExpired)
	})

	t.Run("expired within leeway", func(t *testing.T) {
		c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(-10 * time.Second)),
		}}
		require.NoError(t, c.ValidateExpiry(now, leeway))
	})

	t.Run("issued in the future", func(t *testing.T) {
		c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now.Add(time.Minute)),
		}}
		require.ErrorIs(t, c.ValidateIssuedAt(now, leeway), jwtx.ErrNotYetValid)
	})

	t.Run("small skew tolerated", func(t *testing.T) {
		c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now.Add(20 * time.Second)),
		}}
		require.NoError(t, c.ValidateIssuedAt(now, leeway))
	})
}

func TestValidateStructure(t *testing.T) {
	now := jwt.NewNumericDate(time.Now())
	full := jwt.RegisteredClaims{Subject: "u1", ID: "j1", ExpiresAt: now, IssuedAt: now}

	c := &jwtx.Claims{RegisteredClaims: full}
	require.NoError(t, c.ValidateStructure())

	for name, mutate := range map[string]func(*jwt.RegisteredClaims){
		"sub": func(r *jwt.RegisteredClaims) { r.Subject = "" },
		"jti": func(r *jwt.RegisteredClaims) { r.ID = "" },
		"exp": func(r *jwt.RegisteredClaims) { r.ExpiresAt = nil },
		"iat": func(r *jwt.RegisteredClaims) { r.IssuedAt = nil },
	} {
		t.Run("missing "+name, func(t *testing.T) {
			rc := full
			mutate(&rc)
			c := &jwtx.Claims{RegisteredClaims: rc}
			require.ErrorIs(t, c.ValidateStructure(), jwtx.ErrMalformedClaims)
		})
	}
}

func TestRoles(t *testing.T) {
	for _, r := range jwtx.Roles() {
		got, err := jwtx.ParseRole(string(r))
		require.NoError(t, err)
		require.Equal(t, r, got)
	}
	_, err := jwtx.ParseRole("superuser")
	require.ErrorIs(t, err, jwtx.ErrMalformedClaims)
}

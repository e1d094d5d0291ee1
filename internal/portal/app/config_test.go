package app

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/careportal/pkg/ratelimit"
)

const (
	testSecret      = "0123456789abcdef0123456789abcdef"
	testIssuerToken = "issuer-0123456789abcdef0123456789"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "careportal", cfg.JWTIssuer)
	require.Equal(t, 24*time.Hour, cfg.AccessTokenTTL)
	require.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	require.Equal(t, time.Hour, cfg.CSRFTokenTTL)
	require.Equal(t, 5*time.Minute, cfg.HousekeepingInterval)
	require.Equal(t, "AES-256-GCM", cfg.KeyAlgorithm)
	require.False(t, cfg.SecureCookies)
	require.Equal(t, ratelimit.DefaultPolicy(), cfg.RateLimits)
	require.Empty(t, cfg.Audience())
	require.Empty(t, cfg.SessionIssuerToken)

	proxies, err := cfg.Proxies()
	require.NoError(t, err)
	require.Empty(t, proxies)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_ACCESS_TTL", "15m")
	t.Setenv("JWT_AUDIENCE", "portal-web, portal-mobile")
	t.Setenv("KEY_ALGORITHM", "CHACHA20-POLY1305")
	t.Setenv("RATELIMIT_LOGIN_REQUESTS", "3")
	t.Setenv("RATELIMIT_LOGIN_WINDOW_SEC", "120")
	t.Setenv("RATELIMIT_PUBLIC_REQUESTS", "50")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, []string{"portal-web", "portal-mobile"}, cfg.Audience())
	require.Equal(t, "CHACHA20-POLY1305", cfg.KeyAlgorithm)

	login := cfg.RateLimits.Get(ratelimit.CategoryLogin)
	require.Equal(t, 3, login.Max)
	require.Equal(t, 2*time.Minute, login.Window)
	require.Equal(t, ratelimit.SlidingWindow, login.Strategy)

	public := cfg.RateLimits.Get(ratelimit.CategoryPublic)
	require.Equal(t, 50, public.Max)
	require.Equal(t, time.Minute, public.Window)

	require.Equal(t, ratelimit.DefaultPolicy()[ratelimit.CategoryAPI], cfg.RateLimits.Get(ratelimit.CategoryAPI))
}

func TestLoadConfigTrustedProxies(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.7")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	proxies, err := cfg.Proxies()
	require.NoError(t, err)
	require.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.7/32"),
	}, proxies)
}

func TestLoadConfigProduction(t *testing.T) {
	t.Run("missing secret fails closed", func(t *testing.T) {
		t.Setenv("ENV", "prod")
		t.Setenv("JWT_SECRET", "")
		t.Setenv("SESSION_ISSUER_TOKEN", testIssuerToken)

		_, err := LoadConfig()
		require.ErrorIs(t, err, ErrConfigurationInvalid)
	})

	t.Run("short secret fails closed", func(t *testing.T) {
		t.Setenv("ENV", "prod")
		t.Setenv("JWT_SECRET", "too-short")
		t.Setenv("SESSION_ISSUER_TOKEN", testIssuerToken)

		_, err := LoadConfig()
		require.ErrorIs(t, err, ErrConfigurationInvalid)
	})

	t.Run("missing issuer token fails closed", func(t *testing.T) {
		t.Setenv("ENV", "prod")
		t.Setenv("JWT_SECRET", testSecret)
		t.Setenv("SESSION_ISSUER_TOKEN", "")

		_, err := LoadConfig()
		require.ErrorIs(t, err, ErrConfigurationInvalid)
	})

	t.Run("short issuer token fails closed", func(t *testing.T) {
		t.Setenv("ENV", "prod")
		t.Setenv("JWT_SECRET", testSecret)
		t.Setenv("SESSION_ISSUER_TOKEN", "short")

		_, err := LoadConfig()
		require.ErrorIs(t, err, ErrConfigurationInvalid)
	})

	t.Run("secure cookies on by default", func(t *testing.T) {
		t.Setenv("ENV", "prod")
		t.Setenv("JWT_SECRET", testSecret)
		t.Setenv("SESSION_ISSUER_TOKEN", testIssuerToken)

		cfg, err := LoadConfig()
		require.NoError(t, err)
		require.True(t, cfg.IsProduction())
		require.True(t, cfg.SecureCookies)
	})

	t.Run("secure cookies can be disabled", func(t *testing.T) {
		t.Setenv("ENV", "prod")
		t.Setenv("JWT_SECRET", testSecret)
		t.Setenv("SESSION_ISSUER_TOKEN", testIssuerToken)
		t.Setenv("SECURE_COOKIES", "false")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		require.False(t, cfg.SecureCookies)
	})
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unparseable duration", "JWT_ACCESS_TTL", "soon"},
		{"port out of range", "PORT", "70000"},
		{"access outlives refresh", "JWT_ACCESS_TTL", "720h"},
		{"unparseable trusted proxy", "TRUSTED_PROXIES", "10.0.0.0/8,proxy.internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := LoadConfig()
			require.ErrorIs(t, err, ErrConfigurationInvalid)
		})
	}
}

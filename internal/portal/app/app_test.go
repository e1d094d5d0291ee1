package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/careportal/pkg/portalsdk"
	"github.com/aussiebroadwan/careportal/pkg/ratelimit"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Env:                  "dev",
		Port:                 8080,
		LogLevel:             "error",
		LogFormat:            "text",
		DatabaseFile:         filepath.Join(t.TempDir(), "careportal.db"),
		JWTSecret:            testSecret,
		JWTIssuer:            "careportal",
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      time.Hour,
		CSRFTokenTTL:         time.Hour,
		KeyAlgorithm:         "AES-256-GCM",
		KeyRotationInterval:  24 * time.Hour,
		HousekeepingInterval: time.Minute,
		ShutdownGracePeriod:  time.Second,
		RateLimits:           ratelimit.DefaultPolicy(),
	}
}

func TestApplicationServesAndShutsDown(t *testing.T) {
	ctx := context.Background()

	app, err := New(testConfig(t))
	require.NoError(t, err)
	app.housekeepingService.Start()

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()
	client := portalsdk.NewSDKClient(srv.URL)

	ready, err := client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, BuildVersion, ready.Version)

	sess, err := client.OpenSession(ctx, portalsdk.IssueSessionRequest{UserID: "admin-1", Role: "admin"})
	require.NoError(t, err)

	keys, err := sess.ListKeys(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, keys.Current.Version)
	require.Len(t, keys.Rotations, 1)

	require.NoError(t, sess.End(ctx))

	res, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	require.NoError(t, app.Shutdown())
}

func TestRevocationsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	first, err := New(cfg)
	require.NoError(t, err)
	first.housekeepingService.Start()
	srv := httptest.NewServer(first.Handler())

	sess, err := portalsdk.NewSDKClient(srv.URL).OpenSession(ctx, portalsdk.IssueSessionRequest{UserID: "user-1", Role: "patient"})
	require.NoError(t, err)
	require.NoError(t, sess.End(ctx))
	srv.Close()
	require.NoError(t, first.Shutdown())

	second, err := New(cfg)
	require.NoError(t, err)
	second.housekeepingService.Start()
	defer func() { require.NoError(t, second.Shutdown()) }()

	require.Equal(t, 2, second.jwt.Blacklist().Len(), "access and refresh jti restored")
}

func TestNewFailsWithUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := New(cfg)
	require.Error(t, err)
}

func TestProductionGatesSessionIssuance(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Env = "prod"
	cfg.SessionIssuerToken = testIssuerToken
	cfg.TrustedProxies = "10.0.0.0/8"

	app, err := New(cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Shutdown()) }()

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	req := portalsdk.IssueSessionRequest{UserID: "admin-1", Role: "admin"}
	_, err = portalsdk.NewSDKClient(srv.URL).IssueSession(ctx, req)
	require.True(t, portalsdk.IsUnauthorized(err), "anonymous issuance must be rejected, got %v", err)

	client := portalsdk.NewSDKClient(srv.URL)
	client.IssuerToken = testIssuerToken
	sess, err := client.OpenSession(ctx, req)
	require.NoError(t, err)
	require.NoError(t, sess.End(ctx))
}

func TestNewFailsWithInvalidTrustedProxies(t *testing.T) {
	cfg := testConfig(t)
	cfg.TrustedProxies = "not-an-address"

	_, err := New(cfg)
	require.Error(t, err)
}

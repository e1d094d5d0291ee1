package http_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	portalhttp "github.com/aussiebroadwan/careportal/internal/portal/http"
	"github.com/aussiebroadwan/careportal/internal/portal/metrics"
	"github.com/aussiebroadwan/careportal/internal/portal/store"
	"github.com/aussiebroadwan/careportal/internal/portal/store/drivers/sqlite"
	"github.com/aussiebroadwan/careportal/pkg/csrf"
	"github.com/aussiebroadwan/careportal/pkg/fieldcrypt"
	"github.com/aussiebroadwan/careportal/pkg/jwtx"
	"github.com/aussiebroadwan/careportal/pkg/portalsdk"
	"github.com/aussiebroadwan/careportal/pkg/ratelimit"
	"github.com/aussiebroadwan/careportal/pkg/securecore"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	client *portalsdk.SDKClient
	core   *securecore.Core
}

const issuerToken = "issuer-0123456789abcdef0123456789"

func newTestServer(t *testing.T, opts ...func(*portalhttp.Router)) *testServer {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	limiter := ratelimit.NewMemory(nil)
	jm, err := jwtx.NewManager(jwtx.Config{
		Secret:      []byte("0123456789abcdef0123456789abcdef"),
		Issuer:      "careportal",
		Limiter:     limiter,
		Revocations: store.NewRevocationAdapter(st),
	})
	require.NoError(t, err)
	t.Cleanup(jm.Close)

	keys, err := fieldcrypt.NewManager(ctx, fieldcrypt.Config{Recorder: store.NewRotationAdapter(st)})
	require.NoError(t, err)

	core, err := securecore.New(securecore.Deps{
		Limiter: limiter,
		CSRF:    csrf.NewStore(csrf.Config{}, nil),
		JWT:     jm,
		Keys:    keys,
	}, securecore.Config{})
	require.NoError(t, err)

	r := portalhttp.NewRouter(core, st, "test", nil)
	r.Metrics = metrics.New(nil)
	r.IssuerToken = issuerToken
	for _, opt := range opts {
		opt(r)
	}
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	client := portalsdk.NewSDKClient(srv.URL)
	client.IssuerToken = issuerToken
	return &testServer{Server: srv, client: client, core: core}
}

func (s *testServer) open(t *testing.T, role string) *portalsdk.Session {
	t.Helper()
	sess, err := s.client.OpenSession(context.Background(), portalsdk.IssueSessionRequest{
		UserID: "user-" + role,
		Email:  role + "@example.com",
		Role:   role,
	})
	require.NoError(t, err)
	return sess
}

func requireStatus(t *testing.T, err error, code int) *portalsdk.APIError {
	t.Helper()
	var apiErr *portalsdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	require.Equal(t, code, apiErr.StatusCode)
	return apiErr
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	resp, err := s.client.IssueSession(ctx, portalsdk.IssueSessionRequest{UserID: "user-1", Role: "patient"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.SessionID)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, int(jwtx.DefaultAccessTokenTTL.Seconds()), resp.ExpiresIn)
	require.Equal(t, int(jwtx.DefaultRefreshTokenTTL.Seconds()), resp.RefreshExpiresIn)
	require.NotEmpty(t, resp.CSRFToken)
	require.Equal(t, 1, s.core.ActiveSessions())

	t.Run("refresh", func(t *testing.T) {
		tok, err := s.client.RefreshGrant(ctx, resp.RefreshToken)
		require.NoError(t, err)
		require.NotEmpty(t, tok.AccessToken)
		require.NotEqual(t, resp.AccessToken, tok.AccessToken)
	})

	t.Run("access token cannot refresh", func(t *testing.T) {
		_, err := s.client.RefreshGrant(ctx, resp.AccessToken)
		require.Error(t, err)
	})

	t.Run("end revokes everything", func(t *testing.T) {
		sess := s.open(t, "provider")
		_, err := sess.Protect(ctx, map[string]string{"ssn": "123-45-6789"})
		require.NoError(t, err)

		require.NoError(t, sess.End(ctx))

		_, err = sess.Protect(ctx, map[string]string{"ssn": "123-45-6789"})
		require.True(t, portalsdk.IsUnauthorized(err), "got %v", err)

		_, err = s.client.RefreshGrant(ctx, sess.RefreshToken())
		require.True(t, portalsdk.IsUnauthorized(err), "got %v", err)
	})
}

func TestIssueSessionValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	_, err := s.client.IssueSession(ctx, portalsdk.IssueSessionRequest{UserID: "user-1", Role: "superuser"})
	apiErr := requireStatus(t, err, http.StatusBadRequest)
	require.Equal(t, portalsdk.ErrorCodeBadRequest, apiErr.Code)

	_, err = s.client.IssueSession(ctx, portalsdk.IssueSessionRequest{Role: "patient"})
	requireStatus(t, err, http.StatusBadRequest)

	res, err := http.Post(s.URL+"/v1/sessions", "application/json", strings.NewReader(`{"user_id":`))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestIssueSessionSetsCSRFCookie(t *testing.T) {
	s := newTestServer(t)

	res, err := http.Post(s.URL+"/v1/sessions", "application/json",
		strings.NewReader(`{"user_id":"user-1","role":"patient"}`))
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Equal(t, "no-store", res.Header.Get("Cache-Control"))

	var cookie *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == csrf.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	require.NotEmpty(t, cookie.Value)
	require.False(t, cookie.HttpOnly)
	require.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
}

func TestLoginRateLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	allowed := ratelimit.DefaultPolicy().Get(ratelimit.CategoryLogin).Max
	for i := range allowed {
		_, err := s.client.IssueSession(ctx, portalsdk.IssueSessionRequest{UserID: "user-1", Role: "patient"})
		require.NoError(t, err, "attempt %d", i+1)
	}

	_, err := s.client.IssueSession(ctx, portalsdk.IssueSessionRequest{UserID: "user-1", Role: "patient"})
	require.True(t, portalsdk.IsRateLimited(err), "got %v", err)
	apiErr := requireStatus(t, err, http.StatusTooManyRequests)
	require.Positive(t, apiErr.RetryAfter)
}

func TestIssueSessionRequiresIssuerToken(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	anonymous := portalsdk.NewSDKClient(s.URL)
	_, err := anonymous.IssueSession(ctx, portalsdk.IssueSessionRequest{UserID: "mallory", Role: "admin"})
	requireStatus(t, err, http.StatusUnauthorized)
	require.True(t, portalsdk.IsUnauthorized(err), "got %v", err)

	forged := portalsdk.NewSDKClient(s.URL)
	forged.IssuerToken = "issuer-0123456789abcdef012345678X"
	_, err = forged.IssueSession(ctx, portalsdk.IssueSessionRequest{UserID: "mallory", Role: "admin"})
	requireStatus(t, err, http.StatusUnauthorized)

	require.Zero(t, s.core.ActiveSessions())

	_, err = s.client.IssueSession(ctx, portalsdk.IssueSessionRequest{UserID: "user-1", Role: "patient"})
	require.NoError(t, err)
	require.Equal(t, 1, s.core.ActiveSessions())
}

func TestSessionIssuanceWithoutIssuerToken(t *testing.T) {
	ctx := context.Background()

	t.Run("production does not serve the route", func(t *testing.T) {
		s := newTestServer(t, func(r *portalhttp.Router) {
			r.IssuerToken = ""
			r.Production = true
		})

		_, err := s.client.IssueSession(ctx, portalsdk.IssueSessionRequest{UserID: "mallory", Role: "admin"})
		requireStatus(t, err, http.StatusNotFound)
		require.Zero(t, s.core.ActiveSessions())

		// The rest of the API is still served.
		_, err = s.client.GetLiveness(ctx)
		require.NoError(t, err)
	})

	t.Run("development stays open", func(t *testing.T) {
		s := newTestServer(t, func(r *portalhttp.Router) { r.IssuerToken = "" })

		_, err := portalsdk.NewSDKClient(s.URL).IssueSession(ctx, portalsdk.IssueSessionRequest{UserID: "dev", Role: "patient"})
		require.NoError(t, err)
	})
}

func TestForwardedForDoesNotResetLoginBudget(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	accepted := 0
	for i := range 20 {
		body := strings.NewReader(fmt.Sprintf(`{"user_id":"user-%d","role":"patient"}`, i))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL+"/v1/sessions", body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(portalsdk.IssuerTokenHeader, issuerToken)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusCreated {
			accepted++
		}
	}
	require.Equal(t, ratelimit.DefaultPolicy().Get(ratelimit.CategoryLogin).Max, accepted)
}

func TestMutatingRequestNeedsCSRF(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	sess := s.open(t, "patient")

	send := func(t *testing.T, header, cookie string) *http.Response {
		t.Helper()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL+"/v1/fields/protect",
			strings.NewReader(`{"values":{"ssn":"123-45-6789"}}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+sess.AccessToken())
		if header != "" {
			req.Header.Set(csrf.HeaderName, header)
		}
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: cookie})
		}
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = res.Body.Close() })
		return res
	}

	t.Run("missing token", func(t *testing.T) {
		require.Equal(t, http.StatusForbidden, send(t, "", "").StatusCode)
	})

	t.Run("header and cookie differ", func(t *testing.T) {
		require.Equal(t, http.StatusForbidden, send(t, sess.CSRFToken(), "other").StatusCode)
	})

	t.Run("matching pair", func(t *testing.T) {
		require.Equal(t, http.StatusOK, send(t, sess.CSRFToken(), sess.CSRFToken()).StatusCode)
	})

	t.Run("missing bearer", func(t *testing.T) {
		res, err := http.Post(s.URL+"/v1/fields/protect", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, http.StatusUnauthorized, res.StatusCode)
		require.Contains(t, res.Header.Get("WWW-Authenticate"), "Bearer")
	})
}

func TestProtectAndReveal(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	sess := s.open(t, "provider")

	values := map[string]string{"ssn": "123-45-6789", "dob": "1980-01-01"}
	f, err := sess.Protect(ctx, values)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ssn", "dob"}, f.Metadata.EncryptedFields)
	require.NotContains(t, f.Ciphertext, "123-45-6789")

	got, err := sess.Reveal(ctx, f, false)
	require.NoError(t, err)
	require.Equal(t, values, got.Values)
	require.False(t, got.Redacted)

	t.Run("tampered ciphertext", func(t *testing.T) {
		raw, err := base64.StdEncoding.DecodeString(f.Ciphertext)
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0xFF
		bad := *f
		bad.Ciphertext = base64.StdEncoding.EncodeToString(raw)

		_, err = sess.Reveal(ctx, &bad, false)
		apiErr := requireStatus(t, err, http.StatusUnprocessableEntity)
		require.Equal(t, portalsdk.ErrorCodeUnprocessable, apiErr.Code)

		red, err := sess.Reveal(ctx, &bad, true)
		require.NoError(t, err)
		require.True(t, red.Redacted)
		require.Equal(t, map[string]string{"ssn": securecore.Redacted, "dob": securecore.Redacted}, red.Values)
	})

	t.Run("still readable after rotation", func(t *testing.T) {
		_, err := s.core.RotateKey(ctx, fieldcrypt.ReasonManual)
		require.NoError(t, err)

		got, err := sess.Reveal(ctx, f, false)
		require.NoError(t, err)
		require.Equal(t, values, got.Values)
	})
}

func TestReissueCSRF(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	sess := s.open(t, "patient")
	first := sess.CSRFToken()

	out, err := sess.ReissueCSRF(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first, out.CSRFToken)
	require.Equal(t, out.CSRFToken, sess.CSRFToken())
	require.Equal(t, 3600, out.ExpiresIn) // default csrf TTL

	_, err = sess.Protect(ctx, map[string]string{"note": "x"})
	require.NoError(t, err)
}

func TestKeyEndpoints(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	t.Run("patient is forbidden", func(t *testing.T) {
		sess := s.open(t, "patient")
		_, err := sess.ListKeys(ctx)
		require.True(t, portalsdk.IsForbidden(err), "got %v", err)
	})

	t.Run("staff can list but not rotate", func(t *testing.T) {
		sess := s.open(t, "staff")
		keys, err := sess.ListKeys(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, keys.Current.Version)
		require.Len(t, keys.Keys, 1)

		_, err = sess.RotateKey(ctx, "")
		require.True(t, portalsdk.IsForbidden(err), "got %v", err)
	})

	t.Run("admin rotates", func(t *testing.T) {
		sess := s.open(t, "admin")

		_, err := sess.RotateKey(ctx, "compromised")
		requireStatus(t, err, http.StatusBadRequest)

		keys, err := sess.RotateKey(ctx, "")
		require.NoError(t, err)
		require.Equal(t, 2, keys.Current.Version)
		require.Len(t, keys.Keys, 2)

		require.Len(t, keys.Rotations, 2)
		require.Equal(t, fieldcrypt.ReasonManual, keys.Rotations[0].Reason)
		require.Equal(t, 2, keys.Rotations[0].Version)
		require.Equal(t, fieldcrypt.ReasonInitial, keys.Rotations[1].Reason)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	live, err := s.client.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := s.client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Equal(t, "ok", ready.Checks.Keys)

	res, err := http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `careportal_http_requests_total{method="GET",route="GET /livez",status="200"} 1`)
}

func TestSwaggerServed(t *testing.T) {
	s := newTestServer(t)

	res, err := http.Get(s.URL + "/swagger/doc.json")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "/v1/sessions")
}

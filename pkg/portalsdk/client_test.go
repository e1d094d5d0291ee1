package portalsdk

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/careportal/pkg/csrf"
)

func TestParseErrorResponse(t *testing.T) {
	t.Parallel()

	t.Run("json body", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
		resp.Header.Set("Retry-After", "42")

		err := parseErrorResponse(resp, []byte(`{"error":"too_many_requests","error_description":"slow down"}`))

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, ErrorCodeTooManyRequests, apiErr.Code)
		require.Equal(t, "slow down", apiErr.Description)
		require.Equal(t, 42*time.Second, apiErr.RetryAfter)
		require.True(t, IsRateLimited(err))
		require.False(t, IsUnauthorized(err))
	})

	t.Run("plain body", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusBadGateway, Header: http.Header{}}

		err := parseErrorResponse(resp, []byte("upstream down"))

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "Bad Gateway", apiErr.Code)
		require.Equal(t, "upstream down", apiErr.Description)
		require.Zero(t, apiErr.RetryAfter)
	})
}

func TestIssueSessionSendsIssuerToken(t *testing.T) {
	t.Parallel()

	var seen atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get(IssuerTokenHeader))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(SessionResponse{SessionID: "ses_1"})
	}))
	defer srv.Close()

	c := NewSDKClient(srv.URL)
	_, err := c.IssueSession(t.Context(), IssueSessionRequest{UserID: "u", Role: "patient"})
	require.NoError(t, err)
	require.Equal(t, "", seen.Load())

	c.IssuerToken = "issuer-secret"
	resp, err := c.IssueSession(t.Context(), IssueSessionRequest{UserID: "u", Role: "patient"})
	require.NoError(t, err)
	require.Equal(t, "ses_1", resp.SessionID)
	require.Equal(t, "issuer-secret", seen.Load())
}

func TestSessionSendsCredentials(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/v1/fields/protect", r.URL.Path)
		require.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))

		header := r.Header.Get(csrf.HeaderName)
		cookie, err := r.Cookie(csrf.CookieName)
		require.NoError(t, err)
		require.Equal(t, header, cookie.Value)

		// Rotate on the first call only.
		if calls.Load() == 1 {
			require.Equal(t, "csrf-1", header)
			w.Header().Set(csrf.HeaderName, "csrf-2")
		} else {
			require.Equal(t, "csrf-2", header)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(EncryptedField{Ciphertext: "c2VhbGVk"})
	}))
	defer srv.Close()

	sess := newSession(NewSDKClient(srv.URL), &SessionResponse{
		SessionID:   "ses_1",
		AccessToken: "access-1",
		CSRFToken:   "csrf-1",
		ExpiresIn:   3600,
	})

	for range 2 {
		f, err := sess.Protect(t.Context(), map[string]string{"ssn": "123"})
		require.NoError(t, err)
		require.Equal(t, "c2VhbGVk", f.Ciphertext)
	}
	require.Equal(t, "csrf-2", sess.CSRFToken())
	require.EqualValues(t, 2, calls.Load())
}

func TestSessionRefreshesExpiredToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/sessions/refresh":
			var req RefreshRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "refresh-1", req.RefreshToken)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(TokenResponse{AccessToken: "access-2", TokenType: "Bearer", ExpiresIn: 3600})
		case "/v1/keys":
			require.Equal(t, "Bearer access-2", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"current":{"version":3},"keys":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	// ExpiresIn 0 puts the expiry inside the refresh buffer.
	sess := newSession(NewSDKClient(srv.URL), &SessionResponse{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	})

	keys, err := sess.ListKeys(t.Context())
	require.NoError(t, err)
	require.Equal(t, 3, keys.Current.Version)
	require.Equal(t, "access-2", sess.AccessToken())
}

func TestSessionEnd(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/v1/sessions/current" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"request could not be verified"}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sess := newSession(NewSDKClient(srv.URL), &SessionResponse{AccessToken: "a", CSRFToken: "c", ExpiresIn: 3600})
	require.NoError(t, sess.End(t.Context()))

	_, err := sess.ReissueCSRF(t.Context())
	require.True(t, IsForbidden(err), "got %v", err)
	require.True(t, strings.Contains(err.Error(), "forbidden"))
}

package portalsdk

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/csrf"
)

// refreshBuffer refreshes the access token this long before it expires.
const refreshBuffer = 30 * time.Second

// Session represents an open portal session. All Session methods refresh the
// access token when needed and track CSRF rotation.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	sessionID    string
	accessToken  string
	refreshToken string
	csrfToken    string
	expiresAt    time.Time
}

func newSession(client *SDKClient, sr *SessionResponse) *Session {
	return &Session{
		client:       client,
		sessionID:    sr.SessionID,
		accessToken:  sr.AccessToken,
		refreshToken: sr.RefreshToken,
		csrfToken:    sr.CSRFToken,
		expiresAt:    time.Now().Add(time.Duration(sr.ExpiresIn)*time.Second - refreshBuffer),
	}
}

// SessionID returns the server-side session id.
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// AccessToken returns the current access token without checking expiration.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// CSRFToken returns the CSRF token the next request will send.
func (s *Session) CSRFToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.csrfToken
}

// getValidToken returns a valid access token, automatically refreshing if expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have refreshed)
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if s.refreshToken == "" {
		return "", fmt.Errorf("access token expired and no refresh token available")
	}

	tokenResp, err := s.client.RefreshGrant(ctx, s.refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	s.accessToken = tokenResp.AccessToken
	s.expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - refreshBuffer)
	return s.accessToken, nil
}

// doAuthRequest sends v with the bearer token and both CSRF copies, then
// adopts any rotated CSRF token from the response.
func (s *Session) doAuthRequest(ctx context.Context, method, path string, v any) (*http.Response, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}
	csrfToken := s.CSRFToken()

	resp, err := s.client.doJSON(ctx, method, path, v, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
		if csrfToken != "" {
			req.Header.Set(csrf.HeaderName, csrfToken)
			req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: csrfToken})
		}
	})
	if err != nil {
		return nil, err
	}

	if fresh := resp.Header.Get(csrf.HeaderName); fresh != "" {
		s.mu.Lock()
		s.csrfToken = fresh
		s.mu.Unlock()
	}
	return resp, nil
}

// Protect seals values on the server and returns the encrypted field.
func (s *Session) Protect(ctx context.Context, values map[string]string) (*EncryptedField, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/fields/protect", ProtectRequest{Values: values})
	if err != nil {
		return nil, err
	}

	var out EncryptedField
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reveal opens f. With redact set the server answers "[REDACTED]" values
// instead of an error when the field cannot be opened.
func (s *Session) Reveal(ctx context.Context, f *EncryptedField, redact bool) (*RevealResponse, error) {
	path := "/v1/fields/reveal"
	if redact {
		path += "?redact=true"
	}
	resp, err := s.doAuthRequest(ctx, http.MethodPost, path, f)
	if err != nil {
		return nil, err
	}

	var out RevealResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReissueCSRF asks for an additional CSRF token and starts using it.
func (s *Session) ReissueCSRF(ctx context.Context) (*CSRFResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/csrf", nil)
	if err != nil {
		return nil, err
	}

	var out CSRFResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.csrfToken = out.CSRFToken
	s.mu.Unlock()
	return &out, nil
}

// RotateKey forces an encryption key rotation. Requires the admin role.
func (s *Session) RotateKey(ctx context.Context, reason string) (*KeysResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/keys/rotate", RotateKeyRequest{Reason: reason})
	if err != nil {
		return nil, err
	}

	var out KeysResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListKeys returns encryption key metadata. Requires the admin or staff role.
func (s *Session) ListKeys(ctx context.Context) (*KeysResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/keys", nil)
	if err != nil {
		return nil, err
	}

	var out KeysResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// End terminates the session server-side. Every token it held stops working.
func (s *Session) End(ctx context.Context) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/sessions/current", nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

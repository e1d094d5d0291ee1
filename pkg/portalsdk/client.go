package portalsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient is a client for the careportal security API.
// It provides access to unauthenticated operations and opens Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// IssuerToken is sent with IssueSession. Only the login controller
	// holds it.
	IssuerToken string
}

// IssuerTokenHeader carries IssuerToken.
const IssuerTokenHeader = "X-Session-Issuer-Token"

// NewSDKClient creates a new client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IssueSession calls POST /v1/sessions.
func (c *SDKClient) IssueSession(ctx context.Context, req IssueSessionRequest) (*SessionResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", req, func(r *http.Request) {
		if c.IssuerToken != "" {
			r.Header.Set(IssuerTokenHeader, c.IssuerToken)
		}
	})
	if err != nil {
		return nil, err
	}

	var out SessionResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenSession issues a session and wraps it.
func (c *SDKClient) OpenSession(ctx context.Context, req IssueSessionRequest) (*Session, error) {
	sr, err := c.IssueSession(ctx, req)
	if err != nil {
		return nil, err
	}
	return newSession(c, sr), nil
}

// RefreshGrant calls POST /v1/sessions/refresh.
func (c *SDKClient) RefreshGrant(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/sessions/refresh", RefreshRequest{RefreshToken: refreshToken}, nil)
	if err != nil {
		return nil, err
	}

	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLiveness checks if the service is alive.
func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// GetReadiness checks if the service is ready.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *SDKClient) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
		return nil, err
	}
	return &health, nil
}

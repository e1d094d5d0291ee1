package portalsdk

import (
	"github.com/aussiebroadwan/careportal/pkg/fieldcrypt"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	// Error is the outcome code (e.g., "authentication_required", "forbidden")
	Error string `json:"error"`

	// ErrorDescription is a generic, client-safe message
	ErrorDescription string `json:"error_description"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports each dependency checked by /readyz.
type HealthChecks struct {
	Database string `json:"database"`
	Keys     string `json:"keys"`
	Limiter  string `json:"limiter"`
}

// ============================================================================
// Session Types
// ============================================================================

// IssueSessionRequest identifies the already authenticated user a session
// is opened for.
type IssueSessionRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	// Role is one of patient, provider, business, staff, admin
	Role string `json:"role"`
}

// SessionResponse is returned by POST /v1/sessions.
type SessionResponse struct {
	SessionID        string `json:"session_id"`
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	CSRFToken        string `json:"csrf_token"`
	CSRFExpiresIn    int    `json:"csrf_expires_in"`
}

// RefreshRequest exchanges a refresh token for a new access token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by POST /v1/sessions/refresh.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// CSRFResponse is returned by GET /v1/csrf.
type CSRFResponse struct {
	CSRFToken string `json:"csrf_token"`
	ExpiresIn int    `json:"expires_in"`
}

// ============================================================================
// Field Protection Types
// ============================================================================

// ProtectRequest lists the named values to seal together.
type ProtectRequest struct {
	Values map[string]string `json:"values"`
}

// RevealResponse holds the opened values. When the request asked for
// redaction and opening failed, every value is "[REDACTED]" and Redacted is set.
type RevealResponse struct {
	Values   map[string]string `json:"values"`
	Redacted bool              `json:"redacted,omitempty"`
}

// EncryptedField is the wire shape of a protected value.
type EncryptedField = fieldcrypt.EncryptedField

// ============================================================================
// Key Types
// ============================================================================

// RotateKeyRequest optionally overrides the recorded rotation reason.
type RotateKeyRequest struct {
	Reason string `json:"reason,omitempty"`
}

// KeysResponse is returned by GET /v1/keys. It carries metadata only.
type KeysResponse struct {
	Current   fieldcrypt.KeyStatus `json:"current"`
	Keys      []fieldcrypt.KeyInfo `json:"keys"`
	Rotations []RotationRecord     `json:"rotations,omitempty"`
}

// RotationRecord is one entry of the persisted rotation audit trail.
type RotationRecord struct {
	KeyID         string   `json:"key_id"`
	Version       int      `json:"version"`
	Algorithm     string   `json:"algorithm"`
	Reason        string   `json:"reason"`
	RotatedAt     string   `json:"rotated_at"`
	RetiredKeyIDs []string `json:"retired_key_ids,omitempty"`
}

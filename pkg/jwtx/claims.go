package jwtx

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants. Access tokens are session-length for the
// portal's browser flows; refresh tokens outlive them.
const (
	DefaultAccessTokenTTL  = 24 * time.Hour
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// DefaultLeeway tolerates clock skew between portal instances.
	DefaultLeeway = 30 * time.Second
)

// Role is the closed set of portal roles.
type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleBusiness Role = "business"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// Roles lists every known role.
func Roles() []Role {
	return []Role{RolePatient, RoleProvider, RoleBusiness, RoleStaff, RoleAdmin}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return slices.Contains(Roles(), r)
}

// ParseRole validates s as a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrRole, s)
	}
	return r, nil
}

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Valid reports whether t is a known token type.
func (t TokenType) Valid() bool {
	return t == TokenAccess || t == TokenRefresh
}

// Claims are the portal session claims.
type Claims struct {
	jwt.RegisteredClaims

	Role Role      `json:"role"`
	Type TokenType `json:"typ"`

	// Session ID, lets a whole session be revoked at once.
	SID string `json:"sid,omitempty"`

	// Attrs carries caller-supplied, non-sensitive extras.
	Attrs map[string]string `json:"attrs,omitempty"`
}

// ValidateStructure rejects tokens missing a required claim.
func (c *Claims) ValidateStructure() error {
	switch {
	case c.Subject == "":
		return fmt.Errorf("%w: missing sub", ErrMalformedClaims)
	case c.ID == "":
		return fmt.Errorf("%w: missing jti", ErrMalformedClaims)
	case c.ExpiresAt == nil:
		return fmt.Errorf("%w: missing exp", ErrMalformedClaims)
	case c.IssuedAt == nil:
		return fmt.Errorf("%w: missing iat", ErrMalformedClaims)
	}
	return nil
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateExpiry fails once now is past exp plus leeway.
func (c *Claims) ValidateExpiry(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	return nil
}

// ValidateIssuedAt fails for tokens issued in the future (beyond leeway).
func (c *Claims) ValidateIssuedAt(now time.Time, leeway time.Duration) error {
	if c.IssuedAt != nil && c.IssuedAt.After(now.Add(leeway)) {
		return ErrNotYetValid
	}
	if c.NotBefore != nil && c.NotBefore.After(now.Add(leeway)) {
		return ErrNotYetValid
	}
	return nil
}

// ValidateRole checks role membership.
func (c *Claims) ValidateRole() error {
	if !c.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrRole, c.Role)
	}
	return nil
}

// ValidateType checks the token type.
func (c *Claims) ValidateType() error {
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown token type %q", ErrMalformedClaims, c.Type)
	}
	return nil
}

// Expiry returns exp as a time, or the zero time.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

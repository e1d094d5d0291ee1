package jwtx

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidSignature = errors.New("jwtx: invalid signature")
	ErrMalformedClaims  = errors.New("jwtx: malformed claims")
	ErrExpired          = errors.New("jwtx: token expired")
	ErrNotYetValid      = errors.New("jwtx: token not yet valid")
	ErrRevoked          = errors.New("jwtx: token revoked")
	ErrWrongTokenType   = errors.New("jwtx: wrong token type")

	// Issuer and audience mismatches are claim failures.
	ErrIssuer   = fmt.Errorf("%w: issuer mismatch", ErrMalformedClaims)
	ErrAudience = fmt.Errorf("%w: audience mismatch", ErrMalformedClaims)
	ErrRole     = fmt.Errorf("%w: unknown role", ErrMalformedClaims)

	ErrRateLimitExceeded    = errors.New("jwtx: issuance rate limit exceeded")
	ErrConfigurationInvalid = errors.New("jwtx: configuration invalid")
)

// RateLimitError is returned when a subject mints tokens too quickly.
type RateLimitError struct {
	Subject    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("jwtx: issuance rate limit exceeded for subject, retry after %s", e.RetryAfter)
}

// Is lets errors.Is(err, ErrRateLimitExceeded) match.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

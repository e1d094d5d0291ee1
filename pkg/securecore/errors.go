package securecore

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/csrf"
	"github.com/aussiebroadwan/careportal/pkg/fieldcrypt"
	"github.com/aussiebroadwan/careportal/pkg/jwtx"
)

var (
	ErrSessionNotFound = errors.New("securecore: session not found")
	ErrInvalidUser     = errors.New("securecore: invalid user")
)

// Kind classifies internal failures. Kinds are logged; callers outside the
// core only ever see a PublicError.
type Kind int

const (
	KindNone Kind = iota
	KindRateLimitExceeded
	KindTokenMissing
	KindTokenExpired
	KindTokenMismatch
	KindTokenRevoked
	KindInvalidSignature
	KindMalformedClaims
	KindKeyNotFound
	KindDecryptionFailed
	KindConfigurationInvalid
	KindInternal
)

var kindNames = map[Kind]string{
	KindNone:                 "none",
	KindRateLimitExceeded:    "rate_limit_exceeded",
	KindTokenMissing:         "token_missing",
	KindTokenExpired:         "token_expired",
	KindTokenMismatch:        "token_mismatch",
	KindTokenRevoked:         "token_revoked",
	KindInvalidSignature:     "invalid_signature",
	KindMalformedClaims:      "malformed_claims",
	KindKeyNotFound:          "key_not_found",
	KindDecryptionFailed:     "decryption_failed",
	KindConfigurationInvalid: "configuration_invalid",
	KindInternal:             "internal",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Classify maps an error from any core component to its Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, jwtx.ErrRateLimitExceeded):
		return KindRateLimitExceeded
	case errors.Is(err, csrf.ErrMissing):
		return KindTokenMissing
	case errors.Is(err, csrf.ErrExpired), errors.Is(err, jwtx.ErrExpired), errors.Is(err, jwtx.ErrNotYetValid):
		return KindTokenExpired
	case errors.Is(err, csrf.ErrMismatchedSession), errors.Is(err, csrf.ErrCookieMismatch), errors.Is(err, csrf.ErrUnknown):
		return KindTokenMismatch
	case errors.Is(err, jwtx.ErrRevoked), errors.Is(err, ErrSessionNotFound):
		return KindTokenRevoked
	case errors.Is(err, jwtx.ErrInvalidSignature):
		return KindInvalidSignature
	case errors.Is(err, jwtx.ErrMalformedClaims), errors.Is(err, jwtx.ErrWrongTokenType), errors.Is(err, ErrInvalidUser):
		return KindMalformedClaims
	case errors.Is(err, fieldcrypt.ErrKeyNotFound):
		return KindKeyNotFound
	case errors.Is(err, fieldcrypt.ErrDecryptionFailed), errors.Is(err, fieldcrypt.ErrMalformedField):
		return KindDecryptionFailed
	case errors.Is(err, jwtx.ErrConfigurationInvalid), errors.Is(err, fieldcrypt.ErrConfigurationInvalid):
		return KindConfigurationInvalid
	default:
		return KindInternal
	}
}

// Outcome is the coarse signal handed to the HTTP layer.
type Outcome string

const (
	OutcomeAllowed                Outcome = "allowed"
	OutcomeAuthenticationRequired Outcome = "authentication_required"
	OutcomeForbidden              Outcome = "forbidden"
	OutcomeTooManyRequests        Outcome = "too_many_requests"
	OutcomeBadRequest             Outcome = "bad_request"
	OutcomeUnprocessable          Outcome = "unprocessable"
	OutcomeInternal               Outcome = "internal_error"
)

// PublicError is the only error shape that leaves the core. It names an
// outcome without saying which check failed.
type PublicError struct {
	Outcome    Outcome
	Message    string
	RetryAfter time.Duration
}

func (e *PublicError) Error() string { return e.Message }

// Sanitize converts an internal error into a PublicError.
func Sanitize(err error) *PublicError {
	if err == nil {
		return nil
	}
	var pub *PublicError
	if errors.As(err, &pub) {
		return pub
	}

	switch Classify(err) {
	case KindRateLimitExceeded:
		pe := &PublicError{Outcome: OutcomeTooManyRequests}
		var rle *jwtx.RateLimitError
		if errors.As(err, &rle) {
			pe.RetryAfter = rle.RetryAfter
		}
		pe.Message = tooManyMessage(pe.RetryAfter)
		return pe
	case KindTokenMissing, KindTokenExpired, KindTokenRevoked, KindInvalidSignature:
		return &PublicError{Outcome: OutcomeAuthenticationRequired, Message: "authentication required"}
	case KindTokenMismatch:
		return &PublicError{Outcome: OutcomeForbidden, Message: "request could not be verified"}
	case KindMalformedClaims:
		return &PublicError{Outcome: OutcomeBadRequest, Message: "malformed request"}
	case KindKeyNotFound, KindDecryptionFailed:
		return &PublicError{Outcome: OutcomeUnprocessable, Message: "protected data is unavailable"}
	default:
		return &PublicError{Outcome: OutcomeInternal, Message: "internal error"}
	}
}

func tooManyMessage(retry time.Duration) string {
	if retry <= 0 {
		return "too many attempts"
	}
	secs := int((retry + time.Second - 1) / time.Second)
	return fmt.Sprintf("too many attempts, retry after %ds", secs)
}

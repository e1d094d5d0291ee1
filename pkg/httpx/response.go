package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/securecore"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
// It automatically sets the Content-Type header and Cache-Control headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// This is commonly required for sensitive responses like tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// WriteError writes an {error, error_description} body.
func WriteError(w http.ResponseWriter, code int, errCode, desc string) {
	WriteJSON(w, code, ErrorResponse{Error: errCode, ErrorDescription: desc})
}

// StatusFor maps a core outcome to an HTTP status.
func StatusFor(o securecore.Outcome) int {
	switch o {
	case securecore.OutcomeAllowed:
		return http.StatusOK
	case securecore.OutcomeAuthenticationRequired:
		return http.StatusUnauthorized
	case securecore.OutcomeForbidden:
		return http.StatusForbidden
	case securecore.OutcomeTooManyRequests:
		return http.StatusTooManyRequests
	case securecore.OutcomeBadRequest:
		return http.StatusBadRequest
	case securecore.OutcomeUnprocessable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// WritePublicError renders a sanitized core error. Nothing beyond the
// outcome and its generic message reaches the client.
func WritePublicError(w http.ResponseWriter, pe *securecore.PublicError) {
	if pe == nil {
		pe = &securecore.PublicError{Outcome: securecore.OutcomeInternal, Message: "internal error"}
	}
	switch pe.Outcome {
	case securecore.OutcomeAuthenticationRequired:
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+pe.Message+`"`)
	case securecore.OutcomeTooManyRequests:
		setRetryAfter(w, pe.RetryAfter)
	}
	WriteError(w, StatusFor(pe.Outcome), string(pe.Outcome), pe.Message)
}

// WriteCoreError sanitizes err and writes it.
func WriteCoreError(w http.ResponseWriter, err error) {
	WritePublicError(w, securecore.Sanitize(err))
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	secs := max(int((d+time.Second-1)/time.Second), 1)
	w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
}

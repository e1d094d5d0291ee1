package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/careportal/pkg/csrf"
	"github.com/aussiebroadwan/careportal/pkg/securecore"
	"github.com/aussiebroadwan/careportal/pkg/slogx"
)

// Authorizer is the subset of securecore.Core the security middleware needs.
type Authorizer interface {
	AuthorizeMutatingRequest(ctx context.Context, req securecore.AuthRequest) securecore.Decision
	RotateCSRF(ctx context.Context, old, sessionID string) (csrf.Token, error)
}

// SecurityOptions tunes SecurityMiddleware.
type SecurityOptions struct {
	// RateKey picks the api rate limit identity. Nil disables the check.
	RateKey KeyExtractor
	// SecureCookies marks rotated CSRF cookies Secure.
	SecureCookies bool
}

// SecurityMiddleware authorizes every request through the core and injects
// the verified claims and session id. Refusals are written with the
// sanitized message only.
func SecurityMiddleware(a Authorizer, opts SecurityOptions) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			header, cookie := CSRFFromRequest(r)
			req := securecore.AuthRequest{
				Method:     r.Method,
				CSRFHeader: header,
				CSRFCookie: cookie,
				Bearer:     BearerToken(r),
			}
			if opts.RateKey != nil {
				req.RateKey = opts.RateKey(r)
			}

			d := a.AuthorizeMutatingRequest(ctx, req)
			if !d.Allowed {
				WritePublicError(w, d.Public())
				return
			}

			if d.Rotate {
				tok, err := a.RotateCSRF(ctx, header, d.SessionID)
				if err != nil {
					// The request already passed; the client keeps its token.
					log.Warn("csrf rotation failed", "err", err)
				} else {
					SetCSRFCookie(w, tok, opts.SecureCookies)
				}
			}

			ctx = contextWithAuth(ctx, d.SessionID, d.Claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken returns the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))
}

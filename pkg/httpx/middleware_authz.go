package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/careportal/pkg/jwtx"
	"github.com/aussiebroadwan/careportal/pkg/securecore"
)

// RequireRole the caller must hold one of the provided roles.
func RequireRole(allowed ...jwtx.Role) Middleware {
	want := make(map[jwtx.Role]struct{}, len(allowed))
	for _, r := range allowed {
		want[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				WritePublicError(w, &securecore.PublicError{
					Outcome: securecore.OutcomeAuthenticationRequired,
					Message: "authentication required",
				})
				return
			}
			if _, ok := want[claims.Role]; !ok {
				writeInsufficientRole(w, allowed...)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RFC 6750-style insufficient_scope response, carrying roles as the scope.
func writeInsufficientRole(w http.ResponseWriter, allowed ...jwtx.Role) {
	names := make([]string, len(allowed))
	for i, r := range allowed {
		names[i] = string(r)
	}
	w.Header().
		Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+strings.Join(names, " ")+`"`)
	WriteError(w, http.StatusForbidden, "forbidden", "insufficient role")
}

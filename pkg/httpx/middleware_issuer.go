package httpx

import (
	"net/http"

	"github.com/aussiebroadwan/careportal/pkg/cryptox"
	"github.com/aussiebroadwan/careportal/pkg/slogx"
)

// IssuerTokenHeader carries the shared credential of the login controller
// that is allowed to open sessions.
const IssuerTokenHeader = "X-Session-Issuer-Token"

// RequireIssuerToken admits only callers presenting token in
// IssuerTokenHeader. An empty token rejects every request.
func RequireIssuerToken(token string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(IssuerTokenHeader)
			if !cryptox.Equal(got, token) {
				slogx.FromContext(r.Context()).Warn("session issuance refused",
					"reason", "issuer credential", "presented", got != "")
				w.Header().Set("WWW-Authenticate", `Bearer realm="session-issuer"`)
				WriteError(w, http.StatusUnauthorized, "unauthorized_client", "session issuer credential required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

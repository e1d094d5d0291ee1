package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/careportal/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestRequireIssuerToken(t *testing.T) {
	const token = "issuer-0123456789abcdef0123456789"

	tests := []struct {
		name       string
		configured string
		presented  string
		want       int
	}{
		{"matching credential", token, token, http.StatusOK},
		{"no credential", token, "", http.StatusUnauthorized},
		{"wrong credential", token, "issuer-0123456789abcdef012345678X", http.StatusUnauthorized},
		{"prefix of credential", token, token[:10], http.StatusUnauthorized},
		{"nothing configured", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := httpx.RequireIssuerToken(tt.configured)(okHandler)

			req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
			if tt.presented != "" {
				req.Header.Set(httpx.IssuerTokenHeader, tt.presented)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				require.Contains(t, rec.Body.String(), "unauthorized_client")
				require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

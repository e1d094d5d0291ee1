package httpx

import (
	"net/http"

	"github.com/aussiebroadwan/careportal/pkg/csrf"
)

// SetCSRFCookie hands the token to the browser for the double-submit check.
// The cookie is readable by page scripts, which echo it in the header.
func SetCSRFCookie(w http.ResponseWriter, tok csrf.Token, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrf.CookieName,
		Value:    tok.Value,
		Path:     "/",
		MaxAge:   max(int(tok.ExpiresAt.Sub(tok.IssuedAt).Seconds()), 1),
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
	w.Header().Set(csrf.HeaderName, tok.Value)
}

// ClearCSRFCookie expires the cookie.
func ClearCSRFCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrf.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// CSRFFromRequest returns the header and cookie copies of the token.
func CSRFFromRequest(r *http.Request) (header, cookie string) {
	header = r.Header.Get(csrf.HeaderName)
	if c, err := r.Cookie(csrf.CookieName); err == nil {
		cookie = c.Value
	}
	return header, cookie
}

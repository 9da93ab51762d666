package httpx

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/bluewhale/auth/pkg/cryptox"
)

// CSRFHeader is the request header checked against the csrf_token cookie.
const CSRFHeader = "X-CSRF-Token"

// MintCSRFToken generates a fresh double-submit token.
func MintCSRFToken() (string, error) {
	return cryptox.GenerateToken(cryptox.TokenSize256)
}

// SetCSRFCookie installs the double-submit cookie. It is deliberately NOT
// HttpOnly: the client has to read it back to echo it in the CSRF header,
// which is what proves the request came from the same origin.
func SetCSRFCookie(w http.ResponseWriter, token string, maxAge int, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
}

// CSRFMiddleware enforces the double-submit check on state-changing methods.
// Safe methods pass through untouched. Both the cookie and the header must be
// present and equal; the comparison is constant time.
func CSRFMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			// Requests authenticated via the Authorization header carry no
			// ambient credential a cross-site page could ride on, so the
			// double-submit check only applies to cookie-based callers.
			if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			c, err := r.Cookie(CSRFCookie)
			if err != nil || c.Value == "" {
				WriteDetail(w, http.StatusForbidden, "CSRF token missing")
				return
			}

			header := r.Header.Get(CSRFHeader)
			if header == "" ||
				subtle.ConstantTimeCompare([]byte(header), []byte(c.Value)) != 1 {
				WriteDetail(w, http.StatusForbidden, "CSRF token mismatch")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

package http

import (
	"net/http"
	"time"

	"github.com/bluewhale/auth/internal/auth/domain"
	"github.com/bluewhale/auth/pkg/httpx"
)

// CookieWriter installs and clears the session cookies. The access token
// cookie keeps the "Bearer " prefix so its value mirrors the Authorization
// header form; both token cookies are HttpOnly and scoped to the whole site
// with SameSite=Lax.
type CookieWriter struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (c CookieWriter) SetAccess(w http.ResponseWriter, accessToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     httpx.AccessTokenCookie,
		Value:    "Bearer " + accessToken,
		Path:     "/",
		MaxAge:   int(c.AccessTTL.Seconds()),
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieWriter) SetRefresh(w http.ResponseWriter, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     httpx.RefreshTokenCookie,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(c.RefreshTTL.Seconds()),
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetPair installs both session cookies for a freshly issued token pair.
func (c CookieWriter) SetPair(w http.ResponseWriter, pair domain.TokenPair) {
	c.SetAccess(w, pair.AccessToken)
	if pair.RefreshToken != "" {
		c.SetRefresh(w, pair.RefreshToken)
	}
}

// Clear expires every session cookie, including the CSRF token.
func (c CookieWriter) Clear(w http.ResponseWriter) {
	for _, name := range []string{
		httpx.AccessTokenCookie,
		httpx.RefreshTokenCookie,
		httpx.CSRFCookie,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Secure:   c.Secure,
			HttpOnly: name != httpx.CSRFCookie,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

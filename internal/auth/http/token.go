package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bluewhale/auth/internal/auth/service"
	"github.com/bluewhale/auth/pkg/httpx"
	"github.com/bluewhale/auth/pkg/slogx"
)

// TokenHandler serves POST /v1/auth/token.
// Accepts application/x-www-form-urlencoded in the OAuth2 password-grant
// shape: username, password and an optional mfa_code.
type TokenHandler struct {
	TokenService *service.TokenService
	Cookies      CookieWriter
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		httpx.WriteDetail(w, http.StatusBadRequest, "Expected form-encoded body")
		return
	}
	if err := r.ParseForm(); err != nil {
		httpx.WriteDetail(w, http.StatusBadRequest, "Invalid form body")
		return
	}

	res, err := h.TokenService.Login(ctx, service.LoginParams{
		Username:  strings.TrimSpace(r.Form.Get("username")),
		Password:  r.Form.Get("password"),
		MFACode:   strings.TrimSpace(r.Form.Get("mfa_code")),
		UserAgent: r.UserAgent(),
		IPAddress: httpx.IPKeyExtractor(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			httpx.WriteDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		case errors.Is(err, service.ErrInactiveUser):
			httpx.WriteDetail(w, http.StatusBadRequest, "Inactive user")
		case errors.Is(err, service.ErrInvalidMFACode):
			httpx.WriteDetail(w, http.StatusUnauthorized, "Invalid MFA code")
		default:
			log.Error("login failed", "err", err)
			httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	// MFA-enabled accounts get a challenge instead of tokens until the
	// client retries with a code. Deliberately a 200: the credentials were
	// correct, the exchange is just not finished.
	if res.Challenge != nil {
		httpx.WriteJSON(w, http.StatusOK, res.Challenge)
		return
	}

	log.Info("login succeeded", "user_id", res.Pair.UserID)

	h.Cookies.SetPair(w, *res.Pair)
	httpx.WriteJSON(w, http.StatusOK, res.Pair)
}

package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bluewhale/auth/internal/auth/service"
	"github.com/bluewhale/auth/pkg/httpx"
	"github.com/bluewhale/auth/pkg/slogx"
)

// RefreshHandler serves POST /v1/auth/refresh. The refresh token is taken
// from the refresh_token cookie, with a form field fallback for non-browser
// clients. A rejected token clears the session cookies so a browser stuck
// with a dead session recovers on its next attempt.
type RefreshHandler struct {
	TokenService *service.TokenService
	Cookies      CookieWriter
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	opaque := ""
	if c, err := r.Cookie(httpx.RefreshTokenCookie); err == nil {
		opaque = c.Value
	}
	if opaque == "" {
		if err := r.ParseForm(); err == nil {
			opaque = strings.TrimSpace(r.Form.Get("refresh_token"))
		}
	}
	if opaque == "" {
		httpx.WriteDetail(w, http.StatusUnauthorized, "Refresh token missing")
		return
	}

	pair, err := h.TokenService.Refresh(ctx, opaque)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRefresh), errors.Is(err, service.ErrExpiredRefresh):
			h.Cookies.Clear(w)
			httpx.WriteDetail(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		case errors.Is(err, service.ErrInactiveUser):
			h.Cookies.Clear(w)
			httpx.WriteDetail(w, http.StatusBadRequest, "Inactive user")
		default:
			log.Error("token refresh failed", "err", err)
			httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.Cookies.SetAccess(w, pair.AccessToken)
	httpx.WriteJSON(w, http.StatusOK, pair)
}

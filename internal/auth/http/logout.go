package http

import (
	"net/http"

	"github.com/bluewhale/auth/internal/auth/service"
	"github.com/bluewhale/auth/pkg/httpx"
	"github.com/bluewhale/auth/pkg/slogx"
)

// LogoutHandler serves POST /v1/auth/logout and POST /v1/auth/logout/all.
type LogoutHandler struct {
	TokenService *service.TokenService
	Cookies      CookieWriter
}

// HandleLogout revokes the refresh token named by the cookie, if any, and
// clears the session cookies. It never fails on a missing or already revoked
// token: logout is idempotent from the client's point of view.
func (h *LogoutHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if c, err := r.Cookie(httpx.RefreshTokenCookie); err == nil && c.Value != "" {
		if err := h.TokenService.Logout(ctx, c.Value); err != nil {
			log.Error("logout revocation failed", "err", err)
			httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}

	h.Cookies.Clear(w)
	httpx.WriteDetail(w, http.StatusOK, "Successfully logged out")
}

// HandleLogoutAll revokes every active session for the authenticated user.
func (h *LogoutHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		httpx.WriteDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	n, err := h.TokenService.LogoutAll(ctx, userID)
	if err != nil {
		log.Error("logout all failed", "user_id", userID, "err", err)
		httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	log.Info("all sessions revoked", "user_id", userID, "count", n)

	h.Cookies.Clear(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"detail":           "Successfully logged out of all sessions",
		"sessions_revoked": n,
	})
}

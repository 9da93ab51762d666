package http

import (
	"net/http"

	"github.com/bluewhale/auth/internal/auth/service"
	"github.com/bluewhale/auth/pkg/httpx"
	"github.com/bluewhale/auth/pkg/slogx"
)

// SessionsHandler serves GET /v1/auth/sessions with the caller's active
// sessions as redacted views.
type SessionsHandler struct {
	TokenService *service.TokenService
}

func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	sessions, err := h.TokenService.ListSessions(ctx, httpx.UserIDFromCtx(ctx))
	if err != nil {
		log.Error("session listing failed", "err", err)
		httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

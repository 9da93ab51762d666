package http

import (
	"net/http"

	"github.com/bluewhale/auth/pkg/httpx"
	"github.com/bluewhale/auth/pkg/slogx"
)

// CSRFHandler serves GET /v1/auth/csrf: it mints a double-submit token, sets
// it as a readable cookie and echoes it in the body for clients that prefer
// to pick it up there.
type CSRFHandler struct {
	Cookies CookieWriter
}

func (h *CSRFHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	token, err := httpx.MintCSRFToken()
	if err != nil {
		log.Error("csrf token mint failed", "err", err)
		httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	httpx.SetCSRFCookie(w, token, int(h.Cookies.RefreshTTL.Seconds()), h.Cookies.Secure)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

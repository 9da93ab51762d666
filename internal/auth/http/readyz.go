package http

import (
	"context"
	"net/http"
	"time"

	"github.com/bluewhale/auth/internal/auth/store"
	"github.com/bluewhale/auth/pkg/httpx"
)

// ReadyzHandler is the readiness probe. It degrades to 503 when the backing
// database stops answering. redisPing is optional and only checked when the
// deployment runs with a shared rate-limit backend.
func ReadyzHandler(startTime time.Time, version string, st store.Store, redisPing func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"database": "ok"}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks["database"] = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if redisPing != nil {
			checks["redis"] = "ok"
			if err := redisPing(r.Context()); err != nil {
				checks["redis"] = "error: " + err.Error()
				overallStatus = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		}

		httpx.WriteJSON(w, statusCode, healthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}

package handler

import (
	"context"
	"net/http"

	"github.com/mlopezfr/tenderflow/internal/api/response"
)

// Pinger is anything that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns the handler for GET /api/v1/health. It reports
// degraded rather than failing outright when a dependency is down, so load
// balancers keep routing while operators investigate.
func NewHealthHandler(db, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		checks := map[string]string{"database": "ok", "redis": "ok"}

		if err := db.Ping(r.Context()); err != nil {
			status = "degraded"
			checks["database"] = "unreachable"
		}
		if err := cache.Ping(r.Context()); err != nil {
			status = "degraded"
			checks["redis"] = "unreachable"
		}

		response.JSON(w, map[string]any{
			"status": status,
			"checks": checks,
		})
	}
}

package router

import (
	"net/http"
	"slices"

	"github.com/shandysiswandi/otpgate/internal/pkg/config"
)

const maintenanceRetryAfter = "120"

// middlewareMaintenance answers 503 while app.maintenance.enabled is set, or
// for the routes listed in app.maintenance.endpoints. The root and health
// routes stay up. Config is read per request so a reload applies at once.
func middlewareMaintenance(cfg config.Config) Middleware {
	return func(next http.Handler) http.Handler {
		if cfg == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := matchedRoutePath(r)
			if route == "/" || route == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			if cfg.GetBool("app.maintenance.enabled") || slices.Contains(cfg.GetArray("app.maintenance.endpoints"), route) {
				w.Header().Set("Retry-After", maintenanceRetryAfter)
				writeJSON(w, errorResponse{Message: "Service is under maintenance", Reason: "MAINTENANCE"}, http.StatusServiceUnavailable)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

package app

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

const healthPingTimeout = 2 * time.Second

type redisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

type dbPinger interface {
	Ping(ctx context.Context) error
}

type healthChecker struct {
	cache redisPinger
	db    dbPinger
	clock clock.Clocker
}

type HealthResponse struct {
	Status string            `json:"status" example:"ok"`
	Checks map[string]string `json:"checks"`
	Time   time.Time         `json:"time"`

	code int
}

func (h HealthResponse) StatusCode() int { return h.code }

func (HealthResponse) Message() string { return "health check" }

// Check reports whether Redis (and Postgres when the audit trail is on) answer.
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} router.successResponse{data=HealthResponse} "Healthy"
// @Failure 503 {object} router.successResponse{data=HealthResponse} "A dependency is down"
// @Router /health [get]
func (h *healthChecker) Check(r *router.Request) (any, error) {
	resp := HealthResponse{Status: "ok", Checks: map[string]string{}, code: http.StatusOK}

	check := func(name string, ping func(ctx context.Context) error) {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()

		if err := ping(ctx); err != nil {
			resp.Checks[name] = "down"
			resp.Status = "degraded"
			resp.code = http.StatusServiceUnavailable
			return
		}
		resp.Checks[name] = "up"
	}

	check("redis", func(ctx context.Context) error { return h.cache.Ping(ctx).Err() })
	if h.db != nil {
		check("postgres", h.db.Ping)
	}

	resp.Time = h.clock.Now().UTC()
	return resp, nil
}

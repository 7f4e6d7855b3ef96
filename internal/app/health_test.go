package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dbStub struct{ err error }

func (d dbStub) Ping(context.Context) error { return d.err }

func serveHealth(t *testing.T, h *healthChecker) (int, HealthResponse) {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte("app:\n  name: otpgate\n"))
	require.NoError(t, err)

	r := router.NewRouter(router.Config{Config: cfg, UUID: uid.NewUUID(), Instrument: instrument.NewNoop()})
	r.GET("/health", h.Check)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var env struct {
		Data HealthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env.Data
}

func TestHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h := &healthChecker{cache: client, clock: clock.NewManual(now)}

	code, resp := serveHealth(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]string{"redis": "up"}, resp.Checks)
	assert.True(t, now.Equal(resp.Time))

	h.db = dbStub{}
	code, resp = serveHealth(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"redis": "up", "postgres": "up"}, resp.Checks)

	h.db = dbStub{err: errors.New("connection refused")}
	code, resp = serveHealth(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "down", resp.Checks["postgres"])

	mr.Close()
	code, resp = serveHealth(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "down", resp.Checks["redis"])
}

func TestDefaults(t *testing.T) {
	cfg, err := config.NewViperFromBytes("yaml", []byte("modules:\n  adminauth:\n    guard:\n      cooldown_seconds: 30\n"),
		config.WithDefaults(defaults))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.GetSecond("modules.adminauth.guard.cooldown_seconds"))
	assert.Equal(t, 5*time.Minute, cfg.GetSecond("modules.adminauth.otp.ttl_seconds"))
	assert.Equal(t, time.Hour, cfg.GetMinute("modules.adminauth.guard.window_minutes"))
	assert.Equal(t, 5, cfg.GetInt("modules.adminauth.guard.max_requests_per_window"))
	assert.Equal(t, 3, cfg.GetInt("modules.adminauth.guard.max_failed_attempts"))
	assert.Equal(t, time.Hour, cfg.GetHour("modules.adminauth.guard.lockout_hours"))
	assert.Equal(t, 24*time.Hour, cfg.GetHour("modules.adminauth.session.ttl_hours"))
	assert.Equal(t, 10*time.Second, cfg.GetSecond("modules.adminauth.delivery.timeout_seconds"))
	assert.Equal(t, []string{"code", "token", "session_token", "authorization"}, cfg.GetArray("instrument.log_mask_fields"))
	assert.Equal(t, "memory", cfg.GetString("messaging.driver"))
}

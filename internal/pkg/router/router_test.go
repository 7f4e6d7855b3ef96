package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
)

type fixedID string

func (f fixedID) Generate() string { return string(f) }

type tokenAuth map[string]*Principal

func (a tokenAuth) Authenticate(_ context.Context, token string) (*Principal, error) {
	if p, ok := a[token]; ok {
		return p, nil
	}
	return nil, goerror.NewBusiness("Session is not valid", goerror.CodeUnauthorized, goerror.WithReason("SESSION_INVALID"))
}

type created struct {
	ID string `json:"id"`
}

func (created) StatusCode() int { return http.StatusCreated }
func (created) Message() string { return "created" }

type body struct {
	Message string            `json:"message"`
	Reason  string            `json:"reason"`
	Error   map[string]string `json:"error"`
	Data    json.RawMessage   `json:"data"`
}

func newTestRouter(t *testing.T, yaml string) *Router {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	require.NoError(t, err)

	r := NewRouter(Config{Config: cfg, UUID: fixedID("generated-cid"), Instrument: instrument.NewNoop()})
	r.UseAuthenticator(tokenAuth{"good": {Email: "admin@x.com", SessionID: "s1"}})

	r.GET("/health", func(*Request) (any, error) { return map[string]string{"status": "ok"}, nil })
	r.POST("/api/v1/admin/otp/request", func(req *Request) (any, error) {
		return map[string]string{"ip": req.ClientIP()}, nil
	})
	r.GET("/api/v1/admin/session", func(req *Request) (any, error) {
		return map[string]string{"email": GetPrincipal(req.Context()).Email}, nil
	})
	r.POST("/api/v1/items", func(*Request) (any, error) { return created{ID: "1"}, nil })
	r.POST("/api/v1/admin/logout", func(*Request) (any, error) { return nil, nil })
	r.GET("/api/v1/boom", func(*Request) (any, error) { panic("boom") })
	r.GET("/api/v1/fail", func(*Request) (any, error) { return nil, errors.New("db down") })
	r.GET("/api/v1/limited", func(*Request) (any, error) {
		return nil, goerror.NewBusiness("Slow down", goerror.CodeTooManyRequest, goerror.WithField(FieldRetryAfter, "30"))
	})
	r.GET("/api/v1/query", func(req *Request) (any, error) {
		n, err := req.GetQueryInt("n")
		if err != nil {
			return nil, err
		}
		return map[string]int{"n": n}, nil
	})

	return r
}

func serve(t *testing.T, h http.Handler, method, path string, headers ...string) (*httptest.ResponseRecorder, body) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var b body
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	}
	return rec, b
}

func TestRouter_Responses(t *testing.T) {
	r := newTestRouter(t, "app:\n  name: test\n")

	rec, b := serve(t, r, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to API OTPGate", b.Message)

	rec, b = serve(t, r, http.MethodPost, "/api/v1/items", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "created", b.Message)
	assert.JSONEq(t, `{"id":"1"}`, string(b.Data))

	rec, _ = serve(t, r, http.MethodPost, "/api/v1/admin/logout", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())

	rec, b = serve(t, r, http.MethodGet, "/api/v1/fail", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Something went wrong, please try again", b.Message)

	rec, _ = serve(t, r, http.MethodGet, "/api/v1/limited", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	rec, _ = serve(t, r, http.MethodGet, "/api/v1/query?n=x", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, b = serve(t, r, http.MethodGet, "/api/v1/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "endpoint not found", b.Message)

	rec, _ = serve(t, r, http.MethodDelete, "/api/v1/items")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_Authentication(t *testing.T) {
	r := newTestRouter(t, "app:\n  name: test\n")

	rec, _ := serve(t, r, http.MethodPost, "/api/v1/admin/otp/request")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, b := serve(t, r, http.MethodGet, "/api/v1/admin/session")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication required", b.Message)

	rec, b = serve(t, r, http.MethodGet, "/api/v1/admin/session", "Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "SESSION_INVALID", b.Reason)

	rec, b = serve(t, r, http.MethodGet, "/api/v1/admin/session", "Authorization", "bearer good")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"email":"admin@x.com"}`, string(b.Data))
}

func TestRouter_NoAuthenticator(t *testing.T) {
	cfg, err := config.NewViperFromBytes("yaml", []byte("app:\n  name: test\n"))
	require.NoError(t, err)

	r := NewRouter(Config{Config: cfg, UUID: fixedID("x"), Instrument: instrument.NewNoop()})
	r.GET("/api/v1/admin/session", func(*Request) (any, error) { return "ok", nil })

	rec, _ := serve(t, r, http.MethodGet, "/api/v1/admin/session", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_Recover(t *testing.T) {
	r := newTestRouter(t, "app:\n  name: test\n")

	rec, b := serve(t, r, http.MethodGet, "/api/v1/boom", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Something went wrong, please try again", b.Message)
}

func TestRouter_ClientIP(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		remote  string
		headers []string
		want    string
	}{
		{
			name:   "no proxies configured trusts forwarded header",
			yaml:   "app:\n  name: test\n",
			remote: "10.0.0.5:4321",
			headers: []string{
				"X-Forwarded-For", "203.0.113.9, 10.0.0.1",
			},
			want: "203.0.113.9",
		},
		{
			name:    "trusted proxy",
			yaml:    "app:\n  server:\n    trusted_proxies: \"10.0.0.0/8, 127.0.0.1\"\n",
			remote:  "10.1.2.3:80",
			headers: []string{"X-Real-IP", "198.51.100.4"},
			want:    "198.51.100.4",
		},
		{
			name:    "untrusted peer is used as is",
			yaml:    "app:\n  server:\n    trusted_proxies: \"10.0.0.0/8\"\n",
			remote:  "192.0.2.44:80",
			headers: []string{"X-Real-IP", "198.51.100.4"},
			want:    "192.0.2.44",
		},
		{
			name:    "garbage header falls back to peer",
			yaml:    "app:\n  name: test\n",
			remote:  "192.0.2.45:80",
			headers: []string{"X-Real-IP", "not-an-ip"},
			want:    "192.0.2.45",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, tt.yaml)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/otp/request", strings.NewReader("{}"))
			req.RemoteAddr = tt.remote
			for i := 0; i+1 < len(tt.headers); i += 2 {
				req.Header.Set(tt.headers[i], tt.headers[i+1])
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			var b body
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
			assert.JSONEq(t, `{"ip":"`+tt.want+`"}`, string(b.Data))
		})
	}
}

func TestRouter_CorrelationID(t *testing.T) {
	r := newTestRouter(t, "app:\n  name: test\n")

	rec, _ := serve(t, r, http.MethodGet, "/health", HeaderCorrelationID, "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderCorrelationID))

	rec, _ = serve(t, r, http.MethodGet, "/health", HeaderRequestID, "req-9")
	assert.Equal(t, "req-9", rec.Header().Get(HeaderCorrelationID))

	rec, _ = serve(t, r, http.MethodGet, "/health", HeaderCorrelationID, "has space")
	assert.Equal(t, "generated-cid", rec.Header().Get(HeaderCorrelationID))

	rec, _ = serve(t, r, http.MethodGet, "/health", HeaderCorrelationID, strings.Repeat("a", 129))
	assert.Equal(t, "generated-cid", rec.Header().Get(HeaderCorrelationID))
}

func TestRouter_Maintenance(t *testing.T) {
	t.Run("endpoint list", func(t *testing.T) {
		r := newTestRouter(t, "app:\n  maintenance:\n    endpoints: \"/api/v1/admin/otp/request\"\n")

		rec, b := serve(t, r, http.MethodPost, "/api/v1/admin/otp/request")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "MAINTENANCE", b.Reason)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))

		rec, _ = serve(t, r, http.MethodGet, "/api/v1/admin/session", "Authorization", "Bearer good")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("whole service", func(t *testing.T) {
		r := newTestRouter(t, "app:\n  maintenance:\n    enabled: true\n")

		rec, _ := serve(t, r, http.MethodGet, "/api/v1/admin/session", "Authorization", "Bearer good")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		rec, _ = serve(t, r, http.MethodGet, "/health")
		assert.Equal(t, http.StatusOK, rec.Code)

		rec, _ = serve(t, r, http.MethodGet, "/")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

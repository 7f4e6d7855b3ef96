package inbound

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/adminauth/entity"
	"github.com/shandysiswandi/otpgate/internal/adminauth/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeUC struct {
	requestIn  usecase.RequestOTPInput
	requestOut *usecase.RequestOTPOutput
	verifyIn   usecase.VerifyOTPInput
	verifyOut  *usecase.VerifyOTPOutput
	err        error

	sessions  map[string]*usecase.SessionOutput
	sessErr   error
	loggedOut string
}

func (f *fakeUC) RequestOTP(_ context.Context, in usecase.RequestOTPInput) (*usecase.RequestOTPOutput, error) {
	f.requestIn = in
	return f.requestOut, f.err
}

func (f *fakeUC) ResendOTP(_ context.Context, in usecase.ResendOTPInput) (*usecase.RequestOTPOutput, error) {
	f.requestIn = usecase.RequestOTPInput(in)
	return f.requestOut, f.err
}

func (f *fakeUC) VerifyOTP(_ context.Context, in usecase.VerifyOTPInput) (*usecase.VerifyOTPOutput, error) {
	f.verifyIn = in
	return f.verifyOut, f.err
}

func (f *fakeUC) Logout(_ context.Context, in usecase.LogoutInput) (*entity.FlowState, error) {
	f.loggedOut = in.SessionToken
	return &entity.FlowState{Step: entity.StepEmail}, nil
}

func (f *fakeUC) ValidateSession(_ context.Context, in usecase.ValidateSessionInput) (*usecase.SessionOutput, error) {
	if f.sessErr != nil {
		return nil, f.sessErr
	}
	s, ok := f.sessions[in.SessionToken]
	if !ok {
		return nil, goerror.NewBusiness("Session is not valid", goerror.CodeUnauthorized,
			goerror.WithReason(entity.ReasonSessionInvalid))
	}
	return s, nil
}

type envelope struct {
	Message string            `json:"message"`
	Reason  string            `json:"reason"`
	Error   map[string]string `json:"error"`
	Data    json.RawMessage   `json:"data"`
}

func newServer(t *testing.T, f *fakeUC) http.Handler {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte("app:\n  name: otpgate\n"))
	require.NoError(t, err)

	r := router.NewRouter(router.Config{Config: cfg, UUID: uid.NewUUID(), Instrument: instrument.NewNoop()})
	RegisterHTTPEndpoint(r, f, clock.NewManual(t0))
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHTTP_RequestOTP(t *testing.T) {
	f := &fakeUC{requestOut: &usecase.RequestOTPOutput{
		Token:     "tok",
		ExpiresAt: t0.Add(5 * time.Minute),
		State: entity.FlowState{
			Step:              entity.StepOTP,
			Email:             "admin@x.com",
			OTPSentAt:         t0,
			OTPExpiresAt:      t0.Add(5 * time.Minute),
			ResendAvailableAt: t0.Add(time.Minute),
			RemainingAttempts: 3,
		},
	}}
	h := newServer(t, f)

	rec, env := do(t, h, http.MethodPost, "/api/v1/admin/otp/request", `{"email":"admin@x.com"}`,
		"X-Real-IP", "203.0.113.7", "User-Agent", "browser")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(router.HeaderCorrelationID))

	var data OTPIssuedResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, data.OK)
	assert.Equal(t, "otp", data.Step)
	assert.Equal(t, "tok", data.Token)
	assert.Equal(t, int64(300), data.ExpiresInSeconds)
	assert.False(t, data.Expired)
	assert.Equal(t, int64(60), data.ResendAvailableInSeconds)
	require.NotNil(t, data.RemainingAttempts)
	assert.Equal(t, 3, *data.RemainingAttempts)

	assert.Equal(t, "admin@x.com", f.requestIn.Email)
	assert.Equal(t, "203.0.113.7", f.requestIn.IP)
	assert.Equal(t, "browser", f.requestIn.UserAgent)
}

func TestHTTP_ResendOTP_CountdownFromFlowState(t *testing.T) {
	f := &fakeUC{requestOut: &usecase.RequestOTPOutput{
		Token:     "tok",
		ExpiresAt: t0.Add(-time.Second),
		State: entity.FlowState{
			Step:              entity.StepOTP,
			Email:             "admin@x.com",
			OTPSentAt:         t0.Add(-5*time.Minute - time.Second),
			OTPExpiresAt:      t0.Add(-time.Second),
			RemainingAttempts: -1,
		},
	}}
	h := newServer(t, f)

	rec, env := do(t, h, http.MethodPost, "/api/v1/admin/otp/resend", `{"email":"admin@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var data OTPIssuedResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, data.Expired)
	assert.Zero(t, data.ExpiresInSeconds)
	assert.Zero(t, data.ResendAvailableInSeconds)
	assert.Nil(t, data.RemainingAttempts)
}

func TestHTTP_RequestOTP_RejectsUnknownFields(t *testing.T) {
	h := newServer(t, &fakeUC{})

	rec, _ := do(t, h, http.MethodPost, "/api/v1/admin/otp/request", `{"email":"a@x.com","admin":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_RateLimitedSetsRetryAfter(t *testing.T) {
	f := &fakeUC{err: goerror.NewBusiness("Too many code requests, please wait", goerror.CodeTooManyRequest,
		goerror.WithReason(entity.ReasonRateLimited),
		goerror.WithField(entity.FieldStep, "otp"),
		goerror.WithField(entity.FieldRetryAfter, "42"))}
	h := newServer(t, f)

	rec, env := do(t, h, http.MethodPost, "/api/v1/admin/otp/resend", `{"email":"admin@x.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
	assert.Equal(t, entity.ReasonRateLimited, env.Reason)
	assert.Equal(t, "otp", env.Error[entity.FieldStep])
}

func TestHTTP_VerifyOTP(t *testing.T) {
	f := &fakeUC{verifyOut: &usecase.VerifyOTPOutput{
		SessionToken: "session",
		ExpiresAt:    t0.Add(24 * time.Hour),
		State:        entity.FlowState{Step: entity.StepAuthenticated},
	}}
	h := newServer(t, f)

	rec, env := do(t, h, http.MethodPost, "/api/v1/admin/otp/verify", `{"email":"admin@x.com","code":"482913","token":"tok"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var data VerifyOTPResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, data.OK)
	assert.Equal(t, "authenticated", data.Step)
	assert.Equal(t, "session", data.SessionToken)
	assert.Equal(t, usecase.VerifyOTPInput{Email: "admin@x.com", Code: "482913", Token: "tok", IP: "192.0.2.1"}, f.verifyIn)
}

func TestHTTP_VerifyOTP_Invalid(t *testing.T) {
	f := &fakeUC{err: goerror.NewBusiness("Invalid or expired code", goerror.CodeUnauthorized,
		goerror.WithReason(entity.ReasonOTPInvalid),
		goerror.WithField(entity.FieldStep, "otp"),
		goerror.WithField(entity.FieldRemainingAttempts, "2"))}
	h := newServer(t, f)

	rec, env := do(t, h, http.MethodPost, "/api/v1/admin/otp/verify", `{"email":"admin@x.com","code":"000000"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired code", env.Message)
	assert.Equal(t, entity.ReasonOTPInvalid, env.Reason)
	assert.Equal(t, "2", env.Error[entity.FieldRemainingAttempts])
}

func TestHTTP_SessionAndLogout(t *testing.T) {
	f := &fakeUC{sessions: map[string]*usecase.SessionOutput{
		"good": {SessionID: "id", Email: "admin@x.com", CreatedAt: t0, ExpiresAt: t0.Add(time.Hour)},
	}}
	h := newServer(t, f)

	rec, env := do(t, h, http.MethodGet, "/api/v1/admin/session", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication required", env.Message)

	rec, env = do(t, h, http.MethodGet, "/api/v1/admin/session", "", "Authorization", "Bearer bad")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, entity.ReasonSessionInvalid, env.Reason)

	rec, env = do(t, h, http.MethodGet, "/api/v1/admin/session", "", "Authorization", "Bearer good")
	require.Equal(t, http.StatusOK, rec.Code)
	var data SessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "admin@x.com", data.Email)
	assert.Equal(t, int64(3600), data.ExpiresInSeconds)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/admin/logout", "", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "good", f.loggedOut)
}

func TestHTTP_SessionExpired(t *testing.T) {
	f := &fakeUC{sessErr: goerror.NewBusiness("Session has expired", goerror.CodeUnauthorized,
		goerror.WithReason(entity.ReasonSessionExpired), goerror.WithField(entity.FieldStep, "email"))}
	h := newServer(t, f)

	rec, env := do(t, h, http.MethodPost, "/api/v1/admin/logout", "", "Authorization", "Bearer old")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, entity.ReasonSessionExpired, env.Reason)
	assert.Equal(t, "email", env.Error[entity.FieldStep])
	assert.Empty(t, f.loggedOut)
}

package inbound

import (
	"math"
	"time"

	"github.com/shandysiswandi/otpgate/internal/adminauth/entity"
	"github.com/shandysiswandi/otpgate/internal/adminauth/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

// HTTPEndpoint exposes the admin OTP login flow over HTTP.
type HTTPEndpoint struct {
	uc    uc
	clock clock.Clocker
}

// RequestOTP sends a sign-in code to an allow-listed admin email.
// @Summary Request admin sign-in code
// @Description Checks the email against the admin allow-list and the abuse guard, then emails a one-time code.
// @Tags Admin, Authentication
// @Accept json
// @Produce json
// @Param request body RequestOTPRequest true "Email payload"
// @Success 200 {object} router.successResponse{data=OTPIssuedResponse} "Code issued"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 403 {object} router.errorResponse "INVALID_EMAIL"
// @Failure 423 {object} router.errorResponse "ACCOUNT_LOCKED"
// @Failure 429 {object} router.errorResponse "RATE_LIMITED"
// @Failure 503 {object} router.errorResponse "DELIVERY_FAILED"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/admin/otp/request [post]
func (h *HTTPEndpoint) RequestOTP(r *router.Request) (any, error) {
	var req RequestOTPRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.RequestOTP(r.Context(), usecase.RequestOTPInput{
		Email:     req.Email,
		IP:        r.ClientIP(),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		return nil, err
	}

	return h.issued(resp), nil
}

// ResendOTP replaces the current code with a new one.
// @Summary Resend admin sign-in code
// @Description Issues a fresh code for the same email. The previous code stops working. Cooldown and hourly quota apply.
// @Tags Admin, Authentication
// @Accept json
// @Produce json
// @Param request body RequestOTPRequest true "Email payload"
// @Success 200 {object} router.successResponse{data=OTPIssuedResponse} "Code issued"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 403 {object} router.errorResponse "INVALID_EMAIL"
// @Failure 423 {object} router.errorResponse "ACCOUNT_LOCKED"
// @Failure 429 {object} router.errorResponse "RATE_LIMITED"
// @Failure 503 {object} router.errorResponse "DELIVERY_FAILED"
// @Router /api/v1/admin/otp/resend [post]
func (h *HTTPEndpoint) ResendOTP(r *router.Request) (any, error) {
	var req RequestOTPRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.ResendOTP(r.Context(), usecase.ResendOTPInput{
		Email:     req.Email,
		IP:        r.ClientIP(),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		return nil, err
	}

	return h.issued(resp), nil
}

// VerifyOTP exchanges a valid code for a session token.
// @Summary Verify admin sign-in code
// @Description Validates the code (and verification token when given) and opens an admin session.
// @Tags Admin, Authentication
// @Accept json
// @Produce json
// @Param request body VerifyOTPRequest true "Verification payload"
// @Success 200 {object} router.successResponse{data=VerifyOTPResponse} "Signed in"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "OTP_INVALID, OTP_EXPIRED or OTP_ALREADY_USED"
// @Failure 403 {object} router.errorResponse "INVALID_EMAIL"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 423 {object} router.errorResponse "ACCOUNT_LOCKED"
// @Router /api/v1/admin/otp/verify [post]
func (h *HTTPEndpoint) VerifyOTP(r *router.Request) (any, error) {
	var req VerifyOTPRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.VerifyOTP(r.Context(), usecase.VerifyOTPInput{
		Email:     req.Email,
		Code:      req.Code,
		Token:     req.Token,
		IP:        r.ClientIP(),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		return nil, err
	}

	return VerifyOTPResponse{
		OK:           true,
		Step:         resp.State.Step.String(),
		SessionToken: resp.SessionToken,
		ExpiresAt:    resp.ExpiresAt,
	}, nil
}

// Logout ends the current admin session.
// @Summary Admin logout
// @Tags Admin, Authentication
// @Security BearerAuth
// @Success 204 "Signed out"
// @Failure 401 {object} router.errorResponse "SESSION_INVALID or SESSION_EXPIRED"
// @Router /api/v1/admin/logout [post]
func (h *HTTPEndpoint) Logout(r *router.Request) (any, error) {
	if _, err := h.uc.Logout(r.Context(), usecase.LogoutInput{
		SessionToken: r.BearerToken(),
		IP:           r.ClientIP(),
		UserAgent:    r.UserAgent(),
	}); err != nil {
		return nil, err
	}

	return LogoutResponse{}, nil
}

// Session describes the current admin session.
// @Summary Current admin session
// @Tags Admin, Authentication
// @Security BearerAuth
// @Produce json
// @Success 200 {object} router.successResponse{data=SessionResponse} "Session"
// @Failure 401 {object} router.errorResponse "SESSION_INVALID or SESSION_EXPIRED"
// @Router /api/v1/admin/session [get]
func (h *HTTPEndpoint) Session(r *router.Request) (any, error) {
	sess, err := h.uc.ValidateSession(r.Context(), usecase.ValidateSessionInput{SessionToken: r.BearerToken()})
	if err != nil {
		return nil, err
	}

	return SessionResponse{
		Email:            sess.Email,
		CreatedAt:        sess.CreatedAt,
		ExpiresAt:        sess.ExpiresAt,
		ExpiresInSeconds: seconds(sess.ExpiresAt.Sub(h.clock.Now())),
	}, nil
}

func (h *HTTPEndpoint) issued(resp *usecase.RequestOTPOutput) OTPIssuedResponse {
	now := h.clock.Now()
	remaining, expired := resp.State.Countdown(now)

	out := OTPIssuedResponse{
		OK:                       true,
		Step:                     resp.State.Step.String(),
		Token:                    resp.Token,
		ExpiresAt:                resp.ExpiresAt,
		ExpiresInSeconds:         seconds(remaining),
		Expired:                  expired,
		ResendAvailableInSeconds: seconds(resp.State.ResendIn(now)),
	}

	if n := resp.State.RemainingAttempts; n >= 0 && resp.State.Step == entity.StepOTP {
		out.RemainingAttempts = &n
	}

	return out
}

func seconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

package inbound

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/adminauth/entity"
	"github.com/shandysiswandi/otpgate/internal/adminauth/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

type uc interface {
	RequestOTP(ctx context.Context, in usecase.RequestOTPInput) (*usecase.RequestOTPOutput, error)
	ResendOTP(ctx context.Context, in usecase.ResendOTPInput) (*usecase.RequestOTPOutput, error)
	VerifyOTP(ctx context.Context, in usecase.VerifyOTPInput) (*usecase.VerifyOTPOutput, error)
	Logout(ctx context.Context, in usecase.LogoutInput) (*entity.FlowState, error)
	ValidateSession(ctx context.Context, in usecase.ValidateSessionInput) (*usecase.SessionOutput, error)
}

func RegisterHTTPEndpoint(r *router.Router, uc uc, clk clock.Clocker) {
	end := &HTTPEndpoint{uc: uc, clock: clk}

	r.POST("/api/v1/admin/otp/request", end.RequestOTP)
	r.POST("/api/v1/admin/otp/resend", end.ResendOTP)
	r.POST("/api/v1/admin/otp/verify", end.VerifyOTP)

	// need authenticated
	r.POST("/api/v1/admin/logout", end.Logout)
	r.GET("/api/v1/admin/session", end.Session)

	r.UseAuthenticator(&Authenticator{uc: uc})
}

// Authenticator resolves bearer session tokens for the router.
type Authenticator struct {
	uc uc
}

// Authenticate implements router.Authenticator.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*router.Principal, error) {
	sess, err := a.uc.ValidateSession(ctx, usecase.ValidateSessionInput{SessionToken: token})
	if err != nil {
		return nil, err
	}

	return &router.Principal{
		Email:     sess.Email,
		SessionID: sess.SessionID,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

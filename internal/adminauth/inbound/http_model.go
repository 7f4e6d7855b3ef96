package inbound

import (
	"net/http"
	"time"
)

type RequestOTPRequest struct {
	Email string `json:"email"`
}

type OTPIssuedResponse struct {
	OK                       bool      `json:"ok"`
	Step                     string    `json:"step" example:"otp"`
	Token                    string    `json:"token"`
	ExpiresAt                time.Time `json:"expires_at"`
	ExpiresInSeconds         int64     `json:"expires_in_seconds" example:"300"`
	Expired                  bool      `json:"expired" example:"false"`
	ResendAvailableInSeconds int64     `json:"resend_available_in_seconds" example:"60"`
	RemainingAttempts        *int      `json:"remaining_attempts,omitempty" example:"3"`
}

func (OTPIssuedResponse) Message() string {
	return "A sign-in code has been sent to your email."
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
	Token string `json:"token"`
}

type VerifyOTPResponse struct {
	OK           bool      `json:"ok"`
	Step         string    `json:"step" example:"authenticated"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (VerifyOTPResponse) Message() string {
	return "Signed in."
}

type LogoutResponse struct{}

func (LogoutResponse) StatusCode() int {
	return http.StatusNoContent
}

type SessionResponse struct {
	Email            string    `json:"email"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	ExpiresInSeconds int64     `json:"expires_in_seconds"`
}

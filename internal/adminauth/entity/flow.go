package entity

import "time"

// Step is the position of a login attempt in the admin OTP flow.
type Step string

const (
	StepEmail         Step = "email"
	StepOTP           Step = "otp"
	StepAuthenticated Step = "authenticated"
)

func (s Step) String() string { return string(s) }

// FlowState is the caller-facing state of one login attempt. It is derived
// per call and never persisted.
type FlowState struct {
	Step              Step
	Email             string
	OTPSentAt         time.Time
	OTPExpiresAt      time.Time
	ResendAvailableAt time.Time
	// RemainingAttempts is -1 when no limit applies.
	RemainingAttempts int
}

// Countdown returns the time left before the OTP expires. It is advisory
// only; expiry is decided when the code is validated.
func (f FlowState) Countdown(now time.Time) (remaining time.Duration, expired bool) {
	if f.Step != StepOTP || f.OTPExpiresAt.IsZero() {
		return 0, false
	}
	remaining = f.OTPExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0, true
	}
	return remaining, false
}

// ResendIn returns how long until a new code may be requested.
func (f FlowState) ResendIn(now time.Time) time.Duration {
	return max(f.ResendAvailableAt.Sub(now), 0)
}

package usecase

import (
	"math"
	"strconv"
	"time"

	"github.com/shandysiswandi/otpgate/internal/adminauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

const msgInvalidCode = "Invalid or expired code"

func withStep(step entity.Step) goerror.Option {
	return goerror.WithField(entity.FieldStep, step.String())
}

// retryAfter renders d as whole seconds, rounded up and never below one.
func retryAfter(d time.Duration) goerror.Option {
	secs := max(int(math.Ceil(d.Seconds())), 1)
	return goerror.WithField(entity.FieldRetryAfter, strconv.Itoa(secs))
}

func errServer(err error, step entity.Step) error {
	return goerror.NewServer(err, withStep(step))
}

func errInvalidEmail() error {
	return goerror.NewBusiness("Email is not allowed to sign in", goerror.CodeForbidden,
		goerror.WithReason(entity.ReasonInvalidEmail), withStep(entity.StepEmail))
}

func errRateLimited(step entity.Step, wait time.Duration) error {
	return goerror.NewBusiness("Too many code requests, please wait", goerror.CodeTooManyRequest,
		goerror.WithReason(entity.ReasonRateLimited), withStep(step), retryAfter(wait))
}

func errAccountLocked(wait time.Duration) error {
	return goerror.NewBusiness("Account is temporarily locked", goerror.CodeLocked,
		goerror.WithReason(entity.ReasonAccountLocked), withStep(entity.StepEmail), retryAfter(wait))
}

func errOTPExpired() error {
	return goerror.NewBusiness(msgInvalidCode, goerror.CodeUnauthorized,
		goerror.WithReason(entity.ReasonOTPExpired), withStep(entity.StepEmail))
}

func errOTPInvalid(step entity.Step, remaining int) error {
	opts := []goerror.Option{goerror.WithReason(entity.ReasonOTPInvalid), withStep(step)}
	if remaining >= 0 {
		opts = append(opts, goerror.WithField(entity.FieldRemainingAttempts, strconv.Itoa(remaining)))
	}
	return goerror.NewBusiness(msgInvalidCode, goerror.CodeUnauthorized, opts...)
}

func errOTPAlreadyUsed() error {
	return goerror.NewBusiness("Code has already been used", goerror.CodeUnauthorized,
		goerror.WithReason(entity.ReasonOTPAlreadyUsed), withStep(entity.StepEmail))
}

func errDeliveryFailed(step entity.Step) error {
	return goerror.NewBusiness("Could not send the code, please try again", goerror.CodeUnavailable,
		goerror.WithReason(entity.ReasonDeliveryFailed), withStep(step))
}

func errSessionExpired() error {
	return goerror.NewBusiness("Session has expired", goerror.CodeUnauthorized,
		goerror.WithReason(entity.ReasonSessionExpired), withStep(entity.StepEmail))
}

func errSessionInvalid() error {
	return goerror.NewBusiness("Session is not valid", goerror.CodeUnauthorized,
		goerror.WithReason(entity.ReasonSessionInvalid), withStep(entity.StepEmail))
}

// attemptsRemaining merges the challenge and guard budgets; -1 means unbounded.
func attemptsRemaining(challenge, guard int) int {
	switch {
	case challenge < 0:
		return guard
	case guard < 0:
		return challenge
	default:
		return min(challenge, guard)
	}
}

package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/otpgate/internal/adminauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/ratelimit"
)

type RequestOTPInput struct {
	Email     string `validate:"required,max=254"`
	IP        string
	UserAgent string
}

type RequestOTPOutput struct {
	// Token is the verification token the caller echoes back on verify.
	Token     string
	ExpiresAt time.Time
	State     entity.FlowState
}

// RequestOTP starts a login: the email is checked against the allow-list and
// the guard, then a fresh code is issued and delivered.
func (s *Usecase) RequestOTP(ctx context.Context, in RequestOTPInput) (*RequestOTPOutput, error) {
	ctx, span := s.startSpan(ctx, "RequestOTP")
	defer span.End()

	in.Email = otp.NormalizeEmail(in.Email)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	return s.issueOTP(ctx, in.Email, client{IP: in.IP, UserAgent: in.UserAgent}, entity.StepEmail)
}

// issueOTP is shared by RequestOTP and ResendOTP. step is where the caller
// stays when issuance is refused.
func (s *Usecase) issueOTP(ctx context.Context, email string, c client, step entity.Step) (*RequestOTPOutput, error) {
	if !s.allowed(email) {
		slog.WarnContext(ctx, "otp requested for email outside the allow-list", "email", email)
		s.metrics.requests.Add(ctx, 1, outcome("not_allowed"))
		return nil, errInvalidEmail()
	}

	issued, rec, err := s.reserve(ctx, email, step)
	if err != nil {
		return nil, err
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deliveryTimeout())
	err = s.delivery.SendOTP(dctx, email, issued.Code, issued.ExpiresAt)
	cancel()
	if err != nil {
		slog.ErrorContext(ctx, "failed to deliver otp", "email", email, "error", err)

		unlock := s.locks.Lock(email)
		if ierr := s.challenges.Invalidate(ctx, email); ierr != nil {
			slog.ErrorContext(ctx, "failed to invalidate undelivered challenge", "email", email, "error", ierr)
		}
		unlock()

		s.metrics.requests.Add(ctx, 1, outcome("delivery_failed"))
		s.publish(ctx, entity.EventOTPDeliveryFailed, email, c, nil)
		return nil, errDeliveryFailed(step)
	}

	s.metrics.requests.Add(ctx, 1, outcome("issued"))
	s.publish(ctx, entity.EventOTPRequested, email, c, map[string]string{
		"expires_at": issued.ExpiresAt.UTC().Format(time.RFC3339),
	})

	// the request that fills the quota is served, later ones hit the lockout
	if p := s.guard.Policy(); p.MaxRequests > 0 && rec.RequestCount == p.MaxRequests {
		slog.WarnContext(ctx, "otp request quota reached, principal locked", "email", email, "until", rec.LockoutUntil)
		s.metrics.lockouts.Add(ctx, 1, byCause(ratelimit.CauseQuota))
		s.publish(ctx, entity.EventAccountLocked, email, c, map[string]string{
			"cause":         string(ratelimit.CauseQuota),
			"lockout_until": rec.LockoutUntil.UTC().Format(time.RFC3339),
		})
	}

	return &RequestOTPOutput{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		State: entity.FlowState{
			Step:              entity.StepOTP,
			Email:             email,
			OTPSentAt:         issued.IssuedAt,
			OTPExpiresAt:      issued.ExpiresAt,
			ResendAvailableAt: issued.IssuedAt.Add(s.guard.Policy().Cooldown),
			RemainingAttempts: s.guard.AttemptsLeft(rec),
		},
	}, nil
}

// reserve runs the guard checks and issues the challenge while holding the
// principal lock. Delivery happens after the lock is released.
func (s *Usecase) reserve(ctx context.Context, email string, step entity.Step) (*entity.IssuedChallenge, ratelimit.Record, error) {
	unlock := s.locks.Lock(email)
	defer unlock()

	dec, err := s.guard.CanRequest(ctx, email)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check otp request guard", "email", email, "error", err)
		return nil, ratelimit.Record{}, errServer(err, step)
	}
	if !dec.Allowed {
		return nil, ratelimit.Record{}, s.denied(ctx, email, dec, step)
	}

	if s.globalGuard != nil {
		gdec, err := s.globalGuard.CanRequest(ctx, GlobalPrincipal)
		if err != nil {
			slog.ErrorContext(ctx, "failed to check global otp guard", "error", err)
			return nil, ratelimit.Record{}, errServer(err, step)
		}
		if !gdec.Allowed {
			slog.WarnContext(ctx, "global otp issuance cap reached", "email", email, "retry_after", gdec.RetryAfter)
			s.metrics.requests.Add(ctx, 1, outcome("global_limited"))
			return nil, ratelimit.Record{}, errRateLimited(step, gdec.RetryAfter)
		}
	}

	issued, err := s.challenges.Issue(ctx, email)
	if err != nil {
		slog.ErrorContext(ctx, "failed to issue otp challenge", "email", email, "error", err)
		return nil, ratelimit.Record{}, errServer(err, step)
	}

	rec, err := s.guard.OnRequest(ctx, email)
	if err != nil {
		slog.ErrorContext(ctx, "failed to record otp request", "email", email, "error", err)
		if ierr := s.challenges.Invalidate(ctx, email); ierr != nil {
			slog.ErrorContext(ctx, "failed to invalidate unrecorded challenge", "email", email, "error", ierr)
		}
		return nil, ratelimit.Record{}, errServer(err, step)
	}

	if s.globalGuard != nil {
		if _, err := s.globalGuard.OnRequest(ctx, GlobalPrincipal); err != nil {
			slog.ErrorContext(ctx, "failed to record global otp request", "error", err)
		}
	}

	return issued, rec, nil
}

func (s *Usecase) denied(ctx context.Context, email string, dec ratelimit.Decision, step entity.Step) error {
	s.metrics.requests.Add(ctx, 1, outcome(string(dec.Reason)))

	switch dec.Reason {
	case ratelimit.ReasonLocked:
		slog.WarnContext(ctx, "otp requested while locked", "email", email, "retry_after", dec.RetryAfter)
		return errAccountLocked(dec.RetryAfter)
	default:
		slog.WarnContext(ctx, "otp request rate limited", "email", email, "reason", dec.Reason, "retry_after", dec.RetryAfter)
		return errRateLimited(step, dec.RetryAfter)
	}
}

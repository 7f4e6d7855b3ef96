package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shandysiswandi/otpgate/internal/adminauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/ratelimit"
)

var errUnknownOutcome = errors.New("unknown challenge outcome")

type VerifyOTPInput struct {
	Email     string `validate:"required,max=254"`
	Code      string `validate:"required,otp"`
	Token     string `validate:"omitempty,max=2048,b64url"`
	IP        string
	UserAgent string
}

type VerifyOTPOutput struct {
	SessionToken string
	ExpiresAt    time.Time
	State        entity.FlowState
}

func (s *Usecase) VerifyOTP(ctx context.Context, in VerifyOTPInput) (*VerifyOTPOutput, error) {
	ctx, span := s.startSpan(ctx, "VerifyOTP")
	defer span.End()

	in.Email = otp.NormalizeEmail(in.Email)
	in.Code = strings.TrimSpace(in.Code)
	in.Token = strings.TrimSpace(in.Token)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if !s.allowed(in.Email) {
		slog.WarnContext(ctx, "otp verification for email outside the allow-list", "email", in.Email)
		s.metrics.verifications.Add(ctx, 1, outcome("not_allowed"))
		return nil, errInvalidEmail()
	}

	c := client{IP: in.IP, UserAgent: in.UserAgent}

	unlock := s.locks.Lock(in.Email)
	defer unlock()

	// a quota lockout still lets the last issued code through until the
	// failure quota is spent
	rec, err := s.guard.Peek(ctx, in.Email)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check lockout", "email", in.Email, "error", err)
		return nil, errServer(err, entity.StepOTP)
	}
	if now := s.clock.Now(); s.verifyBlocked(rec, now) {
		slog.WarnContext(ctx, "otp verification while locked", "email", in.Email, "until", rec.LockoutUntil)
		s.metrics.verifications.Add(ctx, 1, outcome("locked"))
		return nil, errAccountLocked(rec.LockoutUntil.Sub(now))
	}

	v, err := s.challenges.Validate(ctx, in.Email, in.Code, in.Token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to validate otp challenge", "email", in.Email, "error", err)
		return nil, errServer(err, entity.StepOTP)
	}

	s.metrics.verifications.Add(ctx, 1, outcome(v.Outcome.String()))

	if v.Outcome != entity.OutcomeValid {
		return nil, s.rejectCode(ctx, in.Email, c, v)
	}

	return s.completeLogin(ctx, in.Email, c)
}

func (s *Usecase) completeLogin(ctx context.Context, email string, c client) (*VerifyOTPOutput, error) {
	sess, token, err := s.createSession(ctx, email)
	if err != nil {
		return nil, err
	}

	if _, err := s.guard.OnSuccess(ctx, email); err != nil {
		slog.ErrorContext(ctx, "failed to reset failed attempts", "email", email, "error", err)
	}

	if err := s.challenges.Invalidate(ctx, email); err != nil {
		slog.ErrorContext(ctx, "failed to invalidate consumed challenge", "email", email, "error", err)
	}

	s.publish(ctx, entity.EventLoginSucceeded, email, c, map[string]string{
		"session_expires_at": sess.ExpiresAt.UTC().Format(time.RFC3339),
	})

	return &VerifyOTPOutput{
		SessionToken: token,
		ExpiresAt:    sess.ExpiresAt,
		State:        entity.FlowState{Step: entity.StepAuthenticated, Email: email, RemainingAttempts: -1},
	}, nil
}

// rejectCode records the failure with the guard and maps the outcome to the
// caller error. Tampered tokens look exactly like a wrong code.
func (s *Usecase) rejectCode(ctx context.Context, email string, c client, v entity.Validation) error {
	fresh, rec, err := s.guard.OnFailure(ctx, email)
	if err != nil {
		slog.ErrorContext(ctx, "failed to record failed attempt", "email", email, "error", err)
		return errServer(err, entity.StepOTP)
	}

	if fresh {
		if err := s.challenges.Invalidate(ctx, email); err != nil {
			slog.ErrorContext(ctx, "failed to invalidate challenge on lockout", "email", email, "error", err)
		}

		slog.WarnContext(ctx, "account locked after failed otp attempts", "email", email, "until", rec.LockoutUntil)
		s.metrics.lockouts.Add(ctx, 1, byCause(ratelimit.CauseFailures))
		s.publish(ctx, entity.EventAccountLocked, email, c, map[string]string{
			"cause":         string(ratelimit.CauseFailures),
			"lockout_until": rec.LockoutUntil.UTC().Format(time.RFC3339),
		})

		return errAccountLocked(rec.LockoutUntil.Sub(s.clock.Now()))
	}

	if now := s.clock.Now(); s.verifyBlocked(rec, now) {
		slog.WarnContext(ctx, "otp verification failed while locked", "email", email, "until", rec.LockoutUntil)
		return errAccountLocked(rec.LockoutUntil.Sub(now))
	}

	remaining := attemptsRemaining(v.Remaining, s.guard.AttemptsLeft(rec))

	s.publish(ctx, entity.EventOTPVerifyFailed, email, c, map[string]string{
		"outcome":            v.Outcome.String(),
		"remaining_attempts": strconv.Itoa(remaining),
	})

	switch v.Outcome {
	case entity.OutcomeTampered, entity.OutcomeEmailMismatch:
		slog.WarnContext(ctx, "otp token failed verification", "email", email, "outcome", v.Outcome.String())
		return errOTPInvalid(entity.StepOTP, remaining)

	case entity.OutcomeInvalid, entity.OutcomeSuperseded:
		slog.WarnContext(ctx, "otp code rejected", "email", email, "outcome", v.Outcome.String(), "remaining", remaining)
		return errOTPInvalid(entity.StepOTP, remaining)

	case entity.OutcomeExhausted:
		slog.WarnContext(ctx, "otp challenge exhausted", "email", email)
		return errOTPInvalid(entity.StepEmail, 0)

	case entity.OutcomeExpired, entity.OutcomeNotFound:
		slog.WarnContext(ctx, "otp challenge expired or missing", "email", email, "outcome", v.Outcome.String())
		return errOTPExpired()

	case entity.OutcomeAlreadyUsed:
		slog.WarnContext(ctx, "otp code replayed", "email", email)
		return errOTPAlreadyUsed()

	default:
		slog.ErrorContext(ctx, "unexpected challenge outcome", "email", email, "outcome", v.Outcome.String())
		return errServer(errUnknownOutcome, entity.StepOTP)
	}
}

// verifyBlocked reports whether rec forbids verification at now: a failures
// lockout, or any lockout once the failure quota is used up.
func (s *Usecase) verifyBlocked(rec ratelimit.Record, now time.Time) bool {
	if !rec.LockedAt(now) {
		return false
	}
	return rec.LockoutCause == ratelimit.CauseFailures || s.guard.AttemptsLeft(rec) == 0
}

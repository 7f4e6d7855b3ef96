package ratelimit

import (
	"context"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
)

// Policy configures a Guard. A zero MaxRequests or MaxFailures disables that quota.
type Policy struct {
	Cooldown    time.Duration
	Window      time.Duration
	MaxRequests int
	MaxFailures int
	Lockout     time.Duration
}

// Reason explains a denied request.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonLocked   Reason = "locked"
	ReasonCooldown Reason = "cooldown"
	ReasonQuota    Reason = "quota"
)

// Decision is the answer of CanRequest.
type Decision struct {
	Allowed    bool
	Reason     Reason
	RetryAfter time.Duration
}

// Guard applies a Policy to records kept in a Store.
type Guard struct {
	store  Store
	clock  clock.Clocker
	policy Policy
}

// NewGuard builds a Guard.
func NewGuard(store Store, clk clock.Clocker, policy Policy) *Guard {
	if clk == nil {
		clk = clock.New()
	}
	return &Guard{store: store, clock: clk, policy: policy}
}

// Policy returns the configured policy.
func (g *Guard) Policy() Policy {
	return g.policy
}

// retention is how long a touched record must survive in the store.
func (g *Guard) retention() time.Duration {
	return max(g.policy.Window, g.policy.Lockout, g.policy.Cooldown, time.Minute)
}

// heal resets the whole record once its lockout has elapsed.
func heal(r *Record, now time.Time) bool {
	if r.LockoutUntil.IsZero() || now.Before(r.LockoutUntil) {
		return false
	}
	*r = Record{}
	return true
}

func (g *Guard) windowStale(r Record, now time.Time) bool {
	return !r.LastRequestAt.IsZero() && now.Sub(r.LastRequestAt) >= g.policy.Window
}

// lock starts a lockout for cause and reports whether it did. A failures
// lockout takes over a running quota lockout, keeping the later deadline.
func (g *Guard) lock(r *Record, now time.Time, cause Cause) bool {
	until := now.Add(g.policy.Lockout)

	if r.LockedAt(now) {
		if r.LockoutCause == CauseFailures || cause != CauseFailures {
			return false
		}
		until = maxTime(until, r.LockoutUntil)
	}

	r.LockoutUntil = until
	r.LockoutCause = cause
	return true
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// CanRequest reports whether principal may be issued a new OTP now.
func (g *Guard) CanRequest(ctx context.Context, principal string) (Decision, error) {
	now := g.clock.Now()

	rec, err := g.store.Update(ctx, principal, g.retention(), func(r *Record) bool {
		return heal(r, now)
	})
	if err != nil {
		return Decision{}, err
	}

	if rec.LockedAt(now) {
		return Decision{Reason: ReasonLocked, RetryAfter: rec.LockoutUntil.Sub(now)}, nil
	}

	if !g.windowStale(rec, now) {
		if g.policy.MaxRequests > 0 && rec.RequestCount >= g.policy.MaxRequests {
			return Decision{Reason: ReasonQuota, RetryAfter: rec.LastRequestAt.Add(g.policy.Window).Sub(now)}, nil
		}

		if !rec.LastRequestAt.IsZero() && now.Sub(rec.LastRequestAt) < g.policy.Cooldown {
			return Decision{Reason: ReasonCooldown, RetryAfter: rec.LastRequestAt.Add(g.policy.Cooldown).Sub(now)}, nil
		}
	}

	return Decision{Allowed: true}, nil
}

// OnRequest records an issued OTP. Reaching the request cap starts a quota lockout.
func (g *Guard) OnRequest(ctx context.Context, principal string) (Record, error) {
	now := g.clock.Now()

	return g.store.Update(ctx, principal, g.retention(), func(r *Record) bool {
		heal(r, now)

		if g.windowStale(*r, now) || r.RequestCount == 0 {
			r.RequestCount = 0
			r.WindowStartAt = now
		}

		r.RequestCount++
		r.LastRequestAt = now

		if g.policy.MaxRequests > 0 && r.RequestCount >= g.policy.MaxRequests {
			g.lock(r, now, CauseQuota)
		}

		return true
	})
}

// OnFailure records a failed verification and reports whether this call
// started a failures lockout, including one replacing a quota lockout.
func (g *Guard) OnFailure(ctx context.Context, principal string) (fresh bool, rec Record, err error) {
	now := g.clock.Now()

	rec, err = g.store.Update(ctx, principal, g.retention(), func(r *Record) bool {
		heal(r, now)

		r.FailedAttempts++
		if g.policy.MaxFailures > 0 && r.FailedAttempts >= g.policy.MaxFailures {
			fresh = g.lock(r, now, CauseFailures)
		}

		return true
	})
	if err != nil {
		return false, Record{}, err
	}

	return fresh, rec, nil
}

// OnSuccess clears failed attempts and any lockout they caused. A quota lockout stays.
func (g *Guard) OnSuccess(ctx context.Context, principal string) (Record, error) {
	now := g.clock.Now()

	return g.store.Update(ctx, principal, g.retention(), func(r *Record) bool {
		changed := heal(r, now)

		if r.FailedAttempts != 0 {
			r.FailedAttempts = 0
			changed = true
		}

		if r.LockoutCause == CauseFailures {
			r.LockoutUntil = time.Time{}
			r.LockoutCause = CauseNone
			changed = true
		}

		return changed
	})
}

// IsLocked reports whether principal is locked out, healing an elapsed lockout.
func (g *Guard) IsLocked(ctx context.Context, principal string) (bool, error) {
	remaining, err := g.RemainingLockout(ctx, principal)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// RemainingLockout returns how long principal stays locked, or zero.
func (g *Guard) RemainingLockout(ctx context.Context, principal string) (time.Duration, error) {
	now := g.clock.Now()

	rec, err := g.store.Update(ctx, principal, g.retention(), func(r *Record) bool {
		return heal(r, now)
	})
	if err != nil {
		return 0, err
	}

	if !rec.LockedAt(now) {
		return 0, nil
	}

	return rec.LockoutUntil.Sub(now), nil
}

// AttemptsLeft returns how many failed verifications principal can still make.
func (g *Guard) AttemptsLeft(r Record) int {
	if g.policy.MaxFailures <= 0 {
		return -1
	}
	return max(g.policy.MaxFailures-r.FailedAttempts, 0)
}

// Peek returns the stored record without healing it.
func (g *Guard) Peek(ctx context.Context, principal string) (Record, error) {
	return g.store.Load(ctx, principal)
}

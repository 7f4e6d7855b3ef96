package ratelimit

import "time"

// Cause records why a principal is locked out.
type Cause string

const (
	// CauseNone means no lockout is in place.
	CauseNone Cause = ""
	// CauseQuota is a lockout triggered by the request quota; only time clears it.
	CauseQuota Cause = "quota"
	// CauseFailures is a lockout triggered by failed verifications.
	CauseFailures Cause = "failures"
)

// Record is the abuse state of one principal.
type Record struct {
	RequestCount   int       `json:"request_count"`
	WindowStartAt  time.Time `json:"window_start_at"`
	LastRequestAt  time.Time `json:"last_request_at"`
	FailedAttempts int       `json:"failed_attempts"`
	LockoutUntil   time.Time `json:"lockout_until"`
	LockoutCause   Cause     `json:"lockout_cause,omitempty"`
}

// IsZero reports whether r carries no state at all.
func (r Record) IsZero() bool {
	return r.RequestCount == 0 &&
		r.WindowStartAt.IsZero() &&
		r.LastRequestAt.IsZero() &&
		r.FailedAttempts == 0 &&
		r.LockoutUntil.IsZero() &&
		r.LockoutCause == CauseNone
}

// LockedAt reports whether the lockout is still running at now.
func (r Record) LockedAt(now time.Time) bool {
	return !r.LockoutUntil.IsZero() && now.Before(r.LockoutUntil)
}

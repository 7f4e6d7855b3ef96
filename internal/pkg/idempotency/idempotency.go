// Package idempotency guards at-least-once consumers with a Redis state
// machine per key: none -> in_progress -> completed | failed.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrAlreadyInProgress = errors.New("operation already in progress")
	ErrAlreadyCompleted  = errors.New("operation already completed")
	ErrAlreadyFailed     = errors.New("operation already failed")
	ErrInvalidState      = errors.New("invalid state")
)

type State string

const (
	StateNone       State = "none"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Idempotency runs an operation at most once per key.
type Idempotency interface {
	Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error
}

// StateTracker implements Idempotency on Redis.
type StateTracker struct {
	client redis.UniversalClient
	prefix string
}

// New returns a StateTracker using keys under "idempotency:".
func New(client redis.UniversalClient) *StateTracker {
	return &StateTracker{client: client, prefix: "idempotency:"}
}

const (
	defaultLockDuration = time.Minute
	defaultStateTTL     = 24 * time.Hour
)

type Option func(*execOptions)

type execOptions struct {
	lockDuration time.Duration
	stateTTL     time.Duration
	retryFailed  bool
}

// WithLockDuration bounds how long an in-progress claim survives a crashed holder.
func WithLockDuration(d time.Duration) Option {
	return func(o *execOptions) { o.lockDuration = d }
}

// WithStateTTL sets how long the completed/failed outcome is remembered.
func WithStateTTL(d time.Duration) Option {
	return func(o *execOptions) { o.stateTTL = d }
}

// WithRetryFailed lets a previously failed key run again instead of returning ErrAlreadyFailed.
func WithRetryFailed() Option {
	return func(o *execOptions) { o.retryFailed = true }
}

// Acquire claims key for lockDuration and returns the state seen before the claim.
func (s *StateTracker) Acquire(ctx context.Context, key string, lockDuration time.Duration) (State, error) {
	fk := s.prefix + key

	acquired, err := s.client.SetNX(ctx, fk, string(StateInProgress), lockDuration).Result()
	if err != nil {
		return "", err
	}
	if acquired {
		return StateNone, nil
	}

	current, err := s.client.Get(ctx, fk).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Acquire(ctx, key, lockDuration)
	}
	if err != nil {
		return "", err
	}

	switch st := State(current); st {
	case StateInProgress, StateCompleted, StateFailed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidState, current)
	}
}

func (s *StateTracker) mark(ctx context.Context, key string, st State, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, string(st), ttl).Err()
}

// Exec runs fn unless key was already claimed.
func (s *StateTracker) Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error {
	o := &execOptions{lockDuration: defaultLockDuration, stateTTL: defaultStateTTL}
	for _, opt := range opts {
		opt(o)
	}
	if o.lockDuration <= 0 {
		o.lockDuration = defaultLockDuration
	}
	if o.stateTTL <= 0 {
		o.stateTTL = defaultStateTTL
	}

	state, err := s.Acquire(ctx, key, o.lockDuration)
	if err != nil {
		return err
	}

	switch state {
	case StateInProgress:
		return ErrAlreadyInProgress
	case StateCompleted:
		return ErrAlreadyCompleted
	case StateFailed:
		if !o.retryFailed {
			return ErrAlreadyFailed
		}
		if err := s.mark(ctx, key, StateInProgress, o.lockDuration); err != nil {
			return err
		}
	}

	if err := fn(ctx); err != nil {
		if markErr := s.mark(ctx, key, StateFailed, o.stateTTL); markErr != nil {
			return errors.Join(err, markErr)
		}
		return err
	}

	return s.mark(ctx, key, StateCompleted, o.stateTTL)
}

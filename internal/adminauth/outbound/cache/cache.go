package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	keyPrefix    = "adminauth"
	maxTxRetries = 8
)

// ErrContention is returned when an optimistic transaction keeps failing.
var ErrContention = errors.New("adminauth cache: too much contention")

// Cache holds the Redis backed state of the admin OTP flow.
type Cache struct {
	client redis.UniversalClient
	ins    instrument.Instrumentation
}

func NewCache(client redis.UniversalClient, ins instrument.Instrumentation) *Cache {
	return &Cache{client: client, ins: ins}
}

func (c *Cache) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return c.ins.Tracer("adminauth.outbound.cache").Start(ctx, name)
}

func (c *Cache) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// watch runs fn in a WATCH transaction over keys, retrying on conflicts.
func (c *Cache) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := c.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrContention
}

// untilExpiry is the Redis TTL of a marker that must live until at, never below a second.
func untilExpiry(now, at time.Time) time.Duration {
	return max(at.Sub(now), time.Second)
}

func challengeKey(email string) string { return keyPrefix + ":otp:challenge:" + email }
func usedKey(email string) string      { return keyPrefix + ":otp:used:" + email }
func activeKey(email string) string    { return keyPrefix + ":otp:active:" + email }
func replayKey(fp string) string       { return keyPrefix + ":otp:replay:" + fp }
func sessionKey(id string) string      { return keyPrefix + ":session:" + id }
func principalKey(email string) string { return keyPrefix + ":session:principal:" + email }

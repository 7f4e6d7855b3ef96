package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 8

// ErrContention is returned when optimistic retries are exhausted.
var ErrContention = errors.New("ratelimit: too much contention")

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore keeps records as JSON values and updates them in WATCH/MULTI transactions.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore writing keys under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(principal string) string {
	return s.prefix + ":" + principal
}

// Load returns the record of principal, or the zero record.
func (s *RedisStore) Load(ctx context.Context, principal string) (Record, error) {
	return s.get(ctx, s.redis, s.key(principal))
}

// Update applies fn inside an optimistic transaction on the principal key.
func (s *RedisStore) Update(ctx context.Context, principal string, ttl time.Duration, fn Mutator) (Record, error) {
	key := s.key(principal)

	for range maxTxRetries {
		var out Record

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			rec, err := s.get(ctx, tx, key)
			if err != nil {
				return err
			}

			if !fn(&rec) {
				out = rec
				return nil
			}

			var encoded []byte
			if !rec.IsZero() {
				if encoded, err = json.Marshal(rec); err != nil {
					return err
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if encoded == nil {
					pipe.Del(ctx, key)
				} else {
					pipe.Set(ctx, key, encoded, ttl)
				}
				return nil
			})
			if err != nil {
				return err
			}

			out = rec
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrStoreUnavailable) {
				return Record{}, err
			}
			return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		return out, nil
	}

	return Record{}, ErrContention
}

func (s *RedisStore) get(ctx context.Context, c getter, key string) (Record, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: decode record: %v", ErrStoreUnavailable, err)
	}

	return rec, nil
}

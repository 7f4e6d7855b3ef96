package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/adminauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

// PutSession stores s and makes it the only session of its principal.
func (c *Cache) PutSession(ctx context.Context, s entity.Session, ttl time.Duration) (err error) {
	ctx, span := c.startSpan(ctx, "PutSession")
	defer func() { c.endSpan(span, err) }()

	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}

	pk := principalKey(s.Email)

	return c.watch(ctx, func(tx *redis.Tx) error {
		prev, err := tx.Get(ctx, pk).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if prev != "" && prev != s.ID {
				pipe.Del(ctx, sessionKey(prev))
			}
			pipe.Set(ctx, sessionKey(s.ID), raw, ttl)
			pipe.Set(ctx, pk, s.ID, ttl)
			return nil
		})
		return err
	}, pk)
}

// GetSession returns goerror.ErrNotFound when id is unknown.
func (c *Cache) GetSession(ctx context.Context, id string) (_ *entity.Session, err error) {
	ctx, span := c.startSpan(ctx, "GetSession")
	defer func() { c.endSpan(span, err) }()

	raw, err := c.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, goerror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var s entity.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSession evicts id. Deleting an unknown session is not an error.
func (c *Cache) DeleteSession(ctx context.Context, id string) (err error) {
	ctx, span := c.startSpan(ctx, "DeleteSession")
	defer func() { c.endSpan(span, err) }()

	s, err := c.GetSession(ctx, id)
	if errors.Is(err, goerror.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pk := principalKey(s.Email)

	return c.watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, pk).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, sessionKey(id))
			if cur == id {
				pipe.Del(ctx, pk)
			}
			return nil
		})
		return err
	}, pk)
}

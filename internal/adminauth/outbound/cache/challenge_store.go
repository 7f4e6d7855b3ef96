package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/adminauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
)

// ChallengeConfig is shared by both challenge strategies.
type ChallengeConfig struct {
	TTL       time.Duration
	Generator *otp.Generator
	Clock     clock.Clocker
}

// StoreChallenges keeps one challenge record per email in Redis. The token
// handed to the caller is the challenge id.
//
// A consumed challenge leaves a marker until its original expiry so a
// replayed code is reported as already used.
type StoreChallenges struct {
	cache       *Cache
	cfg         ChallengeConfig
	maxAttempts int
	hasher      *hash.HMACSHA256
	uuid        uid.StringID
}

func NewStoreChallenges(c *Cache, cfg ChallengeConfig, maxAttempts int, hasher *hash.HMACSHA256, uuid uid.StringID) *StoreChallenges {
	return &StoreChallenges{cache: c, cfg: cfg, maxAttempts: maxAttempts, hasher: hasher, uuid: uuid}
}

// Issue replaces any live challenge of email with a new one.
func (s *StoreChallenges) Issue(ctx context.Context, email string) (_ *entity.IssuedChallenge, err error) {
	ctx, span := s.cache.startSpan(ctx, "StoreChallenges.Issue")
	defer func() { s.cache.endSpan(span, err) }()

	code, err := s.cfg.Generator.Generate()
	if err != nil {
		return nil, err
	}

	now := s.cfg.Clock.Now()
	ch := entity.Challenge{
		ID:        s.uuid.Generate(),
		Email:     email,
		CodeHash:  s.hasher.HashString(code),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	raw, err := json.Marshal(ch)
	if err != nil {
		return nil, err
	}

	if _, err := s.cache.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, challengeKey(email), raw, s.cfg.TTL)
		pipe.Del(ctx, usedKey(email))
		return nil
	}); err != nil {
		return nil, err
	}

	return &entity.IssuedChallenge{Code: code, Token: ch.ID, IssuedAt: ch.CreatedAt, ExpiresAt: ch.ExpiresAt}, nil
}

// Validate checks code against the live challenge of email. A non-empty
// token must match the live challenge id.
func (s *StoreChallenges) Validate(ctx context.Context, email, code, token string) (v entity.Validation, err error) {
	ctx, span := s.cache.startSpan(ctx, "StoreChallenges.Validate")
	defer func() { s.cache.endSpan(span, err) }()

	ck, uk := challengeKey(email), usedKey(email)

	err = s.cache.watch(ctx, func(tx *redis.Tx) error {
		v = entity.Validation{Remaining: -1}

		raw, err := tx.Get(ctx, ck).Bytes()
		if errors.Is(err, redis.Nil) {
			used, err := tx.Exists(ctx, uk).Result()
			if err != nil {
				return err
			}
			v.Outcome = entity.OutcomeNotFound
			if used > 0 {
				v.Outcome = entity.OutcomeAlreadyUsed
			}
			return nil
		}
		if err != nil {
			return err
		}

		var ch entity.Challenge
		if err := json.Unmarshal(raw, &ch); err != nil {
			return err
		}

		if token != "" && token != ch.ID {
			v.Outcome = entity.OutcomeSuperseded
			return nil
		}

		now := s.cfg.Clock.Now()
		if now.After(ch.ExpiresAt) {
			v.Outcome = entity.OutcomeExpired
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, ck)
				return nil
			})
			return err
		}

		ch.Attempts++

		if s.hasher.Verify(ch.CodeHash, code) {
			v.Outcome = entity.OutcomeValid
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, ck)
				pipe.Set(ctx, uk, ch.ID, untilExpiry(now, ch.ExpiresAt))
				return nil
			})
			return err
		}

		if s.maxAttempts > 0 && ch.Attempts >= s.maxAttempts {
			v.Outcome, v.Remaining = entity.OutcomeExhausted, 0
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, ck)
				return nil
			})
			return err
		}

		v.Outcome = entity.OutcomeInvalid
		if s.maxAttempts > 0 {
			v.Remaining = s.maxAttempts - ch.Attempts
		}

		updated, err := json.Marshal(ch)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, ck, updated, redis.KeepTTL)
			return nil
		})
		return err
	}, ck, uk)
	if err != nil {
		return entity.Validation{}, err
	}

	return v, nil
}

// Invalidate drops the live challenge of email. A consumed marker stays.
func (s *StoreChallenges) Invalidate(ctx context.Context, email string) (err error) {
	ctx, span := s.cache.startSpan(ctx, "StoreChallenges.Invalidate")
	defer func() { s.cache.endSpan(span, err) }()

	return s.cache.client.Del(ctx, challengeKey(email)).Err()
}

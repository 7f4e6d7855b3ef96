package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/adminauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
)

// TokenChallenges hands the caller a sealed verification token. Redis only
// keeps the fingerprint of the last token issued per email and a replay
// marker per consumed token, so any instance can verify.
//
// Attempts are not counted per token; the abuse guard bounds them.
type TokenChallenges struct {
	cache *Cache
	cfg   ChallengeConfig
	codec *otp.Codec
}

func NewTokenChallenges(c *Cache, cfg ChallengeConfig, codec *otp.Codec) *TokenChallenges {
	return &TokenChallenges{cache: c, cfg: cfg, codec: codec}
}

// Issue seals a new code for email. Earlier tokens stop verifying because
// only the newest fingerprint is active.
func (t *TokenChallenges) Issue(ctx context.Context, email string) (_ *entity.IssuedChallenge, err error) {
	ctx, span := t.cache.startSpan(ctx, "TokenChallenges.Issue")
	defer func() { t.cache.endSpan(span, err) }()

	code, err := t.cfg.Generator.Generate()
	if err != nil {
		return nil, err
	}

	sealed, err := t.codec.Issue(email, code, t.cfg.TTL)
	if err != nil {
		return nil, err
	}

	if err := t.cache.client.Set(ctx, activeKey(sealed.Email), sealed.Fingerprint, t.cfg.TTL).Err(); err != nil {
		return nil, err
	}

	return &entity.IssuedChallenge{Code: code, Token: sealed.Token, IssuedAt: sealed.IssuedAt, ExpiresAt: sealed.ExpiresAt}, nil
}

// Validate verifies token and code for email.
func (t *TokenChallenges) Validate(ctx context.Context, email, code, token string) (v entity.Validation, err error) {
	ctx, span := t.cache.startSpan(ctx, "TokenChallenges.Validate")
	defer func() { t.cache.endSpan(span, err) }()

	if token == "" {
		return entity.Validation{Outcome: entity.OutcomeNotFound, Remaining: -1}, nil
	}

	claims, verr := t.codec.Verify(token, code, email)
	switch {
	case errors.Is(verr, otp.ErrTampered):
		return entity.Validation{Outcome: entity.OutcomeTampered, Remaining: -1}, nil
	case errors.Is(verr, otp.ErrEmailMismatch):
		return entity.Validation{Outcome: entity.OutcomeEmailMismatch, Remaining: -1}, nil
	}

	ak, rk := activeKey(claims.Email), replayKey(claims.Fingerprint)

	err = t.cache.watch(ctx, func(tx *redis.Tx) error {
		v = entity.Validation{Remaining: -1}

		used, err := tx.Exists(ctx, rk).Result()
		if err != nil {
			return err
		}
		if used > 0 {
			v.Outcome = entity.OutcomeAlreadyUsed
			return nil
		}

		active, err := tx.Get(ctx, ak).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		switch {
		case errors.Is(verr, otp.ErrExpired):
			v.Outcome = entity.OutcomeExpired
			if active == claims.Fingerprint {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, ak)
					return nil
				})
			}
			return err
		case active != claims.Fingerprint:
			v.Outcome = entity.OutcomeSuperseded
			return nil
		case errors.Is(verr, otp.ErrInvalidCode):
			v.Outcome = entity.OutcomeInvalid
			return nil
		}

		v.Outcome = entity.OutcomeValid
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, claims.Email, untilExpiry(t.cfg.Clock.Now(), claims.ExpiresAt))
			pipe.Del(ctx, ak)
			return nil
		})
		return err
	}, ak, rk)
	if err != nil {
		return entity.Validation{}, err
	}

	return v, nil
}

// Invalidate deactivates the last token issued for email.
func (t *TokenChallenges) Invalidate(ctx context.Context, email string) (err error) {
	ctx, span := t.cache.startSpan(ctx, "TokenChallenges.Invalidate")
	defer func() { t.cache.endSpan(span, err) }()

	return t.cache.client.Del(ctx, activeKey(email)).Err()
}

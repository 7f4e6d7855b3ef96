package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/adminauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const email = "admin@x.com"

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func codeSeq(vs ...uint32) *otp.Generator {
	var buf bytes.Buffer
	for _, v := range vs {
		_ = binary.Write(&buf, binary.BigEndian, v)
	}
	return otp.NewGenerator(&buf)
}

func newCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(client, instrument.NewNoop()), mr
}

func newStore(t *testing.T, gen *otp.Generator) (*StoreChallenges, *clock.Manual, *miniredis.Miniredis) {
	t.Helper()

	c, mr := newCache(t)
	clk := clock.NewManual(t0)
	cfg := ChallengeConfig{TTL: 5 * time.Minute, Generator: gen, Clock: clk}

	return NewStoreChallenges(c, cfg, 3, hash.NewHMACSHA256(bytes.Repeat([]byte{7}, 32)), uid.NewUUID()), clk, mr
}

func newTokens(t *testing.T, gen *otp.Generator) (*TokenChallenges, *clock.Manual) {
	t.Helper()

	c, _ := newCache(t)
	clk := clock.NewManual(t0)
	codec, err := otp.NewCodec(bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 32), clk)
	require.NoError(t, err)

	return NewTokenChallenges(c, ChallengeConfig{TTL: 5 * time.Minute, Generator: gen, Clock: clk}, codec), clk
}

func TestStoreChallenges_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, clk, mr := newStore(t, codeSeq(482913))

	issued, err := s.Issue(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, "482913", issued.Code)
	assert.NotEmpty(t, issued.Token)
	assert.Equal(t, t0.Add(5*time.Minute), issued.ExpiresAt)
	assert.True(t, mr.Exists(challengeKey(email)))

	clk.Advance(10 * time.Second)
	v, err := s.Validate(ctx, email, "000000", "")
	require.NoError(t, err)
	assert.Equal(t, entity.Validation{Outcome: entity.OutcomeInvalid, Remaining: 2}, v)

	clk.Advance(10 * time.Second)
	v, err = s.Validate(ctx, email, "482913", issued.Token)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeValid, v.Outcome)
	assert.False(t, mr.Exists(challengeKey(email)))

	clk.Advance(time.Second)
	v, err = s.Validate(ctx, email, "482913", "")
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeAlreadyUsed, v.Outcome)

	// invalidation after success keeps the consumed marker
	require.NoError(t, s.Invalidate(ctx, email))
	v, err = s.Validate(ctx, email, "482913", "")
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeAlreadyUsed, v.Outcome)
}

func TestStoreChallenges_NewIssueSupersedes(t *testing.T) {
	ctx := context.Background()
	s, _, mr := newStore(t, codeSeq(482913, 111111, 222222))

	first, err := s.Issue(ctx, email)
	require.NoError(t, err)
	second, err := s.Issue(ctx, email)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	v, err := s.Validate(ctx, email, first.Code, first.Token)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeSuperseded, v.Outcome)

	v, err = s.Validate(ctx, email, first.Code, "")
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeInvalid, v.Outcome)

	v, err = s.Validate(ctx, email, second.Code, second.Token)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeValid, v.Outcome)

	// a fresh issue clears the consumed marker
	_, err = s.Issue(ctx, email)
	require.NoError(t, err)
	assert.False(t, mr.Exists(usedKey(email)))
}

func TestStoreChallenges_Exhausted(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t, codeSeq(482913))

	issued, err := s.Issue(ctx, email)
	require.NoError(t, err)

	for _, want := range []entity.Validation{
		{Outcome: entity.OutcomeInvalid, Remaining: 2},
		{Outcome: entity.OutcomeInvalid, Remaining: 1},
		{Outcome: entity.OutcomeExhausted, Remaining: 0},
	} {
		v, err := s.Validate(ctx, email, "000000", "")
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}

	v, err := s.Validate(ctx, email, issued.Code, "")
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeNotFound, v.Outcome)
}

func TestStoreChallenges_Expired(t *testing.T) {
	ctx := context.Background()
	s, clk, _ := newStore(t, codeSeq(482913))

	issued, err := s.Issue(ctx, email)
	require.NoError(t, err)

	clk.Advance(5 * time.Minute)
	v, err := s.Validate(ctx, email, "000000", "")
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeInvalid, v.Outcome, "still valid exactly at expiry")

	clk.Advance(time.Millisecond)
	v, err = s.Validate(ctx, email, issued.Code, "")
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeExpired, v.Outcome)

	v, err = s.Validate(ctx, email, issued.Code, "")
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeNotFound, v.Outcome)
}

func TestStoreChallenges_RedisDown(t *testing.T) {
	ctx := context.Background()
	s, _, mr := newStore(t, codeSeq(482913))
	mr.Close()

	_, err := s.Issue(ctx, email)
	assert.Error(t, err)

	_, err = s.Validate(ctx, email, "482913", "")
	assert.Error(t, err)
}

func TestTokenChallenges_Lifecycle(t *testing.T) {
	ctx := context.Background()
	tc, clk := newTokens(t, codeSeq(482913))

	issued, err := tc.Issue(ctx, "Admin@X.com ")
	require.NoError(t, err)
	assert.Equal(t, "482913", issued.Code)
	assert.NotContains(t, issued.Token, issued.Code)

	clk.Advance(10 * time.Second)
	v, err := tc.Validate(ctx, email, "000000", issued.Token)
	require.NoError(t, err)
	assert.Equal(t, entity.Validation{Outcome: entity.OutcomeInvalid, Remaining: -1}, v)

	v, err = tc.Validate(ctx, email, "482913", issued.Token)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeValid, v.Outcome)

	v, err = tc.Validate(ctx, email, "482913", issued.Token)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeAlreadyUsed, v.Outcome)
}

func TestTokenChallenges_Rejections(t *testing.T) {
	ctx := context.Background()
	tc, clk := newTokens(t, codeSeq(482913, 111111))

	first, err := tc.Issue(ctx, email)
	require.NoError(t, err)

	v, err := tc.Validate(ctx, email, first.Code, "")
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeNotFound, v.Outcome)

	tampered := []byte(first.Token)
	if tampered[5] == 'A' {
		tampered[5] = 'B'
	} else {
		tampered[5] = 'A'
	}
	v, err = tc.Validate(ctx, email, first.Code, string(tampered))
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeTampered, v.Outcome)

	v, err = tc.Validate(ctx, "other@x.com", first.Code, first.Token)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeEmailMismatch, v.Outcome)

	second, err := tc.Issue(ctx, email)
	require.NoError(t, err)

	v, err = tc.Validate(ctx, email, first.Code, first.Token)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeSuperseded, v.Outcome)

	clk.Advance(5*time.Minute + time.Millisecond)
	v, err = tc.Validate(ctx, email, second.Code, second.Token)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeExpired, v.Outcome)
}

func TestTokenChallenges_Invalidate(t *testing.T) {
	ctx := context.Background()
	tc, _ := newTokens(t, codeSeq(482913))

	issued, err := tc.Issue(ctx, email)
	require.NoError(t, err)
	require.NoError(t, tc.Invalidate(ctx, email))

	v, err := tc.Validate(ctx, email, issued.Code, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeSuperseded, v.Outcome)
}

func TestCache_Sessions(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)

	first := entity.Session{ID: "s1", Email: email, CreatedAt: t0, ExpiresAt: t0.Add(24 * time.Hour)}
	require.NoError(t, c.PutSession(ctx, first, 24*time.Hour))

	got, err := c.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, first, *got)
	assert.Equal(t, 24*time.Hour, mr.TTL(sessionKey("s1")))

	second := entity.Session{ID: "s2", Email: email, CreatedAt: t0, ExpiresAt: t0.Add(24 * time.Hour)}
	require.NoError(t, c.PutSession(ctx, second, 24*time.Hour))

	_, err = c.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, goerror.ErrNotFound, "single session per principal")

	require.NoError(t, c.DeleteSession(ctx, "s1"))
	got, err = c.GetSession(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, "s2", got.ID)

	require.NoError(t, c.DeleteSession(ctx, "s2"))
	_, err = c.GetSession(ctx, "s2")
	assert.ErrorIs(t, err, goerror.ErrNotFound)
	assert.False(t, mr.Exists(principalKey(email)))
}

package usecase

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/audit/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type memoryRepo struct {
	mu      sync.Mutex
	events  map[int64]entity.Event
	inserts int
	failN   int
	filter  entity.Filter
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{events: map[int64]entity.Event{}}
}

func (r *memoryRepo) CreateEvent(_ context.Context, ev entity.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failN > 0 {
		r.failN--
		return errors.New("connection refused")
	}
	if _, ok := r.events[ev.ID]; ok {
		return goerror.ErrConflict
	}
	r.inserts++
	r.events[ev.ID] = ev
	return nil
}

func (r *memoryRepo) ListEvents(_ context.Context, f entity.Filter) ([]entity.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.filter = f
	out := make([]entity.Event, 0, len(r.events))
	for _, ev := range r.events {
		if (f.Email == "" || ev.Email == f.Email) && (f.Type == "" || ev.Type == f.Type) {
			out = append(out, ev)
		}
	}
	slices.SortFunc(out, func(a, b entity.Event) int { return b.OccurredAt.Compare(a.OccurredAt) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

type harness struct {
	uc     *Usecase
	repo   *memoryRepo
	outbox *mail.Outbox
	mr     *miniredis.Miniredis
}

func newHarness(t *testing.T, alerts bool) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	yaml := "modules:\n  audit:\n    dedupe_ttl_hours: 48\n    alerts:\n      from: security@otpgate.local\n      enabled: false\n"
	if alerts {
		yaml = strings.Replace(yaml, "enabled: false", "enabled: true", 1)
	}
	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	require.NoError(t, err)

	v, err := validator.NewV10Validator()
	require.NoError(t, err)

	h := &harness{repo: newMemoryRepo(), outbox: mail.NewOutbox(), mr: mr}
	h.uc = New(Dependency{
		RepoDB:      h.repo,
		RepoMail:    h.outbox,
		Idempotency: idempotency.New(client),
		Validator:   v,
		Config:      cfg,
		Clock:       clock.NewManual(t0),
		Instrument:  instrument.NewNoop(),
	})
	return h
}

func authEvent(id int64, typ string) ConsumeAuthEventInput {
	return ConsumeAuthEventInput{
		ID:         id,
		Type:       typ,
		Email:      "admin@x.com",
		IP:         "203.0.113.7",
		UserAgent:  "browser",
		Metadata:   map[string]string{"cause": "failures", "lockout_until": "2026-03-01T10:00:00Z"},
		OccurredAt: t0,
	}
}

func TestUsecase_ConsumeAuthEvent_RecordsOnce(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	in := authEvent(7, entity.TypeLoginSucceeded)
	require.NoError(t, h.uc.ConsumeAuthEvent(ctx, in))
	require.NoError(t, h.uc.ConsumeAuthEvent(ctx, in))

	assert.Equal(t, 1, h.repo.inserts)
	ev := h.repo.events[7]
	assert.Equal(t, "failures", ev.Metadata.GetString("cause"))
	assert.Equal(t, time.UTC, ev.OccurredAt.Location())

	require.Len(t, h.outbox.Sent(), 1)
	msg, _ := h.outbox.Last()
	assert.Equal(t, []string{"admin@x.com"}, msg.To)
	assert.Equal(t, "security@otpgate.local", msg.From)
	assert.Equal(t, "New admin sign-in", msg.Subject)
	assert.Contains(t, msg.TextBody, "203.0.113.7")

	assert.Equal(t, 48*time.Hour, h.mr.TTL("idempotency:audit:event:7"))
}

func TestUsecase_ConsumeAuthEvent_AlertTypes(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	require.NoError(t, h.uc.ConsumeAuthEvent(ctx, authEvent(1, "otp_requested")))
	require.NoError(t, h.uc.ConsumeAuthEvent(ctx, authEvent(2, "otp_verify_failed")))
	assert.Empty(t, h.outbox.Sent())

	require.NoError(t, h.uc.ConsumeAuthEvent(ctx, authEvent(3, entity.TypeAccountLocked)))
	msg, ok := h.outbox.Last()
	require.True(t, ok)
	assert.Equal(t, "Admin sign-in locked", msg.Subject)
	assert.Contains(t, msg.TextBody, "too many wrong codes")
	assert.Contains(t, msg.TextBody, "Locked until: 2026-03-01T10:00:00Z")
}

func TestUsecase_ConsumeAuthEvent_AlertsDisabled(t *testing.T) {
	h := newHarness(t, false)

	require.NoError(t, h.uc.ConsumeAuthEvent(context.Background(), authEvent(1, entity.TypeAccountLocked)))
	assert.Equal(t, 1, h.repo.inserts)
	assert.Empty(t, h.outbox.Sent())
}

func TestUsecase_ConsumeAuthEvent_AlertFailureKeepsRecord(t *testing.T) {
	h := newHarness(t, true)
	h.outbox.FailWith(errors.New("relay down"))

	require.NoError(t, h.uc.ConsumeAuthEvent(context.Background(), authEvent(1, entity.TypeLoginSucceeded)))
	assert.Equal(t, 1, h.repo.inserts)
}

func TestUsecase_ConsumeAuthEvent_RetriesFailedInsert(t *testing.T) {
	h := newHarness(t, false)
	h.repo.failN = 1
	ctx := context.Background()

	in := authEvent(9, "logout")
	assert.Error(t, h.uc.ConsumeAuthEvent(ctx, in))
	assert.Equal(t, 0, h.repo.inserts)

	require.NoError(t, h.uc.ConsumeAuthEvent(ctx, in))
	assert.Equal(t, 1, h.repo.inserts)
}

func TestUsecase_ConsumeAuthEvent_InProgressIsRedelivered(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.mr.Set("idempotency:audit:event:5", string(idempotency.StateInProgress)))

	err := h.uc.ConsumeAuthEvent(context.Background(), authEvent(5, "logout"))
	assert.ErrorIs(t, err, idempotency.ErrAlreadyInProgress)
	assert.Equal(t, 0, h.repo.inserts)
}

func TestUsecase_ConsumeAuthEvent_DropsMalformed(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	missingID := authEvent(0, "logout")
	require.NoError(t, h.uc.ConsumeAuthEvent(ctx, missingID))

	missingTime := authEvent(3, "logout")
	missingTime.OccurredAt = time.Time{}
	require.NoError(t, h.uc.ConsumeAuthEvent(ctx, missingTime))

	assert.Equal(t, 0, h.repo.inserts)
	assert.Empty(t, h.mr.Keys())
}

func TestUsecase_ListEvents(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		in := authEvent(i, "otp_requested")
		in.OccurredAt = t0.Add(time.Duration(i) * time.Minute)
		require.NoError(t, h.uc.ConsumeAuthEvent(ctx, in))
	}
	other := authEvent(4, "otp_requested")
	other.Email = "ops@x.com"
	require.NoError(t, h.uc.ConsumeAuthEvent(ctx, other))

	events, err := h.uc.ListEvents(ctx, ListEventsInput{Email: " Admin@X.com "})
	require.NoError(t, err)
	assert.Equal(t, entity.Filter{Email: "admin@x.com", Limit: entity.DefaultListLimit}, h.repo.filter)
	require.Len(t, events, 3)
	assert.Equal(t, int64(3), events[0].ID)

	events, err = h.uc.ListEvents(ctx, ListEventsInput{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	_, err = h.uc.ListEvents(ctx, ListEventsInput{Limit: entity.MaxListLimit + 1})
	var gerr *goerror.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, goerror.TypeValidation, gerr.Type())
}

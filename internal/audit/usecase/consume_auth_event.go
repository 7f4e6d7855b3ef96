package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/shandysiswandi/otpgate/internal/audit/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/pkg/valueobject"
)

var alertTypes = []string{entity.TypeAccountLocked, entity.TypeLoginSucceeded}

type ConsumeAuthEventInput struct {
	ID         int64  `validate:"required,gt=0"`
	Type       string `validate:"required,max=64"`
	Email      string `validate:"required,max=254"`
	IP         string `validate:"max=64"`
	UserAgent  string
	Metadata   map[string]string
	OccurredAt time.Time `validate:"required"`
}

// ConsumeAuthEvent stores the event once per id and sends the security alert
// for the types that carry one. Malformed events are dropped. The returned
// error asks the broker for redelivery.
func (s *Usecase) ConsumeAuthEvent(ctx context.Context, in ConsumeAuthEventInput) error {
	ctx, span := s.startSpan(ctx, "ConsumeAuthEvent")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		slog.ErrorContext(ctx, "Validation failed", "event_id", in.ID, "error", err)
		return nil
	}

	ev := entity.Event{
		ID:         in.ID,
		Type:       in.Type,
		Email:      in.Email,
		IP:         in.IP,
		UserAgent:  in.UserAgent,
		Metadata:   valueobject.JSONMap(lo.MapValues(in.Metadata, func(v string, _ string) any { return v })),
		OccurredAt: in.OccurredAt.UTC(),
	}

	key := "audit:event:" + strconv.FormatInt(in.ID, 10)
	err := s.idempotency.Exec(ctx, key, func(ctx context.Context) error {
		return s.record(ctx, ev)
	}, idempotency.WithStateTTL(s.dedupeTTL()), idempotency.WithRetryFailed())

	switch {
	case err == nil:
		return nil
	case errors.Is(err, idempotency.ErrAlreadyCompleted):
		slog.InfoContext(ctx, "auth event already recorded", "event_id", in.ID)
		return nil
	case errors.Is(err, idempotency.ErrAlreadyInProgress):
		slog.WarnContext(ctx, "auth event is being recorded by another consumer", "event_id", in.ID)
		return err
	default:
		slog.ErrorContext(ctx, "failed to record auth event", "event_id", in.ID, "error", err)
		return err
	}
}

func (s *Usecase) record(ctx context.Context, ev entity.Event) error {
	if err := s.repoDB.CreateEvent(ctx, ev); err != nil && !errors.Is(err, goerror.ErrConflict) {
		return err
	}

	if s.cfg.GetBool(cfgAlertsEnabled) && lo.Contains(alertTypes, ev.Type) {
		s.sendAlert(ctx, ev)
	}

	return nil
}

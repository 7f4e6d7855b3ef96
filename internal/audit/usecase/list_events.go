package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/audit/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
)

type ListEventsInput struct {
	Email string `validate:"omitempty,max=254"`
	Type  string `validate:"omitempty,max=64"`
	Limit int    `validate:"gte=0,lte=100"`
}

func (s *Usecase) ListEvents(ctx context.Context, in ListEventsInput) ([]entity.Event, error) {
	ctx, span := s.startSpan(ctx, "ListEvents")
	defer span.End()

	in.Email = otp.NormalizeEmail(in.Email)
	in.Type = strings.TrimSpace(in.Type)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	limit := in.Limit
	if limit == 0 {
		limit = entity.DefaultListLimit
	}

	events, err := s.repoDB.ListEvents(ctx, entity.Filter{Email: in.Email, Type: in.Type, Limit: limit})
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo list audit events", "error", err)
		return nil, goerror.NewServer(err)
	}

	return events, nil
}

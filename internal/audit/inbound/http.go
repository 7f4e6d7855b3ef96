package inbound

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/audit/entity"
	"github.com/shandysiswandi/otpgate/internal/audit/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

type uc interface {
	ConsumeAuthEvent(ctx context.Context, in usecase.ConsumeAuthEventInput) error
	ListEvents(ctx context.Context, in usecase.ListEventsInput) ([]entity.Event, error)
}

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	r.GET("/api/v1/audit/events", end.ListEvents)
}

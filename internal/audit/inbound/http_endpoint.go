package inbound

import (
	"strconv"

	"github.com/samber/lo"
	"github.com/shandysiswandi/otpgate/internal/audit/entity"
	"github.com/shandysiswandi/otpgate/internal/audit/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/valueobject"
)

type HTTPEndpoint struct {
	uc uc
}

// ListEvents returns the most recent admin authentication events.
// @Summary List audit events
// @Description Newest first. Filters by email and event type are optional. limit defaults to 50 and is capped at 100.
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param email query string false "Admin email"
// @Param type query string false "Event type" Enums(otp_requested, otp_delivery_failed, otp_verify_failed, account_locked, login_succeeded, logout)
// @Param limit query int false "Page size" minimum(1) maximum(100)
// @Success 200 {object} router.successResponse{data=ListEventsResponse} "Events"
// @Failure 400 {object} router.errorResponse "Invalid query"
// @Failure 401 {object} router.errorResponse "SESSION_INVALID or SESSION_EXPIRED"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Router /api/v1/audit/events [get]
func (h *HTTPEndpoint) ListEvents(r *router.Request) (any, error) {
	limit, err := r.GetQueryInt("limit")
	if err != nil {
		return nil, err
	}

	events, err := h.uc.ListEvents(r.Context(), usecase.ListEventsInput{
		Email: r.GetQuery("email"),
		Type:  r.GetQuery("type"),
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}

	return ListEventsResponse(lo.Map(events, func(ev entity.Event, _ int) EventResponse {
		meta := ev.Metadata
		if meta == nil {
			meta = valueobject.JSONMap{}
		}
		return EventResponse{
			ID:         strconv.FormatInt(ev.ID, 10),
			Type:       ev.Type,
			Email:      ev.Email,
			IP:         ev.IP,
			UserAgent:  ev.UserAgent,
			Metadata:   meta,
			OccurredAt: ev.OccurredAt,
		}
	})), nil
}

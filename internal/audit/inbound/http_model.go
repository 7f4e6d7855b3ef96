package inbound

import (
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/valueobject"
)

type EventResponse struct {
	ID         string              `json:"id" example:"1894331937281196032"`
	Type       string              `json:"type" example:"login_succeeded"`
	Email      string              `json:"email" example:"admin@example.com"`
	IP         string              `json:"ip,omitempty" example:"203.0.113.7"`
	UserAgent  string              `json:"user_agent,omitempty"`
	Metadata   valueobject.JSONMap `json:"metadata"`
	OccurredAt time.Time           `json:"occurred_at"`
}

type ListEventsResponse []EventResponse

func (ListEventsResponse) Message() string {
	return "audit events listed"
}

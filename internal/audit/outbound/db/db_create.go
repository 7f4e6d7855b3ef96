package db

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/audit/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/valueobject"
)

const insertEvent = `INSERT INTO audit_events (id, type, email, ip, user_agent, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`

// CreateEvent stores ev. A second insert of the same id returns goerror.ErrConflict.
func (s *DB) CreateEvent(ctx context.Context, ev entity.Event) (err error) {
	ctx, span := s.startSpan(ctx, "CreateEvent")
	defer func() { s.endSpan(span, err) }()

	meta := ev.Metadata
	if meta == nil {
		meta = valueobject.JSONMap{}
	}

	tag, err := s.conn.Exec(ctx, insertEvent,
		ev.ID, ev.Type, ev.Email, ev.IP, ev.UserAgent, meta, ev.OccurredAt.UTC())
	if err != nil {
		return s.mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return goerror.ErrConflict
	}

	return nil
}

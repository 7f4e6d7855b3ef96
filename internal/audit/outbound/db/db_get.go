package db

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shandysiswandi/otpgate/internal/audit/entity"
)

const selectEvents = `SELECT id, type, email, ip, user_agent, metadata, occurred_at FROM audit_events`

func (s *DB) ListEvents(ctx context.Context, f entity.Filter) (_ []entity.Event, err error) {
	ctx, span := s.startSpan(ctx, "ListEvents")
	defer func() { s.endSpan(span, err) }()

	var (
		conds []string
		args  []any
	)
	if f.Email != "" {
		args = append(args, f.Email)
		conds = append(conds, "email = $"+strconv.Itoa(len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		conds = append(conds, "type = $"+strconv.Itoa(len(args)))
	}

	query := selectEvents
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit)
	query += " ORDER BY occurred_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, s.mapError(err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.Event, error) {
		var ev entity.Event
		err := row.Scan(&ev.ID, &ev.Type, &ev.Email, &ev.IP, &ev.UserAgent, &ev.Metadata, &ev.OccurredAt)
		ev.OccurredAt = ev.OccurredAt.UTC()
		return ev, err
	})
	if err != nil {
		return nil, s.mapError(err)
	}

	return events, nil
}

package mq

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/shandysiswandi/otpgate/internal/adminauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
	"go.opentelemetry.io/otel/codes"
)

type Messaging struct {
	client messaging.Publisher
	ins    instrument.Instrumentation
}

func NewMessaging(client messaging.Publisher, ins instrument.Instrumentation) *Messaging {
	return &Messaging{client: client, ins: ins}
}

func (m *Messaging) PublishAuthEvent(ctx context.Context, ev entity.AuthEvent) error {
	ctx, span := m.ins.Tracer("adminauth.outbound.mq").Start(ctx, "PublishAuthEvent")
	defer span.End()

	body, err := json.Marshal(event.AuthEventMessage{
		ID:         ev.ID,
		Type:       string(ev.Type),
		Email:      ev.Email,
		IP:         ev.IP,
		UserAgent:  ev.UserAgent,
		Metadata:   ev.Metadata,
		OccurredAt: ev.OccurredAt.UnixMilli(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	msg := &messaging.Message{Key: []byte(ev.Email), Data: body}
	msg.SetHeader("id", strconv.FormatInt(ev.ID, 10))
	if cID := instrument.GetCorrelationID(ctx); cID != "" {
		msg.SetHeader(event.HeaderCorrelationID, cID)
	}

	if err := m.client.Publish(ctx, event.AuthEventDestination, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

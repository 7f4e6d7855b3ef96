package inbound

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shandysiswandi/otpgate/internal/audit/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

type MQHandler struct {
	uc   uc
	uuid uid.StringID
	ins  instrument.Instrumentation
}

func (h *MQHandler) ensureCorrelationID(ctx context.Context, msg *messaging.Message) context.Context {
	if cID := msg.Header(event.HeaderCorrelationID); cID != "" {
		return instrument.SetCorrelationID(ctx, cID)
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

func (h *MQHandler) AuthEventAudit(ctx context.Context, msg *messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg)

	ctx, span := h.ins.Tracer("audit.inbound.mq").Start(ctx, "AuthEventAudit")
	defer span.End()

	slog.InfoContext(ctx, "consume: admin auth event", "msg_id", msg.ID, "topic", msg.Topic)

	var payload event.AuthEventMessage
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of admin auth event", "msg_body", string(msg.Data), "error", err)
		return nil
	}

	var occurredAt time.Time
	if payload.OccurredAt > 0 {
		occurredAt = time.UnixMilli(payload.OccurredAt).UTC()
	}

	if err := h.uc.ConsumeAuthEvent(ctx, usecase.ConsumeAuthEventInput{
		ID:         payload.ID,
		Type:       payload.Type,
		Email:      payload.Email,
		IP:         payload.IP,
		UserAgent:  payload.UserAgent,
		Metadata:   payload.Metadata,
		OccurredAt: occurredAt,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to consume admin auth event", "event_id", payload.ID, "error", err)
		return err
	}

	return nil
}

package inbound

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

const defaultConsumerConcurrency = 4

func RegisterMQConsumer(
	ctx context.Context,
	cfg config.Config,
	routine *goroutine.Manager,
	subscriber messaging.Subscriber,
	uuid uid.StringID,
	uc uc,
	ins instrument.Instrumentation,
) {
	if !cfg.GetBool("modules.audit.consumer_enabled") {
		slog.InfoContext(ctx, "audit consumer disabled")
		return
	}

	mqHandler := &MQHandler{uc: uc, uuid: uuid, ins: ins}

	concurrency := cfg.GetInt("modules.audit.consumer_concurrency")
	if concurrency <= 0 {
		concurrency = defaultConsumerConcurrency
	}

	routine.Go(ctx, func(pCtx context.Context) error {
		slog.InfoContext(ctx, "Running job for handling consumer", "consumer", event.AuthEventConsumerAudit)
		return subscriber.Subscribe(pCtx,
			event.AuthEventDestination,
			mqHandler.AuthEventAudit,
			messaging.WithGroup(event.AuthEventConsumerAudit),
			messaging.WithConcurrency(concurrency),
		)
	})
}

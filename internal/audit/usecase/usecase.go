package usecase

import (
	"context"
	"time"

	"github.com/shandysiswandi/otpgate/internal/audit/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

const (
	cfgAlertsEnabled = "modules.audit.alerts.enabled"
	cfgAlertsFrom    = "modules.audit.alerts.from"
	cfgDedupeTTL     = "modules.audit.dedupe_ttl_hours"

	defaultDedupeTTL = 24 * time.Hour
)

type repoDB interface {
	CreateEvent(ctx context.Context, ev entity.Event) error
	ListEvents(ctx context.Context, f entity.Filter) ([]entity.Event, error)
}

type repoMail interface {
	Send(ctx context.Context, msg mail.Message) error
}

type Usecase struct {
	repoDB      repoDB
	repoMail    repoMail
	idempotency idempotency.Idempotency
	validator   validator.Validator
	cfg         config.Config
	clock       clock.Clocker
	ins         instrument.Instrumentation
}

type Dependency struct {
	RepoDB      repoDB
	RepoMail    repoMail
	Idempotency idempotency.Idempotency
	Validator   validator.Validator
	Config      config.Config
	Clock       clock.Clocker
	Instrument  instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:      dep.RepoDB,
		repoMail:    dep.RepoMail,
		idempotency: dep.Idempotency,
		validator:   dep.Validator,
		cfg:         dep.Config,
		clock:       dep.Clock,
		ins:         dep.Instrument,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("audit.usecase").Start(ctx, name)
}

func (s *Usecase) dedupeTTL() time.Duration {
	if ttl := s.cfg.GetHour(cfgDedupeTTL); ttl > 0 {
		return ttl
	}
	return defaultDedupeTTL
}

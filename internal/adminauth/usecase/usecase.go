package usecase

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/shandysiswandi/otpgate/internal/adminauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/keylock"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/ratelimit"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	cfgAllowlist       = "modules.adminauth.allowlist"
	cfgSessionTTL      = "modules.adminauth.session.ttl_hours"
	cfgDeliveryTimeout = "modules.adminauth.delivery.timeout_seconds"

	defaultSessionTTL      = 24 * time.Hour
	defaultDeliveryTimeout = 10 * time.Second

	// GlobalPrincipal keys the guard that bounds issuance across all emails.
	GlobalPrincipal = "global"

	sessionTokenBytes = 32
)

type challengeStore interface {
	Issue(ctx context.Context, email string) (*entity.IssuedChallenge, error)
	Validate(ctx context.Context, email, code, token string) (entity.Validation, error)
	Invalidate(ctx context.Context, email string) error
}

type sessionStore interface {
	PutSession(ctx context.Context, s entity.Session, ttl time.Duration) error
	GetSession(ctx context.Context, id string) (*entity.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

type guard interface {
	Policy() ratelimit.Policy
	CanRequest(ctx context.Context, principal string) (ratelimit.Decision, error)
	OnRequest(ctx context.Context, principal string) (ratelimit.Record, error)
	OnFailure(ctx context.Context, principal string) (bool, ratelimit.Record, error)
	OnSuccess(ctx context.Context, principal string) (ratelimit.Record, error)
	Peek(ctx context.Context, principal string) (ratelimit.Record, error)
	AttemptsLeft(r ratelimit.Record) int
}

type delivery interface {
	SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error
}

type repoMessaging interface {
	PublishAuthEvent(ctx context.Context, ev entity.AuthEvent) error
}

type client struct {
	IP        string
	UserAgent string
}

type metrics struct {
	requests      metric.Int64Counter
	verifications metric.Int64Counter
	lockouts      metric.Int64Counter
}

func newMetrics(m metric.Meter) metrics {
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			slog.Warn("failed to create counter, using noop", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return metrics{
		requests:      counter("adminauth.otp.requests", "OTP issuance attempts by outcome"),
		verifications: counter("adminauth.otp.verifications", "OTP verification attempts by outcome"),
		lockouts:      counter("adminauth.lockouts", "Lockouts started by cause"),
	}
}

type Usecase struct {
	challenges    challengeStore
	sessions      sessionStore
	guard         guard
	globalGuard   guard
	delivery      delivery
	repoMessaging repoMessaging
	validator     validator.Validator
	cfg           config.Config
	sessionHash   hash.Hash
	uid           uid.NumberID
	clock         clock.Clocker
	random        io.Reader
	locks         *keylock.KeyLock
	ins           instrument.Instrumentation
	goroutine     *goroutine.Manager
	metrics       metrics
}

type Dependency struct {
	Challenges    challengeStore
	Sessions      sessionStore
	Guard         guard
	GlobalGuard   guard
	Delivery      delivery
	RepoMessaging repoMessaging
	Validator     validator.Validator
	Config        config.Config
	SessionHash   hash.Hash
	UID           uid.NumberID
	Clock         clock.Clocker
	Random        io.Reader
	Locks         *keylock.KeyLock
	Instrument    instrument.Instrumentation
	Goroutine     *goroutine.Manager
}

func New(dep Dependency) *Usecase {
	random := dep.Random
	if random == nil {
		random = rand.Reader
	}

	locks := dep.Locks
	if locks == nil {
		locks = keylock.New()
	}

	return &Usecase{
		challenges:    dep.Challenges,
		sessions:      dep.Sessions,
		guard:         dep.Guard,
		globalGuard:   dep.GlobalGuard,
		delivery:      dep.Delivery,
		repoMessaging: dep.RepoMessaging,
		validator:     dep.Validator,
		cfg:           dep.Config,
		sessionHash:   dep.SessionHash,
		uid:           dep.UID,
		clock:         dep.Clock,
		random:        random,
		locks:         locks,
		ins:           dep.Instrument,
		goroutine:     dep.Goroutine,
		metrics:       newMetrics(dep.Instrument.Meter("adminauth.usecase")),
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("adminauth.usecase").Start(ctx, name)
}

// allowlist is read on every call so a config reload takes effect immediately.
func (s *Usecase) allowlist() []string {
	return lo.Uniq(lo.FilterMap(s.cfg.GetArray(cfgAllowlist), func(e string, _ int) (string, bool) {
		n := otp.NormalizeEmail(e)
		return n, n != ""
	}))
}

func (s *Usecase) allowed(email string) bool {
	return email != "" && lo.Contains(s.allowlist(), email)
}

func (s *Usecase) sessionTTL() time.Duration {
	if ttl := s.cfg.GetHour(cfgSessionTTL); ttl > 0 {
		return ttl
	}
	return defaultSessionTTL
}

func (s *Usecase) deliveryTimeout() time.Duration {
	if d := s.cfg.GetSecond(cfgDeliveryTimeout); d > 0 {
		return d
	}
	return defaultDeliveryTimeout
}

// publish emits ev in the background. Failures are logged and never reach the caller.
func (s *Usecase) publish(ctx context.Context, typ entity.EventType, email string, c client, meta map[string]string) {
	ev := entity.AuthEvent{
		ID:         s.uid.Generate(),
		Type:       typ,
		Email:      email,
		IP:         c.IP,
		UserAgent:  c.UserAgent,
		Metadata:   meta,
		OccurredAt: s.clock.Now(),
	}

	s.goroutine.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
		if err := s.repoMessaging.PublishAuthEvent(ctx, ev); err != nil {
			slog.ErrorContext(ctx, "failed to publish auth event", "type", typ, "email", email, "error", err)
		}
		return nil
	})
}

func outcome(v string) metric.AddOption {
	return metric.WithAttributes(attribute.String("outcome", v))
}

func byCause(c ratelimit.Cause) metric.AddOption {
	return metric.WithAttributes(attribute.String("cause", string(c)))
}

package adminauth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/adminauth/entity"
	"github.com/shandysiswandi/otpgate/internal/adminauth/inbound"
	"github.com/shandysiswandi/otpgate/internal/adminauth/outbound/cache"
	"github.com/shandysiswandi/otpgate/internal/adminauth/outbound/delivery"
	"github.com/shandysiswandi/otpgate/internal/adminauth/outbound/mq"
	"github.com/shandysiswandi/otpgate/internal/adminauth/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/keylock"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/ratelimit"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
)

const (
	StrategyStore = "store"
	StrategyToken = "token"

	keySize = 32
)

var ErrUnknownStrategy = errors.New("adminauth: unknown challenge strategy")

type challengeStore interface {
	Issue(ctx context.Context, email string) (*entity.IssuedChallenge, error)
	Validate(ctx context.Context, email, code, token string) (entity.Validation, error)
	Invalidate(ctx context.Context, email string) error
}

// Keys are the purpose-bound secrets derived from the module master secret.
type Keys struct {
	TokenMAC   []byte
	CodeDigest []byte
	Session    []byte
}

// DeriveKeys expands master into the module keys with HKDF-SHA256.
func DeriveKeys(master []byte) (Keys, error) {
	var (
		k   Keys
		err error
	)

	if k.TokenMAC, err = hash.DeriveKey(master, "otpgate/adminauth/token-mac", keySize); err != nil {
		return Keys{}, err
	}
	if k.CodeDigest, err = hash.DeriveKey(master, "otpgate/adminauth/code-digest", keySize); err != nil {
		return Keys{}, err
	}
	if k.Session, err = hash.DeriveKey(master, "otpgate/adminauth/session", keySize); err != nil {
		return Keys{}, err
	}

	return k, nil
}

type Dependency struct {
	CacheConn  redis.UniversalClient      `validate:"required"`
	Goroutine  *goroutine.Manager         `validate:"required"`
	Router     *router.Router             `validate:"required"`
	Messaging  messaging.Publisher        `validate:"required"`
	Mail       mail.Mail                  `validate:"required"`
	Config     config.Config              `validate:"required"`
	Instrument instrument.Instrumentation `validate:"required"`
	UID        uid.NumberID               `validate:"required"`
	UUID       uid.StringID               `validate:"required"`
	Clock      clock.Clocker              `validate:"required"`
	Validator  validator.Validator        `validate:"required"`
	Keys       Keys
}

func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	cfg := dep.Config

	maxFailures := cfg.GetInt("modules.adminauth.guard.max_failed_attempts")
	policy := ratelimit.Policy{
		Cooldown:    cfg.GetSecond("modules.adminauth.guard.cooldown_seconds"),
		Window:      cfg.GetMinute("modules.adminauth.guard.window_minutes"),
		MaxRequests: cfg.GetInt("modules.adminauth.guard.max_requests_per_window"),
		MaxFailures: maxFailures,
		Lockout:     cfg.GetHour("modules.adminauth.guard.lockout_hours"),
	}

	var store ratelimit.Store = ratelimit.NewRedisStore(dep.CacheConn, "adminauth:guard")
	if strings.EqualFold(cfg.GetString("modules.adminauth.guard.store"), "memory") {
		store = ratelimit.NewMemoryStore()
	}

	cacheAuth := cache.NewCache(dep.CacheConn, dep.Instrument)

	challenges, err := newChallenges(cacheAuth, dep, maxFailures)
	if err != nil {
		return err
	}

	sender, err := delivery.New(dep.Mail, dep.Instrument, dep.Clock,
		cfg.GetString("modules.adminauth.delivery.from"), cfg.GetString("app.name"))
	if err != nil {
		return err
	}

	ucDep := usecase.Dependency{
		Challenges:    challenges,
		Sessions:      cacheAuth,
		Guard:         ratelimit.NewGuard(store, dep.Clock, policy),
		Delivery:      sender,
		RepoMessaging: mq.NewMessaging(dep.Messaging, dep.Instrument),
		Validator:     dep.Validator,
		Config:        cfg,
		SessionHash:   hash.NewHMACSHA256(dep.Keys.Session),
		UID:           dep.UID,
		Clock:         dep.Clock,
		Locks:         keylock.New(),
		Instrument:    dep.Instrument,
		Goroutine:     dep.Goroutine,
	}

	if cfg.GetBool("modules.adminauth.guard.global.enabled") {
		window := cfg.GetMinute("modules.adminauth.guard.global.window_minutes")
		ucDep.GlobalGuard = ratelimit.NewGuard(store, dep.Clock, ratelimit.Policy{
			Window:      window,
			MaxRequests: cfg.GetInt("modules.adminauth.guard.global.max_requests_per_window"),
			Lockout:     window,
		})
	}

	uc := usecase.New(ucDep)

	inbound.RegisterHTTPEndpoint(dep.Router, uc, dep.Clock)

	return nil
}

func newChallenges(c *cache.Cache, dep Dependency, maxAttempts int) (challengeStore, error) {
	cfg := cache.ChallengeConfig{
		TTL:       dep.Config.GetSecond("modules.adminauth.otp.ttl_seconds"),
		Generator: otp.NewGenerator(rand.Reader),
		Clock:     dep.Clock,
	}

	switch strategy := strings.ToLower(dep.Config.GetString("modules.adminauth.challenge.strategy")); strategy {
	case StrategyToken:
		codec, err := otp.NewCodec(dep.Keys.TokenMAC, dep.Keys.CodeDigest, dep.Clock)
		if err != nil {
			return nil, err
		}
		return cache.NewTokenChallenges(c, cfg, codec), nil

	case StrategyStore, "":
		return cache.NewStoreChallenges(c, cfg, maxAttempts, hash.NewHMACSHA256(dep.Keys.CodeDigest), dep.UUID), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

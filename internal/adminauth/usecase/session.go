package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shandysiswandi/otpgate/internal/adminauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

type ValidateSessionInput struct {
	SessionToken string
}

type SessionOutput struct {
	SessionID string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// createSession mints a bearer token for email. Only the keyed hash of the
// token is stored, and a new session replaces the previous one for email.
func (s *Usecase) createSession(ctx context.Context, email string) (*entity.Session, string, error) {
	if !s.allowed(email) {
		slog.WarnContext(ctx, "session requested for email outside the allow-list", "email", email)
		return nil, "", errInvalidEmail()
	}

	buf := make([]byte, sessionTokenBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		slog.ErrorContext(ctx, "failed to read session token entropy", "email", email, "error", err)
		return nil, "", errServer(err, entity.StepOTP)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	id, err := s.sessionHash.Hash(token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash session token", "email", email, "error", err)
		return nil, "", errServer(err, entity.StepOTP)
	}

	ttl := s.sessionTTL()
	now := s.clock.Now()
	sess := entity.Session{
		ID:        string(id),
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if err := s.sessions.PutSession(ctx, sess, ttl); err != nil {
		slog.ErrorContext(ctx, "failed to store session", "email", email, "error", err)
		return nil, "", errServer(err, entity.StepOTP)
	}

	return &sess, token, nil
}

// ValidateSession resolves a bearer token. Expired sessions and sessions whose
// email left the allow-list are evicted on the way.
func (s *Usecase) ValidateSession(ctx context.Context, in ValidateSessionInput) (*SessionOutput, error) {
	ctx, span := s.startSpan(ctx, "ValidateSession")
	defer span.End()

	token := strings.TrimSpace(in.SessionToken)
	if token == "" {
		return nil, errSessionInvalid()
	}

	id, err := s.sessionHash.Hash(token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash session token", "error", err)
		return nil, errServer(err, entity.StepEmail)
	}

	sess, err := s.sessions.GetSession(ctx, string(id))
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "session not found")
		return nil, errSessionInvalid()
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to get session", "error", err)
		return nil, errServer(err, entity.StepEmail)
	}

	if sess.ExpiredAt(s.clock.Now()) {
		s.evictSession(ctx, sess)
		slog.WarnContext(ctx, "session expired", "email", sess.Email, "expired_at", sess.ExpiresAt)
		return nil, errSessionExpired()
	}

	if !s.allowed(sess.Email) {
		s.evictSession(ctx, sess)
		slog.WarnContext(ctx, "session email left the allow-list", "email", sess.Email)
		return nil, errSessionInvalid()
	}

	return &SessionOutput{
		SessionID: sess.ID,
		Email:     sess.Email,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

func (s *Usecase) evictSession(ctx context.Context, sess *entity.Session) {
	if err := s.sessions.DeleteSession(ctx, sess.ID); err != nil {
		slog.ErrorContext(ctx, "failed to evict session", "email", sess.Email, "error", err)
	}
}

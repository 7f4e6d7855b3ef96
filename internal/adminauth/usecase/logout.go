package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/adminauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

type LogoutInput struct {
	SessionToken string
	IP           string
	UserAgent    string
}

// Logout destroys the session behind the bearer token. Logging out of an
// unknown session succeeds.
func (s *Usecase) Logout(ctx context.Context, in LogoutInput) (*entity.FlowState, error) {
	ctx, span := s.startSpan(ctx, "Logout")
	defer span.End()

	state := &entity.FlowState{Step: entity.StepEmail, RemainingAttempts: -1}

	token := strings.TrimSpace(in.SessionToken)
	if token == "" {
		return state, nil
	}

	id, err := s.sessionHash.Hash(token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash session token", "error", err)
		return nil, errServer(err, entity.StepAuthenticated)
	}

	sess, err := s.sessions.GetSession(ctx, string(id))
	if errors.Is(err, goerror.ErrNotFound) {
		return state, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to get session", "error", err)
		return nil, errServer(err, entity.StepAuthenticated)
	}

	if err := s.sessions.DeleteSession(ctx, sess.ID); err != nil {
		slog.ErrorContext(ctx, "failed to delete session", "email", sess.Email, "error", err)
		return nil, errServer(err, entity.StepAuthenticated)
	}

	s.publish(ctx, entity.EventLogout, sess.Email, client{IP: in.IP, UserAgent: in.UserAgent}, nil)

	return state, nil
}

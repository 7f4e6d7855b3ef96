package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shandysiswandi/otpgate/internal/audit/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
)

// sendAlert mails the affected admin. Alert failures never undo the record.
func (s *Usecase) sendAlert(ctx context.Context, ev entity.Event) {
	subject, lead := alertCopy(ev)

	var b strings.Builder
	b.WriteString(lead + "\n\n")
	fmt.Fprintf(&b, "Time: %s\n", ev.OccurredAt.UTC().Format(time.RFC1123))
	if ev.IP != "" {
		fmt.Fprintf(&b, "IP address: %s\n", ev.IP)
	}
	if ev.UserAgent != "" {
		fmt.Fprintf(&b, "Device: %s\n", ev.UserAgent)
	}
	if until := ev.Metadata.GetString("lockout_until"); until != "" {
		fmt.Fprintf(&b, "Locked until: %s\n", until)
	}
	b.WriteString("\nIf this was not you, contact your security team.\n")

	if err := s.repoMail.Send(ctx, mail.Message{
		From:     s.cfg.GetString(cfgAlertsFrom),
		To:       []string{ev.Email},
		Subject:  subject,
		TextBody: b.String(),
	}); err != nil {
		slog.ErrorContext(ctx, "failed to send security alert", "event_id", ev.ID, "type", ev.Type, "error", err)
		return
	}

	slog.InfoContext(ctx, "security alert sent", "event_id", ev.ID, "type", ev.Type)
}

func alertCopy(ev entity.Event) (subject, lead string) {
	if ev.Type == entity.TypeAccountLocked {
		if ev.Metadata.GetString("cause") == "quota" {
			return "Admin sign-in locked", "Sign-in for your admin account was locked after too many code requests."
		}
		return "Admin sign-in locked", "Sign-in for your admin account was locked after too many wrong codes."
	}
	return "New admin sign-in", "Your admin account was just signed in."
}

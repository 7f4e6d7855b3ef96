package mail

import (
	"context"
	"io"
)

// Message represents an email payload.
type Message struct {
	// From is an optional explicit sender; fallback depends on implementation.
	From string
	To   []string
	Cc   []string
	Bcc  []string
	// Subject is the email subject line.
	Subject string
	// TextBody is the plain-text body; preferred when HTMLBody is empty.
	TextBody string
	// HTMLBody is the optional HTML body.
	HTMLBody string
}

// Recipients returns To, Cc and Bcc in that order.
func (m Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	return append(out, m.Bcc...)
}

// Mail abstracts an email provider (SMTP, third-party API, etc).
type Mail interface {
	io.Closer
	// Send dispatches msg; an error means the message was not accepted.
	Send(ctx context.Context, msg Message) error
}

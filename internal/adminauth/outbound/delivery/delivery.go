package delivery

import (
	"bytes"
	"context"
	"embed"
	htmltemplate "html/template"
	"math"
	"text/template"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"go.opentelemetry.io/otel/codes"
)

//go:embed templates/*.tmpl
var templates embed.FS

const subject = "Your admin sign-in code"

// Delivery renders the OTP email and hands it to the mail client.
type Delivery struct {
	client  mail.Mail
	ins     instrument.Instrumentation
	clock   clock.Clocker
	from    string
	product string

	html *htmltemplate.Template
	text *template.Template
}

func New(client mail.Mail, ins instrument.Instrumentation, clk clock.Clocker, from, product string) (*Delivery, error) {
	html, err := htmltemplate.ParseFS(templates, "templates/otp.html.tmpl")
	if err != nil {
		return nil, err
	}
	text, err := template.ParseFS(templates, "templates/otp.txt.tmpl")
	if err != nil {
		return nil, err
	}

	return &Delivery{
		client:  client,
		ins:     ins,
		clock:   clk,
		from:    from,
		product: product,
		html:    html.Option("missingkey=zero"),
		text:    text.Option("missingkey=zero"),
	}, nil
}

// SendOTP delivers code to email. It returns once the relay accepted or
// rejected the message, or when ctx is done.
func (d *Delivery) SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	ctx, span := d.ins.Tracer("adminauth.outbound.delivery").Start(ctx, "SendOTP")
	defer span.End()

	data := map[string]any{
		"product":    d.product,
		"code":       code,
		"minutes":    int(math.Ceil(expiresAt.Sub(d.clock.Now()).Minutes())),
		"expires_at": expiresAt.UTC().Format("15:04 MST"),
	}

	var html, text bytes.Buffer
	if err := d.html.Execute(&html, data); err != nil {
		span.RecordError(err)
		return err
	}
	if err := d.text.Execute(&text, data); err != nil {
		span.RecordError(err)
		return err
	}

	if err := d.client.Send(ctx, mail.Message{
		From:     d.from,
		To:       []string{email},
		Subject:  subject,
		TextBody: text.String(),
		HTMLBody: html.String(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

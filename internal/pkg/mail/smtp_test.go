package mail

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRelay accepts one SMTP session and returns the DATA payload on the channel.
func fakeRelay(t *testing.T, greet bool) (host string, port int, data <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		if !greet {
			time.Sleep(2 * time.Second)
			return
		}

		r := bufio.NewReader(conn)
		write := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
		write("220 relay ready")

		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				write("250 relay")
			case strings.HasPrefix(cmd, "MAIL FROM"), strings.HasPrefix(cmd, "RCPT TO"):
				write("250 ok")
			case cmd == "DATA":
				write("354 go ahead")
				var sb strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					sb.WriteString(l)
				}
				out <- sb.String()
				write("250 queued")
			case cmd == "QUIT":
				write("221 bye")
				return
			default:
				write("502 unsupported")
			}
		}
	}()

	h, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err = strconv.Atoi(p)
	require.NoError(t, err)

	return h, port, out
}

func TestSMTP_Send(t *testing.T) {
	host, port, data := fakeRelay(t, true)

	s, err := NewSMTP(SMTPConfig{Host: host, Port: port, From: "noreply@otpgate.local"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Send(ctx, Message{
		To:       []string{"admin@x.com"},
		Subject:  "Your sign-in code",
		TextBody: "code 482913",
	}))

	select {
	case got := <-data:
		assert.Contains(t, got, "From: noreply@otpgate.local")
		assert.Contains(t, got, "To: admin@x.com")
		assert.Contains(t, got, "Subject: Your sign-in code")
		assert.Contains(t, got, "code 482913")
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not receive DATA")
	}
}

func TestSMTP_SendHonorsDeadline(t *testing.T) {
	host, port, _ := fakeRelay(t, false)

	s, err := NewSMTP(SMTPConfig{Host: host, Port: port, From: "noreply@otpgate.local"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = s.Send(ctx, Message{To: []string{"admin@x.com"}, TextBody: "x"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSMTP_Validation(t *testing.T) {
	_, err := NewSMTP(SMTPConfig{})
	assert.ErrorIs(t, err, ErrSMTPHostPortRequired)

	s, err := NewSMTP(SMTPConfig{Host: "127.0.0.1", Port: 1})
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, s.Send(ctx, Message{From: "a@x.com"}), ErrSMTPNoRecipients)
	assert.ErrorIs(t, s.Send(ctx, Message{To: []string{"b@x.com"}}), ErrSMTPNoSender)
	assert.ErrorIs(t, s.Send(ctx, Message{From: "a@x.com", To: []string{"b@x.com"}, Subject: "hi\r\nBcc: evil@x.com"}), ErrHeaderInjection)
}

func TestBuildBody_Multipart(t *testing.T) {
	body, ct := buildBody(Message{TextBody: "plain", HTMLBody: "<b>html</b>"})
	assert.True(t, strings.HasPrefix(ct, "multipart/alternative; boundary=otpgate-boundary-"))
	assert.Contains(t, body, "plain")
	assert.Contains(t, body, "<b>html</b>")

	_, ct = buildBody(Message{HTMLBody: "<b>x</b>"})
	assert.Equal(t, "text/html; charset=UTF-8", ct)
}

func TestOutbox(t *testing.T) {
	o := NewOutbox()
	ctx := context.Background()

	require.NoError(t, o.Send(ctx, Message{To: []string{"a@x.com"}, Subject: "one"}))
	o.FailWith(assert.AnError)
	assert.ErrorIs(t, o.Send(ctx, Message{To: []string{"a@x.com"}}), assert.AnError)
	o.FailWith(nil)

	last, ok := o.Last()
	require.True(t, ok)
	assert.Equal(t, "one", last.Subject)
	assert.Len(t, o.Sent(), 1)
}

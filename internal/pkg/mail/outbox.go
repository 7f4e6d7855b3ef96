package mail

import (
	"context"
	"slices"
	"sync"
)

// Outbox is an in-memory Mail that records every accepted message.
type Outbox struct {
	mu   sync.Mutex
	sent []Message
	fail error
}

// NewOutbox returns an empty Outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Send records msg, or returns the error set by FailWith.
func (o *Outbox) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.fail != nil {
		return o.fail
	}
	if len(msg.Recipients()) == 0 {
		return ErrSMTPNoRecipients
	}

	o.sent = append(o.sent, msg)
	return nil
}

// FailWith makes subsequent sends fail with err; nil restores delivery.
func (o *Outbox) FailWith(err error) {
	o.mu.Lock()
	o.fail = err
	o.mu.Unlock()
}

// Sent returns a copy of the recorded messages.
func (o *Outbox) Sent() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.sent)
}

// Last returns the most recent message and whether there is one.
func (o *Outbox) Last() (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sent) == 0 {
		return Message{}, false
	}
	return o.sent[len(o.sent)-1], true
}

// Close implements io.Closer.
func (o *Outbox) Close() error {
	return nil
}

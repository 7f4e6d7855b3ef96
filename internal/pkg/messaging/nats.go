package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const natsFlushTimeout = 5 * time.Second

// ErrNATSURLRequired is returned when the NATS server URL is missing.
var ErrNATSURLRequired = errors.New("messaging: nats url is required")

// NATSConfig configures the NATS implementation.
type NATSConfig struct {
	URL     string
	Name    string
	Options []nats.Option
}

// NATS is a messaging implementation backed by core NATS. Delivery is at
// most once; a failed handler is logged and the message is dropped.
type NATS struct {
	conn *nats.Conn

	mu     sync.Mutex
	subs   map[*nats.Subscription]struct{}
	closed bool
}

// NewNATS connects to the NATS server.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.URL == "" {
		return nil, ErrNATSURLRequired
	}

	opts := cfg.Options
	if cfg.Name != "" {
		opts = append([]nats.Option{nats.Name(cfg.Name)}, opts...)
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("messaging: nats connect: %w", err)
	}

	return &NATS{conn: conn, subs: map[*nats.Subscription]struct{}{}}, nil
}

// Close drains subscriptions and closes the connection.
func (n *NATS) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.subs = nil
	n.mu.Unlock()

	err := n.conn.Drain()
	n.conn.Close()
	return err
}

// Publish sends a message to a subject and flushes the connection.
func (n *NATS) Publish(ctx context.Context, topic string, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if topic == "" {
		return ErrTopicRequired
	}

	nm := nats.NewMsg(topic)
	nm.Data = msg.Data
	for key, value := range msg.Headers {
		nm.Header.Set(key, value)
	}

	if err := n.conn.PublishMsg(nm); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return ErrClosed
		}
		return fmt.Errorf("messaging: nats publish: %w", err)
	}
	if err := n.flush(ctx); err != nil {
		return fmt.Errorf("messaging: nats flush: %w", err)
	}
	return nil
}

func (n *NATS) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); ok {
		return n.conn.FlushWithContext(ctx)
	}
	return n.conn.FlushTimeout(natsFlushTimeout)
}

// Subscribe joins the queue group named by WithGroup, or receives every
// message when no group is given.
func (n *NATS) Subscribe(ctx context.Context, topic string, handler Handler, opts ...SubscribeOption) error {
	if err := validateSubscribe(ctx, topic, handler); err != nil {
		return err
	}
	so := newSubscribeOptions(opts)

	msgCh := make(chan *nats.Msg, so.concurrency)
	sub, err := n.conn.QueueSubscribe(topic, so.group, func(m *nats.Msg) {
		select {
		case msgCh <- m:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("messaging: nats subscribe: %w", err)
	}
	if err := n.track(sub); err != nil {
		return errors.Join(err, sub.Unsubscribe())
	}

	var wg sync.WaitGroup
	for range so.concurrency {
		wg.Go(func() {
			for m := range msgCh {
				n.handle(ctx, m, handler)
			}
		})
	}

	<-ctx.Done()
	derr := n.untrack(sub)
	close(msgCh)
	wg.Wait()

	return errors.Join(ctx.Err(), derr)
}

func (n *NATS) handle(ctx context.Context, m *nats.Msg, handler Handler) {
	msg := &Message{Topic: m.Subject, Data: m.Data, Time: time.Now()}
	for key := range m.Header {
		msg.SetHeader(key, m.Header.Get(key))
	}

	if err := dispatch(ctx, "nats", handler, msg); err != nil {
		slog.WarnContext(ctx, "nats message handler failed", "subject", m.Subject, "error", err)
	}
}

func (n *NATS) track(sub *nats.Subscription) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	n.subs[sub] = struct{}{}
	return nil
}

func (n *NATS) untrack(sub *nats.Subscription) error {
	n.mu.Lock()
	_, owned := n.subs[sub]
	delete(n.subs, sub)
	n.mu.Unlock()

	if !owned {
		return nil
	}
	// Unsubscribe rather than Drain: the delivery callback would block on
	// msgCh once ctx is done.
	return sub.Unsubscribe()
}

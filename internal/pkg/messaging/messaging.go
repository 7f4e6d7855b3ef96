package messaging

import (
	"context"
	"errors"
	"io"
	"maps"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("messaging: client is closed")
	// ErrTopicRequired is returned when the topic is empty.
	ErrTopicRequired = errors.New("messaging: topic is required")
	// ErrHandlerRequired is returned when Subscribe is called with a nil handler.
	ErrHandlerRequired = errors.New("messaging: handler is required")
	// ErrGroupRequired is returned when the broker needs a consumer group and none was given.
	ErrGroupRequired = errors.New("messaging: consumer group is required")
)

// Message is a broker-agnostic message.
type Message struct {
	// ID is assigned by the broker when it has one.
	ID string
	// Topic is filled on delivery.
	Topic string
	// Key is used by Kafka for partitioning and ignored elsewhere.
	Key []byte
	// Data is the payload.
	Data []byte
	// Headers are propagated as headers or attributes depending on the broker.
	Headers map[string]string
	// Time is the publish time when known, otherwise the receive time.
	Time time.Time
}

// Header returns a header value or "".
func (m *Message) Header(key string) string {
	if m == nil || m.Headers == nil {
		return ""
	}
	return m.Headers[key]
}

// SetHeader sets a header, allocating the map when needed.
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string, 1)
	}
	m.Headers[key] = value
}

func (m *Message) clone() *Message {
	c := *m
	c.Key = append([]byte(nil), m.Key...)
	c.Data = append([]byte(nil), m.Data...)
	c.Headers = maps.Clone(m.Headers)
	return &c
}

// Handler processes a received message.
type Handler func(ctx context.Context, msg *Message) error

// Publisher sends messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *Message) error
}

// Subscriber consumes messages from a topic. Subscribe blocks until ctx is
// canceled or the subscription fails.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler Handler, opts ...SubscribeOption) error
}

// Messaging is a broker client able to publish and subscribe.
type Messaging interface {
	io.Closer

	Publisher
	Subscriber
}

type subscribeOptions struct {
	group       string
	concurrency int
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeOptions)

// WithGroup names the consumer group. It maps to the Kafka group id, the
// NSQ channel, the NATS queue group and the Pub/Sub subscription.
func WithGroup(group string) SubscribeOption {
	return func(o *subscribeOptions) { o.group = group }
}

// WithConcurrency sets how many handlers run in parallel. Values below one mean one.
func WithConcurrency(n int) SubscribeOption {
	return func(o *subscribeOptions) { o.concurrency = n }
}

func newSubscribeOptions(opts []SubscribeOption) subscribeOptions {
	so := subscribeOptions{concurrency: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(&so)
		}
	}
	if so.concurrency < 1 {
		so.concurrency = 1
	}
	return so
}

func validateSubscribe(ctx context.Context, topic string, handler Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if topic == "" {
		return ErrTopicRequired
	}
	if handler == nil {
		return ErrHandlerRequired
	}
	return nil
}

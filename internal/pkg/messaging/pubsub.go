package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub/v2"
	"google.golang.org/api/option"
)

// ErrPubSubProjectIDRequired is returned when no project id is configured.
var ErrPubSubProjectIDRequired = errors.New("messaging: pubsub project id is required")

// PubSubConfig configures the Google Pub/Sub implementation.
type PubSubConfig struct {
	ProjectID string
	// Endpoint points the client at an emulator when set.
	Endpoint string
	// CredentialsFile is a service account key path. Empty means ambient credentials.
	CredentialsFile string
}

// PubSub is a messaging implementation backed by Google Pub/Sub. Topics
// and subscriptions must exist; WithGroup names the subscription id.
// Message keys are not propagated.
type PubSub struct {
	client *pubsub.Client

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
	closed     bool
}

// NewPubSub constructs a Pub/Sub client.
func NewPubSub(ctx context.Context, cfg PubSubConfig) (*PubSub, error) {
	if cfg.ProjectID == "" {
		return nil, ErrPubSubProjectIDRequired
	}

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	c, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("messaging: pubsub new client: %w", err)
	}

	return &PubSub{client: c, publishers: map[string]*pubsub.Publisher{}}, nil
}

// Close stops publishers and closes the client.
func (p *PubSub) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	pubs := p.publishers
	p.publishers = nil
	p.mu.Unlock()

	for _, pub := range pubs {
		pub.Stop()
	}
	return p.client.Close()
}

// Publish sends a message and waits for the server id.
func (p *PubSub) Publish(ctx context.Context, topic string, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if topic == "" {
		return ErrTopicRequired
	}

	pub, err := p.publisher(topic)
	if err != nil {
		return err
	}

	res := pub.Publish(ctx, &pubsub.Message{
		Data:       msg.Data,
		Attributes: msg.Headers,
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("messaging: pubsub publish: %w", err)
	}
	return nil
}

// Subscribe receives from the subscription named by WithGroup. topic is
// only reported back on delivered messages.
func (p *PubSub) Subscribe(ctx context.Context, topic string, handler Handler, opts ...SubscribeOption) error {
	if err := validateSubscribe(ctx, topic, handler); err != nil {
		return err
	}
	so := newSubscribeOptions(opts)
	if so.group == "" {
		return ErrGroupRequired
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	sub := p.client.Subscriber(so.group)
	sub.ReceiveSettings.NumGoroutines = so.concurrency

	err := sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		msg := &Message{
			ID:      m.ID,
			Topic:   topic,
			Data:    m.Data,
			Headers: m.Attributes,
			Time:    m.PublishTime,
		}
		if err := dispatch(ctx, "google-pubsub", handler, msg); err != nil {
			m.Nack()
			return
		}
		m.Ack()
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("messaging: pubsub receive: %w", err)
	}
	return ctx.Err()
}

func (p *PubSub) publisher(topic string) (*pubsub.Publisher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if pub, ok := p.publishers[topic]; ok {
		return pub, nil
	}
	pub := p.client.Publisher(topic)
	p.publishers[topic] = pub
	return pub, nil
}

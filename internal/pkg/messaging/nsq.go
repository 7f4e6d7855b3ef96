package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	nsq "github.com/nsqio/go-nsq"
)

var (
	// ErrNSQProducerAddrRequired is returned when publishing without an nsqd address.
	ErrNSQProducerAddrRequired = errors.New("messaging: nsq producer address is required")
	// ErrNSQConsumerAddrsRequired is returned when no nsqd or lookupd consumer addresses are configured.
	ErrNSQConsumerAddrsRequired = errors.New("messaging: nsq consumer nsqd/lookupd addresses are required")
)

// NSQConfig configures the NSQ implementation.
type NSQConfig struct {
	// ProducerAddr is the nsqd address used for publishing.
	ProducerAddr string

	ConsumerNSQDAddrs    []string
	ConsumerLookupdAddrs []string
}

// nsqEnvelope carries key and headers, which NSQ has no native place for.
type nsqEnvelope struct {
	Key     []byte            `json:"key,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Data    []byte            `json:"data"`
	Time    time.Time         `json:"time"`
}

// NSQ is a messaging implementation backed by NSQ. A failed handler
// requeues the message with the client's default backoff.
type NSQ struct {
	producer *nsq.Producer

	nsqdAddrs    []string
	lookupdAddrs []string

	mu        sync.Mutex
	consumers map[*nsq.Consumer]struct{}
	closed    bool
}

// NewNSQ constructs an NSQ client. The producer is optional.
func NewNSQ(cfg NSQConfig) (*NSQ, error) {
	n := &NSQ{
		nsqdAddrs:    append([]string(nil), cfg.ConsumerNSQDAddrs...),
		lookupdAddrs: append([]string(nil), cfg.ConsumerLookupdAddrs...),
		consumers:    map[*nsq.Consumer]struct{}{},
	}

	if cfg.ProducerAddr != "" {
		p, err := nsq.NewProducer(cfg.ProducerAddr, nsq.NewConfig())
		if err != nil {
			return nil, fmt.Errorf("messaging: nsq new producer: %w", err)
		}
		p.SetLoggerLevel(nsq.LogLevelError)
		n.producer = p
	}

	return n, nil
}

// Close stops every consumer and the producer.
func (n *NSQ) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	consumers := n.consumers
	n.consumers = nil
	n.mu.Unlock()

	for c := range consumers {
		c.Stop()
		<-c.StopChan
	}
	if n.producer != nil {
		n.producer.Stop()
	}
	return nil
}

// Publish sends a message to an NSQ topic.
func (n *NSQ) Publish(ctx context.Context, topic string, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if topic == "" {
		return ErrTopicRequired
	}
	if n.producer == nil {
		return ErrNSQProducerAddrRequired
	}

	env := nsqEnvelope{Key: msg.Key, Headers: msg.Headers, Data: msg.Data, Time: msg.Time}
	if env.Time.IsZero() {
		env.Time = time.Now()
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("messaging: nsq encode: %w", err)
	}

	if err := n.producer.Publish(topic, body); err != nil {
		if errors.Is(err, nsq.ErrStopped) {
			return ErrClosed
		}
		return fmt.Errorf("messaging: nsq publish: %w", err)
	}
	return nil
}

// Subscribe consumes topic on the channel named by WithGroup.
func (n *NSQ) Subscribe(ctx context.Context, topic string, handler Handler, opts ...SubscribeOption) error {
	if err := validateSubscribe(ctx, topic, handler); err != nil {
		return err
	}
	so := newSubscribeOptions(opts)
	if so.group == "" {
		return ErrGroupRequired
	}
	if len(n.nsqdAddrs) == 0 && len(n.lookupdAddrs) == 0 {
		return ErrNSQConsumerAddrsRequired
	}

	cfg := nsq.NewConfig()
	cfg.MaxInFlight = max(cfg.MaxInFlight, so.concurrency)
	consumer, err := nsq.NewConsumer(topic, so.group, cfg)
	if err != nil {
		return fmt.Errorf("messaging: nsq new consumer: %w", err)
	}
	consumer.SetLoggerLevel(nsq.LogLevelError)
	consumer.AddConcurrentHandlers(nsq.HandlerFunc(func(m *nsq.Message) error {
		return n.handle(ctx, topic, m, handler)
	}), so.concurrency)

	if err := n.track(consumer); err != nil {
		return err
	}

	if len(n.lookupdAddrs) > 0 {
		err = consumer.ConnectToNSQLookupds(n.lookupdAddrs)
	} else {
		err = consumer.ConnectToNSQDs(n.nsqdAddrs)
	}
	if err != nil {
		n.stop(consumer)
		return fmt.Errorf("messaging: nsq connect: %w", err)
	}

	select {
	case <-ctx.Done():
		n.stop(consumer)
		return ctx.Err()
	case <-consumer.StopChan:
		return nil
	}
}

func (n *NSQ) handle(ctx context.Context, topic string, m *nsq.Message, handler Handler) error {
	var env nsqEnvelope
	if err := json.Unmarshal(m.Body, &env); err != nil {
		// Not an envelope; returning nil finishes it instead of requeueing forever.
		return nil
	}

	return dispatch(ctx, "nsq", handler, &Message{
		ID:      string(m.ID[:]),
		Topic:   topic,
		Key:     env.Key,
		Data:    env.Data,
		Headers: env.Headers,
		Time:    env.Time,
	})
}

func (n *NSQ) track(c *nsq.Consumer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		c.Stop()
		return ErrClosed
	}
	n.consumers[c] = struct{}{}
	return nil
}

func (n *NSQ) stop(c *nsq.Consumer) {
	n.mu.Lock()
	delete(n.consumers, c)
	n.mu.Unlock()

	c.Stop()
	<-c.StopChan
}

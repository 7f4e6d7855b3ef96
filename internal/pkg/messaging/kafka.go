package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrKafkaBrokersRequired is returned when no Kafka brokers are configured.
var ErrKafkaBrokersRequired = errors.New("messaging: kafka brokers are required")

// KafkaConfig configures the Kafka implementation.
type KafkaConfig struct {
	Brokers []string
	// Dialer is optional and used by both readers and writers.
	Dialer *kafka.Dialer
}

// Kafka is a messaging implementation backed by kafka-go.
//
// Kafka has no per-message negative ack. A failed message is logged and its
// offset is left uncommitted, so it is replayed only if no later offset of
// the same partition is committed before a rebalance.
type Kafka struct {
	brokers []string
	dialer  *kafka.Dialer

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	readers map[*kafka.Reader]struct{}
	closed  bool
}

// NewKafka constructs a Kafka messaging client.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrKafkaBrokersRequired
	}

	return &Kafka{
		brokers: append([]string(nil), cfg.Brokers...),
		dialer:  cfg.Dialer,
		writers: map[string]*kafka.Writer{},
		readers: map[*kafka.Reader]struct{}{},
	}, nil
}

// Close shuts down every reader and writer.
func (k *Kafka) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	writers, readers := k.writers, k.readers
	k.writers, k.readers = nil, nil
	k.mu.Unlock()

	var err error
	for r := range readers {
		err = errors.Join(err, r.Close())
	}
	for _, w := range writers {
		err = errors.Join(err, w.Close())
	}
	return err
}

// Publish writes a message to a Kafka topic.
func (k *Kafka) Publish(ctx context.Context, topic string, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if topic == "" {
		return ErrTopicRequired
	}

	w, err := k.writer(topic)
	if err != nil {
		return err
	}

	km := kafka.Message{Key: msg.Key, Value: msg.Data, Time: msg.Time}
	if km.Time.IsZero() {
		km.Time = time.Now()
	}
	for key, value := range msg.Headers {
		km.Headers = append(km.Headers, kafka.Header{Key: key, Value: []byte(value)})
	}

	if err := w.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("messaging: kafka publish: %w", err)
	}
	return nil
}

// Subscribe joins the consumer group named by WithGroup and blocks until ctx is done.
func (k *Kafka) Subscribe(ctx context.Context, topic string, handler Handler, opts ...SubscribeOption) error {
	if err := validateSubscribe(ctx, topic, handler); err != nil {
		return err
	}
	so := newSubscribeOptions(opts)
	if so.group == "" {
		return ErrGroupRequired
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		GroupID:  so.group,
		Topic:    topic,
		MaxBytes: 10e6,
		Dialer:   k.dialer,
	})
	if err := k.track(reader); err != nil {
		return errors.Join(err, reader.Close())
	}
	defer k.untrack(reader)

	msgCh := make(chan kafka.Message)
	fetchErr := make(chan error, 1)

	go func() {
		defer close(msgCh)
		for {
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				fetchErr <- err
				return
			}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				fetchErr <- ctx.Err()
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for range so.concurrency {
		wg.Go(func() {
			for m := range msgCh {
				k.handle(ctx, reader, m, handler)
			}
		})
	}
	wg.Wait()

	err := <-fetchErr
	if errors.Is(err, io.EOF) {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, kafka.ErrGroupClosed) {
		return ctx.Err()
	}
	return fmt.Errorf("messaging: kafka fetch: %w", err)
}

func (k *Kafka) handle(ctx context.Context, reader *kafka.Reader, m kafka.Message, handler Handler) {
	msg := &Message{
		ID:    fmt.Sprintf("%d-%d", m.Partition, m.Offset),
		Topic: m.Topic,
		Key:   m.Key,
		Data:  m.Value,
		Time:  m.Time,
	}
	for _, h := range m.Headers {
		msg.SetHeader(h.Key, string(h.Value))
	}

	if err := dispatch(ctx, "kafka", handler, msg); err != nil {
		slog.WarnContext(ctx, "kafka message left uncommitted", "topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", err)
		return
	}
	if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "kafka commit failed", "topic", m.Topic, "offset", m.Offset, "error", err)
	}
}

func (k *Kafka) writer(topic string) (*kafka.Writer, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, ErrClosed
	}
	if w, ok := k.writers[topic]; ok {
		return w, nil
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(k.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	if k.dialer != nil {
		w.Transport = &kafka.Transport{
			Dial:     k.dialer.DialFunc,
			ClientID: k.dialer.ClientID,
			TLS:      k.dialer.TLS,
			SASL:     k.dialer.SASLMechanism,
		}
	}
	k.writers[topic] = w
	return w, nil
}

func (k *Kafka) track(r *kafka.Reader) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrClosed
	}
	k.readers[r] = struct{}{}
	return nil
}

func (k *Kafka) untrack(r *kafka.Reader) {
	k.mu.Lock()
	_, owned := k.readers[r]
	delete(k.readers, r)
	k.mu.Unlock()

	if owned {
		if err := r.Close(); err != nil {
			slog.Warn("kafka reader close failed", "topic", r.Config().Topic, "error", err)
		}
	}
}

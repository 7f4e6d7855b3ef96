package messaging

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
)

const (
	memoryQueueSize       = 256
	memoryMaxRedeliveries = 3
)

// Memory is an in-process broker for single-node deployments and tests.
//
// Every group subscribed to a topic receives each message once; the
// subscribers of a group compete for it. A subscription without a group
// gets a private one. Messages published to a topic with no subscribers
// are dropped. A failed handler is retried in place up to three more times.
type Memory struct {
	mu     sync.Mutex
	topics map[string]map[string]*memoryGroup
	closed bool
	done   chan struct{}

	seq  atomic.Uint64
	anon atomic.Uint64
}

type memoryGroup struct {
	queue chan *Message
	refs  int
}

// NewMemory constructs an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{
		topics: map[string]map[string]*memoryGroup{},
		done:   make(chan struct{}),
	}
}

// Close stops every subscription. Queued messages are discarded.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// Publish enqueues a copy of msg for every group of topic. It blocks while
// a group queue is full.
func (m *Memory) Publish(ctx context.Context, topic string, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if topic == "" {
		return ErrTopicRequired
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	queues := make([]chan *Message, 0, len(m.topics[topic]))
	for _, g := range m.topics[topic] {
		queues = append(queues, g.queue)
	}
	m.mu.Unlock()

	id := strconv.FormatUint(m.seq.Inc(), 10)
	for _, q := range queues {
		c := msg.clone()
		c.ID, c.Topic = id, topic
		if c.Time.IsZero() {
			c.Time = time.Now()
		}

		select {
		case q <- c:
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return ErrClosed
		}
	}
	return nil
}

// Subscribe consumes topic until ctx is canceled or the broker is closed.
func (m *Memory) Subscribe(ctx context.Context, topic string, handler Handler, opts ...SubscribeOption) error {
	if err := validateSubscribe(ctx, topic, handler); err != nil {
		return err
	}
	so := newSubscribeOptions(opts)
	if so.group == "" {
		so.group = "anonymous-" + strconv.FormatUint(m.anon.Inc(), 10)
	}

	g, err := m.join(topic, so.group)
	if err != nil {
		return err
	}
	defer m.leave(topic, so.group)

	var wg sync.WaitGroup
	for range so.concurrency {
		wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-m.done:
					return
				case msg := <-g.queue:
					m.deliver(ctx, handler, msg)
				}
			}
		})
	}
	wg.Wait()

	return ctx.Err()
}

func (m *Memory) deliver(ctx context.Context, handler Handler, msg *Message) {
	var err error
	for attempt := 0; attempt <= memoryMaxRedeliveries; attempt++ {
		if err = dispatch(ctx, "memory", handler, msg); err == nil {
			return
		}
		if ctx.Err() != nil {
			break
		}
	}
	slog.WarnContext(ctx, "memory message dropped", "topic", msg.Topic, "id", msg.ID, "error", err)
}

func (m *Memory) join(topic, group string) (*memoryGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	groups, ok := m.topics[topic]
	if !ok {
		groups = map[string]*memoryGroup{}
		m.topics[topic] = groups
	}
	g, ok := groups[group]
	if !ok {
		g = &memoryGroup{queue: make(chan *Message, memoryQueueSize)}
		groups[group] = g
	}
	g.refs++
	return g, nil
}

func (m *Memory) leave(topic, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.topics[topic][group]
	if !ok {
		return
	}
	if g.refs--; g.refs > 0 {
		return
	}
	delete(m.topics[topic], group)
	if len(m.topics[topic]) == 0 {
		delete(m.topics, topic)
	}
}

// Subscribers reports how many groups listen on topic.
func (m *Memory) Subscribers(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.topics[topic])
}

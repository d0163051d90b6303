package mq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bookfinder/apiserver/internal/logging"
	"github.com/google/uuid"
)

var ErrClosed = errors.New("mq: backend closed")

const (
	DefaultRedeliveryDelay = time.Second
	DefaultMaxDeliveries   = 5
)

// MemoryBackend is an in-process Backend. Nacked messages are requeued
// after a delay and dropped once they reach the delivery limit.
type MemoryBackend struct {
	mu       sync.Mutex
	queues   map[string]chan Message
	attempts map[string]int
	size     int
	closed   chan struct{}
	once     sync.Once

	retryDelay    time.Duration
	maxDeliveries int
	logger        logging.Logger
}

type MemoryOption func(*MemoryBackend)

// WithRedelivery sets the requeue delay and how many times a message is
// handed to subscribers before it is dropped. max <= 0 means no limit.
func WithRedelivery(delay time.Duration, max int) MemoryOption {
	return func(m *MemoryBackend) {
		m.retryDelay = delay
		m.maxDeliveries = max
	}
}

func WithLogger(logger logging.Logger) MemoryOption {
	return func(m *MemoryBackend) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewMemoryBackend(size int, opts ...MemoryOption) *MemoryBackend {
	if size <= 0 {
		size = 1
	}
	m := &MemoryBackend{
		queues:        make(map[string]chan Message),
		attempts:      make(map[string]int),
		size:          size,
		closed:        make(chan struct{}),
		retryDelay:    DefaultRedeliveryDelay,
		maxDeliveries: DefaultMaxDeliveries,
		logger:        logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "mq-memory")
	return m
}

func (m *MemoryBackend) queue(channel string) chan Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[channel]
	if !ok {
		q = make(chan Message, m.size)
		m.queues[channel] = q
	}
	return q
}

// Publish enqueues data, blocking while the queue is full.
func (m *MemoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	select {
	case <-m.closed:
		return "", ErrClosed
	default:
	}

	msg := Message{ID: uuid.NewString(), Data: data, Attributes: attrs}
	select {
	case <-m.closed:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	case m.queue(channel) <- msg:
		return msg.ID, nil
	}
}

// Subscribe delivers messages until ctx is done or the backend is closed.
func (m *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	q := m.queue(channel)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closed:
			return ErrClosed
		case msg := <-q:
			if err := handler(ctx, msg); err != nil {
				m.nack(ctx, channel, q, msg, err)
			} else {
				m.forget(msg.ID)
			}
		}
	}
}

func (m *MemoryBackend) nack(ctx context.Context, channel string, q chan Message, msg Message, cause error) {
	m.mu.Lock()
	m.attempts[msg.ID]++
	n := m.attempts[msg.ID]
	if m.maxDeliveries > 0 && n >= m.maxDeliveries {
		delete(m.attempts, msg.ID)
		m.mu.Unlock()
		m.logger.Error(ctx, "dropping message after repeated failures",
			"channel", channel, "message_id", msg.ID, "deliveries", n, "error", cause)
		return
	}
	m.mu.Unlock()
	go m.requeue(q, msg)
}

func (m *MemoryBackend) forget(id string) {
	m.mu.Lock()
	delete(m.attempts, id)
	m.mu.Unlock()
}

func (m *MemoryBackend) requeue(q chan Message, msg Message) {
	if m.retryDelay > 0 {
		timer := time.NewTimer(m.retryDelay)
		defer timer.Stop()
		select {
		case <-m.closed:
			return
		case <-timer.C:
		}
	}
	select {
	case <-m.closed:
	case q <- msg:
	}
}

func (m *MemoryBackend) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

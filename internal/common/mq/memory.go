package mq

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue delivers messages synchronously to in-process handlers.
// It backs single-node deployments and tests.
type MemoryQueue struct {
	mu       sync.RWMutex
	handlers map[string][]HandlerFunc
	paused   bool
	closed   bool
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{handlers: make(map[string][]HandlerFunc)}
}

func (q *MemoryQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if message == nil {
		return errors.New("message is nil")
	}
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return errors.New("message queue is closed")
	}
	handlers := append([]HandlerFunc(nil), q.handlers[topic]...)
	paused := q.paused
	q.mu.RUnlock()
	if paused {
		return nil
	}
	var errs []error
	for _, h := range handlers {
		if err := h(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (q *MemoryQueue) PublishBatch(ctx context.Context, topic string, messages []*Message) error {
	for _, m := range messages {
		if err := q.Publish(ctx, topic, m); err != nil {
			return err
		}
	}
	return nil
}

func (q *MemoryQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc) error {
	return q.SubscribeWithOptions(ctx, topic, handler, nil)
}

func (q *MemoryQueue) SubscribeWithOptions(_ context.Context, topic string, handler HandlerFunc, _ *SubscribeOptions) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

func (q *MemoryQueue) Start() error { return nil }
func (q *MemoryQueue) Stop() error  { return nil }

func (q *MemoryQueue) Pause() error {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Resume() error {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Ping(context.Context) error { return nil }

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}

package mq

import (
	"context"
	"time"
)

// MessageQueue is the producer and consumer surface shared by every queue backend.
type MessageQueue interface {
	Producer
	Consumer

	Ping(ctx context.Context) error
	Close() error
}

// Producer publishes messages to a topic.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
	PublishBatch(ctx context.Context, topic string, messages []*Message) error
}

// Consumer registers handlers and drives their lifecycle.
// Handlers registered before Start begin receiving messages once Start is called.
type Consumer interface {
	Subscribe(ctx context.Context, topic string, handler HandlerFunc) error
	SubscribeWithOptions(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error

	Start() error
	Stop() error
	Pause() error
	Resume() error
}

// Message is a queue envelope. Body carries the JSON encoded event.
type Message struct {
	ID string `json:"id"`
	// Key selects the partition. Messages with the same key keep their order.
	// Empty falls back to ID.
	Key       string            `json:"key"`
	Body      []byte            `json:"body"`
	Headers   map[string]string `json:"headers"`
	Timestamp time.Time         `json:"timestamp"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// HandlerFunc processes one message. A non-nil error schedules a retry.
type HandlerFunc func(ctx context.Context, message *Message) error

// SubscribeOptions tunes a single subscription.
type SubscribeOptions struct {
	// ConsumerGroup defaults to exforge-<topic>.
	ConsumerGroup string

	// PrefetchCount is the per-worker buffer. Default 1.
	PrefetchCount int

	// Concurrency is the number of handler goroutines. Default 1.
	Concurrency int

	// MaxRetries defaults to 3.
	MaxRetries int

	// RetryDelay defaults to 1 second.
	RetryDelay time.Duration

	// DeadLetterTopic receives messages that exhausted their retries.
	DeadLetterTopic string
}

// SetDefaults fills zero fields.
func (o *SubscribeOptions) SetDefaults() {
	if o.PrefetchCount == 0 {
		o.PrefetchCount = 1
	}
	if o.Concurrency == 0 {
		o.Concurrency = 1
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = time.Second
	}
}

// NewMessage wraps body into a message stamped with the current time.
func NewMessage(body []byte) *Message {
	return &Message{
		Body:       body,
		Headers:    make(map[string]string),
		Timestamp:  time.Now(),
		MaxRetries: 3,
	}
}

func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}

func (m *Message) GetHeader(key string) (string, bool) {
	if m.Headers == nil {
		return "", false
	}
	val, ok := m.Headers[key]
	return val, ok
}

// Package kafka publishes notifications to Kafka topics using
// github.com/segmentio/kafka-go. Messages are keyed by match id so one
// match's outcomes stay ordered within a partition.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-dugout/notify"
	kafkago "github.com/segmentio/kafka-go"
)

var _ notify.Publisher = (*Publisher)(nil)

// Writer is the subset of *kafkago.Writer used by the publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes messages to the topic named in the destination.
// Destination format: "kafka:topic-name".
type Publisher struct {
	brokers      []string
	balancer     kafkago.Balancer
	batchTimeout time.Duration
	newWriter    func(topic string) Writer
	mu           sync.RWMutex
	writers      map[string]Writer
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithBrokers sets the broker addresses.
func WithBrokers(brokers ...string) Option {
	return func(p *Publisher) {
		p.brokers = brokers
	}
}

// WithBalancer sets the partitioner.
func WithBalancer(balancer kafkago.Balancer) Option {
	return func(p *Publisher) {
		p.balancer = balancer
	}
}

// WithBatchTimeout sets the writer batch timeout.
func WithBatchTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.batchTimeout = d
	}
}

// WithWriterFactory replaces the per-topic writer constructor.
func WithWriterFactory(f func(topic string) Writer) Option {
	return func(p *Publisher) {
		p.newWriter = f
	}
}

// New creates a Publisher. Balancing is by key hash.
func New(opts ...Option) *Publisher {
	p := &Publisher{
		brokers:      []string{"localhost:9092"},
		balancer:     &kafkago.Hash{},
		batchTimeout: 10 * time.Millisecond,
		writers:      make(map[string]Writer),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.newWriter == nil {
		p.newWriter = p.kafkaWriter
	}
	return p
}

// Destination implements notify.Publisher.
func (p *Publisher) Destination() string {
	return "kafka"
}

// Publish groups messages by topic. All topics are attempted; errors are
// joined.
func (p *Publisher) Publish(ctx context.Context, messages []*notify.Message) error {
	grouped := make(map[string][]kafkago.Message)
	var errs []error
	for _, msg := range messages {
		topic := notify.TrimPrefix(msg.Destination, "kafka")
		if topic == "" {
			errs = append(errs, fmt.Errorf("kafka: invalid destination %q: missing topic", msg.Destination))
			continue
		}

		km := kafkago.Message{
			Key:   []byte(msg.Key),
			Value: msg.Payload,
		}
		for k, v := range msg.Headers {
			km.Headers = append(km.Headers, kafkago.Header{Key: k, Value: []byte(v)})
		}
		grouped[topic] = append(grouped[topic], km)
	}

	for topic, msgs := range grouped {
		if err := p.writer(topic).WriteMessages(ctx, msgs...); err != nil {
			errs = append(errs, fmt.Errorf("kafka: failed to write to topic %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes all writers.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, w := range p.writers {
		errs = append(errs, w.Close())
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}

func (p *Publisher) writer(topic string) Writer {
	p.mu.RLock()
	if w, ok := p.writers[topic]; ok {
		p.mu.RUnlock()
		return w
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := p.newWriter(topic)
	p.writers[topic] = w
	return w
}

func (p *Publisher) kafkaWriter(topic string) Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               p.balancer,
		BatchTimeout:           p.batchTimeout,
		AllowAutoTopicCreation: true,
	}
}

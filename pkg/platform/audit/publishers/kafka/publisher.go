// Package kafka mirrors audit events to a Kafka topic for SIEM consumption.
// The stored trail is the source of truth; publishing is best-effort.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"vaultgate/pkg/platform/audit"
)

type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New connects a producer to the given brokers. Call Close when done.
func New(brokers []string, topic string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	p := &Publisher{client: client, topic: topic}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// EnsureTopic creates the audit topic if it does not exist yet.
func (p *Publisher) EnsureTopic(ctx context.Context, partitions int32, replicas int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicas, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

// Emit produces one event keyed by subject so per-subject ordering holds.
// Delivery is asynchronous; failures are logged, never returned, so a broker
// outage cannot stall or fail an authorization decision.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{Key: []byte(event.SubjectID), Value: payload}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Error("audit event publish failed",
				"topic", p.topic,
				"kind", event.Kind,
				"error", err,
			)
		}
	})
	return nil
}

// Flush waits for buffered records to be delivered.
func (p *Publisher) Flush(ctx context.Context) error {
	return p.client.Flush(ctx)
}

func (p *Publisher) Close() {
	p.client.Close()
}

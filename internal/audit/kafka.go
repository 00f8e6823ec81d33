package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"facturo/pkg/domain"
)

// DefaultTopic is the audit event topic.
const DefaultTopic = "facturo.audit"

// kafkaProducer is the seam over kgo so unit tests can capture records
// without a broker.
type kafkaProducer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaStore publishes audit events to Kafka, keyed by issuer so one
// issuer's events stay ordered within a partition. Produce is asynchronous;
// delivery failures are logged and counted by the caller's metrics, never
// propagated into the emission path.
//
// ListByIssuer is unsupported: Kafka is a pipe, not a query surface. Compose
// with a queryable store via Tee when both are needed.
type KafkaStore struct {
	producer kafkaProducer
	topic    string
	logger   *slog.Logger
}

func NewKafka(client *kgo.Client, topic string, logger *slog.Logger) *KafkaStore {
	return newKafka(client, topic, logger)
}

func newKafka(producer kafkaProducer, topic string, logger *slog.Logger) *KafkaStore {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &KafkaStore{producer: producer, topic: topic, logger: logger}
}

func (s *KafkaStore) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.IssuerID.String()),
		Value: payload,
	}
	s.producer.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			s.logger.Error("audit event delivery failed",
				"topic", s.topic, "action", event.Action, "invoice_id", event.InvoiceID, "error", err)
		}
	})
	return nil
}

func (s *KafkaStore) ListByIssuer(context.Context, domain.IssuerID) ([]Event, error) {
	return nil, fmt.Errorf("kafka audit store does not support listing")
}

// Tee appends to every store, returning the first error after all appends
// ran. Used to pair a queryable store with the Kafka pipe.
type Tee []Store

func (t Tee) Append(ctx context.Context, event Event) error {
	var first error
	for _, s := range t {
		if err := s.Append(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t Tee) ListByIssuer(ctx context.Context, issuerID domain.IssuerID) ([]Event, error) {
	for _, s := range t {
		events, err := s.ListByIssuer(ctx, issuerID)
		if err == nil {
			return events, nil
		}
	}
	return nil, fmt.Errorf("no queryable audit store configured")
}

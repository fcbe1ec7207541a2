// Package kafka publishes audit events to a Kafka topic. The publisher
// is asynchronous and fire-and-forget: delivery failures are logged and
// dropped, never surfaced to the admission path.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/rpazevedo/escrowflow-backend/internal/domain"
)

// Publisher implements domain.AuditTrail over a sarama async producer
type Publisher struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *zap.Logger
}

// NewPublisher connects an async producer to the given brokers
func NewPublisher(brokers []string, topic string, logger *zap.Logger) (*Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewFromAsyncProducer(producer, topic, logger), nil
}

// NewFromAsyncProducer wraps an existing producer. Used by tests.
func NewFromAsyncProducer(producer sarama.AsyncProducer, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{producer: producer, topic: topic, logger: logger}
	go p.drainErrors()
	return p
}

// drainErrors logs failed deliveries until the producer is closed
func (p *Publisher) drainErrors() {
	for err := range p.producer.Errors() {
		p.logger.Warn("audit event delivery failed",
			zap.String("topic", p.topic),
			zap.Error(err),
		)
	}
}

// Log enqueues an audit event for asynchronous delivery. The only error
// it can return is a marshalling failure; broker problems are handled by
// the error drain.
func (p *Publisher) Log(_ context.Context, event domain.AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		// Keyed by subject so events for one entity stay ordered.
		Key:   sarama.StringEncoder(event.SubjectID.String()),
		Value: sarama.ByteEncoder(data),
	}
	return nil
}

// Close flushes in-flight events and shuts the producer down
func (p *Publisher) Close() error {
	return p.producer.Close()
}

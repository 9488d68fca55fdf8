// Package events publishes audit entries to a message broker.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"stockledger-api/internal/model"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AuditEvent is the message body published for every audit entry.
type AuditEvent struct {
	Type  string           `json:"type"`
	Entry model.AuditEntry `json:"entry"`
}

// KafkaAuditPublisher writes audit entries to a Kafka topic keyed by product id,
// so entries for one product stay ordered within a partition.
type KafkaAuditPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaAuditPublisher creates a synchronous writer for topic.
func NewKafkaAuditPublisher(brokers []string, topic string) *KafkaAuditPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaAuditPublisher{writer: w, topic: topic}
}

func newKafkaAuditPublisher(w messageWriter, topic string) *KafkaAuditPublisher {
	return &KafkaAuditPublisher{writer: w, topic: topic}
}

// Name identifies the sink in logs and metrics.
func (p *KafkaAuditPublisher) Name() string {
	return "kafka"
}

// Publish sends entry. Trace context is propagated in message headers.
func (p *KafkaAuditPublisher) Publish(ctx context.Context, entry model.AuditEntry) error {
	body, err := json.Marshal(AuditEvent{Type: "inventory.audit." + string(entry.Kind), Entry: entry})
	if err != nil {
		return errors.Wrap(err, "marshal audit event")
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := make([]kafka.Header, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Key:     []byte(strconv.FormatInt(entry.ProductID, 10)),
		Value:   body,
		Headers: headers,
		Time:    entry.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish audit event to %s", p.topic)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaAuditPublisher) Close() error {
	return p.writer.Close()
}

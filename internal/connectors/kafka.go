package connectors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
)

// KafkaWriter — подмножество kafka.Writer, нужное для публикации (подменяется в тестах).
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink публикует заявки в топик модуля обслуживания. Ключ — ID аудита,
// чтобы заявки одного аудита попадали в одну партицию.
type KafkaSink struct {
	writer KafkaWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}}
}

func NewKafkaSinkWithWriter(w KafkaWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Submit(ctx context.Context, req domain.RemediationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("kafka: marshal remediation: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(req.AuditID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "origin", Value: []byte(req.Origin)},
			{Key: "source", Value: []byte(sourceName)},
			{Key: "idempotency-key", Value: []byte(req.ID)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write remediation %s: %w", req.ID, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

package connectors

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
)

// AMQPPublisher — подмножество *amqp.Channel для публикации (подменяется в тестах).
type AMQPPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitSink кладёт заявки в durable-очередь модуля обслуживания.
type RabbitSink struct {
	conn  *amqp.Connection
	ch    AMQPPublisher
	queue string
}

// NewRabbitSink открывает соединение и канал, объявляет очередь.
func NewRabbitSink(url, queue string) (*RabbitSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: declare queue %s: %w", queue, err)
	}
	return &RabbitSink{conn: conn, ch: ch, queue: queue}, nil
}

func NewRabbitSinkWithPublisher(p AMQPPublisher, queue string) *RabbitSink {
	return &RabbitSink{ch: p, queue: queue}
}

func (s *RabbitSink) Submit(ctx context.Context, req domain.RemediationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal remediation: %w", err)
	}
	err = s.ch.PublishWithContext(ctx,
		"",      // default exchange
		s.queue, // routing key (queue name)
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    req.ID,
			AppId:        sourceName,
			Type:         req.Origin,
			Timestamp:    req.CreatedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish remediation %s: %w", req.ID, err)
	}
	return nil
}

func (s *RabbitSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Fabrica/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeJobAssigned  MessageType = "job.assigned"
	MessageTypeJobCompleted MessageType = "job.completed"
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload json.RawMessage `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// JobAssignedPayload — payload сообщения о назначенном job.
// Несёт полный JobRequest: агенту не нужен обратный запрос к серверу.
type JobAssignedPayload struct {
	Job *domain.JobRequest `json:"job"`
}

// JobCompletedPayload — payload сообщения о завершённом job.
type JobCompletedPayload struct {
	RequestID  uuid.UUID        `json:"request_id"`
	JobID      uuid.UUID        `json:"job_id"`
	JobName    string           `json:"job_name"`
	Result     domain.JobResult `json:"result"`
	Error      string           `json:"error,omitempty"`
	DurationMS int64            `json:"duration_ms"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	msg := &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(
		ctx,
		string(exchange),
		string(routingKey),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
			MessageId:    msg.ID,
			Timestamp:    msg.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}

	p.logger.Debug("published message",
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", msg.ID,
		"type", msg.Type,
	)
	return nil
}

// PublishJobCompleted публикует событие о завершённом job.
// Потребитель: сервер.
func (p *Publisher) PublishJobCompleted(ctx context.Context, payload JobCompletedPayload) error {
	return p.Publish(ctx, ExchangeEvents, RoutingKeyCompleted, MessageTypeJobCompleted, payload)
}

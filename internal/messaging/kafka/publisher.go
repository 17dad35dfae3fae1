package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Sender отправляет сообщение в топик. Реализуется *Producer.
type Sender interface {
	Send(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// Envelope — формат события в топиках магазина.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// TopicFor выбирает топик по типу агрегата: письма идут отдельно от событий заказа.
func TopicFor(aggregateType string) string {
	if aggregateType == domain.AggregateNotification {
		return TopicNotifications
	}
	return TopicOrderEvents
}

// OutboxPublisher публикует сообщения outbox. Ключ партиционирования — aggregate id,
// поэтому события одного заказа сохраняют порядок.
type OutboxPublisher struct {
	sender Sender
	now    func() time.Time
}

// NewOutboxPublisher создаёт publisher поверх sender.
func NewOutboxPublisher(sender Sender) *OutboxPublisher {
	return &OutboxPublisher{sender: sender, now: time.Now}
}

// Publish реализует domain.OutboxPublisher.
func (p *OutboxPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.sender == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	value, err := json.Marshal(Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       rawPayload(msg.Payload),
		PublishedAt:   p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal outbox envelope: %w", err)
	}

	return p.sender.Send(ctx, TopicFor(msg.AggregateType), partitionKey(msg), value, map[string]string{
		HeaderEventType:     msg.EventType,
		HeaderAggregateType: msg.AggregateType,
		HeaderOutboxID:      msg.ID,
	})
}

// DeadLetterPublisher отправляет в DLQ сообщения, которые не удалось доставить.
type DeadLetterPublisher struct {
	sender Sender
	now    func() time.Time
}

// NewDeadLetterPublisher создаёт publisher DLQ.
func NewDeadLetterPublisher(sender Sender) *DeadLetterPublisher {
	return &DeadLetterPublisher{sender: sender, now: time.Now}
}

// Publish реализует domain.OutboxPublisher. Payload передаётся как есть.
func (p *DeadLetterPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.sender == nil {
		return fmt.Errorf("kafka dead letter publisher is not initialized")
	}
	return p.sender.Send(ctx, TopicDeadLetter, partitionKey(msg), msg.Payload, map[string]string{
		HeaderEventType:     msg.EventType,
		HeaderAggregateType: msg.AggregateType,
		HeaderOutboxID:      msg.ID,
		HeaderOriginalTopic: TopicFor(msg.AggregateType),
		HeaderFailedAt:      p.now().UTC().Format(time.RFC3339Nano),
	})
}

func partitionKey(msg domain.OutboxMessage) string {
	if msg.AggregateID != "" {
		return msg.AggregateID
	}
	return msg.ID
}

func rawPayload(payload []byte) json.RawMessage {
	if len(payload) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(payload) {
		return json.RawMessage(payload)
	}
	quoted, _ := json.Marshal(string(payload))
	return quoted
}

var (
	_ domain.OutboxPublisher = (*OutboxPublisher)(nil)
	_ domain.OutboxPublisher = (*DeadLetterPublisher)(nil)
	_ Sender                 = (*Producer)(nil)
)

package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DeadLetter — тело сообщения в DLQ: исходное событие плюс причина отказа.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Error         string          `json:"publish_error"`
	FailedAt      time.Time       `json:"failed_at"`
}

// ErrNotDeadLetter — тело не похоже на сообщение DLQ.
var ErrNotDeadLetter = errors.New("not an outbox dead letter")

// DecodeDeadLetter разбирает тело сообщения DLQ.
func DecodeDeadLetter(body []byte) (DeadLetter, error) {
	var dl DeadLetter
	if err := json.Unmarshal(body, &dl); err != nil {
		return DeadLetter{}, fmt.Errorf("%w: %v", ErrNotDeadLetter, err)
	}
	if dl.EventType == "" || dl.AggregateType == "" || len(dl.Payload) == 0 {
		return DeadLetter{}, ErrNotDeadLetter
	}
	return dl, nil
}

// Message восстанавливает исходное сообщение outbox для повторной публикации.
func (d DeadLetter) Message() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       []byte(d.Payload),
	}
}

package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var errEmptyPayload = errors.New("envelope has no payload")

// Envelope оборачивает outbox-запись при отправке в Kafka. ID совпадает
// с идентификатором записи и служит ключом дедупликации у потребителей.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope упаковывает outbox-запись.
func NewEnvelope(msg domain.OutboxMessage, at time.Time) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   at.UTC(),
	}
}

// Key выбирает ключ партиционирования: агрегат, а без него сам конверт.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// OrderEvent разбирает полезную нагрузку как событие заказа.
func (e Envelope) OrderEvent() (*OrderEvent, error) {
	if len(e.Payload) == 0 {
		return nil, errEmptyPayload
	}
	var event OrderEvent
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return nil, fmt.Errorf("decode order event %s: %w", e.ID, err)
	}
	return &event, nil
}

// ParseEnvelope разбирает значение сообщения Kafka.
func ParseEnvelope(value []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// ParseOrderEvent разбирает конверт и событие заказа внутри него.
func ParseOrderEvent(value []byte) (*OrderEvent, error) {
	env, err := ParseEnvelope(value)
	if err != nil {
		return nil, err
	}
	return env.OrderEvent()
}

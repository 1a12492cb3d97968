package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DeadLetter: конверт события, не доставленного после всех попыток.
// Его читает cmd/dlq-reprocess.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

func wrapDeadLetter(msg domain.OutboxMessage, cause error, at time.Time) (domain.OutboxMessage, error) {
	body, err := json.Marshal(DeadLetter{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		Payload:        json.RawMessage(msg.Payload),
		PublishError:   cause.Error(),
		DLQPublishedAt: at.UTC(),
	})
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal dead letter: %w", err)
	}
	wrapped := msg
	wrapped.Payload = body
	return wrapped, nil
}

func (w *Worker) sendToDLQ(msg domain.OutboxMessage, cause error) error {
	if w.cfg.dlq == nil {
		return nil
	}
	letter, err := wrapDeadLetter(msg, cause, w.cfg.now())
	if err != nil {
		return err
	}
	if err := w.cfg.dlq.Publish(letter); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

var (
	errNotOrderEvent     = errors.New("payload is not an order event")
	errUnknownDeadLetter = errors.New("unsupported dlq message format")
)

// replayMessage готов к повторной отправке в поток заказов.
type replayMessage struct {
	topic   string
	key     string
	value   []byte
	orderID string
}

// decodeDeadLetter понимает обе обёртки DLQ: запись consumer'а
// (kafka.DLQMessage) и outbox-конверт с outbox.DeadLetter внутри.
func decodeDeadLetter(value []byte, target string, now time.Time) (replayMessage, error) {
	var failed kafka.DLQMessage
	if json.Unmarshal(value, &failed) == nil && failed.OriginalValue != "" {
		return fromConsumerDLQ(failed, target)
	}

	env, err := kafka.ParseEnvelope(value)
	if err != nil || len(env.Payload) == 0 {
		return replayMessage{}, errUnknownDeadLetter
	}
	return fromOutboxDLQ(env, target, now)
}

// fromConsumerDLQ возвращает исходное сообщение как было, в его топик.
func fromConsumerDLQ(failed kafka.DLQMessage, target string) (replayMessage, error) {
	original := []byte(failed.OriginalValue)
	event, err := kafka.ParseOrderEvent(original)
	if err != nil || event.OrderID == "" {
		return replayMessage{}, errNotOrderEvent
	}
	return replayMessage{
		topic:   firstNonBlank(failed.OriginalTopic, target),
		key:     firstNonBlank(failed.OriginalKey, event.OrderID),
		value:   original,
		orderID: event.OrderID,
	}, nil
}

// fromOutboxDLQ собирает новый конверт с идентичностью исходной outbox-записи,
// чтобы потребители дедуплицировали повтор по тому же ID.
func fromOutboxDLQ(env *kafka.Envelope, target string, now time.Time) (replayMessage, error) {
	var dead outbox.DeadLetter
	if err := json.Unmarshal(env.Payload, &dead); err != nil {
		return replayMessage{}, fmt.Errorf("decode outbox dead letter: %w", err)
	}
	if len(dead.Payload) == 0 {
		return replayMessage{}, errors.New("outbox dead letter carries no event payload")
	}

	var event kafka.OrderEvent
	if err := json.Unmarshal(dead.Payload, &event); err != nil || event.OrderID == "" {
		return replayMessage{}, errNotOrderEvent
	}

	replay := kafka.Envelope{
		ID:            firstNonBlank(dead.OutboxID, env.ID),
		AggregateType: firstNonBlank(dead.AggregateType, env.AggregateType),
		AggregateID:   firstNonBlank(dead.AggregateID, env.AggregateID, event.OrderID),
		EventType:     firstNonBlank(dead.EventType, env.EventType, string(event.EventType)),
		Payload:       dead.Payload,
		PublishedAt:   now.UTC(),
	}
	value, err := json.Marshal(replay)
	if err != nil {
		return replayMessage{}, fmt.Errorf("encode replay envelope: %w", err)
	}
	return replayMessage{topic: target, key: replay.Key(), value: value, orderID: event.OrderID}, nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// OrderEventHandler обрабатывает разобранное событие заказа.
type OrderEventHandler func(ctx context.Context, event *OrderEvent) error

// HandleOrderEvents превращает OrderEventHandler в MessageHandler.
// Неразбираемое сообщение возвращает ошибку и после ретраев уходит в DLQ.
func HandleOrderEvents(handler OrderEventHandler) MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := ParseOrderEvent(message.Value)
		if err != nil {
			return err
		}
		return handler(ctx, event)
	}
}

// NewOrderNotifier возвращает обработчик, который пишет подтверждение заказа в лог.
func NewOrderNotifier(logger *log.Entry) OrderEventHandler {
	if logger == nil {
		logger = log.WithField("component", "order-notifier")
	}
	return func(_ context.Context, event *OrderEvent) error {
		if event.OrderID == "" {
			return fmt.Errorf("order event without order id")
		}

		entry := logger.WithFields(log.Fields{
			"order_id":   event.OrderID,
			"customer":   event.CustomerEmail,
			"total":      event.Total,
			"item_count": event.ItemCount,
		})
		switch event.EventType {
		case EventTypeOrderPlaced:
			entry.Info("order confirmation sent")
		case EventTypeOrderFailed:
			entry.WithField("reason", event.Reason).Warn("order failure notice sent")
		default:
			entry.WithField("event_type", event.EventType).Debug("order event ignored")
		}
		return nil
	}
}

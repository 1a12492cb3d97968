package kafka

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	EventTypeOrderPlaced EventType = "order.placed"
	EventTypeOrderFailed EventType = "order.failed"
)

// Topics для Kafka
const (
	TopicOrderEvents = "storefront.orders"
	// TopicOrderEventsDLQ принимает сообщения, которые consumer не смог обработать.
	TopicOrderEventsDLQ = "storefront.orders.dlq"
	// TopicOutboxDLQ принимает outbox-сообщения, исчерпавшие попытки публикации.
	TopicOutboxDLQ = "storefront.outbox.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEventLine: позиция заказа в событии.
type OrderEventLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Category  string `json:"category,omitempty"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType     EventType        `json:"event_type"`
	OrderID       string           `json:"order_id"`
	CustomerEmail string           `json:"customer_email"`
	Status        string           `json:"status"`
	Total         string           `json:"total"`
	ItemCount     int              `json:"item_count"`
	Lines         []OrderEventLine `json:"lines,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// NewOrderEvent строит событие из заказа. Суммы передаются строками,
// чтобы не терять точность decimal.
func NewOrderEvent(eventType EventType, order domain.Order) *OrderEvent {
	lines := make([]OrderEventLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, OrderEventLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			Category:  line.Category,
			UnitPrice: line.UnitPrice.StringFixed(2),
			Quantity:  line.Quantity,
		})
	}

	return &OrderEvent{
		EventType:     eventType,
		OrderID:       order.ID,
		CustomerEmail: order.CustomerEmail,
		Status:        string(order.Status),
		Total:         order.Total.StringFixed(2),
		ItemCount:     order.ItemCount(),
		Lines:         lines,
		Reason:        order.FailureReason,
		Timestamp:     time.Now().UTC(),
	}
}

package domain

import (
	"fmt"
	"time"
)

// Типы событий таймлайна заказа.
const (
	TimelineOrderCreated  = "order.created"
	TimelineStockReserved = "stock.reserved"
	TimelineStockReleased = "stock.released"
	TimelinePaymentOK     = "payment.authorized"
	TimelinePaymentFailed = "payment.declined"
	TimelineOrderPaid     = "order.paid"
	TimelineOrderFailed   = "order.failed"
)

// TimelineEvent: шаг жизненного цикла заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

// StampTimeline готовит пачку к записи: пачка без заказа у любого события
// отклоняется целиком, пустое время заменяется на now.
func StampTimeline(events []TimelineEvent, now time.Time) ([]TimelineEvent, error) {
	stamped := make([]TimelineEvent, len(events))
	for i, e := range events {
		if e.OrderID == "" {
			return nil, fmt.Errorf("timeline event %q: %w", e.Type, ErrOrderNotFound)
		}
		if e.Occurred.IsZero() {
			e.Occurred = now
		}
		stamped[i] = e
	}
	return stamped, nil
}

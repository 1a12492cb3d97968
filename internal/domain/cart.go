package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine: позиция корзины: снимок товара и запрошенное количество.
type CartLine struct {
	Item     CatalogItem
	Quantity int
}

// Subtotal возвращает цену позиции (price × quantity).
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Item.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart: сохраняемое состояние корзины конкретной сессии.
type Cart struct {
	SessionID string
	Lines     []CartLine
	UpdatedAt time.Time
}

// CartTotal суммирует позиции; для пустого списка возвращает ноль.
func CartTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

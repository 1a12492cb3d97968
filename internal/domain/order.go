package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа витрины.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан, склад и оплата ещё не подтверждены.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid: товар зарезервирован, демо-оплата прошла.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusFailed: оформление прервано (нет стока или отказ оплаты).
	OrderStatusFailed OrderStatus = "failed"
)

// OrderLine представляет одну позицию заказа.
type OrderLine struct {
	ProductID string
	Name      string
	Category  string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Subtotal возвращает стоимость позиции.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ShippingAddress: адрес доставки из формы оформления.
type ShippingAddress struct {
	Name       string
	Address    string
	City       string
	PostalCode string
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID            string
	CustomerEmail string
	Status        OrderStatus
	Total         decimal.Decimal
	Lines         []OrderLine
	Shipping      ShippingAddress
	Payment       Payment
	FailureReason string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ItemCount возвращает суммарное количество единиц товара.
func (o *Order) ItemCount() int {
	var n int
	for _, line := range o.Lines {
		n += line.Quantity
	}
	return n
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerEmail == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	calc := decimal.Zero
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if line.UnitPrice.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc = calc.Add(line.Subtotal())
	}
	if !calc.Equal(o.Total) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// Clone возвращает копию заказа с независимым срезом позиций.
func (o Order) Clone() Order {
	o.Lines = append([]OrderLine(nil), o.Lines...)
	return o
}

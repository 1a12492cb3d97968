package grpcapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

// LoginRequest: учётные данные покупателя или администратора.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse содержит bearer-токен для метаданных authorization.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
}

type GetCartRequest struct{}

type AddItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// UpdateQuantityRequest: Quantity <= 0 удаляет строку.
type UpdateQuantityRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type RemoveItemRequest struct {
	ProductID string `json:"product_id"`
}

type ClearCartRequest struct{}

type CartLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Cart: снимок корзины сессии.
type Cart struct {
	SessionID string          `json:"session_id"`
	Lines     []CartLine      `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	LineCount int             `json:"line_count"`
	ItemCount int             `json:"item_count"`
}

type CheckoutRequest struct {
	Form checkout.Form `json:"form"`
}

type OrderLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

type Order struct {
	ID            string          `json:"id"`
	CustomerEmail string          `json:"customer_email"`
	Status        string          `json:"status"`
	Total         decimal.Decimal `json:"total"`
	Lines         []OrderLine     `json:"lines"`
	PaymentStatus string          `json:"payment_status"`
	CardLastFour  string          `json:"card_last_four,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CheckoutResponse: Replayed выставлен, если ответ взят из кэша идемпотентности.
type CheckoutResponse struct {
	Order    Order `json:"order"`
	Replayed bool  `json:"replayed"`
}

func toCart(sessionID string, snap cart.Snapshot) *Cart {
	lines := make([]CartLine, 0, len(snap.Lines))
	for _, line := range snap.Lines {
		lines = append(lines, CartLine{
			ProductID: line.Item.ID,
			Name:      line.Item.Name,
			Price:     line.Item.Price,
			Stock:     line.Item.Stock,
			Quantity:  line.Quantity,
			Subtotal:  line.Subtotal(),
		})
	}
	return &Cart{
		SessionID: sessionID,
		Lines:     lines,
		Total:     snap.Total,
		LineCount: snap.LineCount,
		ItemCount: snap.ItemCount,
	}
}

func toOrder(order domain.Order) Order {
	lines := make([]OrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, OrderLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}
	return Order{
		ID:            order.ID,
		CustomerEmail: order.CustomerEmail,
		Status:        string(order.Status),
		Total:         order.Total,
		Lines:         lines,
		PaymentStatus: string(order.Payment.Status),
		CardLastFour:  order.Payment.CardLastFour,
		FailureReason: order.FailureReason,
		CreatedAt:     order.CreatedAt,
	}
}

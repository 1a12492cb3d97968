package payment

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockService: конфигурируемая заглушка PaymentService для тестов.
type MockService struct {
	mu sync.Mutex

	Status domain.PaymentStatus
	Err    error

	AuthorizeCalls int
	LastAmount     decimal.Decimal
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{Status: domain.PaymentStatusAuthorized}
}

// Authorize возвращает заранее настроенный результат и считает вызовы.
func (m *MockService) Authorize(_ context.Context, orderID string, amount decimal.Decimal, cardNumber string) (domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuthorizeCalls++
	m.LastAmount = amount
	return domain.Payment{
		Provider:     "mock",
		Reference:    "mock-" + orderID,
		Status:       m.Status,
		CardLastFour: domain.CardLastFour(cardNumber),
	}, m.Err
}

var _ domain.PaymentService = (*MockService)(nil)

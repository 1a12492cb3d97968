package inventory

import (
	"context"
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockService: заглушка InventoryService для тестов оформления. Успешный
// Reserve держит резерв заказа до Release; ошибки задаются полями.
type MockService struct {
	ReserveErr error
	ReleaseErr error

	ReserveCalls int
	ReleaseCalls int

	mu   sync.Mutex
	held map[string][]domain.OrderLine
}

// NewMockService возвращает заглушку, которая резервирует всё.
func NewMockService() *MockService {
	return &MockService{held: make(map[string][]domain.OrderLine)}
}

func (m *MockService) Reserve(_ context.Context, orderID string, lines []domain.OrderLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReserveCalls++
	if m.ReserveErr != nil {
		return m.ReserveErr
	}
	if m.held == nil {
		m.held = make(map[string][]domain.OrderLine)
	}
	m.held[orderID] = slices.Clone(lines)
	return nil
}

func (m *MockService) Release(_ context.Context, orderID string, _ []domain.OrderLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReleaseCalls++
	if m.ReleaseErr != nil {
		return m.ReleaseErr
	}
	delete(m.held, orderID)
	return nil
}

// Held возвращает строки, зарезервированные под заказ и ещё не отпущенные.
func (m *MockService) Held(orderID string) ([]domain.OrderLine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines, ok := m.held[orderID]
	return slices.Clone(lines), ok
}

var _ domain.InventoryService = (*MockService)(nil)

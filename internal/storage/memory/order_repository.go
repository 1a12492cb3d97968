package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderBook хранит заказы и индекс по email покупателя.
type orderBook struct {
	mu         sync.RWMutex
	orders     map[string]domain.Order
	byCustomer map[string][]string
}

// NewOrderRepository возвращает in-memory репозиторий заказов.
func NewOrderRepository() domain.OrderRepository {
	return &orderBook{
		orders:     make(map[string]domain.Order),
		byCustomer: make(map[string][]string),
	}
}

func (b *orderBook) Create(_ context.Context, order domain.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, taken := b.orders[order.ID]; taken {
		return domain.ErrOrderExists
	}
	b.orders[order.ID] = order.Clone()
	b.byCustomer[order.CustomerEmail] = append(b.byCustomer[order.CustomerEmail], order.ID)
	return nil
}

func (b *orderBook) Get(_ context.Context, id string) (domain.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	order, ok := b.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (b *orderBook) List(_ context.Context, limit int) ([]domain.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.Order, 0, len(b.orders))
	for _, order := range b.orders {
		out = append(out, order.Clone())
	}
	return newestFirst(out, limit), nil
}

func (b *orderBook) ListByCustomer(_ context.Context, email string, limit int) ([]domain.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := b.byCustomer[email]
	out := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.orders[id].Clone())
	}
	return newestFirst(out, limit), nil
}

// Save перезаписывает заказ, если версия совпадает с сохранённой, и увеличивает её.
func (b *orderBook) Save(_ context.Context, order domain.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok := b.orders[order.ID]
	switch {
	case !ok:
		return domain.ErrOrderNotFound
	case stored.Version != order.Version:
		return domain.ErrOrderVersionConflict
	}
	order.Version++
	order.CustomerEmail = stored.CustomerEmail
	b.orders[order.ID] = order.Clone()
	return nil
}

// newestFirst сортирует по CreatedAt по убыванию, при равенстве по ID, и обрезает до limit.
func newestFirst(orders []domain.Order, limit int) []domain.Order {
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders
}

var _ domain.OrderRepository = (*orderBook)(nil)

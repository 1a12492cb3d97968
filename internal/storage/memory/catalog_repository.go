package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// catalogRepositoryInMemory хранит каталог в map под RWMutex.
type catalogRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.CatalogItem
}

// NewCatalogRepository возвращает in-memory каталог для локальной разработки и тестов.
func NewCatalogRepository() domain.CatalogRepository {
	return &catalogRepositoryInMemory{items: make(map[string]domain.CatalogItem)}
}

// List возвращает товары, отсортированные по имени и ID.
func (r *catalogRepositoryInMemory) List(_ context.Context) ([]domain.CatalogItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.CatalogItem, 0, len(r.items))
	for _, item := range r.items {
		result = append(result, item.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *catalogRepositoryInMemory) Get(_ context.Context, id string) (domain.CatalogItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return domain.CatalogItem{}, domain.ErrProductNotFound
	}
	return item.Clone(), nil
}

func (r *catalogRepositoryInMemory) Create(_ context.Context, item domain.CatalogItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.ID]; exists {
		return domain.ErrProductExists
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	r.items[item.ID] = item.Clone()
	return nil
}

func (r *catalogRepositoryInMemory) Update(_ context.Context, item domain.CatalogItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[item.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	item.CreatedAt = current.CreatedAt
	item.UpdatedAt = time.Now().UTC()
	r.items[item.ID] = item.Clone()
	return nil
}

func (r *catalogRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(r.items, id)
	return nil
}

// AdjustStock меняет остаток под блокировкой, не допуская отрицательных значений.
func (r *catalogRepositoryInMemory) AdjustStock(_ context.Context, id string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	if item.Stock+delta < 0 {
		return domain.ErrInsufficientStock
	}
	item.Stock += delta
	item.UpdatedAt = time.Now().UTC()
	r.items[id] = item
	return nil
}

var _ domain.CatalogRepository = (*catalogRepositoryInMemory)(nil)

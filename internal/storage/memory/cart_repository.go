package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// cartRepositoryInMemory хранит корзины сессий. Переживает только время жизни процесса.
type cartRepositoryInMemory struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

// NewCartRepository создаёт in-memory хранилище корзин.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{carts: make(map[string]domain.Cart)}
}

func (r *cartRepositoryInMemory) Load(_ context.Context, sessionID string) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.carts[sessionID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cloneCart(c), nil
}

func (r *cartRepositoryInMemory) Save(_ context.Context, c domain.Cart) error {
	if c.SessionID == "" {
		return domain.ErrSessionRequired
	}

	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.carts[c.SessionID] = cloneCart(c)
	return nil
}

func (r *cartRepositoryInMemory) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[sessionID]; !ok {
		return domain.ErrCartNotFound
	}
	delete(r.carts, sessionID)
	return nil
}

// DeleteStale удаляет сначала самые старые корзины.
func (r *cartRepositoryInMemory) DeleteStale(_ context.Context, before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stale := make([]domain.Cart, 0)
	for _, c := range r.carts {
		if !c.UpdatedAt.After(before) {
			stale = append(stale, c)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].UpdatedAt.Before(stale[j].UpdatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	for _, c := range stale {
		delete(r.carts, c.SessionID)
	}
	return len(stale), nil
}

func cloneCart(c domain.Cart) domain.Cart {
	lines := make([]domain.CartLine, len(c.Lines))
	for i, line := range c.Lines {
		lines[i] = domain.CartLine{Item: line.Item.Clone(), Quantity: line.Quantity}
	}
	c.Lines = lines
	return c
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)

package cart

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Метки операций для storefront_cart_operations_total.
const (
	OperationAdd     = "add"
	OperationUpdate  = "update"
	OperationRemove  = "remove"
	OperationClear   = "clear"
	OperationDiscard = "discard"
)

// ItemSource отдаёт актуальную карточку товара (с текущим остатком).
type ItemSource interface {
	Get(ctx context.Context, id string) (domain.CatalogItem, error)
}

// Service: операции над корзиной сессии для транспортного слоя.
// Перед добавлением карточка товара перечитывается из каталога, поэтому
// ограничение по остатку считается от свежего stock.
type Service struct {
	sessions *Sessions
	items    ItemSource
	metrics  *metrics.StorefrontMetrics
	logger   *log.Entry
}

// NewService создаёт сервис корзин. metrics и logger могут быть nil.
func NewService(sessions *Sessions, items ItemSource, m *metrics.StorefrontMetrics, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "cart")
	}
	return &Service{sessions: sessions, items: items, metrics: m, logger: logger}
}

// View возвращает снимок корзины.
func (s *Service) View(ctx context.Context, sessionID string) (Snapshot, error) {
	store, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return store.Snapshot(), nil
}

// Add добавляет qty единиц товара productID. Неизвестный товар: ErrProductNotFound.
func (s *Service) Add(ctx context.Context, sessionID, productID string, qty int) (Snapshot, error) {
	store, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	item, err := s.items.Get(ctx, productID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("add to cart: %w", err)
	}

	before := store.Quantity(productID)
	requested := max(qty, 1)
	if before > 0 && qty < 1 {
		requested = 0
	}
	store.AddItem(item, qty)
	after := store.Quantity(productID)

	clamped := after-before != requested
	s.metrics.RecordCartOperation(OperationAdd, clamped)
	if clamped {
		s.logger.WithFields(log.Fields{
			"session_id": sessionID,
			"item_id":    productID,
			"requested":  requested,
			"stock":      item.Stock,
		}).Debug("cart quantity clamped to stock")
	}
	return store.Snapshot(), nil
}

// Update выставляет количество позиции; n <= 0 удаляет её. Остаток
// берётся из каталога; товар, пропавший из каталога, убирается из корзины.
func (s *Service) Update(ctx context.Context, sessionID, productID string, n int) (Snapshot, error) {
	store, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	switch item, err := s.items.Get(ctx, productID); {
	case err == nil:
		store.Refresh(item)
	case errors.Is(err, domain.ErrProductNotFound):
		store.RemoveItem(productID)
	default:
		return Snapshot{}, fmt.Errorf("update cart: %w", err)
	}
	store.UpdateQuantity(productID, n)
	after := store.Quantity(productID)
	s.metrics.RecordCartOperation(OperationUpdate, n > 0 && after != 0 && after != n)
	return store.Snapshot(), nil
}

// Remove удаляет позицию.
func (s *Service) Remove(ctx context.Context, sessionID, productID string) (Snapshot, error) {
	store, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	store.RemoveItem(productID)
	s.metrics.RecordCartOperation(OperationRemove, false)
	return store.Snapshot(), nil
}

// Clear очищает корзину.
func (s *Service) Clear(ctx context.Context, sessionID string) (Snapshot, error) {
	store, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	store.Clear()
	s.metrics.RecordCartOperation(OperationClear, false)
	return store.Snapshot(), nil
}

// Discard забывает корзину сессии: снимает её из реестра и удаляет сохранённое состояние.
func (s *Service) Discard(ctx context.Context, sessionID string) error {
	if err := s.sessions.Drop(ctx, sessionID); err != nil {
		return fmt.Errorf("discard cart %s: %w", sessionID, err)
	}
	s.metrics.RecordCartOperation(OperationDiscard, false)
	return nil
}

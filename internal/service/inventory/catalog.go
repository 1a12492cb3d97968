package inventory

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CatalogService резервирует товар, списывая остатки прямо в каталоге.
type CatalogService struct {
	repo   domain.CatalogRepository
	logger *log.Entry
}

// NewCatalogService создаёт склад поверх каталога.
func NewCatalogService(repo domain.CatalogRepository, logger *log.Entry) *CatalogService {
	if logger == nil {
		logger = log.New().WithField("component", "inventory")
	}
	return &CatalogService{repo: repo, logger: logger}
}

// Reserve списывает остатки по всем позициям. При нехватке хотя бы одной
// позиции уже списанное возвращается и ошибка оборачивает ErrInsufficientStock.
func (s *CatalogService) Reserve(ctx context.Context, orderID string, lines []domain.OrderLine) error {
	for i, line := range lines {
		if err := s.repo.AdjustStock(ctx, line.ProductID, -line.Quantity); err != nil {
			s.rollback(ctx, orderID, lines[:i])
			if errors.Is(err, domain.ErrProductNotFound) {
				err = fmt.Errorf("%w: %s removed from catalog", domain.ErrInsufficientStock, line.ProductID)
			}
			return fmt.Errorf("reserve %s for order %s: %w", line.ProductID, orderID, err)
		}
	}
	return nil
}

// Release возвращает остатки по позициям заказа.
func (s *CatalogService) Release(ctx context.Context, orderID string, lines []domain.OrderLine) error {
	var errs []error
	for _, line := range lines {
		if err := s.repo.AdjustStock(ctx, line.ProductID, line.Quantity); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", line.ProductID, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("release order %s: %w", orderID, errors.Join(errs...))
	}
	return nil
}

func (s *CatalogService) rollback(ctx context.Context, orderID string, reserved []domain.OrderLine) {
	if len(reserved) == 0 {
		return
	}
	if err := s.Release(ctx, orderID, reserved); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("failed to roll back partial reservation")
	}
}

var _ domain.InventoryService = (*CatalogService)(nil)

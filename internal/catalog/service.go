package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Service: операции витрины и back-office над каталогом.
type Service struct {
	repo   domain.CatalogRepository
	logger *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(repo domain.CatalogRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "catalog")
	}
	return &Service{repo: repo, logger: logger}
}

// List возвращает товары, подходящие под фильтр: точное совпадение категории
// и поиск подстроки в названии или описании без учёта регистра. Ранжирования нет.
func (s *Service) List(ctx context.Context, filter domain.CatalogFilter) ([]domain.CatalogItem, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	category := strings.TrimSpace(filter.Category)

	result := items[:0]
	for _, item := range items {
		if category != "" && !strings.EqualFold(item.Category, category) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(item.Name), query) &&
			!strings.Contains(strings.ToLower(item.Description), query) {
			continue
		}
		result = append(result, item)
	}
	return result, nil
}

// Get возвращает товар по ID.
func (s *Service) Get(ctx context.Context, id string) (domain.CatalogItem, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.CatalogItem{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return item, nil
}

// Categories возвращает отсортированный список различных категорий.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}

	seen := make(map[string]struct{})
	var result []string
	for _, item := range items {
		if item.Category == "" {
			continue
		}
		if _, ok := seen[item.Category]; ok {
			continue
		}
		seen[item.Category] = struct{}{}
		result = append(result, item.Category)
	}
	sort.Strings(result)
	return result, nil
}

// Create добавляет товар; пустой ID генерируется.
func (s *Service) Create(ctx context.Context, item domain.CatalogItem) (domain.CatalogItem, error) {
	item = normalize(item)
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if err := item.Validate(); err != nil {
		return domain.CatalogItem{}, err
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return domain.CatalogItem{}, fmt.Errorf("create product: %w", err)
	}

	s.logger.WithField("item_id", item.ID).Info("product created")
	return s.repo.Get(ctx, item.ID)
}

// Update заменяет карточку товара целиком.
func (s *Service) Update(ctx context.Context, item domain.CatalogItem) (domain.CatalogItem, error) {
	item = normalize(item)
	if err := item.Validate(); err != nil {
		return domain.CatalogItem{}, err
	}
	if err := s.repo.Update(ctx, item); err != nil {
		return domain.CatalogItem{}, fmt.Errorf("update product %s: %w", item.ID, err)
	}

	s.logger.WithField("item_id", item.ID).Info("product updated")
	return s.repo.Get(ctx, item.ID)
}

// Delete удаляет товар. Уже лежащие в корзинах снимки не трогаются.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	s.logger.WithField("item_id", id).Info("product deleted")
	return nil
}

func normalize(item domain.CatalogItem) domain.CatalogItem {
	item.ID = strings.TrimSpace(item.ID)
	item.Name = strings.TrimSpace(item.Name)
	item.Category = strings.TrimSpace(item.Category)
	return item
}

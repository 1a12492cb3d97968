package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MaxRating: верхняя граница рейтинга товара.
const MaxRating = 5.0

// CatalogItem: карточка товара в каталоге.
type CatalogItem struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Image       string
	Stock       int
	// Rating не обязателен; nil означает «нет оценок».
	Rating    *float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет поля карточки. Все найденные нарушения объединяются
// и оборачиваются в ErrInvalidProduct.
func (c CatalogItem) Validate() error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if c.Price.IsNegative() {
		errs = append(errs, ErrProductPriceNegative)
	}
	if c.Stock < 0 {
		errs = append(errs, ErrProductStockNegative)
	}
	if c.Rating != nil && (*c.Rating < 0 || *c.Rating > MaxRating) {
		errs = append(errs, ErrProductRatingRange)
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrInvalidProduct}, errs...)...)
}

// InStock сообщает, можно ли положить товар в корзину.
func (c CatalogItem) InStock() bool {
	return c.Stock > 0
}

// Clone возвращает копию без общих указателей.
func (c CatalogItem) Clone() CatalogItem {
	if c.Rating != nil {
		r := *c.Rating
		c.Rating = &r
	}
	return c
}

// CatalogFilter задаёт фильтрацию списка товаров.
type CatalogFilter struct {
	Category string
	Query    string
}

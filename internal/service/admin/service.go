// Package admin собирает отчёты для панели администратора: заказы, продажи, покупатели.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultTopProducts = 5

// OrderDetails: заказ вместе с таймлайном.
type OrderDetails struct {
	Order    domain.Order
	Timeline []domain.TimelineEvent
}

// CategorySales: выручка и проданные единицы по категории.
type CategorySales struct {
	Category string
	Revenue  decimal.Decimal
	Units    int
}

// ProductSales: продажи одного товара.
type ProductSales struct {
	ProductID string
	Name      string
	Revenue   decimal.Decimal
	Units     int
}

// SalesReport: сводка по оплаченным заказам.
type SalesReport struct {
	Revenue      decimal.Decimal
	OrderCount   int
	ItemsSold    int
	FailedOrders int
	// AverageOrder: средний чек; ноль, если оплаченных заказов нет.
	AverageOrder decimal.Decimal
	ByCategory   []CategorySales
	TopProducts  []ProductSales
}

// CustomerSummary: агрегат по email покупателя.
type CustomerSummary struct {
	Email       string
	Orders      int
	TotalSpent  decimal.Decimal
	LastOrderAt time.Time
}

// Service строит отчёты поверх репозиториев заказов и таймлайна.
type Service struct {
	orders      domain.OrderRepository
	timeline    domain.TimelineRepository
	logger      *log.Entry
	topProducts int
}

// NewService создаёт сервис отчётов. timeline может быть nil.
func NewService(orders domain.OrderRepository, timeline domain.TimelineRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "admin")
	}
	return &Service{
		orders:      orders,
		timeline:    timeline,
		logger:      logger,
		topProducts: defaultTopProducts,
	}
}

// Orders возвращает все заказы от новых к старым.
func (s *Service) Orders(ctx context.Context) ([]domain.Order, error) {
	orders, err := s.orders.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Order возвращает заказ и его таймлайн.
func (s *Service) Order(ctx context.Context, id string) (OrderDetails, error) {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return OrderDetails{}, err
	}

	details := OrderDetails{Order: order}
	if s.timeline == nil {
		return details, nil
	}
	events, err := s.timeline.List(ctx, id)
	if err != nil {
		// заказ важнее истории, таймлайн отдаём пустым
		s.logger.WithError(err).WithField("order_id", id).Warn("failed to load order timeline")
		return details, nil
	}
	details.Timeline = events
	return details, nil
}

// Sales считает выручку по оплаченным заказам.
func (s *Service) Sales(ctx context.Context) (SalesReport, error) {
	orders, err := s.Orders(ctx)
	if err != nil {
		return SalesReport{}, err
	}

	report := SalesReport{Revenue: decimal.Zero, AverageOrder: decimal.Zero}
	categories := make(map[string]*CategorySales)
	products := make(map[string]*ProductSales)

	for _, order := range orders {
		if order.Status != domain.OrderStatusPaid {
			if order.Status == domain.OrderStatusFailed {
				report.FailedOrders++
			}
			continue
		}

		report.OrderCount++
		report.Revenue = report.Revenue.Add(order.Total)

		for _, line := range order.Lines {
			subtotal := line.Subtotal()
			report.ItemsSold += line.Quantity

			cat, ok := categories[line.Category]
			if !ok {
				cat = &CategorySales{Category: line.Category, Revenue: decimal.Zero}
				categories[line.Category] = cat
			}
			cat.Revenue = cat.Revenue.Add(subtotal)
			cat.Units += line.Quantity

			prod, ok := products[line.ProductID]
			if !ok {
				prod = &ProductSales{ProductID: line.ProductID, Name: line.Name, Revenue: decimal.Zero}
				products[line.ProductID] = prod
			}
			prod.Revenue = prod.Revenue.Add(subtotal)
			prod.Units += line.Quantity
		}
	}

	if report.OrderCount > 0 {
		report.AverageOrder = report.Revenue.Div(decimal.NewFromInt(int64(report.OrderCount))).Round(2)
	}

	report.ByCategory = make([]CategorySales, 0, len(categories))
	for _, cat := range categories {
		report.ByCategory = append(report.ByCategory, *cat)
	}
	sort.Slice(report.ByCategory, func(i, j int) bool {
		a, b := report.ByCategory[i], report.ByCategory[j]
		if cmp := a.Revenue.Cmp(b.Revenue); cmp != 0 {
			return cmp > 0
		}
		return a.Category < b.Category
	})

	top := make([]ProductSales, 0, len(products))
	for _, prod := range products {
		top = append(top, *prod)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Units != top[j].Units {
			return top[i].Units > top[j].Units
		}
		if cmp := top[i].Revenue.Cmp(top[j].Revenue); cmp != 0 {
			return cmp > 0
		}
		return top[i].ProductID < top[j].ProductID
	})
	if len(top) > s.topProducts {
		top = top[:s.topProducts]
	}
	report.TopProducts = top

	return report, nil
}

// Customers агрегирует оплаченные заказы по покупателям; сортировка по сумме покупок.
func (s *Service) Customers(ctx context.Context) ([]CustomerSummary, error) {
	orders, err := s.Orders(ctx)
	if err != nil {
		return nil, err
	}

	byEmail := make(map[string]*CustomerSummary)
	for _, order := range orders {
		if order.Status != domain.OrderStatusPaid {
			continue
		}
		c, ok := byEmail[order.CustomerEmail]
		if !ok {
			c = &CustomerSummary{Email: order.CustomerEmail, TotalSpent: decimal.Zero}
			byEmail[order.CustomerEmail] = c
		}
		c.Orders++
		c.TotalSpent = c.TotalSpent.Add(order.Total)
		if order.CreatedAt.After(c.LastOrderAt) {
			c.LastOrderAt = order.CreatedAt
		}
	}

	result := make([]CustomerSummary, 0, len(byEmail))
	for _, c := range byEmail {
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool {
		if cmp := result[i].TotalSpent.Cmp(result[j].TotalSpent); cmp != 0 {
			return cmp > 0
		}
		return result[i].Email < result[j].Email
	})
	return result, nil
}

// IsNotFound сообщает, что запрошенного заказа нет.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrOrderNotFound)
}

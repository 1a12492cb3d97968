package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func rating(v float64) *float64 { return &v }

// SampleItems: демонстрационный каталог витрины.
func SampleItems() []domain.CatalogItem {
	return []domain.CatalogItem{
		{
			ID:          "wireless-headphones",
			Name:        "Wireless Headphones",
			Description: "Over-ear headphones with active noise cancelling and 30h battery.",
			Price:       decimal.RequireFromString("129.99"),
			Category:    "Electronics",
			Image:       "/images/headphones.jpg",
			Stock:       15,
			Rating:      rating(4.5),
		},
		{
			ID:          "smart-watch",
			Name:        "Smart Watch",
			Description: "Fitness tracking, heart-rate monitor and notifications.",
			Price:       decimal.RequireFromString("199.00"),
			Category:    "Electronics",
			Image:       "/images/watch.jpg",
			Stock:       8,
			Rating:      rating(4.2),
		},
		{
			ID:          "running-shoes",
			Name:        "Running Shoes",
			Description: "Lightweight trainers with breathable mesh upper.",
			Price:       decimal.RequireFromString("89.50"),
			Category:    "Sports",
			Image:       "/images/shoes.jpg",
			Stock:       20,
			Rating:      rating(4.7),
		},
		{
			ID:          "yoga-mat",
			Name:        "Yoga Mat",
			Description: "Non-slip 6mm mat with carrying strap.",
			Price:       decimal.RequireFromString("25.00"),
			Category:    "Sports",
			Image:       "/images/yoga-mat.jpg",
			Stock:       30,
		},
		{
			ID:          "coffee-maker",
			Name:        "Coffee Maker",
			Description: "Programmable drip coffee maker, 12 cups.",
			Price:       decimal.RequireFromString("59.90"),
			Category:    "Home",
			Image:       "/images/coffee-maker.jpg",
			Stock:       5,
			Rating:      rating(3.9),
		},
		{
			ID:          "desk-lamp",
			Name:        "Desk Lamp",
			Description: "LED lamp with adjustable colour temperature.",
			Price:       decimal.RequireFromString("34.99"),
			Category:    "Home",
			Image:       "/images/desk-lamp.jpg",
			Stock:       0,
			Rating:      rating(4.0),
		},
		{
			ID:          "backpack",
			Name:        "Travel Backpack",
			Description: "40L cabin-size backpack with laptop sleeve.",
			Price:       decimal.RequireFromString("74.00"),
			Category:    "Accessories",
			Image:       "/images/backpack.jpg",
			Stock:       12,
			Rating:      rating(4.6),
		},
	}
}

// Seed заполняет пустой каталог демонстрационными товарами.
// Возвращает число добавленных позиций; непустой каталог не трогается.
func (s *Service) Seed(ctx context.Context, items []domain.CatalogItem) (int, error) {
	existing, err := s.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed catalog: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	for _, item := range items {
		if err := s.repo.Create(ctx, item); err != nil {
			return 0, fmt.Errorf("seed product %s: %w", item.ID, err)
		}
	}
	s.logger.WithField("count", len(items)).Info("catalog seeded")
	return len(items), nil
}

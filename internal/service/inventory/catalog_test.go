package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newCatalog(t *testing.T, stock map[string]int) domain.CatalogRepository {
	t.Helper()
	repo := memory.NewCatalogRepository()
	for id, n := range stock {
		if err := repo.Create(context.Background(), domain.CatalogItem{ID: id, Name: id, Price: decimal.NewFromInt(1), Stock: n}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	return repo
}

func stockOf(t *testing.T, repo domain.CatalogRepository, id string) int {
	t.Helper()
	item, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return item.Stock
}

func TestCatalogService_ReserveAndRelease(t *testing.T) {
	repo := newCatalog(t, map[string]int{"a": 5, "b": 2})
	svc := NewCatalogService(repo, nil)
	ctx := context.Background()
	lines := []domain.OrderLine{{ProductID: "a", Quantity: 3}, {ProductID: "b", Quantity: 2}}

	if err := svc.Reserve(ctx, "o-1", lines); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if got := stockOf(t, repo, "a"); got != 2 {
		t.Fatalf("expected stock 2 for a, got %d", got)
	}
	if got := stockOf(t, repo, "b"); got != 0 {
		t.Fatalf("expected stock 0 for b, got %d", got)
	}

	if err := svc.Release(ctx, "o-1", lines); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if got := stockOf(t, repo, "a"); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}
}

func TestCatalogService_ReserveIsAllOrNothing(t *testing.T) {
	repo := newCatalog(t, map[string]int{"a": 5, "b": 1})
	svc := NewCatalogService(repo, nil)

	err := svc.Reserve(context.Background(), "o-1", []domain.OrderLine{
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 2},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := stockOf(t, repo, "a"); got != 5 {
		t.Fatalf("partial reservation not rolled back: stock %d", got)
	}
}

func TestCatalogService_ReserveRemovedProduct(t *testing.T) {
	repo := newCatalog(t, map[string]int{"a": 5})
	svc := NewCatalogService(repo, nil)

	err := svc.Reserve(context.Background(), "o-1", []domain.OrderLine{{ProductID: "gone", Quantity: 1}})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestMockService_HoldsUntilRelease(t *testing.T) {
	m := NewMockService()
	ctx := context.Background()
	lines := []domain.OrderLine{{ProductID: "yoga-mat", Quantity: 2}}

	if err := m.Reserve(ctx, "order-1", lines); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if held, ok := m.Held("order-1"); !ok || held[0].Quantity != 2 {
		t.Fatalf("expected reservation to be held, got %v %v", held, ok)
	}
	_ = m.Release(ctx, "order-1", lines)
	if _, ok := m.Held("order-1"); ok {
		t.Fatal("released reservation must not be held")
	}

	m.ReserveErr = domain.ErrInsufficientStock
	if err := m.Reserve(ctx, "order-2", lines); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected configured error, got %v", err)
	}
	if _, ok := m.Held("order-2"); ok {
		t.Fatal("failed reservation must not be held")
	}
	if m.ReserveCalls != 2 || m.ReleaseCalls != 1 {
		t.Fatalf("unexpected calls: reserve=%d release=%d", m.ReserveCalls, m.ReleaseCalls)
	}
}

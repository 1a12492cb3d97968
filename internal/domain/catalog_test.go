package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func ratingPtr(v float64) *float64 { return &v }

func TestCatalogItemValidate(t *testing.T) {
	valid := CatalogItem{
		ID:     "p-1",
		Name:   "Mug",
		Price:  decimal.RequireFromString("12.50"),
		Stock:  3,
		Rating: ratingPtr(4.5),
	}

	tests := []struct {
		name string
		mut  func(c *CatalogItem)
		want error
	}{
		{name: "valid", mut: func(*CatalogItem) {}, want: nil},
		{name: "no rating", mut: func(c *CatalogItem) { c.Rating = nil }, want: nil},
		{name: "free item", mut: func(c *CatalogItem) { c.Price = decimal.Zero }, want: nil},
		{name: "empty name", mut: func(c *CatalogItem) { c.Name = "" }, want: ErrProductNameRequired},
		{name: "negative price", mut: func(c *CatalogItem) { c.Price = decimal.NewFromInt(-1) }, want: ErrProductPriceNegative},
		{name: "negative stock", mut: func(c *CatalogItem) { c.Stock = -1 }, want: ErrProductStockNegative},
		{name: "rating too high", mut: func(c *CatalogItem) { c.Rating = ratingPtr(5.1) }, want: ErrProductRatingRange},
		{name: "rating negative", mut: func(c *CatalogItem) { c.Rating = ratingPtr(-0.1) }, want: ErrProductRatingRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := valid.Clone()
			tt.mut(&item)
			err := item.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidProduct) {
				t.Fatalf("expected ErrInvalidProduct, got %v", err)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCatalogItemCloneCopiesRating(t *testing.T) {
	item := CatalogItem{Rating: ratingPtr(3)}
	clone := item.Clone()
	*clone.Rating = 1

	if *item.Rating != 3 {
		t.Fatalf("rating shared between clones: %v", *item.Rating)
	}
}

func TestCartTotal(t *testing.T) {
	lines := []CartLine{
		{Item: CatalogItem{Price: decimal.RequireFromString("10.25")}, Quantity: 2},
		{Item: CatalogItem{Price: decimal.RequireFromString("0.50")}, Quantity: 3},
	}

	if got := CartTotal(lines); !got.Equal(decimal.RequireFromString("22.00")) {
		t.Fatalf("unexpected total %s", got)
	}
	if got := CartTotal(nil); !got.IsZero() {
		t.Fatalf("empty cart total must be zero, got %s", got)
	}
}

package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	svc := NewService(memory.NewCatalogRepository(), logger.WithField("test", t.Name()))
	_, err := svc.Seed(context.Background(), SampleItems())
	require.NoError(t, err)
	return svc
}

func ids(items []domain.CatalogItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func TestSampleItemsAreValid(t *testing.T) {
	for _, item := range SampleItems() {
		assert.NoError(t, item.Validate(), item.ID)
	}
}

func TestService_List(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter domain.CatalogFilter
		want   []string
	}{
		{
			name:   "category",
			filter: domain.CatalogFilter{Category: "sports"},
			want:   []string{"running-shoes", "yoga-mat"},
		},
		{
			name:   "query in name",
			filter: domain.CatalogFilter{Query: "WATCH"},
			want:   []string{"smart-watch"},
		},
		{
			name:   "query in description",
			filter: domain.CatalogFilter{Query: "laptop"},
			want:   []string{"backpack"},
		},
		{
			name:   "category and query",
			filter: domain.CatalogFilter{Category: "Home", Query: "lamp"},
			want:   []string{"desk-lamp"},
		},
		{
			name:   "no match",
			filter: domain.CatalogFilter{Category: "Garden"},
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := svc.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(items))
		})
	}
}

func TestService_Categories(t *testing.T) {
	svc := newTestService(t)

	categories, err := svc.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Accessories", "Electronics", "Home", "Sports"}, categories)
}

func TestService_CreateUpdateDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CatalogItem{
		Name:     "  Notebook ",
		Price:    decimal.RequireFromString("4.50"),
		Category: "Stationery",
		Stock:    100,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Notebook", created.Name)

	created.Price = decimal.RequireFromString("3.99")
	updated, err := svc.Update(ctx, created)
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(decimal.RequireFromString("3.99")))

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestService_CreateRejectsInvalid(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Create(context.Background(), domain.CatalogItem{
		Price: decimal.NewFromInt(-1),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidProduct))
	assert.True(t, errors.Is(err, domain.ErrProductNameRequired))
}

func TestService_UpdateUnknown(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Update(context.Background(), domain.CatalogItem{ID: "nope", Name: "x"})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestService_SeedSkipsNonEmpty(t *testing.T) {
	svc := newTestService(t)

	n, err := svc.Seed(context.Background(), SampleItems())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

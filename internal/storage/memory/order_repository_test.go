package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func placedOrder(id, email string, at time.Time) domain.Order {
	return domain.Order{
		ID:            id,
		CustomerEmail: email,
		Status:        domain.OrderStatusPending,
		Total:         decimal.NewFromInt(10),
		Lines:         []domain.OrderLine{{ProductID: "p", UnitPrice: decimal.NewFromInt(10), Quantity: 1}},
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

func TestOrderRepository_VersionedSave(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, placedOrder("o-1", "a@shop.local", time.Now())))
	assert.ErrorIs(t, repo.Create(ctx, placedOrder("o-1", "b@shop.local", time.Now())), domain.ErrOrderExists)

	got, err := repo.Get(ctx, "o-1")
	require.NoError(t, err)
	got.Status = domain.OrderStatusPaid
	got.Lines[0].Quantity = 99
	require.NoError(t, repo.Save(ctx, got))

	// вторая запись со старой версией проигрывает
	assert.True(t, domain.IsVersionConflict(repo.Save(ctx, got)))

	saved, err := repo.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)
	assert.Equal(t, domain.OrderStatusPaid, saved.Status)
	assert.Equal(t, 99, saved.Lines[0].Quantity)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.ErrorIs(t, repo.Save(ctx, placedOrder("missing", "x", time.Now())), domain.ErrOrderNotFound)
}

func TestOrderRepository_ReturnsCopies(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, placedOrder("o-1", "a@shop.local", time.Now())))

	got, err := repo.Get(ctx, "o-1")
	require.NoError(t, err)
	got.Lines[0].Quantity = 42

	again, err := repo.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Lines[0].Quantity)
}

func TestOrderRepository_NewestFirst(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, repo.Create(ctx, placedOrder("o-1", "a@shop.local", base)))
	require.NoError(t, repo.Create(ctx, placedOrder("o-2", "b@shop.local", base.Add(time.Minute))))
	require.NoError(t, repo.Create(ctx, placedOrder("o-3", "a@shop.local", base.Add(2*time.Minute))))
	require.NoError(t, repo.Create(ctx, placedOrder("o-4", "a@shop.local", base.Add(2*time.Minute))))

	ids := func(orders []domain.Order) []string {
		out := make([]string, 0, len(orders))
		for _, o := range orders {
			out = append(out, o.ID)
		}
		return out
	}

	all, err := repo.List(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"o-4", "o-3", "o-2", "o-1"}, ids(all))

	mine, err := repo.ListByCustomer(ctx, "a@shop.local", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"o-4", "o-3"}, ids(mine))

	none, err := repo.ListByCustomer(ctx, "nobody@shop.local", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

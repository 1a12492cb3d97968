package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOutboxRepository_PostgresLifecycle(t *testing.T) {
	repo := NewOutboxRepository(migratedTestStore(t))
	ctx := context.Background()

	placed, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "order.placed",
		Payload:       []byte(`{"order_id":"order-1"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, placed.ID)

	failed, err := repo.Enqueue(ctx, domain.OutboxMessage{
		ID:            "outbox-fixed-id",
		AggregateType: "order",
		AggregateID:   "order-2",
		EventType:     "order.failed",
		Payload:       []byte(`{"order_id":"order-2"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "outbox-fixed-id", failed.ID)

	pending, err := repo.PullPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.JSONEq(t, `{"order_id":"order-1"}`, string(pending[0].Payload))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PendingCount)
	assert.False(t, stats.OldestPendingAt.IsZero())

	require.NoError(t, repo.MarkSent(ctx, placed.ID))
	require.NoError(t, repo.MarkFailed(ctx, failed.ID))
	pending, err = repo.PullPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// повторная постановка того же id оживляет упавшее сообщение
	_, err = repo.Enqueue(ctx, domain.OutboxMessage{ID: failed.ID, AggregateType: "order", AggregateID: "order-2", EventType: "order.retry", Payload: []byte(`{}`)})
	require.NoError(t, err)
	pending, err = repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "order.retry", pending[0].EventType)

	assert.ErrorIs(t, repo.MarkSent(ctx, "missing-outbox"), domain.ErrOutboxPublish)
}

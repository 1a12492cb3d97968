package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func enqueueN(t *testing.T, repo *OutboxRepository, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for range n {
		saved, err := repo.Enqueue(context.Background(), domain.OutboxMessage{AggregateType: "order", EventType: "order.placed"})
		require.NoError(t, err)
		ids = append(ids, saved.ID)
	}
	return ids
}

func idsOf(msgs []domain.OutboxMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestOutboxRepository_EnqueueCopiesPayload(t *testing.T) {
	repo := NewOutboxRepository()
	payload := []byte(`{"status":"paid"}`)

	saved, err := repo.Enqueue(context.Background(), domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "order.paid",
		Payload:       payload,
	})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	payload[0] = 'X'

	pending, err := repo.PullPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, saved.ID, pending[0].ID)
	assert.JSONEq(t, `{"status":"paid"}`, string(pending[0].Payload))
}

func TestOutboxRepository_PullPendingOrderAndLimit(t *testing.T) {
	repo := NewOutboxRepository()
	ids := enqueueN(t, repo, 5)

	first, err := repo.PullPending(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, ids[:3], idsOf(first))

	all, err := repo.PullPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, ids, idsOf(all))
}

func TestOutboxRepository_SettledMessagesLeaveBacklog(t *testing.T) {
	repo := NewOutboxRepository()
	queued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return queued }
	ids := enqueueN(t, repo, 3)
	ctx := context.Background()

	require.NoError(t, repo.MarkSent(ctx, ids[0]))
	require.NoError(t, repo.MarkFailed(ctx, ids[1]))
	assert.ErrorIs(t, repo.MarkSent(ctx, "missing"), domain.ErrOutboxPublish)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxStats{PendingCount: 1, OldestPendingAt: queued}, stats)
	assert.Equal(t, ids[2:], idsOf(repo.AllPending()))
}

func TestOutboxRepository_ReenqueueRevivesMessage(t *testing.T) {
	repo := NewOutboxRepository()
	ctx := context.Background()
	ids := enqueueN(t, repo, 2)
	require.NoError(t, repo.MarkFailed(ctx, ids[0]))

	_, err := repo.Enqueue(ctx, domain.OutboxMessage{ID: ids[0], AggregateType: "order", EventType: "order.retry"})
	require.NoError(t, err)

	pending := repo.AllPending()
	assert.Equal(t, ids, idsOf(pending), "queue position is kept")
	assert.Equal(t, "order.retry", pending[0].EventType)
}

func TestOutboxRepository_EmptyStats(t *testing.T) {
	stats, err := NewOutboxRepository().Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats)
	assert.Empty(t, NewOutboxRepository().AllPending())
}

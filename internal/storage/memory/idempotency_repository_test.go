package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestIdempotencyRepository_ClaimAndFinish(t *testing.T) {
	repo := NewIdempotencyRepository()
	ctx := context.Background()

	rec, err := repo.CreateProcessing(ctx, " checkout-1 ", "hash-1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "checkout-1", rec.Key)
	assert.Equal(t, domain.IdempotencyStatusProcessing, rec.Status)
	assert.False(t, rec.TTLAt.IsZero())

	_, err = repo.CreateProcessing(ctx, "checkout-1", "hash-1", time.Time{})
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	held, err := repo.CreateProcessing(ctx, "checkout-1", "hash-2", time.Time{})
	assert.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
	assert.Equal(t, "hash-1", held.RequestHash)

	body := []byte(`{"id":"o-1"}`)
	require.NoError(t, repo.MarkDone(ctx, "checkout-1", body, 201))
	body[0] = 'X'

	got, err := repo.Get(ctx, "checkout-1")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, got.Status)
	assert.Equal(t, 201, got.HTTPStatus)
	assert.JSONEq(t, `{"id":"o-1"}`, string(got.ResponseBody))
}

func TestIdempotencyRepository_RejectsBadInput(t *testing.T) {
	repo := NewIdempotencyRepository()
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, "", "hash", time.Time{})
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	_, err = repo.CreateProcessing(ctx, "key", " ", time.Time{})
	assert.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)
	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	assert.ErrorIs(t, repo.MarkFailed(ctx, "missing", nil, 500), domain.ErrIdempotencyKeyNotFound)
	assert.ErrorIs(t, repo.MarkDone(ctx, " ", nil, 201), domain.ErrIdempotencyKeyRequired)
}

func TestIdempotencyRepository_ExpiredKeyIsReclaimed(t *testing.T) {
	repo := NewIdempotencyRepository()
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, "key", "hash-1", time.Now().Add(-time.Second))
	require.NoError(t, err)

	rec, err := repo.CreateProcessing(ctx, "key", "hash-2", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "hash-2", rec.RequestHash)
}

func TestIdempotencyRepository_DeleteExpiredOldestFirst(t *testing.T) {
	repo := NewIdempotencyRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	for i, key := range []string{"oldest", "middle", "newest"} {
		_, err := repo.CreateProcessing(ctx, key, "hash", now.Add(-time.Duration(3-i)*time.Minute))
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing(ctx, "live", "hash", now.Add(time.Hour))
	require.NoError(t, err)

	removed, err := repo.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	_, err = repo.Get(ctx, "oldest")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get(ctx, "newest")
	assert.NoError(t, err)

	removed, err = repo.DeleteExpired(ctx, now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "live")
	assert.NoError(t, err)
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStatus_Valid(t *testing.T) {
	for _, s := range []IdempotencyStatus{IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, IdempotencyStatus("broken").Valid())
	assert.False(t, IdempotencyStatus("").Valid())
}

func TestNewIdempotencyClaim(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	claim, err := NewIdempotencyClaim("  checkout-1 ", " abc ", time.Time{}, now)
	require.NoError(t, err)
	assert.Equal(t, "checkout-1", claim.Key)
	assert.Equal(t, "abc", claim.RequestHash)
	assert.Equal(t, IdempotencyStatusProcessing, claim.Status)
	assert.Equal(t, now.Add(IdempotencyTTL), claim.TTLAt)
	assert.Equal(t, now, claim.CreatedAt)

	explicit := now.Add(time.Minute)
	claim, err = NewIdempotencyClaim("k", "h", explicit, now)
	require.NoError(t, err)
	assert.Equal(t, explicit, claim.TTLAt)

	_, err = NewIdempotencyClaim(" ", "h", time.Time{}, now)
	assert.ErrorIs(t, err, ErrIdempotencyKeyRequired)
	_, err = NewIdempotencyClaim("k", "", time.Time{}, now)
	assert.ErrorIs(t, err, ErrIdempotencyRequestHashRequired)
}

func TestIdempotencyRecord_Expired(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	cases := map[string]struct {
		ttlAt time.Time
		want  bool
	}{
		"no ttl": {time.Time{}, false},
		"future": {now.Add(time.Minute), false},
		"exact":  {now, true},
		"past":   {now.Add(-time.Minute), true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, IdempotencyRecord{TTLAt: tc.ttlAt}.Expired(now))
		})
	}
}

func TestIdempotencyRecord_ConflictWith(t *testing.T) {
	rec := IdempotencyRecord{Key: "k", RequestHash: "hash-a"}

	assert.ErrorIs(t, rec.ConflictWith("hash-a"), ErrIdempotencyKeyAlreadyExists)
	assert.ErrorIs(t, rec.ConflictWith(" hash-a "), ErrIdempotencyKeyAlreadyExists)
	assert.ErrorIs(t, rec.ConflictWith("hash-b"), ErrIdempotencyHashMismatch)
	assert.True(t, IsIdempotencyConflict(rec.ConflictWith("hash-b")))
}

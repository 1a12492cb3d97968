package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

// scriptedDelete отдаёт заранее заданные результаты и запоминает вызовы.
type scriptedDelete struct {
	mu      sync.Mutex
	results []int
	errs    []error
	calls   []time.Time
	limits  []int
}

func (s *scriptedDelete) delete(_ context.Context, before time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, before)
	s.limits = append(s.limits, limit)

	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	if err != nil {
		return 0, err
	}
	if len(s.results) == 0 {
		return 0, nil
	}
	n := s.results[0]
	s.results = s.results[1:]
	return n, nil
}

func (s *scriptedDelete) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestSweep_DeletesInBatchesUntilShortBatch(t *testing.T) {
	script := &scriptedDelete{results: []int{2, 2, 1}}
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	task := Task{Name: "keys", Cutoff: func(n time.Time) time.Time { return n.Add(-time.Hour) }, Delete: script.delete}

	w := NewWorker([]Task{task}, WithBatchSize(2), WithClock(fixedClock(now)))
	deleted, err := w.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"keys": 5}, deleted)
	require.Len(t, script.calls, 3)
	assert.Equal(t, now.Add(-time.Hour), script.calls[0])
	assert.Equal(t, []int{2, 2, 2}, script.limits)
}

func TestSweep_FailingTaskDoesNotStopOthers(t *testing.T) {
	broken := &scriptedDelete{errs: []error{errors.New("db down")}}
	healthy := &scriptedDelete{results: []int{3}}
	reg := prometheus.NewRegistry()
	m := metrics.NewRetentionMetricsWithRegisterer(reg)

	w := NewWorker([]Task{
		{Name: "broken", Cutoff: func(n time.Time) time.Time { return n }, Delete: broken.delete},
		{Name: "healthy", Cutoff: func(n time.Time) time.Time { return n }, Delete: healthy.delete},
	}, WithBatchSize(10), WithMetrics(m))

	deleted, err := w.Sweep(context.Background())
	require.ErrorContains(t, err, "broken: db down")
	assert.Equal(t, 3, deleted["healthy"])
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Deleted("healthy")))
}

func TestSweep_CanceledContext(t *testing.T) {
	script := &scriptedDelete{}
	w := NewWorker([]Task{{Name: "keys", Cutoff: func(n time.Time) time.Time { return n }, Delete: script.delete}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Sweep(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, script.callCount())
}

func TestNewWorker_SkipsIncompleteTasks(t *testing.T) {
	w := NewWorker([]Task{{Name: "no-delete", Cutoff: func(n time.Time) time.Time { return n }}})
	assert.Empty(t, w.tasks)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker without tasks must return immediately")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	script := &scriptedDelete{}
	w := NewWorker([]Task{{Name: "keys", Cutoff: func(n time.Time) time.Time { return n }, Delete: script.delete}},
		WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	require.Eventually(t, func() bool { return script.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}

func TestBuiltInTasks_MemoryRepositories(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	keys := memory.NewIdempotencyRepository()
	_, err := keys.CreateProcessing(ctx, "checkout-old", "h1", now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = keys.CreateProcessing(ctx, "checkout-fresh", "h2", now.Add(time.Hour))
	require.NoError(t, err)

	carts := memory.NewCartRepository()
	require.NoError(t, carts.Save(ctx, domain.Cart{SessionID: "abandoned", UpdatedAt: now.Add(-31 * 24 * time.Hour)}))
	require.NoError(t, carts.Save(ctx, domain.Cart{SessionID: "recent", UpdatedAt: now.Add(-time.Hour)}))

	w := NewWorker([]Task{
		IdempotencyKeys(keys),
		AbandonedCarts(carts, 30*24*time.Hour),
	}, WithClock(fixedClock(now)))

	deleted, err := w.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"idempotency_keys": 1, "abandoned_carts": 1}, deleted)

	_, err = keys.Get(ctx, "checkout-old")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	_, err = keys.Get(ctx, "checkout-fresh")
	require.NoError(t, err)

	_, err = carts.Load(ctx, "abandoned")
	require.ErrorIs(t, err, domain.ErrCartNotFound)
	_, err = carts.Load(ctx, "recent")
	require.NoError(t, err)
}

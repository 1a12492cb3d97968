package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
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

func orderPlaced(id, orderID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     "order.placed",
		Payload:       []byte(`{"order_id":"` + orderID + `","status":"paid"}`),
	}
}

func newTestWorker(repo domain.OutboxRepository, pub domain.OutboxPublisher, opts ...Option) (*Worker, *metrics.OutboxMetrics) {
	m := metrics.NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())
	base := []Option{WithMetrics(m), WithRetryBaseDelay(0)}
	return NewWorker(repo, pub, append(base, opts...)...), m
}

func TestWorker_DeliversAndMarksSent(t *testing.T) {
	t.Parallel()

	repo := &fakeOutbox{pending: []domain.OutboxMessage{orderPlaced("msg-1", "order-1")}}
	pub := &fakePublisher{}
	worker, m := newTestWorker(repo, pub)

	assert.Equal(t, 1, worker.ProcessOnce(context.Background()))
	assert.Equal(t, []string{"msg-1"}, repo.sent)
	assert.Empty(t, repo.failed)
	assert.Equal(t, 1, pub.calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries(resultSent)))
	assert.Zero(t, testutil.ToFloat64(m.Pending()))
}

func TestWorker_ExhaustedRetriesGoToDeadLetters(t *testing.T) {
	t.Parallel()

	repo := &fakeOutbox{pending: []domain.OutboxMessage{orderPlaced("msg-2", "order-2")}}
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	dlq := &fakePublisher{}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	worker, m := newTestWorker(repo, pub,
		WithDLQPublisher(dlq),
		WithMaxAttempts(3),
		WithClock(func() time.Time { return at }),
	)

	worker.ProcessOnce(context.Background())

	assert.Equal(t, 3, pub.calls())
	assert.Empty(t, repo.sent)
	assert.Equal(t, []string{"msg-2"}, repo.failed)
	require.Equal(t, 1, dlq.calls())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Deliveries(resultRetry)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries(resultFailed)))

	var letter DeadLetter
	require.NoError(t, json.Unmarshal(dlq.last().Payload, &letter))
	assert.Equal(t, "msg-2", letter.OutboxID)
	assert.Equal(t, "order-2", letter.AggregateID)
	assert.Equal(t, at, letter.DLQPublishedAt)
	assert.Contains(t, letter.PublishError, "broker unavailable")
	assert.JSONEq(t, `{"order_id":"order-2","status":"paid"}`, string(letter.Payload))
}

func TestWorker_DeadLetterFailureStillMarksFailed(t *testing.T) {
	t.Parallel()

	repo := &fakeOutbox{pending: []domain.OutboxMessage{orderPlaced("msg-4", "order-4")}}
	worker, m := newTestWorker(repo, &fakePublisher{err: errors.New("down")},
		WithDLQPublisher(&fakePublisher{err: errors.New("dlq down")}),
		WithMaxAttempts(1),
	)

	worker.ProcessOnce(context.Background())

	assert.Equal(t, []string{"msg-4"}, repo.failed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries(resultDLQFailed)))
}

func TestWorker_RecoversWithinAttempts(t *testing.T) {
	t.Parallel()

	repo := &fakeOutbox{pending: []domain.OutboxMessage{orderPlaced("msg-3", "order-3")}}
	pub := &fakePublisher{script: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil}}
	worker, _ := newTestWorker(repo, pub, WithMaxAttempts(3))

	worker.ProcessOnce(context.Background())

	assert.Equal(t, 3, pub.calls())
	assert.Equal(t, []string{"msg-3"}, repo.sent)
	assert.Empty(t, repo.failed)
}

func TestWorker_CanceledContextStopsRetrying(t *testing.T) {
	t.Parallel()

	repo := &fakeOutbox{pending: []domain.OutboxMessage{orderPlaced("msg-5", "order-5")}}
	pub := &fakePublisher{err: errors.New("down")}
	worker, _ := newTestWorker(repo, pub, WithMaxAttempts(5), WithRetryBaseDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	pub.onPublish = cancel

	worker.ProcessOnce(ctx)
	assert.Equal(t, 1, pub.calls())
	assert.Empty(t, repo.failed)
	assert.Len(t, repo.pending, 1)
}

func TestWorker_PullErrorHandlesNothing(t *testing.T) {
	t.Parallel()

	repo := &fakeOutbox{pullErr: errors.New("db down")}
	worker, _ := newTestWorker(repo, &fakePublisher{})
	assert.Zero(t, worker.ProcessOnce(context.Background()))
}

func TestWorker_DrainEmptiesMemoryBacklog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewOutboxRepository()
	for range 5 {
		_, err := repo.Enqueue(ctx, orderPlaced("", "order"))
		require.NoError(t, err)
	}
	pub := &fakePublisher{}
	worker, m := newTestWorker(repo, pub, WithBatchSize(2))

	assert.Equal(t, 5, worker.Drain(ctx))
	assert.Empty(t, repo.AllPending())
	assert.Equal(t, 5, pub.calls())
	assert.Zero(t, testutil.ToFloat64(m.Pending()))
}

func TestWorker_DisabledWithoutPublisher(t *testing.T) {
	t.Parallel()

	worker, _ := newTestWorker(&fakeOutbox{}, nil)
	assert.Zero(t, worker.Drain(context.Background()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled worker must return immediately")
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10*time.Millisecond, backoff(10*time.Millisecond, 1))
	assert.Equal(t, 40*time.Millisecond, backoff(10*time.Millisecond, 3))
	assert.Zero(t, backoff(0, 5))
	assert.Equal(t, time.Duration(1<<63-1), backoff(time.Hour, 80))
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	worker, _ := newTestWorker(&fakeOutbox{}, &fakePublisher{}, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type fakeOutbox struct {
	mu      sync.Mutex
	pending []domain.OutboxMessage
	pullErr error
	sent    []string
	failed  []string
}

func (f *fakeOutbox) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (f *fakeOutbox) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	n := len(f.pending)
	if limit > 0 {
		n = min(n, limit)
	}
	return append([]domain.OutboxMessage(nil), f.pending[:n]...), nil
}

func (f *fakeOutbox) Stats(context.Context) (domain.OutboxStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := domain.OutboxStats{PendingCount: len(f.pending)}
	if len(f.pending) > 0 {
		stats.OldestPendingAt = time.Now().Add(-time.Second)
	}
	return stats, nil
}

func (f *fakeOutbox) MarkSent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, id)
	f.drop(id)
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	f.drop(id)
	return nil
}

func (f *fakeOutbox) drop(id string) {
	f.pending = slices.DeleteFunc(f.pending, func(m domain.OutboxMessage) bool { return m.ID == id })
}

type fakePublisher struct {
	mu        sync.Mutex
	err       error
	script    []error
	onPublish func()
	published []domain.OutboxMessage
}

func (f *fakePublisher) Publish(event domain.OutboxMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.published = append(f.published, event)
	if f.onPublish != nil {
		f.onPublish()
	}
	if len(f.script) > 0 {
		err := f.script[0]
		f.script = f.script[1:]
		return err
	}
	return f.err
}

func (f *fakePublisher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakePublisher) last() domain.OutboxMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[len(f.published)-1]
}

var (
	_ domain.OutboxRepository = (*fakeOutbox)(nil)
	_ domain.OutboxPublisher  = (*fakePublisher)(nil)
)

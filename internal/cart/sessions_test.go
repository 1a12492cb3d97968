package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

type stubCartRepo struct {
	mu      sync.Mutex
	carts   map[string]domain.Cart
	loadErr error
	saveErr error
	saves   int
	deletes int
}

func newStubCartRepo() *stubCartRepo {
	return &stubCartRepo{carts: make(map[string]domain.Cart)}
}

func (r *stubCartRepo) Load(_ context.Context, sessionID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return domain.Cart{}, r.loadErr
	}
	c, ok := r.carts[sessionID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return c, nil
}

func (r *stubCartRepo) Save(_ context.Context, c domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.carts[c.SessionID] = c
	return nil
}

func (r *stubCartRepo) DeleteStale(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (r *stubCartRepo) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	if _, ok := r.carts[sessionID]; !ok {
		return domain.ErrCartNotFound
	}
	delete(r.carts, sessionID)
	return nil
}

func (r *stubCartRepo) saved(sessionID string) (domain.Cart, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[sessionID]
	return c, ok
}

func TestSessions_GetRequiresSessionID(t *testing.T) {
	s := NewSessions(newStubCartRepo())

	_, err := s.Get(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrSessionRequired)
}

func TestSessions_GetReturnsSameStore(t *testing.T) {
	s := NewSessions(newStubCartRepo())
	ctx := context.Background()

	first, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	second, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	other, err := s.Get(ctx, "sess-2")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, s.Len())
}

// gatedCartRepo держит Load указанной сессии, пока не закрыт release.
type gatedCartRepo struct {
	*stubCartRepo
	gated   string
	entered chan struct{}
	release chan struct{}
}

func (r *gatedCartRepo) Load(ctx context.Context, sessionID string) (domain.Cart, error) {
	if sessionID == r.gated {
		close(r.entered)
		<-r.release
	}
	return r.stubCartRepo.Load(ctx, sessionID)
}

func TestSessions_SlowLoadDoesNotBlockOtherSessions(t *testing.T) {
	repo := &gatedCartRepo{
		stubCartRepo: newStubCartRepo(),
		gated:        "slow",
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	s := NewSessions(repo)
	ctx := context.Background()

	slow := make(chan *Store, 1)
	go func() {
		store, _ := s.Get(ctx, "slow")
		slow <- store
	}()
	<-repo.entered

	fast := make(chan error, 1)
	go func() {
		_, err := s.Get(ctx, "fast")
		fast <- err
	}()
	select {
	case err := <-fast:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Get of another session waited for a slow load")
	}

	close(repo.release)
	store := <-slow
	again, err := s.Get(ctx, "slow")
	require.NoError(t, err)
	assert.Same(t, store, again)
	assert.Equal(t, 2, s.Len())
}

func TestSessions_ConcurrentGetSharesOneStore(t *testing.T) {
	s := NewSessions(newStubCartRepo())
	stores := make([]*Store, 16)

	var wg sync.WaitGroup
	for i := range stores {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stores[i], _ = s.Get(context.Background(), "shared")
		}()
	}
	wg.Wait()

	for _, store := range stores {
		assert.Same(t, stores[0], store)
	}
	assert.Equal(t, 1, s.Len())
}

func TestSessions_PersistsEveryMutation(t *testing.T) {
	repo := newStubCartRepo()
	s := NewSessions(repo)

	store, err := s.Get(context.Background(), "sess-1")
	require.NoError(t, err)

	store.AddItem(item("a", "10", 5), 2)
	store.AddItem(item("b", "20", 2), 3)

	saved, ok := repo.saved("sess-1")
	require.True(t, ok)
	require.Len(t, saved.Lines, 2)
	assert.Equal(t, 2, saved.Lines[1].Quantity)

	store.Clear()
	saved, _ = repo.saved("sess-1")
	assert.Empty(t, saved.Lines)
	assert.Equal(t, 3, repo.saves)
}

func TestSessions_RestoresSavedCart(t *testing.T) {
	repo := newStubCartRepo()
	repo.carts["sess-1"] = domain.Cart{
		SessionID: "sess-1",
		Lines:     []domain.CartLine{{Item: item("a", "10", 5), Quantity: 3}},
	}

	s := NewSessions(repo)
	store, err := s.Get(context.Background(), "sess-1")
	require.NoError(t, err)

	assert.Equal(t, 3, store.Quantity("a"))
}

func TestSessions_LoadFailureStartsEmpty(t *testing.T) {
	repo := newStubCartRepo()
	repo.loadErr = errors.New("db down")

	s := NewSessions(repo)
	store, err := s.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 0, store.LineCount())
}

func TestSessions_SaveFailureDoesNotSurface(t *testing.T) {
	repo := newStubCartRepo()
	repo.saveErr = errors.New("db down")

	s := NewSessions(repo)
	store, err := s.Get(context.Background(), "sess-1")
	require.NoError(t, err)

	store.AddItem(item("a", "10", 5), 1)
	assert.Equal(t, 1, store.Quantity("a"))
	assert.Equal(t, 1, repo.saves)
}

func TestSessions_Drop(t *testing.T) {
	repo := newStubCartRepo()
	s := NewSessions(repo)
	ctx := context.Background()

	store, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	store.Add(item("a", "10", 5))

	require.NoError(t, s.Drop(ctx, "sess-1"))
	_, ok := repo.saved("sess-1")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())

	// после Drop старая корзина больше не сохраняется
	store.Add(item("a", "10", 5))
	_, ok = repo.saved("sess-1")
	assert.False(t, ok)

	require.NoError(t, s.Drop(ctx, "unknown"))
}

func TestSessions_SweepEvictsIdle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	reg := prometheus.NewRegistry()
	s := NewSessions(newStubCartRepo(),
		WithIdleTTL(10*time.Minute),
		WithClock(clock),
		WithMetrics(metrics.NewStorefrontMetricsWithRegisterer(reg)),
	)
	ctx := context.Background()

	_, err := s.Get(ctx, "old")
	require.NoError(t, err)

	now = now.Add(8 * time.Minute)
	_, err = s.Get(ctx, "fresh")
	require.NoError(t, err)

	now = now.Add(5 * time.Minute)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())
}

func TestSessions_WithoutRepository(t *testing.T) {
	s := NewSessions(nil)
	ctx := context.Background()

	store, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	store.Add(item("a", "10", 5))

	assert.NoError(t, s.Drop(ctx, "sess-1"))
}

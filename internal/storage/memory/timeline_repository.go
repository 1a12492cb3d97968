package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// timelineLog хранит события каждого заказа в порядке записи.
type timelineLog struct {
	mu      sync.RWMutex
	byOrder map[string][]domain.TimelineEvent
	now     func() time.Time
}

func NewTimelineRepository() domain.TimelineRepository {
	return &timelineLog{
		byOrder: make(map[string][]domain.TimelineEvent),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (l *timelineLog) Append(_ context.Context, events ...domain.TimelineEvent) error {
	stamped, err := domain.StampTimeline(events, l.now())
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range stamped {
		l.byOrder[e.OrderID] = append(l.byOrder[e.OrderID], e)
	}
	return nil
}

func (l *timelineLog) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.byOrder[orderID]), nil
}

var _ domain.TimelineRepository = (*timelineLog)(nil)

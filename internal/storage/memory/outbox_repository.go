package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type deliveryState uint8

const (
	deliveryPending deliveryState = iota
	deliverySent
	deliveryFailed
)

const defaultOutboxPull = 100

type outboxEntry struct {
	msg      domain.OutboxMessage
	state    deliveryState
	attempts int
	queuedAt time.Time
}

// OutboxRepository держит очередь outbox в порядке постановки. Отправленные
// и упавшие сообщения остаются в очереди, чтобы их можно было посмотреть.
type OutboxRepository struct {
	mu    sync.RWMutex
	queue []*outboxEntry
	byID  map[string]*outboxEntry
	now   func() time.Time
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		byID: make(map[string]*outboxEntry),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue присваивает ID, если его нет. Повторный ID заменяет payload и
// возвращает сообщение в pending.
func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = slices.Clone(msg.Payload)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[msg.ID]; ok {
		existing.msg, existing.state = msg, deliveryPending
		return msg, nil
	}
	entry := &outboxEntry{msg: msg, queuedAt: r.now()}
	r.queue = append(r.queue, entry)
	r.byID[msg.ID] = entry
	return msg, nil
}

func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxPull
	}
	var out []domain.OutboxMessage
	r.eachPending(func(e *outboxEntry) bool {
		out = append(out, e.msg)
		return len(out) < limit
	})
	return out, nil
}

func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	r.eachPending(func(e *outboxEntry) bool {
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = e.queuedAt
		}
		stats.PendingCount++
		return true
	})
	return stats, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.settle(id, deliverySent)
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.settle(id, deliveryFailed)
}

// AllPending нужен тестам сервисов, которые проверяют содержимое очереди.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	out := []domain.OutboxMessage{}
	r.eachPending(func(e *outboxEntry) bool {
		out = append(out, e.msg)
		return true
	})
	return out
}

func (r *OutboxRepository) settle(id string, state deliveryState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byID[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	entry.state = state
	entry.attempts++
	return nil
}

func (r *OutboxRepository) eachPending(yield func(*outboxEntry) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.queue {
		if e.state == deliveryPending && !yield(e) {
			return
		}
	}
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)

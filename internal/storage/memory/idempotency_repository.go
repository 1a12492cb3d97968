package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// idempotencyKeys хранит ключи оформлений в памяти процесса.
type idempotencyKeys struct {
	mu      sync.Mutex
	records map[string]domain.IdempotencyRecord
	now     func() time.Time
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &idempotencyKeys{
		records: make(map[string]domain.IdempotencyRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateProcessing занимает ключ; просроченную запись молча заменяет.
func (r *idempotencyKeys) CreateProcessing(_ context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	claim, err := domain.NewIdempotencyClaim(key, requestHash, ttlAt, r.now())
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if held, ok := r.records[claim.Key]; ok && !held.Expired(claim.CreatedAt) {
		return copyRecord(held), held.ConflictWith(claim.RequestHash)
	}
	r.records[claim.Key] = claim
	return copyRecord(claim), nil
}

func (r *idempotencyKeys) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyRecord(rec), nil
}

func (r *idempotencyKeys) MarkDone(_ context.Context, key string, body []byte, status int) error {
	return r.finish(key, domain.IdempotencyStatusDone, body, status)
}

func (r *idempotencyKeys) MarkFailed(_ context.Context, key string, body []byte, status int) error {
	return r.finish(key, domain.IdempotencyStatusFailed, body, status)
}

// DeleteExpired удаляет сначала самые давно истёкшие записи; limit <= 0 снимает ограничение.
func (r *idempotencyKeys) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	expired := make([]domain.IdempotencyRecord, 0)
	for _, rec := range r.records {
		if !rec.TTLAt.After(before) {
			expired = append(expired, rec)
		}
	}
	slices.SortFunc(expired, func(a, b domain.IdempotencyRecord) int { return a.TTLAt.Compare(b.TTLAt) })
	if limit > 0 {
		expired = expired[:min(limit, len(expired))]
	}
	for _, rec := range expired {
		delete(r.records, rec.Key)
	}
	return len(expired), nil
}

func (r *idempotencyKeys) finish(key string, status domain.IdempotencyStatus, body []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	rec.Status = status
	rec.ResponseBody = slices.Clone(body)
	rec.HTTPStatus = httpStatus
	rec.UpdatedAt = r.now()
	r.records[key] = rec
	return nil
}

func copyRecord(rec domain.IdempotencyRecord) domain.IdempotencyRecord {
	rec.ResponseBody = slices.Clone(rec.ResponseBody)
	return rec
}

var _ domain.IdempotencyRepository = (*idempotencyKeys)(nil)

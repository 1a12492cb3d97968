// Package retention периодически удаляет данные, которые витрине больше не нужны:
// просроченные ключи идемпотентности и брошенные корзины.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultInterval  = 10 * time.Minute
	defaultBatchSize = 500
)

// Task: одна политика хранения.
type Task struct {
	Name string
	// Cutoff возвращает границу: записи не новее неё удаляются.
	Cutoff func(now time.Time) time.Time
	Delete func(ctx context.Context, before time.Time, limit int) (int, error)
}

// IdempotencyKeys удаляет ключи оформления с истёкшим TTL.
func IdempotencyKeys(repo domain.IdempotencyRepository) Task {
	return Task{
		Name:   "idempotency_keys",
		Cutoff: func(now time.Time) time.Time { return now },
		Delete: repo.DeleteExpired,
	}
}

// AbandonedCarts удаляет сохранённые корзины, не менявшиеся дольше keep.
func AbandonedCarts(repo domain.CartRepository, keep time.Duration) Task {
	return Task{
		Name:   "abandoned_carts",
		Cutoff: func(now time.Time) time.Time { return now.Add(-keep) },
		Delete: repo.DeleteStale,
	}
}

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithInterval задаёт паузу между проходами.
func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize ограничивает одно удаление.
func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithMetrics включает метрики проходов.
func WithMetrics(m *metrics.RetentionMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// Worker выполняет задачи хранения по таймеру.
type Worker struct {
	tasks     []Task
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time
	metrics   *metrics.RetentionMetrics
}

// NewWorker создаёт воркер; задачи без Delete пропускаются.
func NewWorker(tasks []Task, opts ...Option) *Worker {
	w := &Worker{
		logger:    log.WithField("component", "retention-worker"),
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, task := range tasks {
		if task.Delete == nil || task.Cutoff == nil {
			w.logger.WithField("task", task.Name).Warn("retention task is incomplete, skipping")
			continue
		}
		w.tasks = append(w.tasks, task)
	}
	return w
}

// Run делает проход сразу и затем раз в interval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if len(w.tasks) == 0 {
		w.logger.Warn("retention worker has no tasks")
		return
	}

	w.sweepAndLog(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepAndLog(ctx)
		}
	}
}

func (w *Worker) sweepAndLog(ctx context.Context) {
	deleted, err := w.Sweep(ctx)
	if errors.Is(err, context.Canceled) {
		return
	}
	if err != nil {
		w.logger.WithError(err).Warn("retention sweep failed")
	}
	for task, n := range deleted {
		if n > 0 {
			w.logger.WithFields(log.Fields{"task": task, "deleted": n}).Info("retention sweep removed records")
		}
	}
}

// Sweep выполняет все задачи один раз. Ошибка одной задачи не останавливает остальные.
func (w *Worker) Sweep(ctx context.Context) (map[string]int, error) {
	now := w.now().UTC()
	deleted := make(map[string]int, len(w.tasks))
	var errs []error
	for _, task := range w.tasks {
		n, err := w.sweepTask(ctx, task, task.Cutoff(now))
		deleted[task.Name] = n
		if !errors.Is(err, context.Canceled) {
			w.metrics.RecordRun(task.Name, n, err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", task.Name, err))
		}
	}
	return deleted, errors.Join(errs...)
}

// sweepTask удаляет порциями, пока порция заполняется целиком.
func (w *Worker) sweepTask(ctx context.Context, task Task, before time.Time) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := task.Delete(ctx, before, w.batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < w.batchSize {
			return total, nil
		}
	}
}

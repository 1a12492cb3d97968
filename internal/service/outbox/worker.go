package outbox

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

// Результаты доставки для метрик.
const (
	resultSent      = "sent"
	resultRetry     = "retry_error"
	resultFailed    = "failed"
	resultDLQFailed = "dlq_failed"
)

type settings struct {
	logger         *log.Entry
	dlq            domain.OutboxPublisher
	metrics        *metrics.OutboxMetrics
	now            func() time.Time
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*settings)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) Option {
	return func(s *settings) { s.logger = logger }
}

// WithDLQPublisher включает отправку недоставленных событий в dead letter topic.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(s *settings) { s.dlq = publisher }
}

// WithMetrics подменяет метрики (по умолчанию default registry).
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(s *settings) { s.pollInterval = interval }
}

// WithBatchSize задаёт число событий за один опрос.
func WithBatchSize(n int) Option {
	return func(s *settings) { s.batchSize = n }
}

// WithMaxAttempts задаёт число попыток публикации до пометки failed.
func WithMaxAttempts(n int) Option {
	return func(s *settings) { s.maxAttempts = n }
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(s *settings) { s.retryBaseDelay = delay }
}

// Worker доставляет события оформленных заказов из outbox в брокер.
// Событие, не ушедшее за maxAttempts попыток, помечается failed и
// при наличии DLQ-публикатора уходит в dead letter topic.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	cfg       settings
}

// NewWorker создаёт воркер; некорректные значения опций заменяются значениями по умолчанию.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	cfg := settings{
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.logger == nil {
		cfg.logger = log.WithField("component", "outbox-worker")
	}
	if cfg.metrics == nil {
		cfg.metrics = metrics.NewOutboxMetrics()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = defaultPollInterval
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = defaultBatchSize
	}
	if cfg.maxAttempts <= 0 {
		cfg.maxAttempts = defaultMaxAttempts
	}
	cfg.retryBaseDelay = max(cfg.retryBaseDelay, 0)

	return &Worker{repo: repo, publisher: publisher, cfg: cfg}
}

func (w *Worker) enabled() bool {
	return w.repo != nil && w.publisher != nil
}

// Run опрашивает outbox до отмены ctx. Пока батчи приходят полными,
// следующий берётся сразу, не дожидаясь тика.
func (w *Worker) Run(ctx context.Context) {
	if !w.enabled() {
		w.cfg.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.cfg.pollInterval)
	defer ticker.Stop()

	for {
		for {
			if n := w.ProcessOnce(ctx); n < w.cfg.batchSize || ctx.Err() != nil {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce забирает один батч и возвращает число событий, по которым
// принято решение (sent или failed).
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	w.reportBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.cfg.batchSize)
	if err != nil {
		w.cfg.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return 0
	}

	handled := 0
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		w.deliver(ctx, msg)
		handled++
	}

	if handled > 0 {
		w.reportBacklog(ctx)
	}
	return handled
}

// Drain разбирает backlog при остановке сервиса, пока он не опустеет или не истечёт ctx.
func (w *Worker) Drain(ctx context.Context) int {
	if !w.enabled() {
		return 0
	}
	total := 0
	for ctx.Err() == nil {
		n := w.ProcessOnce(ctx)
		if n == 0 {
			break
		}
		total += n
	}
	return total
}

func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) {
	entry := w.cfg.logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"event_type": msg.EventType,
		"order_id":   msg.AggregateID,
	})

	publishErr := w.publish(ctx, msg)
	if publishErr == nil {
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			entry.WithError(err).Warn("failed to mark outbox as sent")
			return
		}
		entry.Debug("outbox event delivered")
		return
	}

	if ctx.Err() != nil {
		// остановка: событие остаётся pending и уйдёт при следующем запуске
		entry.WithError(publishErr).Debug("outbox delivery interrupted")
		return
	}

	entry.WithError(publishErr).Error("outbox publish failed after retries")
	w.cfg.metrics.RecordDelivery(resultFailed)
	if err := w.sendToDLQ(msg, publishErr); err != nil {
		entry.WithError(err).Warn("failed to publish to DLQ")
		w.cfg.metrics.RecordDelivery(resultDLQFailed)
	}
	if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
		entry.WithError(err).Warn("failed to mark outbox as failed")
	}
}

func (w *Worker) publish(ctx context.Context, msg domain.OutboxMessage) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = w.publisher.Publish(msg); err == nil {
			w.cfg.metrics.RecordDelivery(resultSent)
			return nil
		}
		w.cfg.metrics.RecordDelivery(resultRetry)
		if attempt == w.cfg.maxAttempts {
			break
		}
		if delay := backoff(w.cfg.retryBaseDelay, attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", domain.ErrOutboxPublish, w.cfg.maxAttempts, err)
}

func (w *Worker) reportBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.cfg.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.cfg.now().Sub(stats.OldestPendingAt)
	}
	w.cfg.metrics.SetBacklog(stats.PendingCount, age)
}

// backoff возвращает base*2^(attempt-1) с насыщением вместо переполнения.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	const ceiling = time.Duration(1<<63 - 1)
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > ceiling/2 {
			return ceiling
		}
		delay *= 2
	}
	return delay
}

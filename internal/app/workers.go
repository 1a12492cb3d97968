package app

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/retention"
)

// background: фоновые циклы витрины. Они живут на своём контексте и
// останавливаются после серверов, чтобы outbox успел разобрать события
// последних заказов.
type background struct {
	cancel context.CancelFunc
	loops  sync.WaitGroup
	outbox *outbox.Worker
	bus    *messaging
}

func startBackground(cfg Config, deps *runtimeDependencies, svc *services, bus *messaging, logger *log.Entry) *background {
	publisher, outboxOpts := bus.outboxPublisher(logger.WithField("layer", "outbox-log"))
	outboxOpts = append(outboxOpts,
		outbox.WithLogger(logger.WithField("layer", "outbox")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	cleanup := retention.NewWorker([]retention.Task{
		retention.IdempotencyKeys(deps.idempotencyRepo),
		retention.AbandonedCarts(deps.cartRepo, cfg.CartRetention),
	},
		retention.WithLogger(logger.WithField("layer", "retention")),
		retention.WithInterval(cfg.RetentionInterval),
		retention.WithBatchSize(cfg.RetentionBatchSize),
		retention.WithMetrics(metrics.NewRetentionMetrics()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	b := &background{
		cancel: cancel,
		outbox: outbox.NewWorker(deps.outboxRepo, publisher, outboxOpts...),
		bus:    bus,
	}
	for _, loop := range []func(context.Context){
		b.outbox.Run,
		cleanup.Run,
		func(ctx context.Context) { svc.sessions.Run(ctx, 0) },
	} {
		b.loops.Add(1)
		go func() {
			defer b.loops.Done()
			loop(ctx)
		}()
	}
	bus.startConsumer(ctx, logger)
	return b
}

// stop гасит consumer и циклы, дочищает outbox и только затем закрывает
// producer, через который уходят дочищенные события.
func (b *background) stop(logger *log.Entry) {
	if b == nil {
		return
	}
	b.bus.stopConsumer(logger)
	if b.cancel != nil {
		b.cancel()
	}
	if !waitTimeout(&b.loops, shutdownTimeout) {
		logger.Warn("background loops did not stop in time")
	}

	if b.outbox != nil {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if n := b.outbox.Drain(ctx); n > 0 {
			logger.WithField("messages", n).Info("outbox drained before shutdown")
		}
		cancel()
	}
	b.bus.closeProducer(logger)
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

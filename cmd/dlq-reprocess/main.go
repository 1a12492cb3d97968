// Command dlq-reprocess переигрывает сообщения из DLQ-топиков витрины
// обратно в поток событий заказов. По умолчанию работает в режиме dry-run.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// connections держит всё, что нужно закрыть после прогона.
type connections struct {
	offsets   offsetSource
	consumer  partitionSource
	publisher replayPublisher
}

func (c connections) close() {
	for _, closer := range []interface{ Close() error }{c.publisher, c.consumer, c.offsets} {
		if closer != nil {
			_ = closer.Close()
		}
	}
}

// connect подменяется в тестах.
var connect = func(cfg config) (connections, error) {
	sc := sarama.NewConfig()
	sc.ClientID = "storefront-dlq-reprocess"
	sc.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, sc)
	if err != nil {
		return connections{}, fmt.Errorf("kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return connections{}, fmt.Errorf("kafka consumer: %w", err)
	}
	conns := connections{offsets: client, consumer: consumer}
	if !cfg.execute {
		return conns, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers, kafka.WithClientID(sc.ClientID))
	if err != nil {
		conns.close()
		return connections{}, fmt.Errorf("kafka producer: %w", err)
	}
	conns.publisher = producer
	return conns, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := readConfig(os.Args[1:], os.Getenv)
	if err != nil {
		log.WithError(err).Fatal("invalid arguments")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		log.WithError(err).Fatal("dlq replay failed")
	}
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"mode":         cfg.mode(),
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq replay")

	conns, err := connect(cfg)
	if err != nil {
		return err
	}
	defer conns.close()

	r, err := newReplayer(cfg, conns.offsets, conns.consumer, conns.publisher)
	if err != nil {
		return err
	}
	_, err = r.run(ctx)
	return err
}

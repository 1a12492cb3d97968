package app

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

const orderNotifierGroup = "storefront-order-notifier"

var errKafkaDisabled = errors.New("kafka producer is not initialized")

// messaging: Kafka-часть витрины. Без брокеров или при сбое подключения
// producer пуст, и outbox пишет события в лог.
type messaging struct {
	brokers  []string
	producer *kafka.Producer
	consumer *kafka.Consumer
	err      error
}

func splitBrokers(raw string) []string {
	var out []string
	for broker := range strings.SplitSeq(raw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			out = append(out, broker)
		}
	}
	return out
}

// connectMessaging не возвращает ошибку: недоступная Kafka понижает
// витрину до degraded, но не мешает старту.
func connectMessaging(rawBrokers string, logger *log.Entry) *messaging {
	m := &messaging{brokers: splitBrokers(rawBrokers)}
	if len(m.brokers) == 0 {
		return m
	}

	m.producer, m.err = kafka.NewProducer(m.brokers)
	if m.err != nil {
		logger.WithError(m.err).Warn("kafka producer unavailable, outbox falls back to log")
		return m
	}
	logger.WithField("brokers", m.brokers).Info("kafka producer initialized")

	consumer, err := kafka.NewConsumer(
		m.brokers,
		orderNotifierGroup,
		[]string{kafka.TopicOrderEvents},
		kafka.HandleOrderEvents(kafka.NewOrderNotifier(logger.WithField("layer", "order-notifier"))),
		kafka.WithConsumerLogger(logger.WithField("layer", "kafka-consumer")),
		kafka.WithDeadLetters(m.producer, kafka.TopicOrderEventsDLQ),
	)
	if err != nil {
		logger.WithError(err).Warn("kafka consumer unavailable, order notifications are off")
		return m
	}
	m.consumer = consumer
	return m
}

func (m *messaging) configured() bool {
	return m != nil && len(m.brokers) > 0
}

// outboxPublisher выбирает, куда outbox отправляет события и мёртвые письма.
func (m *messaging) outboxPublisher(logger *log.Entry) (domain.OutboxPublisher, []outbox.Option) {
	if m == nil || m.producer == nil {
		return kafka.NewLogPublisher(logger), nil
	}
	dlq := kafka.NewOutboxPublisher(m.producer, kafka.TopicOutboxDLQ)
	return kafka.NewOutboxPublisher(m.producer, kafka.TopicOrderEvents), []outbox.Option{outbox.WithDLQPublisher(dlq)}
}

// checker нужен только при заданных брокерах.
func (m *messaging) checker() healthcheck.Checker {
	return healthcheck.NewFuncChecker("kafka", func(context.Context) error {
		if m.producer != nil {
			return nil
		}
		if m.err != nil {
			return m.err
		}
		return errKafkaDisabled
	})
}

func (m *messaging) startConsumer(ctx context.Context, logger *log.Entry) {
	if m == nil || m.consumer == nil {
		return
	}
	if err := m.consumer.Start(ctx); err != nil {
		logger.WithError(err).Warn("failed to start kafka consumer")
	}
}

func (m *messaging) stopConsumer(logger *log.Entry) {
	if m == nil || m.consumer == nil {
		return
	}
	if err := m.consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}

// closeProducer вызывается последним, после дочистки outbox.
func (m *messaging) closeProducer(logger *log.Entry) {
	if m == nil || m.producer == nil {
		return
	}
	if err := m.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

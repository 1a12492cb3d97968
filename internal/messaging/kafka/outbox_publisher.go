package kafka

import (
	"cmp"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var errPublisherNotReady = errors.New("kafka outbox publisher has no producer")

// TopicPublisher отправляет outbox-записи конвертами в один топик.
type TopicPublisher struct {
	producer EventPublisher
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher без топика пишет в поток событий заказов.
func NewOutboxPublisher(producer EventPublisher, topic string) *TopicPublisher {
	return &TopicPublisher{
		producer: producer,
		topic:    cmp.Or(topic, TopicOrderEvents),
		now:      time.Now,
	}
}

func (p *TopicPublisher) Publish(msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotReady
	}
	env := NewEnvelope(msg, p.now())
	return p.producer.PublishEvent(p.topic, env.Key(), env)
}

// LogPublisher заменяет Kafka, когда брокеры не настроены.
type LogPublisher struct {
	logger *log.Entry
}

func NewLogPublisher(logger *log.Entry) *LogPublisher {
	if logger == nil {
		logger = log.WithField("component", "outbox-log")
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(msg domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"event_type":   msg.EventType,
		"aggregate_id": msg.AggregateID,
		"bytes":        len(msg.Payload),
	}).Info("outbox event logged")
	return nil
}

var (
	_ domain.OutboxPublisher = (*TopicPublisher)(nil)
	_ domain.OutboxPublisher = (*LogPublisher)(nil)
)

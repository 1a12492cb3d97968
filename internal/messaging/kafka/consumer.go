package kafka

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 200 * time.Millisecond
)

// MessageHandler обрабатывает одно сообщение; ошибка запускает повтор.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

type consumerSettings struct {
	logger     *log.Entry
	dlq        EventPublisher
	dlqTopic   string
	maxRetries int
	retryDelay time.Duration
	fromOldest bool
	now        func() time.Time
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*consumerSettings)

// WithConsumerLogger задаёт logger consumer'а.
func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(s *consumerSettings) { s.logger = logger }
}

// WithDeadLetters включает отправку необработанных сообщений в topic.
func WithDeadLetters(publisher EventPublisher, topic string) ConsumerOption {
	return func(s *consumerSettings) {
		s.dlq = publisher
		s.dlqTopic = topic
	}
}

// WithHandlerRetries задаёт число попыток и шаг линейной паузы между ними.
func WithHandlerRetries(attempts int, delay time.Duration) ConsumerOption {
	return func(s *consumerSettings) {
		s.maxRetries = attempts
		s.retryDelay = delay
	}
}

// WithOldestOffset начинает новую группу с начала topic.
func WithOldestOffset() ConsumerOption {
	return func(s *consumerSettings) { s.fromOldest = true }
}

// Consumer читает topics в составе consumer group. Offset коммитится только
// после успешной обработки или отправки в DLQ.
type Consumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler MessageHandler
	cfg     consumerSettings
	wg      sync.WaitGroup
}

// NewConsumer подключается к брокерам как участник группы groupID.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, opts ...ConsumerOption) (*Consumer, error) {
	cfg := newConsumerSettings(opts)

	sc := sarama.NewConfig()
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	if cfg.fromOldest {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	sc.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group %s: %w", groupID, err)
	}
	return &Consumer{group: group, topics: topics, handler: handler, cfg: cfg}, nil
}

func newConsumerSettings(opts []ConsumerOption) consumerSettings {
	cfg := consumerSettings{
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		dlqTopic:   TopicOrderEventsDLQ,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.WithField("component", "kafka-consumer")
	}
	if cfg.maxRetries <= 0 {
		cfg.maxRetries = defaultMaxRetries
	}
	if cfg.retryDelay < 0 {
		cfg.retryDelay = defaultRetryDelay
	}
	if cfg.dlqTopic == "" {
		cfg.dlqTopic = TopicOrderEventsDLQ
	}
	return cfg
}

// Start запускает чтение в фоне и сразу возвращается.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		// Consume возвращается на каждом rebalance
		for ctx.Err() == nil {
			if err := c.group.Consume(ctx, c.topics, c); err != nil {
				c.cfg.logger.WithError(err).Error("consumer session ended with error")
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.cfg.logger.WithError(err).Error("consumer group error")
		}
	}()

	c.cfg.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	c.wg.Wait()
	c.cfg.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает partition до закрытия claim или конца сессии.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok || msg == nil {
				return nil
			}
			entry := c.cfg.logger.WithFields(log.Fields{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			})
			if err := c.process(ctx, msg); err != nil {
				// offset не коммитится, сообщение перечитается после rebalance
				entry.WithError(err).Error("message processing failed after all retries")
				continue
			}
			session.MarkMessage(msg, "")
		}
	}
}

// process вызывает handler до maxRetries раз с паузой attempt*retryDelay.
// Исчерпав попытки, отправляет сообщение в DLQ, если он настроен.
func (c *Consumer) process(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var err error
	for attempt := 1; attempt <= c.cfg.maxRetries; attempt++ {
		if err = c.handler(ctx, msg); err == nil {
			return nil
		}
		if attempt == c.cfg.maxRetries {
			break
		}
		c.cfg.logger.WithError(err).WithFields(log.Fields{
			"topic":   msg.Topic,
			"attempt": attempt,
		}).Warn("message processing failed, will retry")
		if waitErr := pause(ctx, time.Duration(attempt)*c.cfg.retryDelay); waitErr != nil {
			return waitErr
		}
	}

	if c.cfg.dlq == nil {
		return err
	}
	if dlqErr := c.deadLetter(msg, err); dlqErr != nil {
		return fmt.Errorf("send to dlq: %w", dlqErr)
	}
	c.cfg.logger.WithFields(log.Fields{"topic": msg.Topic, "dlq_topic": c.cfg.dlqTopic}).
		Warn("message sent to DLQ after max retries")
	return nil
}

// DLQMessage: запись в DLQ consumer'а; её переигрывает cmd/dlq-reprocess.
type DLQMessage struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}

func (c *Consumer) deadLetter(msg *sarama.ConsumerMessage, cause error) error {
	return c.cfg.dlq.PublishEvent(c.cfg.dlqTopic, string(msg.Key), DLQMessage{
		OriginalTopic:     msg.Topic,
		OriginalPartition: msg.Partition,
		OriginalOffset:    msg.Offset,
		OriginalKey:       string(msg.Key),
		OriginalValue:     string(msg.Value),
		ErrorMessage:      cause.Error(),
		FailedAt:          c.cfg.now().UTC().Format(time.RFC3339),
		RetryCount:        replayCount(msg) + c.cfg.maxRetries,
	})
}

// replayCount читает x-retry-count, который ставит dlq-reprocess при переигрывании.
func replayCount(msg *sarama.ConsumerMessage) int {
	for _, h := range msg.Headers {
		if h == nil || string(h.Key) != HeaderRetryCount {
			continue
		}
		if n, err := strconv.Atoi(string(h.Value)); err == nil {
			return n
		}
	}
	return 0
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

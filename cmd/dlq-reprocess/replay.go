package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// headerReplayedFrom помечает переигранное сообщение исходным DLQ-топиком.
const headerReplayedFrom = "x-replayed-from"

// offsetSource реализуется sarama.Client.
type offsetSource interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

// partitionSource реализуется sarama.Consumer.
type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (sarama.PartitionConsumer, error)
	Close() error
}

// replayPublisher реализуется kafka.Producer.
type replayPublisher interface {
	PublishRaw(topic, key string, value []byte, headers map[string]string) error
	Close() error
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) merge(o replayStats) {
	s.processed += o.processed
	s.replayed += o.replayed
	s.skipped += o.skipped
}

type replayer struct {
	cfg       config
	offsets   offsetSource
	consumer  partitionSource
	publisher replayPublisher
	logger    *log.Entry
	now       func() time.Time
}

func newReplayer(cfg config, offsets offsetSource, consumer partitionSource, publisher replayPublisher) (*replayer, error) {
	if offsets == nil || consumer == nil {
		return nil, errors.New("kafka client and consumer are required")
	}
	if cfg.execute && publisher == nil {
		return nil, errors.New("producer is required in execute mode")
	}
	return &replayer{
		cfg:       cfg,
		offsets:   offsets,
		consumer:  consumer,
		publisher: publisher,
		logger:    log.WithFields(log.Fields{"source_topic": cfg.sourceTopic, "mode": cfg.mode()}),
		now:       time.Now,
	}, nil
}

// run обходит партиции по возрастанию номера, пока не исчерпан limit.
func (r *replayer) run(ctx context.Context) (replayStats, error) {
	var total replayStats

	partitions, err := r.offsets.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.Warn("source topic has no partitions")
		return total, nil
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		left := r.cfg.limit - total.processed
		if left <= 0 {
			break
		}
		stats, err := r.partition(ctx, partition, left)
		total.merge(stats)
		if err != nil {
			return total, err
		}
	}

	r.logger.WithFields(log.Fields{
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")
	return total, nil
}

// partition читает сообщения, существовавшие на момент старта: всё,
// что появится после снятия newest, в этот прогон не попадает.
func (r *replayer) partition(ctx context.Context, partition int32, limit int) (replayStats, error) {
	var stats replayStats
	topic := r.cfg.sourceTopic

	oldest, err := r.offsets.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.cfg.fromNewest {
		start = max(newest-int64(limit), oldest)
	}
	pc, err := r.consumer.ConsumePartition(topic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer pc.Close()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(r.cfg.idleTimeout)

			stats.processed++
			replayed, err := r.handle(msg)
			if err != nil {
				return stats, err
			}
			if replayed {
				stats.replayed++
			} else {
				stats.skipped++
			}
			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

// handle переигрывает одно сообщение. Нераспознанное пропускается,
// ошибкой считается только сбой публикации.
func (r *replayer) handle(msg *sarama.ConsumerMessage) (bool, error) {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	replay, err := decodeDeadLetter(msg.Value, r.cfg.targetTopic, r.now())
	if err != nil {
		entry.WithError(err).Warn("skip dlq message")
		return false, nil
	}

	entry = entry.WithFields(log.Fields{"target_topic": replay.topic, "order_id": replay.orderID})
	if !r.cfg.execute {
		entry.Info("dlq replay candidate")
		return true, nil
	}
	headers := map[string]string{headerReplayedFrom: r.cfg.sourceTopic}
	if err := r.publisher.PublishRaw(replay.topic, replay.key, replay.value, headers); err != nil {
		return false, fmt.Errorf("replay offset %d: %w", msg.Offset, err)
	}
	entry.Debug("dlq message replayed")
	return true, nil
}

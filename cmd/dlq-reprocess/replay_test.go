package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

type offsetRange struct{ oldest, newest int64 }

type fakeOffsets struct {
	partitions    []int32
	partitionsErr error
	ranges        map[int32]offsetRange
	offsetErr     error
	closed        bool
}

func (f *fakeOffsets) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if f.offsetErr != nil {
		return 0, f.offsetErr
	}
	switch r := f.ranges[partition]; marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unexpected marker %d", marker)
	}
}

func (f *fakeOffsets) Partitions(string) ([]int32, error) {
	return slices.Clone(f.partitions), f.partitionsErr
}

func (f *fakeOffsets) Close() error {
	f.closed = true
	return nil
}

// fakePartition реализует только используемую часть sarama.PartitionConsumer.
type fakePartition struct {
	sarama.PartitionConsumer
	messages chan *sarama.ConsumerMessage
	errs     chan *sarama.ConsumerError
}

func (f *fakePartition) Messages() <-chan *sarama.ConsumerMessage { return f.messages }
func (f *fakePartition) Errors() <-chan *sarama.ConsumerError     { return f.errs }
func (f *fakePartition) Close() error                             { return nil }

// finitePartition отдаёт values подряд с offset 0 и закрывает поток.
// Канал ошибок остаётся открытым: закрытый отдавал бы nil бесконечно.
func finitePartition(partition int32, values ...[]byte) *fakePartition {
	msgs := make(chan *sarama.ConsumerMessage, len(values))
	for i, v := range values {
		msgs <- &sarama.ConsumerMessage{Partition: partition, Offset: int64(i), Value: v}
	}
	close(msgs)
	return &fakePartition{messages: msgs, errs: make(chan *sarama.ConsumerError)}
}

func silentPartition() *fakePartition {
	return &fakePartition{messages: make(chan *sarama.ConsumerMessage), errs: make(chan *sarama.ConsumerError, 1)}
}

type consumeCall struct {
	partition int32
	offset    int64
}

type fakeConsumer struct {
	partitions map[int32]sarama.PartitionConsumer
	err        error
	calls      []consumeCall
	closed     bool
}

func (f *fakeConsumer) ConsumePartition(_ string, partition int32, offset int64) (sarama.PartitionConsumer, error) {
	f.calls = append(f.calls, consumeCall{partition, offset})
	if f.err != nil {
		return nil, f.err
	}
	pc, ok := f.partitions[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (f *fakeConsumer) Close() error {
	f.closed = true
	return nil
}

type replayed struct {
	topic, key string
	headers    map[string]string
}

type fakePublisher struct {
	err    error
	sent   []replayed
	closed bool
}

func (f *fakePublisher) PublishRaw(topic, key string, _ []byte, headers map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, replayed{topic, key, headers})
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func testConfig(source string, execute bool) config {
	return config{sourceTopic: source, targetTopic: kafka.TopicOrderEvents, limit: 10, execute: execute, idleTimeout: 20 * time.Millisecond}
}

func testReplayer(t *testing.T, cfg config, offsets *fakeOffsets, consumer *fakeConsumer, pub *fakePublisher) *replayer {
	t.Helper()
	var publisher replayPublisher
	if pub != nil {
		publisher = pub
	}
	r, err := newReplayer(cfg, offsets, consumer, publisher)
	require.NoError(t, err)
	r.now = func() time.Time { return replayClock }
	return r
}

func singleRange(newest int64) *fakeOffsets {
	return &fakeOffsets{partitions: []int32{0}, ranges: map[int32]offsetRange{0: {0, newest}}}
}

func TestNewReplayer_RequiresConnections(t *testing.T) {
	_, err := newReplayer(testConfig(kafka.TopicOrderEventsDLQ, false), nil, nil, nil)
	assert.Error(t, err)

	_, err = newReplayer(testConfig(kafka.TopicOrderEventsDLQ, true), &fakeOffsets{}, &fakeConsumer{}, nil)
	assert.ErrorContains(t, err, "producer is required")
}

func TestPartition_DryRun(t *testing.T) {
	consumer := &fakeConsumer{partitions: map[int32]sarama.PartitionConsumer{0: finitePartition(0, consumerDLQJSON(t, "order-1"))}}
	r := testReplayer(t, testConfig(kafka.TopicOrderEventsDLQ, false), singleRange(2), consumer, nil)

	stats, err := r.partition(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 1, replayed: 1}, stats)
	assert.Equal(t, []consumeCall{{0, 0}}, consumer.calls)
}

func TestPartition_FromNewestStartsNearEnd(t *testing.T) {
	offsets := &fakeOffsets{ranges: map[int32]offsetRange{0: {3, 10}}}
	consumer := &fakeConsumer{partitions: map[int32]sarama.PartitionConsumer{0: finitePartition(0)}}
	cfg := testConfig(kafka.TopicOrderEventsDLQ, false)
	cfg.fromNewest = true

	_, err := testReplayer(t, cfg, offsets, consumer, nil).partition(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(8), consumer.calls[0].offset)
}

func TestPartition_EmptyRangeIsNotConsumed(t *testing.T) {
	offsets := &fakeOffsets{ranges: map[int32]offsetRange{0: {5, 5}}}
	consumer := &fakeConsumer{}

	stats, err := testReplayer(t, testConfig(kafka.TopicOrderEventsDLQ, false), offsets, consumer, nil).partition(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Zero(t, stats)
	assert.Empty(t, consumer.calls)
}

func TestPartition_ExecuteTagsReplays(t *testing.T) {
	consumer := &fakeConsumer{partitions: map[int32]sarama.PartitionConsumer{
		0: finitePartition(0, outboxDLQJSON(t, "order-1", orderEventJSON(t, "order-1")), []byte(`{"foo":"bar"}`)),
	}}
	pub := &fakePublisher{}
	r := testReplayer(t, testConfig(kafka.TopicOutboxDLQ, true), singleRange(2), consumer, pub)

	stats, err := r.partition(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 2, replayed: 1, skipped: 1}, stats)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, kafka.TopicOrderEvents, pub.sent[0].topic)
	assert.Equal(t, "order-1", pub.sent[0].key)
	assert.Equal(t, kafka.TopicOutboxDLQ, pub.sent[0].headers[headerReplayedFrom])
}

func TestPartition_Failures(t *testing.T) {
	cfg := testConfig(kafka.TopicOrderEventsDLQ, true)
	ctx := context.Background()

	_, err := testReplayer(t, cfg, &fakeOffsets{offsetErr: errors.New("offset")}, &fakeConsumer{}, &fakePublisher{}).partition(ctx, 0, 1)
	assert.ErrorContains(t, err, "oldest offset")

	_, err = testReplayer(t, cfg, singleRange(2), &fakeConsumer{err: errors.New("consume")}, &fakePublisher{}).partition(ctx, 0, 1)
	assert.ErrorContains(t, err, "consume partition 0")

	broken := silentPartition()
	broken.errs <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
	consumer := &fakeConsumer{partitions: map[int32]sarama.PartitionConsumer{0: broken}}
	_, err = testReplayer(t, cfg, singleRange(2), consumer, &fakePublisher{}).partition(ctx, 0, 1)
	assert.ErrorContains(t, err, "consumer boom")

	consumer = &fakeConsumer{partitions: map[int32]sarama.PartitionConsumer{0: finitePartition(0, consumerDLQJSON(t, "order-1"))}}
	_, err = testReplayer(t, cfg, singleRange(2), consumer, &fakePublisher{err: errors.New("send fail")}).partition(ctx, 0, 1)
	assert.ErrorContains(t, err, "send fail")
}

func TestPartition_IdleAndCancel(t *testing.T) {
	cfg := testConfig(kafka.TopicOrderEventsDLQ, false)
	cfg.idleTimeout = 10 * time.Millisecond
	consumer := &fakeConsumer{partitions: map[int32]sarama.PartitionConsumer{0: silentPartition()}}

	stats, err := testReplayer(t, cfg, singleRange(2), consumer, nil).partition(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Zero(t, stats.processed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg.idleTimeout = time.Minute
	consumer = &fakeConsumer{partitions: map[int32]sarama.PartitionConsumer{0: silentPartition()}}
	_, err = testReplayer(t, cfg, singleRange(2), consumer, nil).partition(ctx, 0, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_StopsAtLimitInPartitionOrder(t *testing.T) {
	offsets := &fakeOffsets{
		partitions: []int32{2, 0},
		ranges:     map[int32]offsetRange{0: {0, 2}, 2: {0, 2}},
	}
	consumer := &fakeConsumer{partitions: map[int32]sarama.PartitionConsumer{
		0: finitePartition(0, consumerDLQJSON(t, "order-1")),
		2: finitePartition(2, consumerDLQJSON(t, "order-2")),
	}}
	cfg := testConfig(kafka.TopicOrderEventsDLQ, false)
	cfg.limit = 1

	stats, err := testReplayer(t, cfg, offsets, consumer, nil).run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.replayed)
	assert.Equal(t, []consumeCall{{0, 0}}, consumer.calls)
}

func TestRun_PartitionListing(t *testing.T) {
	cfg := testConfig(kafka.TopicOrderEventsDLQ, false)

	stats, err := testReplayer(t, cfg, &fakeOffsets{}, &fakeConsumer{}, nil).run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats)

	_, err = testReplayer(t, cfg, &fakeOffsets{partitionsErr: errors.New("metadata")}, &fakeConsumer{}, nil).run(context.Background())
	assert.ErrorContains(t, err, "metadata")
}

func TestRunCommand_ClosesConnections(t *testing.T) {
	saved := connect
	t.Cleanup(func() { connect = saved })
	cfg := testConfig(kafka.TopicOrderEventsDLQ, true)

	connect = func(config) (connections, error) { return connections{}, errors.New("brokers down") }
	assert.ErrorContains(t, run(context.Background(), cfg), "brokers down")

	offsets := singleRange(2)
	consumer := &fakeConsumer{partitions: map[int32]sarama.PartitionConsumer{0: finitePartition(0, consumerDLQJSON(t, "order-1"))}}
	pub := &fakePublisher{}
	connect = func(config) (connections, error) {
		return connections{offsets: offsets, consumer: consumer, publisher: pub}, nil
	}

	require.NoError(t, run(context.Background(), cfg))
	assert.Len(t, pub.sent, 1)
	assert.True(t, offsets.closed)
	assert.True(t, consumer.closed)
	assert.True(t, pub.closed)
}

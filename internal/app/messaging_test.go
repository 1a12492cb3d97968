package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

func TestSplitBrokers(t *testing.T) {
	cases := map[string][]string{
		"":             nil,
		" , ":          nil,
		"broker1:9092": {"broker1:9092"},
		"broker1:9092, broker2:9092 ,broker3:9092": {"broker1:9092", "broker2:9092", "broker3:9092"},
	}
	for in, want := range cases {
		assert.Equal(t, want, splitBrokers(in), in)
	}
}

func TestConnectMessaging_WithoutBrokers(t *testing.T) {
	m := connectMessaging("", log.WithField("test", "kafka"))

	assert.False(t, m.configured())
	assert.Nil(t, m.producer)
	assert.NoError(t, m.err)

	publisher, opts := m.outboxPublisher(log.WithField("test", "kafka"))
	assert.IsType(t, &kafka.LogPublisher{}, publisher)
	assert.Empty(t, opts)
	assert.NoError(t, publisher.Publish(domain.OutboxMessage{ID: "outbox-1"}))
}

func TestConnectMessaging_UnreachableBrokers(t *testing.T) {
	m := connectMessaging("invalid-broker:9999", log.WithField("test", "kafka"))

	assert.True(t, m.configured())
	assert.Nil(t, m.producer)
	assert.Nil(t, m.consumer)
	require.Error(t, m.err)

	check := m.checker().Check(context.Background())
	assert.Equal(t, healthcheck.StatusUnhealthy, check.Status)
	assert.Equal(t, m.err.Error(), check.Message)
}

func TestMessaging_CheckerWithoutCause(t *testing.T) {
	check := (&messaging{brokers: []string{"b:9092"}}).checker().Check(context.Background())
	assert.Equal(t, errKafkaDisabled.Error(), check.Message)
}

func TestMessaging_NilSafe(t *testing.T) {
	logger := log.WithField("test", "kafka")
	var m *messaging

	assert.False(t, m.configured())
	publisher, _ := m.outboxPublisher(logger)
	assert.NotNil(t, publisher)
	m.startConsumer(context.Background(), logger)
	m.stopConsumer(logger)
	m.closeProducer(logger)
}

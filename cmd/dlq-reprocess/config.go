package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

// dlqSources сопоставляет короткое имя источника с DLQ-топиком.
var dlqSources = map[string]string{
	"orders": kafka.TopicOrderEventsDLQ,
	"outbox": kafka.TopicOutboxDLQ,
}

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

func (c config) mode() string {
	if c.execute {
		return "execute"
	}
	return "dry-run"
}

// readConfig берёт флаги, а брокеры при их отсутствии из KAFKA_BROKERS.
func readConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg     config
		brokers string
		source  string
	)
	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokers, "brokers", "", "comma-separated Kafka brokers, KAFKA_BROKERS when empty")
	fs.StringVar(&source, "source", "orders", "DLQ to read: orders | outbox")
	fs.StringVar(&cfg.sourceTopic, "source-topic", "", "read this topic instead of -source")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderEvents, "topic that receives replayed events")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "upper bound of scanned messages")
	fs.BoolVar(&cfg.execute, "execute", false, "publish for real; without it only candidates are logged")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "start each partition limit messages before its end")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "give up a partition after this long without messages")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokers) == "" {
		brokers = getenv("KAFKA_BROKERS")
	}
	cfg.brokers = splitBrokers(brokers)
	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
	cfg.targetTopic = strings.TrimSpace(cfg.targetTopic)
	if cfg.sourceTopic == "" {
		topic, ok := dlqSources[strings.ToLower(strings.TrimSpace(source))]
		if !ok {
			return config{}, fmt.Errorf("unsupported source %q (use orders|outbox)", source)
		}
		cfg.sourceTopic = topic
	}

	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case cfg.targetTopic == "":
		return config{}, errors.New("target-topic is required")
	case cfg.targetTopic == cfg.sourceTopic:
		return config{}, errors.New("target-topic must differ from source topic")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
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

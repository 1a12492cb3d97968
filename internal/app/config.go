package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	defaultJWTSecret = "storefront-demo-secret"
)

// Config описывает настройки запуска витрины. Значение сравнимо (без срезов и map).
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	SeedCatalog         bool

	JWTSecret     string
	SessionTTL    time.Duration
	SecureCookies bool
	CartIdleTTL   time.Duration

	// KafkaBrokers: список брокеров через запятую; пусто означает работу без Kafka.
	KafkaBrokers string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPending: порог backlog, после которого health отдаёт degraded; 0 отключает проверку.
	OutboxMaxPending int

	// Retention* управляют фоновой чисткой просроченных idempotency-ключей и брошенных корзин.
	RetentionInterval  time.Duration
	RetentionBatchSize int
	CartRetention      time.Duration
}

// DefaultConfig возвращает настройки для локального запуска на памяти.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		SeedCatalog:         true,

		JWTSecret:   defaultJWTSecret,
		SessionTTL:  24 * time.Hour,
		CartIdleTTL: 30 * time.Minute,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,
		OutboxMaxPending:   1000,

		RetentionInterval:  time.Minute,
		RetentionBatchSize: 500,
		CartRetention:      30 * 24 * time.Hour,
	}
}

// Validate собирает все нарушения сразу, чтобы оператор увидел их одним сообщением.
func (c Config) Validate() error {
	var errs []error
	for name, addr := range map[string]string{"http": c.HTTPAddr, "grpc": c.GRPCAddr, "metrics": c.MetricsAddr} {
		if strings.TrimSpace(addr) == "" {
			errs = append(errs, fmt.Errorf("%s address is empty", name))
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.StorageDriver)) {
	case "", StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres storage requires STOREFRONT_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is empty"))
	}
	positive := []struct {
		name string
		ok   bool
	}{
		{"session ttl", c.SessionTTL > 0},
		{"cart idle ttl", c.CartIdleTTL > 0},
		{"outbox poll interval", c.OutboxPollInterval > 0},
		{"outbox batch size", c.OutboxBatchSize > 0},
		{"outbox max attempts", c.OutboxMaxAttempts > 0},
		{"outbox retry delay", c.OutboxRetryDelay >= 0},
		{"outbox max pending", c.OutboxMaxPending >= 0},
		{"retention interval", c.RetentionInterval > 0},
		{"retention batch size", c.RetentionBatchSize > 0},
		{"cart retention", c.CartRetention > 0},
	}
	for _, p := range positive {
		if !p.ok {
			errs = append(errs, fmt.Errorf("%s is out of range", p.name))
		}
	}
	return errors.Join(errs...)
}

package main

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/app"
)

func envOf(values map[string]string) envLookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestReadConfigFromEnv_EmptyEnvironment(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"nothing set": nil,
		"only blanks": {envHTTPAddr: "   ", envOutboxBatchSize: "", envSeedCatalog: " "},
	} {
		t.Run(name, func(t *testing.T) {
			cfg, warnings := readConfigFromEnv(envOf(env))
			assert.Empty(t, warnings)
			assert.Equal(t, app.DefaultConfig(), cfg)
		})
	}
}

func TestReadConfigFromEnv_Overrides(t *testing.T) {
	cfg, warnings := readConfigFromEnv(envOf(map[string]string{
		envHTTPAddr:            "localhost:8081",
		envGRPCAddr:            "localhost:50052",
		envMetricsAddr:         "localhost:9091",
		envStorageDriver:       " PoStGrEs ",
		envPostgresDSN:         " postgres://shop@db:5432/shop ",
		envPostgresAutoMigrate: "off",
		envSeedCatalog:         "no",
		envJWTSecret:           "s3cret",
		envSessionTTL:          "2h",
		envSecureCookies:       "yes",
		envCartIdleTTL:         "10m",
		envKafkaBrokers:        "kafka:9092",
		envOutboxPollInterval:  "2s",
		envOutboxBatchSize:     "42",
		envOutboxMaxAttempts:   "7",
		envOutboxRetryDelay:    "0s",
		envOutboxMaxPending:    "0",
		envRetentionInterval:   "30m",
		envRetentionBatchSize:  "123",
		envCartRetention:       "168h",
	}))
	require.Empty(t, warnings)

	want := app.DefaultConfig()
	want.HTTPAddr = "localhost:8081"
	want.GRPCAddr = "localhost:50052"
	want.MetricsAddr = "localhost:9091"
	want.StorageDriver = app.StorageDriverPostgres
	want.PostgresDSN = "postgres://shop@db:5432/shop"
	want.PostgresAutoMigrate = false
	want.SeedCatalog = false
	want.JWTSecret = "s3cret"
	want.SessionTTL = 2 * time.Hour
	want.SecureCookies = true
	want.CartIdleTTL = 10 * time.Minute
	want.KafkaBrokers = "kafka:9092"
	want.OutboxPollInterval = 2 * time.Second
	want.OutboxBatchSize = 42
	want.OutboxMaxAttempts = 7
	want.OutboxRetryDelay = 0
	want.OutboxMaxPending = 0
	want.RetentionInterval = 30 * time.Minute
	want.RetentionBatchSize = 123
	want.CartRetention = 7 * 24 * time.Hour
	assert.Equal(t, want, cfg)
}

func TestReadConfigFromEnv_InvalidValuesKeepDefaults(t *testing.T) {
	bad := map[string]string{
		envPostgresAutoMigrate: "not-bool",
		envSeedCatalog:         "maybe",
		envSessionTTL:          "0s",
		envCartIdleTTL:         "soon",
		envOutboxPollInterval:  "-1s",
		envOutboxBatchSize:     "0",
		envOutboxMaxAttempts:   "bad",
		envOutboxRetryDelay:    "invalid",
		envOutboxMaxPending:    "-2",
		envRetentionInterval:   "invalid",
		envRetentionBatchSize:  "0",
		envCartRetention:       "-1h",
	}

	cfg, warnings := readConfigFromEnv(envOf(bad))
	assert.Equal(t, app.DefaultConfig(), cfg)
	require.Len(t, warnings, len(bad))
	for key := range bad {
		assert.True(t, slices.ContainsFunc(warnings, func(w string) bool {
			return strings.HasPrefix(w, key+"=")
		}), "no warning for %s", key)
	}
}

func TestParseBool(t *testing.T) {
	for raw, want := range map[string]bool{" YES ": true, "1": true, "on": true, "off": false, "False": false, "0": false} {
		got, err := parseBool(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := parseBool("sometimes")
	assert.ErrorContains(t, err, "invalid boolean")
}

func TestParseNumbers(t *testing.T) {
	positive := func(v int) bool { return v > 0 }
	n, err := parseInt(" 12 ", positive, "must be > 0")
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	_, err = parseInt("0", positive, "must be > 0")
	assert.EqualError(t, err, "must be > 0")

	nonNegative := func(v time.Duration) bool { return v >= 0 }
	d, err := parseDuration(" 250ms ", nonNegative, "must be >= 0")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)
	_, err = parseDuration("-1ms", nonNegative, "must be >= 0")
	assert.EqualError(t, err, "must be >= 0")
}

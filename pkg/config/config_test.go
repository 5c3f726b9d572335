package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAll(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/adverra")
	t.Setenv("KAFKA_BROKERS", "localhost:9092,localhost:9093")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("EVENTS_TOPIC", "marketplace.events")
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("OUTBOX_POLL_INTERVAL_MS", "500")
	t.Setenv("OUTBOX_BATCH_SIZE", "100")
	t.Setenv("OUTBOX_MAX_ATTEMPTS", "5")
	t.Setenv("OUTBOX_RETRY_BACKOFF_MS", "1000")
}

func TestLoad(t *testing.T) {
	setAll(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, cfg.KafkaBrokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, "500ms", cfg.PollInterval.String())
	assert.Equal(t, "1s", cfg.RetryBackoff.String())
	assert.Empty(t, cfg.OTLPEndpoint)
}

func TestLoadMissingKeys(t *testing.T) {
	setAll(t)
	t.Setenv("EVENTS_TOPIC", "")
	t.Setenv("REDIS_ADDR", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVENTS_TOPIC")
	assert.Contains(t, err.Error(), "REDIS_ADDR")
}

func TestLoadRejectsNonPositiveDeliverySettings(t *testing.T) {
	setAll(t)
	t.Setenv("OUTBOX_BATCH_SIZE", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OUTBOX_BATCH_SIZE")
}

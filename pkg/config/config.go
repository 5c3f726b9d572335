package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything a marketplace process needs to run. Delivery
// settings are deliberately required: every module instance must state its
// poll interval, batch size, retry budget and backoff explicitly so that two
// deployments never diverge through differing defaults.
type Config struct {
	DatabaseURL  string
	KafkaBrokers []string
	RedisAddr    string
	EventsTopic  string
	HTTPAddr     string

	// OTLPEndpoint is optional; empty disables trace export.
	OTLPEndpoint string

	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Load reads configuration from the environment. It returns an error naming
// every missing or malformed key rather than falling back silently.
func Load() (*Config, error) {
	var missing []string

	req := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		DatabaseURL:  req("DATABASE_URL"),
		RedisAddr:    req("REDIS_ADDR"),
		EventsTopic:  req("EVENTS_TOPIC"),
		HTTPAddr:     req("HTTP_ADDR"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
	}

	if brokers := req("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var err error
	if cfg.PollInterval, err = requiredMillis(req("OUTBOX_POLL_INTERVAL_MS")); err != nil {
		return nil, fmt.Errorf("OUTBOX_POLL_INTERVAL_MS: %w", err)
	}
	if cfg.BatchSize, err = requiredInt(req("OUTBOX_BATCH_SIZE")); err != nil {
		return nil, fmt.Errorf("OUTBOX_BATCH_SIZE: %w", err)
	}
	if cfg.MaxAttempts, err = requiredInt(req("OUTBOX_MAX_ATTEMPTS")); err != nil {
		return nil, fmt.Errorf("OUTBOX_MAX_ATTEMPTS: %w", err)
	}
	if cfg.RetryBackoff, err = requiredMillis(req("OUTBOX_RETRY_BACKOFF_MS")); err != nil {
		return nil, fmt.Errorf("OUTBOX_RETRY_BACKOFF_MS: %w", err)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func requiredInt(v string) (int, error) {
	if v == "" {
		return 0, nil // reported via the missing list
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}

func requiredMillis(v string) (time.Duration, error) {
	n, err := requiredInt(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Millisecond, nil
}

// Standalone relay runner. Deploy any number of these next to the main
// process; claim leases keep them from double-publishing the same envelope.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/adverra/marketplace/pkg/config"
	"github.com/adverra/marketplace/pkg/logging"
	"github.com/adverra/marketplace/pkg/outbox"
	"github.com/adverra/marketplace/pkg/postgres"
	"github.com/adverra/marketplace/pkg/shutdown"
	"github.com/adverra/marketplace/pkg/tracing"
)

func main() {
	_ = godotenv.Load()
	log := logging.New()

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Error("configuration invalid", "err", err)
		os.Exit(1)
	}

	tp, err := tracing.Init(ctx, "marketplace-relay", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	writer := outbox.NewKafkaWriter(cfg.KafkaBrokers)
	defer writer.Close()

	store := outbox.NewStore(log, db, cfg.MaxAttempts, cfg.RetryBackoff)
	producer := outbox.NewDispatcher(log, writer, cfg.EventsTopic)
	relay := outbox.NewRelay(log, store, producer, relayID(), outbox.RelayConfig{
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
	})

	if pending, err := store.PendingCount(ctx); err == nil {
		log.Info("relay starting", "topic", cfg.EventsTopic, "pending", pending)
	}
	if err := relay.Run(ctx); err != nil {
		log.Error("relay stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("relay shutdown complete")
}

func relayID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "relay"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

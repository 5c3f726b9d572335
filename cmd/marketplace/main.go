package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/adverra/marketplace/pkg/config"
	"github.com/adverra/marketplace/pkg/dispatch"
	"github.com/adverra/marketplace/pkg/events"
	"github.com/adverra/marketplace/pkg/idempotency"
	"github.com/adverra/marketplace/pkg/inbox"
	"github.com/adverra/marketplace/pkg/logging"
	"github.com/adverra/marketplace/pkg/outbox"
	"github.com/adverra/marketplace/pkg/postgres"
	"github.com/adverra/marketplace/pkg/shutdown"
	"github.com/adverra/marketplace/pkg/tracing"

	"github.com/adverra/marketplace/internal/adminapi"
	analyticsapp "github.com/adverra/marketplace/internal/analytics/application"
	analyticspg "github.com/adverra/marketplace/internal/analytics/infrastructure/postgres"
	campaignapp "github.com/adverra/marketplace/internal/campaigns/application"
	"github.com/adverra/marketplace/internal/campaigns/domain"
	campaignhttp "github.com/adverra/marketplace/internal/campaigns/infrastructure/http"
	campaignpg "github.com/adverra/marketplace/internal/campaigns/infrastructure/postgres"
	searchapp "github.com/adverra/marketplace/internal/search/application"
	searchpg "github.com/adverra/marketplace/internal/search/infrastructure/postgres"
)

const (
	groupAnalytics = "analytics"
	groupSearch    = "search"

	dedupTTL = 24 * time.Hour
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

	tp, err := tracing.Init(ctx, "marketplace", cfg.OTLPEndpoint, log)
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

	if err := postgres.Migrate(ctx, db); err != nil {
		log.Error("pg migrate failed", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("redis connect failed", "err", err)
		os.Exit(1)
	}

	// Shared event schema and delivery machinery.
	codec := events.NewCodec()
	domain.RegisterEvents(codec)

	ledger := idempotency.NewPostgresLedger(db)
	decorator := idempotency.NewDecorator(log, ledger, db)
	dedup := idempotency.NewRedisDedup(rdb, dedupTTL)

	writer := outbox.NewKafkaWriter(cfg.KafkaBrokers)
	defer writer.Close()

	store := outbox.NewStore(log, db, cfg.MaxAttempts, cfg.RetryBackoff)
	producer := outbox.NewDispatcher(log, writer, cfg.EventsTopic)
	relay := outbox.NewRelay(log, store, producer, relayID(), outbox.RelayConfig{
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
	})

	// Campaigns: command side plus the in-process audit handler.
	outboxWriter := outbox.NewWriter(log)
	repo := campaignpg.NewRepository(log, db, outboxWriter)
	auditStore := campaignpg.NewAuditStore(db)

	localRegistry := events.NewRegistry()
	campaignapp.RegisterLocal(localRegistry, decorator, auditStore)
	local := dispatch.NewDispatcher(log, localRegistry)

	svc := campaignapp.NewService(log, repo, local)
	campaignHandler := campaignhttp.NewHandler(log, svc)

	// Analytics and search consume the shared topic under their own groups.
	inboxStore := inbox.NewStore(log, db)

	analyticsRegistry := events.NewRegistry()
	analyticsapp.Register(analyticsRegistry, decorator, analyticspg.NewStatsRepository(db))

	searchRegistry := events.NewRegistry()
	searchIndex := searchpg.NewIndexRepository(db)
	searchapp.Register(searchRegistry, decorator, searchIndex)

	consumers := []*inbox.Consumer{
		inbox.NewConsumer(log,
			inbox.NewKafkaReader(cfg.KafkaBrokers, cfg.EventsTopic, groupAnalytics),
			inboxStore, dedup, codec, analyticsRegistry, db,
			inbox.Config{Group: groupAnalytics, MaxAttempts: cfg.MaxAttempts, RetryBackoff: cfg.RetryBackoff},
		),
		inbox.NewConsumer(log,
			inbox.NewKafkaReader(cfg.KafkaBrokers, cfg.EventsTopic, groupSearch),
			inboxStore, dedup, codec, searchRegistry, db,
			inbox.Config{Group: groupSearch, MaxAttempts: cfg.MaxAttempts, RetryBackoff: cfg.RetryBackoff},
		),
	}

	admin := adminapi.NewHandler(log, store, inboxStore, searchIndex)

	r := chi.NewRouter()
	r.Mount("/", campaignHandler.Routes())
	r.Mount("/admin", admin.Routes())
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	for _, c := range consumers {
		go func() {
			if err := c.Run(ctx); err != nil {
				log.Error("consumer stopped with error", "err", err)
				cancel()
			}
		}()
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("marketplace shutdown complete")
}

func relayID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "marketplace"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

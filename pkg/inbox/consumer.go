package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/adverra/marketplace/pkg/events"
	"github.com/adverra/marketplace/pkg/tracing"
)

// Reader is the bus read contract, satisfied by *kafka.Reader.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Dedup is the optional redis fast path consulted before the durable
// accept. Keys are marked only after a message finished, so a hit always
// means the work is done; a receipt-time mark would let a crash between
// mark and handlers drop the message. A nil Dedup disables the fast path
// without changing semantics.
type Dedup interface {
	Key(group, messageID string) string
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// RecordStore is the durable inbox contract the consumer drives.
type RecordStore interface {
	Accept(ctx context.Context, group string, messageID uuid.UUID, eventType string) (AcceptOutcome, error)
	MarkCompleted(ctx context.Context, group string, messageID uuid.UUID) error
	MarkFailed(ctx context.Context, group string, messageID uuid.UUID, attempts int, cause error) error
}

// TxRunner runs the handler fan-out inside one database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Config tunes one consumer group. MaxAttempts and RetryBackoff are the
// required deployment settings shared with the relay.
type Config struct {
	Group        string
	MaxAttempts  int
	RetryBackoff time.Duration
}

const maxBackoffExponent = 10

// Consumer drains one consumer group's share of the events topic. Per
// message it records acceptance, decodes the schema-tagged payload and runs
// every registered handler inside a single transaction; the per-handler
// idempotency ledger rides in that same transaction and backstops any
// duplicate the earlier layers let through.
type Consumer struct {
	log      *slog.Logger
	reader   Reader
	store    RecordStore
	dedup    Dedup
	codec    *events.Codec
	registry *events.Registry
	tx       TxRunner
	cfg      Config
	tracer   trace.Tracer
}

func NewConsumer(log *slog.Logger, reader Reader, store RecordStore, dedup Dedup, codec *events.Codec, registry *events.Registry, tx TxRunner, cfg Config) *Consumer {
	return &Consumer{
		log:      log,
		reader:   reader,
		store:    store,
		dedup:    dedup,
		codec:    codec,
		registry: registry,
		tx:       tx,
		cfg:      cfg,
		tracer:   otel.Tracer("inbox-" + cfg.Group),
	}
}

// NewKafkaReader builds a group reader for the shared events topic.
func NewKafkaReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

// Run fetches until the context is cancelled. Offsets are committed only
// after a message is fully handled; kafka commits are cumulative, so a
// failing message is retried in place rather than skipped, otherwise the
// next commit would silently acknowledge it too.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if err := c.processUntilDone(ctx, msg); err != nil {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("inbox offset commit failed", "group", c.cfg.Group, "err", err)
		}
	}
}

// processUntilDone retries one message until process succeeds or the
// context ends.
func (c *Consumer) processUntilDone(ctx context.Context, msg kafka.Message) error {
	for {
		err := c.process(ctx, msg)
		if err == nil {
			return nil
		}
		c.log.Error("inbox processing error, holding offset", "group", c.cfg.Group, "err", err)
		if err := sleep(ctx, c.cfg.RetryBackoff); err != nil {
			return err
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	rawID := headerValue(msg.Headers, "event_id")
	eventType := headerValue(msg.Headers, "event_type")

	messageID, err := uuid.Parse(rawID)
	if err != nil {
		// Without an id there is nothing to deduplicate or record
		// against; surface loudly and drop.
		c.log.Error("inbox message has no usable event_id, dropping", "group", c.cfg.Group, "event_type", eventType, "raw_id", rawID)
		return nil
	}

	if c.dedup != nil {
		seen, err := c.dedup.Seen(ctx, c.dedup.Key(c.cfg.Group, messageID.String()))
		if err != nil {
			c.log.Warn("inbox fast-path dedup unavailable", "group", c.cfg.Group, "err", err)
		} else if seen {
			c.log.Debug("duplicate collapsed by fast path", "group", c.cfg.Group, "message_id", messageID)
			return nil
		}
	}

	outcome, err := c.store.Accept(ctx, c.cfg.Group, messageID, eventType)
	if err != nil {
		return fmt.Errorf("accept %s: %w", messageID, err)
	}
	switch outcome {
	case AcceptDuplicate:
		c.log.Debug("duplicate message skipped", "group", c.cfg.Group, "message_id", messageID)
		return nil
	case AcceptInFlight:
		// Another owner recorded acceptance but has not finished. It may
		// have crashed before its handlers ran, so this delivery must not
		// be acknowledged until the record completes or goes stale.
		return fmt.Errorf("message %s in flight, waiting for owner or stale retake", messageID)
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "Consume "+eventType)
	defer span.End()

	evt, err := c.codec.Decode(eventType, msg.Value)
	if err != nil {
		// Undecodable payloads cannot improve with retries.
		return c.fail(ctx, messageID, 1, fmt.Errorf("%w: %s", events.ErrPermanent, err))
	}

	attempts, err := c.applyWithRetry(msgCtx, evt)
	if err != nil {
		return c.fail(ctx, messageID, attempts, err)
	}

	if err := c.store.MarkCompleted(ctx, c.cfg.Group, messageID); err != nil {
		// Handlers applied; the ledger makes a replay after restart a
		// no-op, so losing this mark is harmless.
		c.log.Warn("inbox completion mark failed", "group", c.cfg.Group, "message_id", messageID, "err", err)
	} else if c.dedup != nil {
		if err := c.dedup.Mark(ctx, c.dedup.Key(c.cfg.Group, messageID.String())); err != nil {
			c.log.Warn("inbox fast-path mark failed", "group", c.cfg.Group, "err", err)
		}
	}
	c.log.Info("inbox message processed", "group", c.cfg.Group, "message_id", messageID, "type", eventType, "attempts", attempts)
	return nil
}

// applyWithRetry runs the handler fan-out transactionally, retrying
// transient failures with bounded exponential backoff. It returns how many
// attempts ran.
func (c *Consumer) applyWithRetry(ctx context.Context, evt events.Event) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		lastErr = c.tx.InTx(ctx, func(txCtx context.Context) error {
			for _, reg := range c.registry.HandlersFor(evt.EventType()) {
				if err := reg.Handler.Handle(txCtx, evt); err != nil {
					return fmt.Errorf("handler %s: %w", reg.HandlerKey, err)
				}
			}
			return nil
		})
		if lastErr == nil {
			return attempt, nil
		}
		if errors.Is(lastErr, events.ErrPermanent) || ctx.Err() != nil {
			return attempt, lastErr
		}

		c.log.Warn("inbox handlers failed, will retry", "group", c.cfg.Group, "event_id", evt.EventID(), "attempt", attempt, "err", lastErr)
		if attempt < c.cfg.MaxAttempts {
			if err := sleep(ctx, backoffDelay(c.cfg.RetryBackoff, attempt)); err != nil {
				return attempt, lastErr
			}
		}
	}
	return c.cfg.MaxAttempts, lastErr
}

func (c *Consumer) fail(ctx context.Context, messageID uuid.UUID, attempts int, cause error) error {
	if err := c.store.MarkFailed(ctx, c.cfg.Group, messageID, attempts, cause); err != nil {
		return fmt.Errorf("mark failed %s: %w", messageID, err)
	}
	return nil
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	exp := attempt - 1
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}
	return base << exp
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}

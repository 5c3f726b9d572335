package postgres

import "context"

// Rows in the three delivery tables are append-mostly and are never deleted
// by the application: sent and dead envelopes, completed and failed inbox
// records and every handler application stay behind for audit.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id               UUID PRIMARY KEY,
		event_type       TEXT NOT NULL,
		partition_key    TEXT NOT NULL DEFAULT '',
		payload          JSONB NOT NULL,
		traceparent      TEXT NOT NULL DEFAULT '',
		occurred_at      TIMESTAMPTZ NOT NULL,
		processed_at     TIMESTAMPTZ,
		last_error       TEXT,
		attempts         INT NOT NULL DEFAULT 0,
		status           TEXT NOT NULL DEFAULT 'pending',
		claimed_by       TEXT,
		claim_expires_at TIMESTAMPTZ,
		next_attempt_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_events_pending_idx
		ON outbox_events (next_attempt_at, occurred_at)
		WHERE status IN ('pending', 'delivering')`,

	`CREATE TABLE IF NOT EXISTS inbox_records (
		consumer_group TEXT NOT NULL,
		message_id     UUID NOT NULL,
		event_type     TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'processing',
		attempts       INT NOT NULL DEFAULT 0,
		last_error     TEXT,
		received_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at   TIMESTAMPTZ,
		PRIMARY KEY (consumer_group, message_id)
	)`,

	`CREATE TABLE IF NOT EXISTS handler_applications (
		handler_key  TEXT NOT NULL,
		event_id     UUID NOT NULL,
		processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (handler_key, event_id)
	)`,

	`CREATE TABLE IF NOT EXISTS campaigns (
		id           UUID PRIMARY KEY,
		brand_id     TEXT NOT NULL,
		blogger_id   TEXT NOT NULL,
		title        TEXT NOT NULL,
		budget_cents BIGINT NOT NULL,
		status       TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS campaign_audit (
		id          BIGSERIAL PRIMARY KEY,
		campaign_id UUID NOT NULL,
		event_id    UUID NOT NULL,
		event_type  TEXT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS brand_stats (
		brand_id            TEXT PRIMARY KEY,
		campaigns_total     INT NOT NULL DEFAULT 0,
		campaigns_completed INT NOT NULL DEFAULT 0,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS blogger_stats (
		blogger_id          TEXT PRIMARY KEY,
		campaigns_total     INT NOT NULL DEFAULT 0,
		campaigns_completed INT NOT NULL DEFAULT 0,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS campaign_search (
		campaign_id UUID PRIMARY KEY,
		brand_id    TEXT NOT NULL,
		blogger_id  TEXT NOT NULL,
		title       TEXT NOT NULL,
		status      TEXT NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate applies the schema idempotently. Statements are plain
// CREATE IF NOT EXISTS so repeated startups are safe.
func Migrate(ctx context.Context, db *DB) error {
	for _, stmt := range schema {
		if _, err := db.Pool().Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

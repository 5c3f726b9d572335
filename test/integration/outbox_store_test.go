//go:build integration

package integration

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverra/marketplace/internal/campaigns/domain"
	"github.com/adverra/marketplace/pkg/events"
	"github.com/adverra/marketplace/pkg/idempotency"
	"github.com/adverra/marketplace/pkg/outbox"
	pgpkg "github.com/adverra/marketplace/pkg/postgres"
)

func TestClaimBatchSkipsLockedAndLeasedEnvelopes(t *testing.T) {
	ctx := context.Background()

	pgC, pgURL, err := SetupPostgres(ctx)
	require.NoError(t, err)
	defer func() { _ = pgC.Terminate(ctx) }()

	db, err := pgpkg.Connect(ctx, pgURL)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, pgpkg.Migrate(ctx, db))

	log := slog.New(slog.DiscardHandler)
	writer := outbox.NewWriter(log)

	var facts []events.Event
	require.NoError(t, db.InTx(ctx, func(txCtx context.Context) error {
		for range 10 {
			c, err := domain.New("brand-1", "blogger-1", "t", 100)
			if err != nil {
				return err
			}
			facts = append(facts, c.Events()...)
			if err := writer.Append(txCtx, db.Querier(txCtx), c.Events()...); err != nil {
				return err
			}
		}
		return nil
	}))
	require.Len(t, facts, 10)

	store := outbox.NewStore(log, db, 5, time.Second)

	first, err := store.ClaimBatch(ctx, "relay-a", 6, time.Minute)
	require.NoError(t, err)
	second, err := store.ClaimBatch(ctx, "relay-b", 6, time.Minute)
	require.NoError(t, err)

	assert.Len(t, first, 6)
	assert.Len(t, second, 4)

	seen := map[string]bool{}
	for _, e := range append(first, second...) {
		assert.False(t, seen[e.ID.String()], "envelope claimed twice")
		seen[e.ID.String()] = true
	}

	// A third replica finds nothing while the leases hold.
	third, err := store.ClaimBatch(ctx, "relay-c", 6, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestExpiredLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()

	pgC, pgURL, err := SetupPostgres(ctx)
	require.NoError(t, err)
	defer func() { _ = pgC.Terminate(ctx) }()

	db, err := pgpkg.Connect(ctx, pgURL)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, pgpkg.Migrate(ctx, db))

	log := slog.New(slog.DiscardHandler)

	c, err := domain.New("brand-1", "blogger-1", "t", 100)
	require.NoError(t, err)
	require.NoError(t, db.InTx(ctx, func(txCtx context.Context) error {
		return outbox.NewWriter(log).Append(txCtx, db.Querier(txCtx), c.Events()...)
	}))

	store := outbox.NewStore(log, db, 5, time.Second)

	crashed, err := store.ClaimBatch(ctx, "relay-crashed", 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, crashed, 1)

	time.Sleep(250 * time.Millisecond)

	recovered, err := store.ClaimBatch(ctx, "relay-successor", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	assert.Equal(t, crashed[0].ID, recovered[0].ID)
}

func TestLedgerClaimIsTransactional(t *testing.T) {
	ctx := context.Background()

	pgC, pgURL, err := SetupPostgres(ctx)
	require.NoError(t, err)
	defer func() { _ = pgC.Terminate(ctx) }()

	db, err := pgpkg.Connect(ctx, pgURL)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, pgpkg.Migrate(ctx, db))

	ledger := idempotency.NewPostgresLedger(db)
	eventID := events.NewBase().ID

	// A rolled-back claim leaves no trace.
	sentinel := assert.AnError
	err = db.InTx(ctx, func(txCtx context.Context) error {
		won, err := ledger.Claim(txCtx, "analytics.brand-stats", eventID)
		require.NoError(t, err)
		require.True(t, won)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	// The retry wins the claim again and commits it.
	err = db.InTx(ctx, func(txCtx context.Context) error {
		won, err := ledger.Claim(txCtx, "analytics.brand-stats", eventID)
		require.NoError(t, err)
		require.True(t, won)
		return nil
	})
	require.NoError(t, err)

	won, err := ledger.Claim(ctx, "analytics.brand-stats", eventID)
	require.NoError(t, err)
	assert.False(t, won)
}

package idempotency

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adverra/marketplace/pkg/events"
)

// TxRunner runs a function inside a database transaction, joining the
// context transaction when one is already open.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Decorator wraps handlers with the at-most-once guarantee. The ledger
// claim and the handler body share one transaction: either both commit or
// the claim disappears with the rolled-back side effects and a redelivery
// retries cleanly. Two handlers subscribed to the same event carry
// independent keys and therefore independent guarantees.
type Decorator struct {
	log    *slog.Logger
	ledger Ledger
	tx     TxRunner
}

func NewDecorator(log *slog.Logger, ledger Ledger, tx TxRunner) *Decorator {
	return &Decorator{log: log, ledger: ledger, tx: tx}
}

// Wrap decorates a handler under its stable key. Every handler is wrapped
// at startup, before registration, whether it consumes in process or from
// the bus.
func (d *Decorator) Wrap(handlerKey string, next events.Handler) events.Handler {
	return events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		return d.tx.InTx(ctx, func(txCtx context.Context) error {
			won, err := d.ledger.Claim(txCtx, handlerKey, e.EventID())
			if err != nil {
				return fmt.Errorf("idempotency claim %s/%s: %w", handlerKey, e.EventID(), err)
			}
			if !won {
				d.log.Debug("duplicate application suppressed", "handler", handlerKey, "event_id", e.EventID())
				return nil
			}
			return next.Handle(txCtx, e)
		})
	})
}

package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"cantina-pos/internal/database"
)

// Numbering produces order numbers and receipt references. Order numbers are
// decimal and human-facing, scoped to the business and the calendar month,
// so generation reads the month's maximum and increments under an advisory
// lock rather than handing out opaque surrogate keys.
type Numbering struct {
	db         Querier
	businessID int
}

// NewNumbering creates a numbering service for one business
func NewNumbering(db Querier, businessID int) *Numbering {
	return &Numbering{db: db, businessID: businessID}
}

// NextOrderNumber returns the current month's highest order number plus one,
// or 1 if no orders exist this month, in its own transaction. Order creation
// must not use this: it mints through nextOrderNumberTx inside the item
// transaction, so the advisory lock spans both the read and the first write
// and a concurrent order cannot observe the same maximum.
func (n *Numbering) NextOrderNumber(ctx context.Context) (int, error) {
	tx, err := n.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	number, err := n.nextOrderNumberTx(ctx, tx)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return number, nil
}

func (n *Numbering) nextOrderNumberTx(ctx context.Context, tx pgx.Tx) (int, error) {
	if _, err := tx.Exec(ctx, database.OrderNumberLockSQL, int64(n.businessID)); err != nil {
		return 0, fmt.Errorf("failed to acquire order number lock: %w", err)
	}

	var number int
	if err := tx.QueryRow(ctx, database.NextOrderNumberSQL, n.businessID).Scan(&number); err != nil {
		return 0, fmt.Errorf("failed to compute next order number: %w", err)
	}

	return number, nil
}

// InvoiceNumberFor builds the human-readable receipt reference for an order.
// The format is YYMMDD-NNNN. It is very likely unique for the day but carries
// no uniqueness guarantee and must never be used as a key.
func InvoiceNumberFor(orderNumber int, at time.Time) string {
	return fmt.Sprintf("%s-%04d", at.Format("060102"), orderNumber)
}

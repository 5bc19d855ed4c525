// Package settlement transitions a tab's pending line items to paid, stamps
// the payment method and invoice number, and frees the associated table.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"cantina-pos/internal/config"
	"cantina-pos/internal/database"
	"cantina-pos/internal/logger"
	"cantina-pos/internal/models"
	"cantina-pos/internal/services/ledger"
)

// Querier is the database surface the settlement processor uses.
// *database.DB satisfies it; tests substitute an in-memory fake.
type Querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// TableReleaser frees the seating resource named by a settled occupant
type TableReleaser interface {
	ReleaseByName(ctx context.Context, name, requestID string) (bool, error)
}

// Service is the settlement processor
type Service struct {
	db     Querier
	tables TableReleaser
	cfg    config.BusinessConfig
	logger *logger.Logger
}

// NewService creates a new settlement processor
func NewService(db Querier, tables TableReleaser, cfg config.BusinessConfig, log *logger.Logger) *Service {
	return &Service{
		db:     db,
		tables: tables,
		cfg:    cfg,
		logger: log,
	}
}

// Settle marks the occupant's referenced line items paid under one invoice
// number, releases the table when the occupant is one, and returns the
// settled items with the computed total.
func (s *Service) Settle(ctx context.Context, req *models.SettleRequest, requestID string) (*models.SettlementResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Settling requires an open cash-drawer shift to book the sale against
	var open bool
	if err := s.db.QueryRow(ctx, database.HasOpenCashierSessionSQL, s.cfg.ID).Scan(&open); err != nil {
		return nil, fmt.Errorf("failed to check cashier session: %w", err)
	}
	if !open {
		return nil, models.ErrCashierNotOpen
	}

	invoiceNumber, err := s.settleItems(ctx, req, requestID)
	if err != nil {
		return nil, err
	}

	released, err := s.tables.ReleaseByName(ctx, req.Occupant, requestID)
	if err != nil {
		// The items are already paid; report the stuck table instead of
		// failing the settlement.
		s.logger.Error("table_release_failed",
			fmt.Sprintf("Settled items but failed to release %s", req.Occupant),
			requestID, err, map[string]interface{}{
				"occupant": req.Occupant,
			})
	}

	items, err := s.fetchItems(ctx, req.LineItemIDs)
	if err != nil {
		return nil, err
	}

	subtotal := models.Subtotal(items)
	tip, tax, total := ComputeTotals(subtotal, s.cfg.TipPercent, s.cfg.TaxPercent)

	s.logger.Info("tab_settled",
		fmt.Sprintf("Settled %d items for %s (%s %s)", len(items), req.Occupant, total, s.cfg.Currency),
		requestID, map[string]interface{}{
			"occupant":       req.Occupant,
			"invoice_number": invoiceNumber,
			"payment_method": req.PaymentMethod,
			"item_count":     len(items),
			"total":          total,
			"table_released": released,
		})

	return &models.SettlementResult{
		InvoiceNumber: invoiceNumber,
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		Items:         items,
		Subtotal:      subtotal,
		Tip:           tip,
		Tax:           tax,
		Total:         total,
		Currency:      s.cfg.Currency,
		TableReleased: released,
	}, nil
}

// settleItems validates and updates the line items in one transaction and
// returns the invoice number stamped on them.
func (s *Service) settleItems(ctx context.Context, req *models.SettleRequest, requestID string) (string, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the referenced rows and validate them before writing. Validation
	// failures abort cleanly with no partial writes.
	rows, err := tx.Query(ctx, database.LockSettlementItemsSQL, req.LineItemIDs)
	if err != nil {
		return "", fmt.Errorf("failed to lock line items: %w", err)
	}

	type lockedItem struct {
		id            int64
		occupant      string
		status        models.LineItemStatus
		invoiceNumber *string
		orderNumber   int
	}

	var locked []lockedItem
	for rows.Next() {
		var item lockedItem
		if err := rows.Scan(&item.id, &item.occupant, &item.status, &item.invoiceNumber, &item.orderNumber); err != nil {
			rows.Close()
			return "", fmt.Errorf("failed to scan line item: %w", err)
		}
		locked = append(locked, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to read line items: %w", err)
	}

	if len(locked) != len(req.LineItemIDs) {
		return "", models.ErrLineItemNotFound
	}

	for _, item := range locked {
		if item.occupant != req.Occupant {
			return "", models.ValidationError{
				Field:   "line_item_ids",
				Message: fmt.Sprintf("line item %d belongs to %q, not %q", item.id, item.occupant, req.Occupant),
			}
		}
		if item.status != models.StatusPending {
			return "", models.ValidationError{
				Field:   "line_item_ids",
				Message: fmt.Sprintf("line item %d is already %s", item.id, item.status),
			}
		}
	}

	// Keep every item of a tab under one invoice: reuse the number already
	// stamped on the first item when present.
	invoiceNumber := ""
	if locked[0].invoiceNumber != nil && *locked[0].invoiceNumber != "" {
		invoiceNumber = *locked[0].invoiceNumber
	} else {
		invoiceNumber = ledger.InvoiceNumberFor(locked[0].orderNumber, time.Now().UTC())
	}

	settledRows, err := tx.Query(ctx, database.SettleItemsSQL, req.LineItemIDs, req.PaymentMethod, invoiceNumber, req.Occupant)
	if err != nil {
		return "", fmt.Errorf("failed to settle line items: %w", err)
	}

	var settled []int64
	for settledRows.Next() {
		var id int64
		if err := settledRows.Scan(&id); err != nil {
			settledRows.Close()
			return "", fmt.Errorf("failed to scan settled id: %w", err)
		}
		settled = append(settled, id)
	}
	settledRows.Close()
	if err := settledRows.Err(); err != nil {
		return "", fmt.Errorf("failed to read settled ids: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit settlement: %w", err)
	}

	// A mixed outcome is a reconciliation error, never a silent success.
	// The committed subset stays paid; the operator re-attempts the rest.
	if len(settled) != len(req.LineItemIDs) {
		mismatch := buildMismatch(req.LineItemIDs, settled)
		s.logger.Error("settlement_mismatch",
			fmt.Sprintf("Settlement applied to %d of %d items", len(settled), len(req.LineItemIDs)),
			requestID, mismatch, map[string]interface{}{
				"occupant":  req.Occupant,
				"settled":   mismatch.Settled,
				"unsettled": mismatch.Unsettled,
			})
		return "", mismatch
	}

	return invoiceNumber, nil
}

func (s *Service) fetchItems(ctx context.Context, ids []int64) ([]models.LineItem, error) {
	rows, err := s.db.Query(ctx, database.GetItemsByIDSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query settled items: %w", err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var item models.LineItem
		err := rows.Scan(
			&item.ID,
			&item.OrderNumber,
			&item.InvoiceNumber,
			&item.Occupant,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.TotalValue,
			&item.Status,
			&item.PaymentMethod,
			&item.Notes,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// ComputeTotals applies the business tip and tax percentages to a subtotal.
// Amounts are rounded to cents.
func ComputeTotals(subtotal, tipPercent, taxPercent decimal.Decimal) (tip, tax, total decimal.Decimal) {
	hundred := decimal.NewFromInt(100)
	tip = subtotal.Mul(tipPercent).Div(hundred).Round(2)
	tax = subtotal.Mul(taxPercent).Div(hundred).Round(2)
	total = subtotal.Add(tip).Add(tax)
	return tip, tax, total
}

// buildMismatch splits the requested ids into settled and unsettled sets
func buildMismatch(requested, settled []int64) *models.SettlementMismatchError {
	settledSet := make(map[int64]bool, len(settled))
	for _, id := range settled {
		settledSet[id] = true
	}

	mismatch := &models.SettlementMismatchError{Settled: settled}
	for _, id := range requested {
		if !settledSet[id] {
			mismatch.Unsettled = append(mismatch.Unsettled, id)
		}
	}
	return mismatch
}

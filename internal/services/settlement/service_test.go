package settlement

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"cantina-pos/internal/config"
	"cantina-pos/internal/database"
	"cantina-pos/internal/database/dbtest"
	"cantina-pos/internal/logger"
	"cantina-pos/internal/models"
)

type fakeReleaser struct {
	released []string
	matched  bool
}

func (f *fakeReleaser) ReleaseByName(ctx context.Context, name, requestID string) (bool, error) {
	f.released = append(f.released, name)
	return f.matched, nil
}

// settleStore emulates the sale_line_items and cashier_sessions relations for
// the settlement paths.
type settleStore struct {
	open bool
	rows []*models.LineItem
}

func (s *settleStore) find(id int64) *models.LineItem {
	for _, row := range s.rows {
		if row.ID == id {
			return row
		}
	}
	return nil
}

func (s *settleStore) queryRow(sql string, args []interface{}) pgx.Row {
	if sql != database.HasOpenCashierSessionSQL {
		return dbtest.Row{Err: fmt.Errorf("unexpected query: %s", sql)}
	}
	return dbtest.Row{Values: []interface{}{s.open}}
}

func (s *settleStore) query(sql string, args []interface{}) (pgx.Rows, error) {
	switch sql {
	case database.LockSettlementItemsSQL:
		ids := args[0].([]int64)
		var rows []dbtest.Row
		for _, id := range ids {
			if row := s.find(id); row != nil {
				rows = append(rows, dbtest.Row{Values: []interface{}{
					row.ID, row.Occupant, row.Status, row.InvoiceNumber, row.OrderNumber,
				}})
			}
		}
		return dbtest.NewRows(rows...), nil

	case database.SettleItemsSQL:
		ids := args[0].([]int64)
		method := args[1].(string)
		invoice := args[2].(string)
		occupant := args[3].(string)

		var rows []dbtest.Row
		for _, id := range ids {
			row := s.find(id)
			if row == nil || row.Status != models.StatusPending || row.Occupant != occupant {
				continue
			}
			row.Status = models.StatusPaid
			row.PaymentMethod = models.PaymentMethod(method)
			stamped := invoice
			row.InvoiceNumber = &stamped
			rows = append(rows, dbtest.Row{Values: []interface{}{row.ID}})
		}
		return dbtest.NewRows(rows...), nil

	case database.GetItemsByIDSQL:
		ids := args[0].([]int64)
		var rows []dbtest.Row
		for _, id := range ids {
			if row := s.find(id); row != nil {
				rows = append(rows, dbtest.Row{Values: []interface{}{
					row.ID, row.OrderNumber, row.InvoiceNumber, row.Occupant,
					row.ProductID, row.ProductName, row.Quantity, row.UnitPrice,
					row.TotalValue, row.Status, row.PaymentMethod, row.Notes,
					row.CreatedAt,
				}})
			}
		}
		return dbtest.NewRows(rows...), nil
	}
	return nil, fmt.Errorf("unexpected query: %s", sql)
}

func newSettleService(store *settleStore, releaser *fakeReleaser) *Service {
	fake := &dbtest.Fake{QueryRowFunc: store.queryRow, QueryFunc: store.query}
	cfg := config.BusinessConfig{
		ID:         1,
		TipPercent: decimal.NewFromInt(10),
		TaxPercent: decimal.NewFromInt(13),
		Currency:   "USD",
	}
	return NewService(fake, releaser, cfg, logger.New("settlement-test"))
}

func pendingItem(id int64, occupant, name, total string) *models.LineItem {
	return &models.LineItem{
		ID:            id,
		OrderNumber:   1,
		Occupant:      occupant,
		ProductName:   name,
		Quantity:      1,
		UnitPrice:     decimal.RequireFromString(total),
		TotalValue:    decimal.RequireFromString(total),
		Status:        models.StatusPending,
		PaymentMethod: models.PaymentNone,
		CreatedAt:     time.Now(),
	}
}

func TestSettleMarksItemsPaid(t *testing.T) {
	store := &settleStore{open: true, rows: []*models.LineItem{
		pendingItem(1, "Mesa 3", "Burger", "10.00"),
		pendingItem(2, "Mesa 3", "Fries", "5.00"),
	}}
	releaser := &fakeReleaser{matched: true}
	svc := newSettleService(store, releaser)

	result, err := svc.Settle(context.Background(), &models.SettleRequest{
		Occupant:      "Mesa 3",
		LineItemIDs:   []int64{1, 2},
		PaymentMethod: "card",
	}, "req-1")
	if err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}

	if result.InvoiceNumber == "" {
		t.Error("expected a minted invoice number")
	}
	for _, row := range store.rows {
		if row.Status != models.StatusPaid {
			t.Errorf("item %d status = %s, want paid", row.ID, row.Status)
		}
		if row.InvoiceNumber == nil || *row.InvoiceNumber != result.InvoiceNumber {
			t.Errorf("item %d carries a different invoice than the result", row.ID)
		}
		if row.PaymentMethod != models.PaymentCard {
			t.Errorf("item %d payment method = %s, want card", row.ID, row.PaymentMethod)
		}
	}

	if !result.Subtotal.Equal(decimal.RequireFromString("15.00")) {
		t.Errorf("subtotal = %s, want 15.00", result.Subtotal)
	}
	if !result.Total.Equal(decimal.RequireFromString("18.45")) {
		t.Errorf("total = %s, want 18.45 (10%% tip, 13%% tax)", result.Total)
	}
	if !result.TableReleased {
		t.Error("expected the table to be released")
	}
	if !reflect.DeepEqual(releaser.released, []string{"Mesa 3"}) {
		t.Errorf("released names = %v, want [Mesa 3]", releaser.released)
	}
}

func TestSettleAlreadySettledRejected(t *testing.T) {
	paid := pendingItem(1, "Mesa 3", "Burger", "10.00")
	paid.Status = models.StatusPaid
	pending := pendingItem(2, "Mesa 3", "Fries", "5.00")
	store := &settleStore{open: true, rows: []*models.LineItem{paid, pending}}
	svc := newSettleService(store, &fakeReleaser{matched: true})

	_, err := svc.Settle(context.Background(), &models.SettleRequest{
		Occupant:      "Mesa 3",
		LineItemIDs:   []int64{1, 2},
		PaymentMethod: "cash",
	}, "req-1")

	var verr models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for an already-paid item, got %v", err)
	}
	if pending.Status != models.StatusPending {
		t.Error("a rejected settlement must not touch the pending item")
	}
}

func TestSettleRequiresOpenCashier(t *testing.T) {
	store := &settleStore{open: false, rows: []*models.LineItem{
		pendingItem(1, "Mesa 3", "Burger", "10.00"),
	}}
	svc := newSettleService(store, &fakeReleaser{})

	_, err := svc.Settle(context.Background(), &models.SettleRequest{
		Occupant:      "Mesa 3",
		LineItemIDs:   []int64{1},
		PaymentMethod: "cash",
	}, "req-1")
	if !errors.Is(err, models.ErrCashierNotOpen) {
		t.Errorf("expected ErrCashierNotOpen, got %v", err)
	}
	if store.rows[0].Status != models.StatusPending {
		t.Error("item must stay pending when no cashier shift is open")
	}
}

func TestSettleUnknownItemRejected(t *testing.T) {
	store := &settleStore{open: true, rows: []*models.LineItem{
		pendingItem(1, "Mesa 3", "Burger", "10.00"),
	}}
	svc := newSettleService(store, &fakeReleaser{matched: true})

	_, err := svc.Settle(context.Background(), &models.SettleRequest{
		Occupant:      "Mesa 3",
		LineItemIDs:   []int64{1, 99},
		PaymentMethod: "cash",
	}, "req-1")
	if !errors.Is(err, models.ErrLineItemNotFound) {
		t.Errorf("expected ErrLineItemNotFound, got %v", err)
	}
	if store.rows[0].Status != models.StatusPending {
		t.Error("item must stay pending when the request references an unknown id")
	}
}

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name      string
		subtotal  string
		tip       string
		tax       string
		wantTip   string
		wantTax   string
		wantTotal string
	}{
		{
			name:     "ten percent tip, thirteen percent tax",
			subtotal: "100.00", tip: "10", tax: "13",
			wantTip: "10", wantTax: "13", wantTotal: "123",
		},
		{
			name:     "rounding to cents",
			subtotal: "15.50", tip: "10", tax: "13",
			wantTip: "1.55", wantTax: "2.02", wantTotal: "19.07",
		},
		{
			name:     "zero percentages",
			subtotal: "42.00", tip: "0", tax: "0",
			wantTip: "0", wantTax: "0", wantTotal: "42.00",
		},
		{
			name:     "zero subtotal",
			subtotal: "0", tip: "10", tax: "13",
			wantTip: "0", wantTax: "0", wantTotal: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tip, tax, total := ComputeTotals(
				decimal.RequireFromString(tt.subtotal),
				decimal.RequireFromString(tt.tip),
				decimal.RequireFromString(tt.tax),
			)
			if !tip.Equal(decimal.RequireFromString(tt.wantTip)) {
				t.Errorf("tip = %s, want %s", tip, tt.wantTip)
			}
			if !tax.Equal(decimal.RequireFromString(tt.wantTax)) {
				t.Errorf("tax = %s, want %s", tax, tt.wantTax)
			}
			if !total.Equal(decimal.RequireFromString(tt.wantTotal)) {
				t.Errorf("total = %s, want %s", total, tt.wantTotal)
			}
		})
	}
}

func TestBuildMismatch(t *testing.T) {
	mismatch := buildMismatch([]int64{1, 2, 3, 4}, []int64{1, 3})

	if !reflect.DeepEqual(mismatch.Settled, []int64{1, 3}) {
		t.Errorf("Settled = %v, want [1 3]", mismatch.Settled)
	}
	if !reflect.DeepEqual(mismatch.Unsettled, []int64{2, 4}) {
		t.Errorf("Unsettled = %v, want [2 4]", mismatch.Unsettled)
	}
}

func TestBuildMismatchNothingSettled(t *testing.T) {
	mismatch := buildMismatch([]int64{5, 6}, nil)

	if len(mismatch.Settled) != 0 {
		t.Errorf("Settled = %v, want empty", mismatch.Settled)
	}
	if !reflect.DeepEqual(mismatch.Unsettled, []int64{5, 6}) {
		t.Errorf("Unsettled = %v, want [5 6]", mismatch.Unsettled)
	}
}

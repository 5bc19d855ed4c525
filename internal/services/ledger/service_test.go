package ledger

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

func strPtr(s string) *string { return &s }

type fakeCatalog struct {
	products map[int64]*models.Product
}

func (f *fakeCatalog) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product, ok := f.products[id]
	if !ok {
		return nil, models.ErrProductNotFound
	}
	return product, nil
}

type fakeTables struct {
	free     []models.Table
	released []int64
}

func (f *fakeTables) Reserve(ctx context.Context, kind models.TableKind, requestID string) (*models.Table, error) {
	if len(f.free) == 0 {
		return nil, models.ErrNoTableAvailable
	}
	table := f.free[0]
	f.free = f.free[1:]
	table.Available = false
	return &table, nil
}

func (f *fakeTables) Release(ctx context.Context, tableID int64, requestID string) error {
	f.released = append(f.released, tableID)
	return nil
}

type fakePublisher struct {
	deductions []models.InventoryDeductionRequest
	tickets    []models.PrepTicket
}

func (f *fakePublisher) PublishDeduction(ctx context.Context, req *models.InventoryDeductionRequest) error {
	f.deductions = append(f.deductions, *req)
	return nil
}

func (f *fakePublisher) PublishPrepTicket(ctx context.Context, ticket *models.PrepTicket) error {
	f.tickets = append(f.tickets, *ticket)
	return nil
}

// ledgerStore emulates the sale_line_items table, including the merge
// behavior of the pending-line unique index.
type ledgerStore struct {
	nextID          int64
	rows            []*models.LineItem
	upserts         int
	failUpsertAfter int
}

func rowFor(item *models.LineItem) dbtest.Row {
	return dbtest.Row{Values: []interface{}{
		item.ID, item.OrderNumber, item.InvoiceNumber, item.Occupant,
		item.ProductID, item.ProductName, item.Quantity, item.UnitPrice,
		item.TotalValue, item.Status, item.PaymentMethod, item.Notes,
		item.CreatedAt,
	}}
}

func (s *ledgerStore) queryRow(sql string, args []interface{}) pgx.Row {
	switch sql {
	case database.NextOrderNumberSQL:
		max := 0
		for _, row := range s.rows {
			if row.OrderNumber > max {
				max = row.OrderNumber
			}
		}
		return dbtest.Row{Values: []interface{}{max + 1}}

	case database.UpsertLineItemSQL:
		s.upserts++
		if s.failUpsertAfter > 0 && s.upserts > s.failUpsertAfter {
			return dbtest.Row{Err: errors.New("insert rejected")}
		}

		orderNumber := args[1].(int)
		occupant := args[2].(string)
		productID := args[3].(int64)
		name := args[4].(string)
		quantity := args[5].(int)
		unitPrice := args[6].(decimal.Decimal)
		total := args[7].(decimal.Decimal)
		notes, _ := args[8].(*string)

		for _, row := range s.rows {
			if row.Occupant == occupant && row.OrderNumber == orderNumber &&
				row.ProductName == name && row.Status == models.StatusPending {
				row.Quantity += quantity
				row.TotalValue = row.UnitPrice.Mul(decimal.NewFromInt(int64(row.Quantity)))
				return rowFor(row)
			}
		}

		s.nextID++
		pid := productID
		item := &models.LineItem{
			ID:            s.nextID,
			OrderNumber:   orderNumber,
			Occupant:      occupant,
			ProductID:     &pid,
			ProductName:   name,
			Quantity:      quantity,
			UnitPrice:     unitPrice,
			TotalValue:    total,
			Status:        models.StatusPending,
			PaymentMethod: models.PaymentNone,
			Notes:         notes,
			CreatedAt:     time.Now(),
		}
		s.rows = append(s.rows, item)
		return rowFor(item)

	case database.GetLineItemForUpdateSQL:
		id := args[0].(int64)
		for _, row := range s.rows {
			if row.ID == id && row.Status == models.StatusPending {
				return rowFor(row)
			}
		}
		return dbtest.Row{Err: pgx.ErrNoRows}

	case database.UpdateLineItemQuantitySQL:
		id := args[0].(int64)
		quantity := args[1].(int)
		for _, row := range s.rows {
			if row.ID == id && row.Status == models.StatusPending {
				row.Quantity = quantity
				row.TotalValue = row.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
				return rowFor(row)
			}
		}
		return dbtest.Row{Err: pgx.ErrNoRows}
	}

	return dbtest.Row{Err: fmt.Errorf("unexpected query: %s", sql)}
}

func (s *ledgerStore) query(sql string, args []interface{}) (pgx.Rows, error) {
	if sql != database.ListOpenItemsSQL {
		return nil, fmt.Errorf("unexpected query: %s", sql)
	}
	occupant := args[1].(string)
	var rows []dbtest.Row
	for _, row := range s.rows {
		if row.Occupant == occupant && row.Status == models.StatusPending {
			rows = append(rows, rowFor(row))
		}
	}
	return dbtest.NewRows(rows...), nil
}

func (s *ledgerStore) exec(sql string, args []interface{}) (int64, error) {
	switch sql {
	case database.OrderNumberLockSQL:
		return 0, nil
	case database.DeleteLineItemSQL:
		id := args[0].(int64)
		for i, row := range s.rows {
			if row.ID == id && row.Status == models.StatusPending {
				s.rows = append(s.rows[:i], s.rows[i+1:]...)
				return 1, nil
			}
		}
		return 0, nil
	}
	return 0, fmt.Errorf("unexpected exec: %s", sql)
}

type testEnv struct {
	svc   *Service
	store *ledgerStore
	pub   *fakePublisher
	tabs  *fakeTables
	fake  *dbtest.Fake
}

func newTestEnv() *testEnv {
	store := &ledgerStore{}
	fake := &dbtest.Fake{
		QueryRowFunc: store.queryRow,
		QueryFunc:    store.query,
		ExecFunc:     store.exec,
	}
	pub := &fakePublisher{}
	tabs := &fakeTables{free: []models.Table{
		{ID: 1, Name: "Mesa 1", Capacity: 4, Available: true},
		{ID: 2, Name: "Mesa 2", Capacity: 4, Available: true},
	}}
	cat := &fakeCatalog{products: map[int64]*models.Product{
		1: {ID: 1, Name: "Burger", Price: decimal.RequireFromString("5.00"), PrepMinutes: 12, Station: "kitchen"},
		2: {ID: 2, Name: "Fries", Price: decimal.RequireFromString("2.50"), PrepMinutes: 6, Station: "kitchen"},
		3: {ID: 3, Name: "Mojito", Price: decimal.RequireFromString("7.00"), PrepMinutes: 4, Station: "bar"},
	}}
	cfg := config.BusinessConfig{ID: 1, Currency: "USD", TablePrefix: "Mesa", BarPrefix: "Barra"}

	return &testEnv{
		svc:   NewService(fake, cat, tabs, pub, cfg, logger.New("ledger-test")),
		store: store,
		pub:   pub,
		tabs:  tabs,
		fake:  fake,
	}
}

func TestOpenOrderMintsNumberWithItems(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	resp, err := env.svc.OpenOrder(ctx, &models.OpenOrderRequest{
		OccupantKind: "table",
		Items:        []models.OrderItemRequest{{ProductID: 1, Quantity: 2}},
	}, "req-1")
	if err != nil {
		t.Fatalf("OpenOrder returned error: %v", err)
	}
	if resp.OrderNumber != 1 {
		t.Errorf("first order number = %d, want 1", resp.OrderNumber)
	}
	if resp.Occupant != "Mesa 1" {
		t.Errorf("occupant = %q, want Mesa 1", resp.Occupant)
	}

	// The number read and every insert must share one transaction, so the
	// advisory lock is held from the MAX read through the commit of the
	// first row and a concurrent order cannot observe the same maximum.
	want := []string{"begin", database.OrderNumberLockSQL, database.NextOrderNumberSQL, database.UpsertLineItemSQL, "commit"}
	if !reflect.DeepEqual(env.fake.Log, want) {
		t.Errorf("statement log = %v, want %v", env.fake.Log, want)
	}

	resp2, err := env.svc.OpenOrder(ctx, &models.OpenOrderRequest{
		OccupantKind: "customer",
		CustomerName: "Ana",
		Items:        []models.OrderItemRequest{{ProductID: 3, Quantity: 1}},
	}, "req-2")
	if err != nil {
		t.Fatalf("second OpenOrder returned error: %v", err)
	}
	if resp2.OrderNumber != 2 {
		t.Errorf("second order number = %d, want 2", resp2.OrderNumber)
	}
}

func TestOpenOrderRollsBackWhenAnItemFails(t *testing.T) {
	env := newTestEnv()
	env.store.failUpsertAfter = 1

	_, err := env.svc.OpenOrder(context.Background(), &models.OpenOrderRequest{
		OccupantKind: "table",
		Items: []models.OrderItemRequest{
			{ProductID: 1, Quantity: 1},
			{ProductID: 2, Quantity: 1},
		},
	}, "req-1")
	if err == nil {
		t.Fatal("expected OpenOrder to fail")
	}

	if env.fake.Commits != 0 {
		t.Errorf("expected no commit, got %d", env.fake.Commits)
	}
	if env.fake.Rollbacks != 1 {
		t.Errorf("expected one rollback, got %d", env.fake.Rollbacks)
	}
	if len(env.pub.deductions) != 0 {
		t.Errorf("expected no deductions for an aborted order, got %d", len(env.pub.deductions))
	}
	if len(env.pub.tickets) != 0 {
		t.Errorf("expected no prep tickets for an aborted order, got %d", len(env.pub.tickets))
	}
	if !reflect.DeepEqual(env.tabs.released, []int64{1}) {
		t.Errorf("expected reserved table 1 to be released, got %v", env.tabs.released)
	}
}

func TestAppendItemsMergesExistingLine(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	resp, err := env.svc.OpenOrder(ctx, &models.OpenOrderRequest{
		OccupantKind: "table",
		Items:        []models.OrderItemRequest{{ProductID: 1, Quantity: 2}},
	}, "req-1")
	if err != nil {
		t.Fatalf("OpenOrder returned error: %v", err)
	}

	appended, err := env.svc.AppendItems(ctx, &models.AppendItemsRequest{
		Occupant:    resp.Occupant,
		OrderNumber: resp.OrderNumber,
		Items:       []models.OrderItemRequest{{ProductID: 1, Quantity: 1}},
	}, "req-2")
	if err != nil {
		t.Fatalf("AppendItems returned error: %v", err)
	}

	if len(env.store.rows) != 1 {
		t.Fatalf("expected a single merged row, got %d", len(env.store.rows))
	}
	merged := env.store.rows[0]
	if merged.Quantity != 3 {
		t.Errorf("merged quantity = %d, want 3", merged.Quantity)
	}
	if !merged.TotalValue.Equal(decimal.RequireFromString("15.00")) {
		t.Errorf("merged total = %s, want 15.00", merged.TotalValue)
	}
	if appended.Items[0].Quantity != 3 {
		t.Errorf("response quantity = %d, want 3", appended.Items[0].Quantity)
	}

	// Stock depletion carries the delta of each add, never the running total.
	var quantities []int
	for _, d := range env.pub.deductions {
		quantities = append(quantities, d.Quantity)
	}
	if !reflect.DeepEqual(quantities, []int{2, 1}) {
		t.Errorf("deduction quantities = %v, want [2 1]", quantities)
	}
}

func TestAdjustQuantityToZeroDeletesItem(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	resp, err := env.svc.OpenOrder(ctx, &models.OpenOrderRequest{
		OccupantKind: "customer",
		CustomerName: "Ana",
		Items:        []models.OrderItemRequest{{ProductID: 1, Quantity: 2}},
	}, "req-1")
	if err != nil {
		t.Fatalf("OpenOrder returned error: %v", err)
	}

	item, removed, err := env.svc.AdjustQuantity(ctx, &models.AdjustQuantityRequest{
		LineItemID: resp.Items[0].ID,
		Delta:      -2,
	}, "req-2")
	if err != nil {
		t.Fatalf("AdjustQuantity returned error: %v", err)
	}
	if !removed {
		t.Error("expected the item to be removed when quantity reaches zero")
	}
	if item != nil {
		t.Errorf("expected no item for a removal, got %+v", item)
	}
	if len(env.store.rows) != 0 {
		t.Errorf("expected no rows after removal, got %d", len(env.store.rows))
	}
}

func TestAdjustQuantityDeltas(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	resp, err := env.svc.OpenOrder(ctx, &models.OpenOrderRequest{
		OccupantKind: "customer",
		CustomerName: "Ana",
		Items:        []models.OrderItemRequest{{ProductID: 1, Quantity: 1}},
	}, "req-1")
	if err != nil {
		t.Fatalf("OpenOrder returned error: %v", err)
	}
	id := resp.Items[0].ID

	item, removed, err := env.svc.AdjustQuantity(ctx, &models.AdjustQuantityRequest{LineItemID: id, Delta: 2}, "req-2")
	if err != nil || removed {
		t.Fatalf("AdjustQuantity(+2) = removed %v, err %v", removed, err)
	}
	if item.Quantity != 3 || !item.TotalValue.Equal(decimal.RequireFromString("15.00")) {
		t.Errorf("after +2: quantity %d total %s, want 3 and 15.00", item.Quantity, item.TotalValue)
	}
	last := env.pub.deductions[len(env.pub.deductions)-1]
	if last.Quantity != 2 {
		t.Errorf("deduction for positive delta = %d, want 2", last.Quantity)
	}

	before := len(env.pub.deductions)
	item, removed, err = env.svc.AdjustQuantity(ctx, &models.AdjustQuantityRequest{LineItemID: id, Delta: -1}, "req-3")
	if err != nil || removed {
		t.Fatalf("AdjustQuantity(-1) = removed %v, err %v", removed, err)
	}
	if item.Quantity != 2 {
		t.Errorf("after -1: quantity = %d, want 2", item.Quantity)
	}
	if len(env.pub.deductions) != before {
		t.Error("negative delta must not emit a deduction")
	}

	_, _, err = env.svc.AdjustQuantity(ctx, &models.AdjustQuantityRequest{LineItemID: 99, Delta: 1}, "req-4")
	if !errors.Is(err, models.ErrLineItemNotFound) {
		t.Errorf("unknown line item error = %v, want ErrLineItemNotFound", err)
	}
}

func TestOpenOrderNoTableAvailable(t *testing.T) {
	env := newTestEnv()
	env.tabs.free = nil

	_, err := env.svc.OpenOrder(context.Background(), &models.OpenOrderRequest{
		OccupantKind: "table",
		Items:        []models.OrderItemRequest{{ProductID: 1, Quantity: 1}},
	}, "req-1")
	if !errors.Is(err, models.ErrNoTableAvailable) {
		t.Fatalf("expected ErrNoTableAvailable, got %v", err)
	}
	if len(env.store.rows) != 0 {
		t.Errorf("expected no rows written, got %d", len(env.store.rows))
	}
}

func TestListOpenItemsEmptyTab(t *testing.T) {
	env := newTestEnv()

	items, err := env.svc.ListOpenItems(context.Background(), "Mesa 9")
	if err != nil {
		t.Fatalf("ListOpenItems returned error: %v", err)
	}
	if items == nil {
		t.Fatal("expected an empty slice for an empty tab, got nil")
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
}

func TestBuildPrepTickets(t *testing.T) {
	products := map[int64]*models.Product{
		1: {ID: 1, Name: "Burger", Price: decimal.RequireFromString("5.00"), PrepMinutes: 12, Station: "kitchen"},
		2: {ID: 2, Name: "Fries", Price: decimal.RequireFromString("2.50"), PrepMinutes: 6, Station: "kitchen"},
		3: {ID: 3, Name: "Mojito", Price: decimal.RequireFromString("7.00"), PrepMinutes: 4, Station: "bar"},
	}

	items := []models.OrderItemRequest{
		{ProductID: 1, Quantity: 2, Notes: strPtr("no onions")},
		{ProductID: 3, Quantity: 1},
		{ProductID: 2, Quantity: 1},
	}

	tickets := BuildPrepTickets(7, "Mesa 3", products, items)
	if len(tickets) != 2 {
		t.Fatalf("expected 2 tickets (kitchen and bar), got %d", len(tickets))
	}

	byStation := map[string]*models.PrepTicket{}
	for _, ticket := range tickets {
		byStation[ticket.Station] = ticket
	}

	kitchenTicket := byStation["kitchen"]
	if kitchenTicket == nil {
		t.Fatal("expected a kitchen ticket")
	}
	if kitchenTicket.OrderNumber != 7 || kitchenTicket.Occupant != "Mesa 3" {
		t.Errorf("kitchen ticket header = %d/%q, want 7/Mesa 3", kitchenTicket.OrderNumber, kitchenTicket.Occupant)
	}
	if len(kitchenTicket.Items) != 2 {
		t.Fatalf("expected 2 kitchen items, got %d", len(kitchenTicket.Items))
	}
	if kitchenTicket.Items[0].Name != "Burger" || kitchenTicket.Items[0].Quantity != 2 {
		t.Errorf("first kitchen item = %+v, want 2x Burger", kitchenTicket.Items[0])
	}
	if kitchenTicket.Items[0].Notes == nil || *kitchenTicket.Items[0].Notes != "no onions" {
		t.Error("expected notes to carry through to the ticket")
	}
	if kitchenTicket.Items[0].PrepMinutes != 12 {
		t.Errorf("expected prep time 12, got %d", kitchenTicket.Items[0].PrepMinutes)
	}

	barTicket := byStation["bar"]
	if barTicket == nil {
		t.Fatal("expected a bar ticket")
	}
	if len(barTicket.Items) != 1 || barTicket.Items[0].Name != "Mojito" {
		t.Errorf("bar ticket items = %+v, want 1x Mojito", barTicket.Items)
	}
}

func TestBuildPrepTicketsUnknownStation(t *testing.T) {
	products := map[int64]*models.Product{
		5: {ID: 5, Name: "Flan", Price: decimal.RequireFromString("3.00"), PrepMinutes: 2, Station: "dessert"},
	}
	items := []models.OrderItemRequest{{ProductID: 5, Quantity: 1}}

	tickets := BuildPrepTickets(1, "Barra 2", products, items)
	if len(tickets) != 1 {
		t.Fatalf("expected 1 ticket, got %d", len(tickets))
	}
	if tickets[0].Station != "kitchen" {
		t.Errorf("unknown station routed to %q, want kitchen", tickets[0].Station)
	}
}

func TestBuildPrepTicketsSkipsUnresolvedProducts(t *testing.T) {
	items := []models.OrderItemRequest{{ProductID: 99, Quantity: 1}}

	tickets := BuildPrepTickets(1, "Mesa 1", map[int64]*models.Product{}, items)
	if len(tickets) != 0 {
		t.Errorf("expected no tickets for unresolved products, got %d", len(tickets))
	}
}

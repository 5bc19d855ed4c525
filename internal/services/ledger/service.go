// Package ledger maintains the set of pending and paid sale line items: the
// running tabs that accumulate products until settlement.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"cantina-pos/internal/config"
	"cantina-pos/internal/database"
	"cantina-pos/internal/logger"
	"cantina-pos/internal/models"
)

// Querier is the database surface the ledger uses. *database.DB satisfies it;
// tests substitute an in-memory fake.
type Querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	ExecRows(ctx context.Context, sql string, args ...interface{}) (int64, error)
	Ping(ctx context.Context) error
}

// ProductResolver resolves catalog products
type ProductResolver interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
}

// TableReserver reserves and releases seating resources for orders
type TableReserver interface {
	Reserve(ctx context.Context, kind models.TableKind, requestID string) (*models.Table, error)
	Release(ctx context.Context, tableID int64, requestID string) error
}

// SideEffectPublisher emits the fire-and-forget downstream messages of a sale
type SideEffectPublisher interface {
	PublishDeduction(ctx context.Context, req *models.InventoryDeductionRequest) error
	PublishPrepTicket(ctx context.Context, ticket *models.PrepTicket) error
}

// Service is the order ledger
type Service struct {
	db        Querier
	catalog   ProductResolver
	tables    TableReserver
	publisher SideEffectPublisher
	numbering *Numbering
	cfg       config.BusinessConfig
	logger    *logger.Logger
}

// NewService creates a new order ledger service
func NewService(db Querier, cat ProductResolver, tab TableReserver, pub SideEffectPublisher, cfg config.BusinessConfig, log *logger.Logger) *Service {
	return &Service{
		db:        db,
		catalog:   cat,
		tables:    tab,
		publisher: pub,
		numbering: NewNumbering(db, cfg.ID),
		cfg:       cfg,
		logger:    log,
	}
}

// OpenOrder creates a new order: reserves a table for table/bar orders, mints
// an order number and persists the items in one transaction, then emits
// preparation tickets and inventory deductions.
func (s *Service) OpenOrder(ctx context.Context, req *models.OpenOrderRequest, requestID string) (*models.OrderResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Resolve every product before writing anything, so a bad product id
	// rejects the whole order with no partial writes.
	products, err := s.resolveProducts(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	occupant := req.CustomerName
	var reserved *models.Table
	if req.OccupantKind != "customer" {
		table, err := s.tables.Reserve(ctx, models.TableKind(req.OccupantKind), requestID)
		if err != nil {
			return nil, err
		}
		occupant = table.Name
		reserved = table
	}

	orderNumber, items, err := s.writeItems(ctx, occupant, 0, true, products, req.Items, requestID)
	if err != nil {
		// The order never existed; hand the table back instead of leaving
		// it occupied with no items.
		if reserved != nil {
			if relErr := s.tables.Release(ctx, reserved.ID, requestID); relErr != nil {
				s.logger.Error("table_release_failed",
					fmt.Sprintf("Failed to release %s after aborted order", reserved.Name),
					requestID, relErr, nil)
			}
		}
		return nil, err
	}

	s.emitDeductions(ctx, occupant, req.Items, requestID)
	s.publishPrepTickets(ctx, orderNumber, occupant, products, req.Items, requestID)

	s.logger.Info("order_opened", fmt.Sprintf("Opened order %d for %s", orderNumber, occupant), requestID, map[string]interface{}{
		"order_number": orderNumber,
		"occupant":     occupant,
		"item_count":   len(items),
	})

	return &models.OrderResponse{
		OrderNumber: orderNumber,
		Occupant:    occupant,
		Items:       items,
		Subtotal:    models.Subtotal(items),
	}, nil
}

// AppendItems accumulates additional products onto an already-open tab and
// emits a preparation ticket for the newly added items.
func (s *Service) AppendItems(ctx context.Context, req *models.AppendItemsRequest, requestID string) (*models.OrderResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	products, err := s.resolveProducts(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	_, items, err := s.writeItems(ctx, req.Occupant, req.OrderNumber, false, products, req.Items, requestID)
	if err != nil {
		return nil, err
	}

	s.emitDeductions(ctx, req.Occupant, req.Items, requestID)
	s.publishPrepTickets(ctx, req.OrderNumber, req.Occupant, products, req.Items, requestID)

	return &models.OrderResponse{
		OrderNumber: req.OrderNumber,
		Occupant:    req.Occupant,
		Items:       items,
		Subtotal:    models.Subtotal(items),
	}, nil
}

// writeItems upserts the requested items in one transaction, merging into an
// existing pending line for the same occupant, order and product when one
// exists. When mint is true the order number is taken inside the same
// transaction, under the advisory lock, so the number read and the inserts
// commit together and two concurrent orders can never observe the same
// maximum.
func (s *Service) writeItems(ctx context.Context, occupant string, orderNumber int, mint bool, products map[int64]*models.Product, reqs []models.OrderItemRequest, requestID string) (int, []models.LineItem, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if mint {
		if orderNumber, err = s.numbering.nextOrderNumberTx(ctx, tx); err != nil {
			return 0, nil, err
		}
	}

	items := make([]models.LineItem, 0, len(reqs))
	for _, itemReq := range reqs {
		product := products[itemReq.ProductID]
		total := product.Price.Mul(decimal.NewFromInt(int64(itemReq.Quantity)))

		item, err := scanLineItem(tx.QueryRow(ctx, database.UpsertLineItemSQL,
			s.cfg.ID,
			orderNumber,
			occupant,
			product.ID,
			product.Name,
			itemReq.Quantity,
			product.Price,
			total,
			itemReq.Notes,
		))
		if err != nil {
			return 0, nil, fmt.Errorf("failed to upsert line item: %w", err)
		}

		s.logger.Debug("item_added", fmt.Sprintf("Added %dx %s to %s", itemReq.Quantity, product.Name, occupant), requestID, map[string]interface{}{
			"line_item_id": item.ID,
			"order_number": orderNumber,
			"occupant":     occupant,
			"product_name": product.Name,
			"quantity":     item.Quantity,
			"total_value":  item.TotalValue,
		})

		items = append(items, *item)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return orderNumber, items, nil
}

// AdjustQuantity changes a pending line item's quantity by delta. A result of
// zero or less deletes the item instead of leaving a zero-quantity record.
// The table is not released here; release only happens via settlement.
func (s *Service) AdjustQuantity(ctx context.Context, req *models.AdjustQuantityRequest, requestID string) (*models.LineItem, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanLineItem(tx.QueryRow(ctx, database.GetLineItemForUpdateSQL, req.LineItemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, models.ErrLineItemNotFound
		}
		return nil, false, fmt.Errorf("failed to lock line item: %w", err)
	}

	newQuantity := current.Quantity + req.Delta
	if newQuantity <= 0 {
		if _, err := tx.Exec(ctx, database.DeleteLineItemSQL, req.LineItemID); err != nil {
			return nil, false, fmt.Errorf("failed to delete line item: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
		}

		s.logger.Info("item_removed", fmt.Sprintf("Removed %s from %s (quantity reached zero)", current.ProductName, current.Occupant), requestID, map[string]interface{}{
			"line_item_id": req.LineItemID,
			"occupant":     current.Occupant,
		})
		return nil, true, nil
	}

	updated, err := scanLineItem(tx.QueryRow(ctx, database.UpdateLineItemQuantitySQL, req.LineItemID, newQuantity))
	if err != nil {
		return nil, false, fmt.Errorf("failed to update line item quantity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Positive adjustments deplete stock for the added units; negative ones
	// never restock.
	if req.Delta > 0 && current.ProductID != nil {
		s.emitDeduction(ctx, *current.ProductID, req.Delta, current.Occupant, requestID)
	}

	s.logger.Debug("quantity_adjusted", fmt.Sprintf("Adjusted %s by %+d", current.ProductName, req.Delta), requestID, map[string]interface{}{
		"line_item_id": req.LineItemID,
		"quantity":     updated.Quantity,
		"total_value":  updated.TotalValue,
	})

	return updated, false, nil
}

// RemoveItem deletes a pending line item unconditionally. No inventory
// restock is attempted.
func (s *Service) RemoveItem(ctx context.Context, req *models.RemoveItemRequest, requestID string) error {
	if err := req.Validate(); err != nil {
		return err
	}

	affected, err := s.db.ExecRows(ctx, database.DeleteLineItemSQL, req.LineItemID)
	if err != nil {
		return fmt.Errorf("failed to delete line item: %w", err)
	}
	if affected == 0 {
		return models.ErrLineItemNotFound
	}

	s.logger.Info("item_removed", fmt.Sprintf("Removed line item %d", req.LineItemID), requestID, map[string]interface{}{
		"line_item_id": req.LineItemID,
	})

	return nil
}

// ListOpenItems returns all pending items for an occupant, oldest first. An
// empty tab is an empty slice, never nil, so it serializes as a JSON array.
func (s *Service) ListOpenItems(ctx context.Context, occupant string) ([]models.LineItem, error) {
	rows, err := s.db.Query(ctx, database.ListOpenItemsSQL, s.cfg.ID, occupant)
	if err != nil {
		return nil, fmt.Errorf("failed to query open items: %w", err)
	}
	defer rows.Close()

	items := []models.LineItem{}
	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items = append(items, *item)
	}

	return items, rows.Err()
}

// HealthCheck checks the health of dependencies
func (s *Service) HealthCheck(ctx context.Context) bool {
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health_check_failed", "Database ping failed", "", err, nil)
		return false
	}
	return true
}

func (s *Service) resolveProducts(ctx context.Context, items []models.OrderItemRequest) (map[int64]*models.Product, error) {
	products := make(map[int64]*models.Product, len(items))
	for _, item := range items {
		if _, ok := products[item.ProductID]; ok {
			continue
		}
		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		products[item.ProductID] = product
	}
	return products, nil
}

// emitDeductions publishes one inventory deduction per requested item. Only
// the delta just added is depleted from stock, never the running total.
func (s *Service) emitDeductions(ctx context.Context, occupant string, items []models.OrderItemRequest, requestID string) {
	for _, item := range items {
		s.emitDeduction(ctx, item.ProductID, item.Quantity, occupant, requestID)
	}
}

// emitDeduction publishes an inventory deduction for a quantity delta.
// Failures are logged and swallowed; inventory unavailability never blocks
// or rolls back a sale.
func (s *Service) emitDeduction(ctx context.Context, productID int64, quantity int, occupant, requestID string) {
	deduction := &models.InventoryDeductionRequest{
		ProductID: productID,
		Quantity:  quantity,
		Occupant:  occupant,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	}

	if err := s.publisher.PublishDeduction(ctx, deduction); err != nil {
		s.logger.Error("inventory_deduction_failed",
			fmt.Sprintf("Failed to publish deduction for product %d", productID),
			requestID, err, map[string]interface{}{
				"product_id": productID,
				"quantity":   quantity,
			})
	}
}

// publishPrepTickets builds one ticket per station from the requested items
// and publishes them. Ticket failures are logged, never propagated.
func (s *Service) publishPrepTickets(ctx context.Context, orderNumber int, occupant string, products map[int64]*models.Product, items []models.OrderItemRequest, requestID string) {
	for _, ticket := range BuildPrepTickets(orderNumber, occupant, products, items) {
		if err := s.publisher.PublishPrepTicket(ctx, ticket); err != nil {
			s.logger.Error("prep_ticket_failed",
				fmt.Sprintf("Failed to publish prep ticket for order %d", orderNumber),
				requestID, err, map[string]interface{}{
					"order_number": orderNumber,
					"station":      ticket.Station,
				})
		}
	}
}

// BuildPrepTickets groups requested items by preparation station. Items with
// an unknown station go to the kitchen.
func BuildPrepTickets(orderNumber int, occupant string, products map[int64]*models.Product, items []models.OrderItemRequest) []*models.PrepTicket {
	byStation := make(map[string][]models.PrepTicketItem)
	var stations []string

	for _, item := range items {
		product := products[item.ProductID]
		if product == nil {
			continue
		}

		station := product.Station
		if station != "bar" {
			station = "kitchen"
		}

		if _, seen := byStation[station]; !seen {
			stations = append(stations, station)
		}
		byStation[station] = append(byStation[station], models.PrepTicketItem{
			ProductID:   product.ID,
			Name:        product.Name,
			Quantity:    item.Quantity,
			PrepMinutes: product.PrepMinutes,
			Notes:       item.Notes,
		})
	}

	tickets := make([]*models.PrepTicket, 0, len(stations))
	for _, station := range stations {
		tickets = append(tickets, &models.PrepTicket{
			OrderNumber: orderNumber,
			Occupant:    occupant,
			Station:     station,
			Items:       byStation[station],
			CreatedAt:   time.Now().UTC(),
		})
	}

	return tickets
}

func scanLineItem(row pgx.Row) (*models.LineItem, error) {
	var item models.LineItem
	err := row.Scan(
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
		return nil, err
	}
	return &item, nil
}

// Package inventory applies deduction requests to the stock table. The
// relay is the best-effort downstream of a sale: it can lag or be down
// without ever blocking the order path.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"cantina-pos/internal/database"
	"cantina-pos/internal/logger"
	"cantina-pos/internal/messaging"
	"cantina-pos/internal/models"
)

// Worker consumes inventory deduction requests
type Worker struct {
	db       *database.DB
	consumer *messaging.Consumer
	logger   *logger.Logger

	done chan bool
}

// NewWorker creates a new inventory relay worker
func NewWorker(db *database.DB, consumer *messaging.Consumer, log *logger.Logger) *Worker {
	return &Worker{
		db:       db,
		consumer: consumer,
		logger:   log,
		done:     make(chan bool, 1),
	}
}

// Start starts consuming deduction requests until the context is cancelled
func (w *Worker) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()

	go func() {
		if err := w.consumer.StartConsuming(ctx, w.handleDeduction); err != nil && ctx.Err() == nil {
			w.logger.Error("consumer_failed", "Inventory consumer failed", requestID, err, nil)
		}
		w.done <- true
	}()

	w.logger.Info("worker_started", "Inventory relay started", requestID, nil)

	select {
	case <-ctx.Done():
		w.consumer.Close()
		return nil
	case <-w.done:
		return nil
	}
}

// handleDeduction applies a single stock deduction
func (w *Worker) handleDeduction(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var req models.InventoryDeductionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.logger.Error("message_parsing_failed", "Failed to parse deduction request", requestID, err, nil)
		return fmt.Errorf("failed to parse deduction: %w", err)
	}

	affected, err := w.db.ExecRows(ctx, database.DeductInventorySQL, req.ProductID, req.Quantity)
	if err != nil {
		return fmt.Errorf("failed to deduct stock for product %d: %w", req.ProductID, err)
	}

	if affected == 0 {
		// No stock row for this product. Best effort: log it and ack so the
		// message is not requeued forever.
		w.logger.Error("stock_row_missing",
			fmt.Sprintf("No inventory row for product %d", req.ProductID),
			requestID, nil, map[string]interface{}{
				"product_id": req.ProductID,
				"quantity":   req.Quantity,
			})
		return nil
	}

	w.logger.Debug("stock_deducted",
		fmt.Sprintf("Deducted %d units of product %d", req.Quantity, req.ProductID),
		requestID, map[string]interface{}{
			"product_id": req.ProductID,
			"quantity":   req.Quantity,
			"occupant":   req.Occupant,
		})

	return nil
}

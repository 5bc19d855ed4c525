package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderItemRequest is one requested product line
type OrderItemRequest struct {
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Notes     *string `json:"notes,omitempty"`
}

// OpenOrderRequest creates a new order. For table and bar orders a resource
// is reserved automatically; takeout and delivery orders carry the customer
// name as their occupant.
type OpenOrderRequest struct {
	OccupantKind string             `json:"occupant_kind"`
	CustomerName string             `json:"customer_name,omitempty"`
	Items        []OrderItemRequest `json:"items"`
}

// Validate checks the open order request before any write happens
func (req *OpenOrderRequest) Validate() error {
	switch req.OccupantKind {
	case "table", "bar":
		if req.CustomerName != "" {
			return ValidationError{Field: "customer_name", Message: "must not be present for table or bar orders"}
		}
	case "customer":
		if req.CustomerName == "" {
			return ValidationError{Field: "customer_name", Message: "customer name is required for takeout and delivery orders"}
		}
		if len(req.CustomerName) > 100 {
			return ValidationError{Field: "customer_name", Message: "customer name must be less than 100 characters"}
		}
	default:
		return ValidationError{Field: "occupant_kind", Message: "must be one of: table, bar, customer"}
	}

	return validateItems(req.Items)
}

// AppendItemsRequest adds products to an already open tab
type AppendItemsRequest struct {
	Occupant    string             `json:"occupant"`
	OrderNumber int                `json:"order_number"`
	Items       []OrderItemRequest `json:"items"`
}

// Validate checks the append request before any write happens
func (req *AppendItemsRequest) Validate() error {
	if req.Occupant == "" {
		return ValidationError{Field: "occupant", Message: "occupant is required"}
	}
	if req.OrderNumber < 1 {
		return ValidationError{Field: "order_number", Message: "order number must be positive"}
	}
	return validateItems(req.Items)
}

// AdjustQuantityRequest changes a pending line item's quantity by a delta
type AdjustQuantityRequest struct {
	LineItemID int64 `json:"line_item_id"`
	Delta      int   `json:"delta"`
}

// Validate checks the adjustment request
func (req *AdjustQuantityRequest) Validate() error {
	if req.LineItemID < 1 {
		return ValidationError{Field: "line_item_id", Message: "line item id is required"}
	}
	if req.Delta == 0 {
		return ValidationError{Field: "delta", Message: "delta must not be zero"}
	}
	return nil
}

// RemoveItemRequest deletes a pending line item
type RemoveItemRequest struct {
	LineItemID int64 `json:"line_item_id"`
}

// Validate checks the removal request
func (req *RemoveItemRequest) Validate() error {
	if req.LineItemID < 1 {
		return ValidationError{Field: "line_item_id", Message: "line item id is required"}
	}
	return nil
}

// SettleRequest marks an occupant's pending line items paid
type SettleRequest struct {
	Occupant      string  `json:"occupant"`
	LineItemIDs   []int64 `json:"line_item_ids"`
	PaymentMethod string  `json:"payment_method"`
}

// Validate checks the settlement request before any write happens
func (req *SettleRequest) Validate() error {
	if req.Occupant == "" {
		return ValidationError{Field: "occupant", Message: "occupant is required"}
	}
	if len(req.LineItemIDs) == 0 {
		return ValidationError{Field: "line_item_ids", Message: "at least one line item is required"}
	}
	seen := make(map[int64]struct{}, len(req.LineItemIDs))
	for _, id := range req.LineItemIDs {
		if id < 1 {
			return ValidationError{Field: "line_item_ids", Message: "line item ids must be positive"}
		}
		if _, dup := seen[id]; dup {
			return ValidationError{Field: "line_item_ids", Message: fmt.Sprintf("line item %d is listed more than once", id)}
		}
		seen[id] = struct{}{}
	}
	if req.PaymentMethod == "" {
		return ValidationError{Field: "payment_method", Message: "payment method is required"}
	}
	if !ValidPaymentMethod(req.PaymentMethod) {
		return ValidationError{Field: "payment_method", Message: "must be one of: cash, card, online"}
	}
	return nil
}

// OrderResponse is returned after opening an order or appending to a tab
type OrderResponse struct {
	OrderNumber int             `json:"order_number"`
	Occupant    string          `json:"occupant"`
	Items       []LineItem      `json:"items"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// TabResponse is a running tab for one occupant
type TabResponse struct {
	Occupant string          `json:"occupant"`
	Items    []LineItem      `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// SettlementResult is returned after a successful settlement
type SettlementResult struct {
	InvoiceNumber string          `json:"invoice_number"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Items         []LineItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tip           decimal.Decimal `json:"tip"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	TableReleased bool            `json:"table_released"`
}

// OpenCashierRequest opens a cash-drawer shift
type OpenCashierRequest struct {
	Cashier     string          `json:"cashier"`
	OpeningCash decimal.Decimal `json:"opening_cash"`
}

// Validate checks the cashier open request
func (req *OpenCashierRequest) Validate() error {
	if req.Cashier == "" {
		return ValidationError{Field: "cashier", Message: "cashier name is required"}
	}
	if req.OpeningCash.IsNegative() {
		return ValidationError{Field: "opening_cash", Message: "opening cash must not be negative"}
	}
	return nil
}

// CloseCashierRequest closes a cash-drawer shift
type CloseCashierRequest struct {
	SessionID   int64           `json:"session_id"`
	ClosingCash decimal.Decimal `json:"closing_cash"`
}

// Validate checks the cashier close request
func (req *CloseCashierRequest) Validate() error {
	if req.SessionID < 1 {
		return ValidationError{Field: "session_id", Message: "session id is required"}
	}
	if req.ClosingCash.IsNegative() {
		return ValidationError{Field: "closing_cash", Message: "closing cash must not be negative"}
	}
	return nil
}

// ExpenseRequest records a shift expense
type ExpenseRequest struct {
	Concept string          `json:"concept"`
	Amount  decimal.Decimal `json:"amount"`
}

// Validate checks the expense request
func (req *ExpenseRequest) Validate() error {
	if req.Concept == "" {
		return ValidationError{Field: "concept", Message: "concept is required"}
	}
	if !req.Amount.IsPositive() {
		return ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	return nil
}

func validateItems(items []OrderItemRequest) error {
	if len(items) == 0 {
		return ValidationError{Field: "items", Message: "items cannot be empty"}
	}
	if len(items) > 20 {
		return ValidationError{Field: "items", Message: "a maximum of 20 items is allowed"}
	}

	for i, item := range items {
		if item.ProductID < 1 {
			return ValidationError{
				Field:   fmt.Sprintf("items[%d].product_id", i),
				Message: "product id is required",
			}
		}
		if item.Quantity < 1 {
			return ValidationError{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: "item quantity must be greater than 0",
			}
		}
		if item.Quantity > 50 {
			return ValidationError{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: "item quantity must be less than or equal to 50",
			}
		}
	}
	return nil
}

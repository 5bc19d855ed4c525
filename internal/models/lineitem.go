package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItemStatus represents the status of a sale line item
type LineItemStatus string

const (
	StatusPending   LineItemStatus = "pending"
	StatusPaid      LineItemStatus = "paid"
	StatusCancelled LineItemStatus = "cancelled"
)

// PaymentMethod represents how a settled line item was paid
type PaymentMethod string

const (
	PaymentNone   PaymentMethod = "none"
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentOnline PaymentMethod = "online"
)

// ValidPaymentMethod reports whether the given method can be stamped on a settlement.
// "none" is the unsettled default and is not accepted as a settlement method.
func ValidPaymentMethod(method string) bool {
	switch PaymentMethod(method) {
	case PaymentCash, PaymentCard, PaymentOnline:
		return true
	default:
		return false
	}
}

// LineItem is one product line within an order. The unit price is frozen at
// creation time and total value always equals quantity * unit price.
type LineItem struct {
	ID            int64           `json:"id" db:"id"`
	BusinessID    int             `json:"business_id,omitempty" db:"business_id"`
	OrderNumber   int             `json:"order_number" db:"order_number"`
	InvoiceNumber *string         `json:"invoice_number,omitempty" db:"invoice_number"`
	Occupant      string          `json:"occupant" db:"occupant"`
	ProductID     *int64          `json:"product_id,omitempty" db:"product_id"`
	ProductName   string          `json:"product_name" db:"product_name"`
	Quantity      int             `json:"quantity" db:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price" db:"unit_price"`
	TotalValue    decimal.Decimal `json:"total_value" db:"total_value"`
	Status        LineItemStatus  `json:"status" db:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method" db:"payment_method"`
	Notes         *string         `json:"notes,omitempty" db:"notes"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Product is a menu catalog entry, authoritative and read-only for the core
type Product struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Price       decimal.Decimal `json:"price" db:"price"`
	PrepMinutes int             `json:"prep_minutes" db:"prep_minutes"`
	Station     string          `json:"station" db:"station"`
}

// Subtotal sums the total values of the given items
func Subtotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.TotalValue)
	}
	return total
}

package models

import (
	"fmt"
	"time"
)

// InventoryDeductionRequest asks the inventory coordinator to deplete stock
// for a product. One request is emitted per quantity delta added to a line
// item, never for the running total. Delivery is best effort.
type InventoryDeductionRequest struct {
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Occupant  string    `json:"occupant"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// PrepTicketItem is one line of a preparation ticket
type PrepTicketItem struct {
	ProductID   int64   `json:"product_id"`
	Name        string  `json:"name"`
	Quantity    int     `json:"quantity"`
	PrepMinutes int     `json:"prep_minutes"`
	Notes       *string `json:"notes,omitempty"`
}

// PrepTicket is the structured order notification sent to the kitchen or bar
// display when an order is created. At-least-once delivery is acceptable.
type PrepTicket struct {
	OrderNumber int              `json:"order_number"`
	Occupant    string           `json:"occupant"`
	Station     string           `json:"station"`
	Items       []PrepTicketItem `json:"items"`
	CreatedAt   time.Time        `json:"created_at"`
}

// PrepRoutingKey generates the routing key for a preparation ticket
func PrepRoutingKey(station string) string {
	if station != "bar" {
		station = "kitchen"
	}
	return fmt.Sprintf("prep.%s", station)
}

package models

import (
	"errors"
	"fmt"
)

// Conflict and lookup errors surfaced to staff as specific, actionable messages
var (
	ErrNoTableAvailable   = errors.New("no tables of the requested kind are available")
	ErrCashierAlreadyOpen = errors.New("a cashier session is already open")
	ErrCashierNotOpen     = errors.New("cash register is not open")
	ErrLineItemNotFound   = errors.New("line item not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrSessionNotFound    = errors.New("cashier session not found")
)

// ValidationError rejects a request before any write happens
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// SettlementMismatchError reports a settlement that updated some but not all
// of the requested line items. The tab is left mixed and the operator must
// reconcile using the two id lists; retrying blindly would double-apply.
type SettlementMismatchError struct {
	Settled   []int64
	Unsettled []int64
}

func (e *SettlementMismatchError) Error() string {
	return fmt.Sprintf("settlement applied to %d of %d items; settled=%v unsettled=%v",
		len(e.Settled), len(e.Settled)+len(e.Unsettled), e.Settled, e.Unsettled)
}

// IsConflict reports whether err is a user-actionable conflict rather than a
// validation or internal failure
func IsConflict(err error) bool {
	return errors.Is(err, ErrNoTableAvailable) ||
		errors.Is(err, ErrCashierAlreadyOpen) ||
		errors.Is(err, ErrCashierNotOpen)
}

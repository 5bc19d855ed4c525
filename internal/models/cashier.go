package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashierSessionStatus represents the status of a cash-drawer shift
type CashierSessionStatus string

const (
	SessionOpen   CashierSessionStatus = "open"
	SessionClosed CashierSessionStatus = "closed"
)

// CashierSession is one cash-drawer shift. At most one session per business
// is open at a time; a closed session is never reopened.
type CashierSession struct {
	ID            int64                `json:"id" db:"id"`
	BusinessID    int                  `json:"business_id,omitempty" db:"business_id"`
	Cashier       string               `json:"cashier" db:"cashier"`
	OpenedAt      time.Time            `json:"opened_at" db:"opened_at"`
	ClosedAt      *time.Time           `json:"closed_at,omitempty" db:"closed_at"`
	OpeningCash   decimal.Decimal      `json:"opening_cash" db:"opening_cash"`
	ClosingCash   *decimal.Decimal     `json:"closing_cash,omitempty" db:"closing_cash"`
	TotalSales    decimal.Decimal      `json:"total_sales" db:"total_sales"`
	TotalExpenses decimal.Decimal      `json:"total_expenses" db:"total_expenses"`
	NetUtility    decimal.Decimal      `json:"net_utility" db:"net_utility"`
	Status        CashierSessionStatus `json:"status" db:"status"`
}

// Expense is a recorded shift expense, consumed by the session close rollup
type Expense struct {
	ID         int64           `json:"id" db:"id"`
	BusinessID int             `json:"business_id,omitempty" db:"business_id"`
	Concept    string          `json:"concept" db:"concept"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

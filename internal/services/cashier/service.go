// Package cashier tracks cash-drawer shifts: opening and closing cash counts
// and the sales/expense rollup that reconciles a shift. It aggregates the
// ledger's totals but owns no line items or tables.
package cashier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"cantina-pos/internal/config"
	"cantina-pos/internal/database"
	"cantina-pos/internal/logger"
	"cantina-pos/internal/models"
)

// Postgres unique violation, raised by the one-open-session-per-business index
const uniqueViolationCode = "23505"

// Querier is the database surface the session tracker uses. *database.DB
// satisfies it; tests substitute an in-memory fake.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	ExecRows(ctx context.Context, sql string, args ...interface{}) (int64, error)
}

// Service is the cashier session tracker
type Service struct {
	db     Querier
	cfg    config.BusinessConfig
	logger *logger.Logger
}

// NewService creates a new cashier session tracker
func NewService(db Querier, cfg config.BusinessConfig, log *logger.Logger) *Service {
	return &Service{
		db:     db,
		cfg:    cfg,
		logger: log,
	}
}

// Open starts a new cash-drawer shift. At most one session per business may
// be open; a second open attempt is a conflict, enforced by the database.
func (s *Service) Open(ctx context.Context, req *models.OpenCashierRequest, requestID string) (*models.CashierSession, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	session := &models.CashierSession{
		BusinessID:    s.cfg.ID,
		Cashier:       req.Cashier,
		OpeningCash:   req.OpeningCash,
		TotalSales:    decimal.Zero,
		TotalExpenses: decimal.Zero,
		NetUtility:    decimal.Zero,
		Status:        models.SessionOpen,
	}

	err := s.db.QueryRow(ctx, database.InsertCashierSessionSQL, s.cfg.ID, req.Cashier, req.OpeningCash).
		Scan(&session.ID, &session.OpenedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, models.ErrCashierAlreadyOpen
		}
		return nil, fmt.Errorf("failed to open cashier session: %w", err)
	}

	s.logger.Info("cashier_opened", fmt.Sprintf("Cashier session opened by %s", req.Cashier), requestID, map[string]interface{}{
		"session_id":   session.ID,
		"cashier":      req.Cashier,
		"opening_cash": req.OpeningCash,
	})

	return session, nil
}

// Close ends a shift: sums the settled sales and recorded expenses inside the
// shift window, computes net utility, and marks the session closed. A closed
// session is never reopened.
func (s *Service) Close(ctx context.Context, req *models.CloseCashierRequest, requestID string) (*models.CashierSession, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	session, err := s.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionOpen {
		return nil, models.ValidationError{Field: "session_id", Message: "session is already closed"}
	}

	now := time.Now().UTC()

	var totalSales decimal.Decimal
	if err := s.db.QueryRow(ctx, database.SumPaidSalesSQL, s.cfg.ID, session.OpenedAt, now).Scan(&totalSales); err != nil {
		return nil, fmt.Errorf("failed to sum shift sales: %w", err)
	}

	var totalExpenses decimal.Decimal
	if err := s.db.QueryRow(ctx, database.SumExpensesSQL, s.cfg.ID, session.OpenedAt, now).Scan(&totalExpenses); err != nil {
		return nil, fmt.Errorf("failed to sum shift expenses: %w", err)
	}

	netUtility := NetUtility(totalSales, totalExpenses)

	affected, err := s.db.ExecRows(ctx, database.CloseCashierSessionSQL,
		req.SessionID, s.cfg.ID, now, req.ClosingCash, totalSales, totalExpenses, netUtility)
	if err != nil {
		return nil, fmt.Errorf("failed to close cashier session: %w", err)
	}
	if affected == 0 {
		// Lost the race with a concurrent close
		return nil, models.ValidationError{Field: "session_id", Message: "session is already closed"}
	}

	session.ClosedAt = &now
	session.ClosingCash = &req.ClosingCash
	session.TotalSales = totalSales
	session.TotalExpenses = totalExpenses
	session.NetUtility = netUtility
	session.Status = models.SessionClosed

	s.logger.Info("cashier_closed", fmt.Sprintf("Cashier session %d closed", session.ID), requestID, map[string]interface{}{
		"session_id":     session.ID,
		"total_sales":    totalSales,
		"total_expenses": totalExpenses,
		"net_utility":    netUtility,
	})

	return session, nil
}

// Get loads one cashier session
func (s *Service) Get(ctx context.Context, sessionID int64) (*models.CashierSession, error) {
	var session models.CashierSession
	session.BusinessID = s.cfg.ID

	err := s.db.QueryRow(ctx, database.GetCashierSessionSQL, sessionID, s.cfg.ID).Scan(
		&session.ID,
		&session.Cashier,
		&session.OpenedAt,
		&session.ClosedAt,
		&session.OpeningCash,
		&session.ClosingCash,
		&session.TotalSales,
		&session.TotalExpenses,
		&session.NetUtility,
		&session.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query cashier session: %w", err)
	}

	return &session, nil
}

// RecordExpense books a shift expense that the close rollup will pick up
func (s *Service) RecordExpense(ctx context.Context, req *models.ExpenseRequest, requestID string) (*models.Expense, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	expense := &models.Expense{
		BusinessID: s.cfg.ID,
		Concept:    req.Concept,
		Amount:     req.Amount,
	}

	err := s.db.QueryRow(ctx, database.InsertExpenseSQL, s.cfg.ID, req.Concept, req.Amount).
		Scan(&expense.ID, &expense.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record expense: %w", err)
	}

	s.logger.Info("expense_recorded", fmt.Sprintf("Recorded expense %q", req.Concept), requestID, map[string]interface{}{
		"expense_id": expense.ID,
		"concept":    req.Concept,
		"amount":     req.Amount,
	})

	return expense, nil
}

// NetUtility is the shift result: sales minus expenses
func NetUtility(totalSales, totalExpenses decimal.Decimal) decimal.Decimal {
	return totalSales.Sub(totalExpenses)
}

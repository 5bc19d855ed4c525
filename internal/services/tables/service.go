// Package tables owns the availability state of seating and bar resources.
// No other package writes tables.available; settlement releases through here.
package tables

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cantina-pos/internal/config"
	"cantina-pos/internal/database"
	"cantina-pos/internal/logger"
	"cantina-pos/internal/models"
)

// Querier is the database surface the table manager uses. *database.DB
// satisfies it; tests substitute an in-memory fake.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) error
	ExecRows(ctx context.Context, sql string, args ...interface{}) (int64, error)
}

// Service is the table session manager
type Service struct {
	db     Querier
	cfg    config.BusinessConfig
	logger *logger.Logger
}

// NewService creates a new table session manager
func NewService(db Querier, cfg config.BusinessConfig, log *logger.Logger) *Service {
	return &Service{
		db:     db,
		cfg:    cfg,
		logger: log,
	}
}

// PrefixFor maps a resource kind to the name prefix its rows carry
func PrefixFor(kind models.TableKind, cfg config.BusinessConfig) (string, error) {
	switch kind {
	case models.KindTable:
		return cfg.TablePrefix, nil
	case models.KindBar:
		return cfg.BarPrefix, nil
	default:
		return "", models.ValidationError{Field: "kind", Message: "must be one of: table, bar"}
	}
}

// Reserve claims the lowest-ordinal available resource of the requested kind
// and marks it occupied. Two concurrent calls never receive the same table;
// the claim is a single conditional update.
func (s *Service) Reserve(ctx context.Context, kind models.TableKind, requestID string) (*models.Table, error) {
	prefix, err := PrefixFor(kind, s.cfg)
	if err != nil {
		return nil, err
	}

	var table models.Table
	err = s.db.QueryRow(ctx, database.ReserveTableSQL, prefix).Scan(
		&table.ID,
		&table.Name,
		&table.Capacity,
		&table.Available,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Debug("table_unavailable",
				fmt.Sprintf("No available %s resources", kind), requestID, map[string]interface{}{
					"kind":   string(kind),
					"prefix": prefix,
				})
			return nil, models.ErrNoTableAvailable
		}
		return nil, fmt.Errorf("failed to reserve table: %w", err)
	}

	s.logger.Info("table_reserved",
		fmt.Sprintf("Reserved %s", table.Name), requestID, map[string]interface{}{
			"table_id":   table.ID,
			"table_name": table.Name,
		})

	return &table, nil
}

// Release marks a resource available again. Releasing an already-available
// table is a no-op, not an error.
func (s *Service) Release(ctx context.Context, tableID int64, requestID string) error {
	if err := s.db.Exec(ctx, database.ReleaseTableSQL, tableID); err != nil {
		return fmt.Errorf("failed to release table %d: %w", tableID, err)
	}

	s.logger.Info("table_released", fmt.Sprintf("Released table %d", tableID), requestID, map[string]interface{}{
		"table_id": tableID,
	})

	return nil
}

// ReleaseByName releases the resource with the given display name, if one
// exists. Returns whether a table row matched; a non-table occupant (takeout
// or delivery customer) simply matches nothing.
func (s *Service) ReleaseByName(ctx context.Context, name, requestID string) (bool, error) {
	affected, err := s.db.ExecRows(ctx, database.ReleaseTableByNameSQL, name)
	if err != nil {
		return false, fmt.Errorf("failed to release table %q: %w", name, err)
	}

	if affected > 0 {
		s.logger.Info("table_released", fmt.Sprintf("Released %s", name), requestID, map[string]interface{}{
			"table_name": name,
		})
	}

	return affected > 0, nil
}

package tables

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"

	"cantina-pos/internal/config"
	"cantina-pos/internal/database"
	"cantina-pos/internal/database/dbtest"
	"cantina-pos/internal/logger"
	"cantina-pos/internal/models"
)

// tableStore emulates the tables relation and the numeric-aware ordering of
// the reservation statement.
type tableStore struct {
	tables []*models.Table
}

func ordinal(name string) int {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, name)
	n, _ := strconv.Atoi(digits)
	return n
}

func (s *tableStore) queryRow(sql string, args []interface{}) pgx.Row {
	if sql != database.ReserveTableSQL {
		return dbtest.Row{Err: fmt.Errorf("unexpected query: %s", sql)}
	}
	prefix := args[0].(string)

	var pick *models.Table
	for _, table := range s.tables {
		if !table.Available || !strings.HasPrefix(table.Name, prefix+" ") {
			continue
		}
		if pick == nil || ordinal(table.Name) < ordinal(pick.Name) {
			pick = table
		}
	}
	if pick == nil {
		return dbtest.Row{Err: pgx.ErrNoRows}
	}
	pick.Available = false
	return dbtest.Row{Values: []interface{}{pick.ID, pick.Name, pick.Capacity, pick.Available}}
}

func (s *tableStore) exec(sql string, args []interface{}) (int64, error) {
	switch sql {
	case database.ReleaseTableSQL:
		id := args[0].(int64)
		for _, table := range s.tables {
			if table.ID == id {
				table.Available = true
				return 1, nil
			}
		}
		return 0, nil
	case database.ReleaseTableByNameSQL:
		name := args[0].(string)
		for _, table := range s.tables {
			if table.Name == name && !table.Available {
				table.Available = true
				return 1, nil
			}
		}
		return 0, nil
	}
	return 0, fmt.Errorf("unexpected exec: %s", sql)
}

func newTableService(tables ...*models.Table) (*Service, *tableStore) {
	store := &tableStore{tables: tables}
	fake := &dbtest.Fake{QueryRowFunc: store.queryRow, ExecFunc: store.exec}
	cfg := config.BusinessConfig{ID: 1, TablePrefix: "Mesa", BarPrefix: "Barra"}
	return NewService(fake, cfg, logger.New("tables-test")), store
}

func TestPrefixFor(t *testing.T) {
	cfg := config.BusinessConfig{TablePrefix: "Mesa", BarPrefix: "Barra"}

	tests := []struct {
		name    string
		kind    models.TableKind
		want    string
		wantErr bool
	}{
		{name: "table kind", kind: models.KindTable, want: "Mesa"},
		{name: "bar kind", kind: models.KindBar, want: "Barra"},
		{name: "unknown kind", kind: models.TableKind("booth"), wantErr: true},
		{name: "empty kind", kind: models.TableKind(""), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PrefixFor(tt.kind, cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("PrefixFor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var verr models.ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("expected ValidationError, got %T", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("PrefixFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReserveClaimsLowestOrdinal(t *testing.T) {
	svc, _ := newTableService(
		&models.Table{ID: 1, Name: "Mesa 10", Capacity: 6, Available: true},
		&models.Table{ID: 2, Name: "Mesa 2", Capacity: 4, Available: true},
		&models.Table{ID: 3, Name: "Barra 1", Capacity: 1, Available: true},
	)
	ctx := context.Background()

	// "Mesa 2" sorts before "Mesa 10" numerically even though it sorts
	// after it lexically.
	first, err := svc.Reserve(ctx, models.KindTable, "req-1")
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if first.Name != "Mesa 2" {
		t.Errorf("first reservation = %q, want Mesa 2", first.Name)
	}
	if first.Available {
		t.Error("reserved table must be marked unavailable")
	}

	second, err := svc.Reserve(ctx, models.KindTable, "req-2")
	if err != nil {
		t.Fatalf("second Reserve returned error: %v", err)
	}
	if second.Name != "Mesa 10" {
		t.Errorf("second reservation = %q, want Mesa 10", second.Name)
	}

	if _, err := svc.Reserve(ctx, models.KindTable, "req-3"); !errors.Is(err, models.ErrNoTableAvailable) {
		t.Errorf("exhausted tables error = %v, want ErrNoTableAvailable", err)
	}

	bar, err := svc.Reserve(ctx, models.KindBar, "req-4")
	if err != nil {
		t.Fatalf("bar Reserve returned error: %v", err)
	}
	if bar.Name != "Barra 1" {
		t.Errorf("bar reservation = %q, want Barra 1", bar.Name)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	svc, store := newTableService(
		&models.Table{ID: 1, Name: "Mesa 1", Capacity: 4, Available: true},
	)
	ctx := context.Background()

	if _, err := svc.Reserve(ctx, models.KindTable, "req-1"); err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}

	if err := svc.Release(ctx, 1, "req-2"); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if !store.tables[0].Available {
		t.Error("expected the table to be available after release")
	}

	// Releasing an already-available table is a no-op.
	if err := svc.Release(ctx, 1, "req-3"); err != nil {
		t.Errorf("second Release returned error: %v", err)
	}
}

func TestReleaseByName(t *testing.T) {
	svc, _ := newTableService(
		&models.Table{ID: 1, Name: "Mesa 1", Capacity: 4, Available: true},
	)
	ctx := context.Background()

	if _, err := svc.Reserve(ctx, models.KindTable, "req-1"); err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}

	matched, err := svc.ReleaseByName(ctx, "Mesa 1", "req-2")
	if err != nil {
		t.Fatalf("ReleaseByName returned error: %v", err)
	}
	if !matched {
		t.Error("expected an occupied table name to match")
	}

	matched, err = svc.ReleaseByName(ctx, "Walk-in Ana", "req-3")
	if err != nil {
		t.Fatalf("ReleaseByName returned error: %v", err)
	}
	if matched {
		t.Error("a customer occupant must not match a table row")
	}
}

func TestPrefixForCustomConvention(t *testing.T) {
	cfg := config.BusinessConfig{TablePrefix: "Table", BarPrefix: "Bar"}

	got, err := PrefixFor(models.KindTable, cfg)
	if err != nil {
		t.Fatalf("PrefixFor() error = %v", err)
	}
	if got != "Table" {
		t.Errorf("PrefixFor() = %q, want %q", got, "Table")
	}
}

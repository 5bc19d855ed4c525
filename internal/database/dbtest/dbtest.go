// Package dbtest provides in-memory stand-ins for the database layer. A Fake
// answers statements through handler funcs keyed on the SQL text the services
// pass in, so their decision paths run without a live PostgreSQL.
package dbtest

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Fake satisfies the Querier interfaces of the service packages. Every
// statement, plus begin/commit/rollback markers, is appended to Log in
// execution order so tests can assert what ran inside which transaction.
type Fake struct {
	QueryRowFunc func(sql string, args []interface{}) pgx.Row
	QueryFunc    func(sql string, args []interface{}) (pgx.Rows, error)
	ExecFunc     func(sql string, args []interface{}) (int64, error)
	PingErr      error

	Log       []string
	Commits   int
	Rollbacks int
}

func (f *Fake) record(entry string) {
	f.Log = append(f.Log, entry)
}

func (f *Fake) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	f.record(sql)
	return f.QueryRowFunc(sql, args)
}

func (f *Fake) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	f.record(sql)
	return f.QueryFunc(sql, args)
}

func (f *Fake) Exec(ctx context.Context, sql string, args ...interface{}) error {
	f.record(sql)
	_, err := f.ExecFunc(sql, args)
	return err
}

func (f *Fake) ExecRows(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	f.record(sql)
	return f.ExecFunc(sql, args)
}

func (f *Fake) Ping(ctx context.Context) error {
	return f.PingErr
}

func (f *Fake) Begin(ctx context.Context) (pgx.Tx, error) {
	f.record("begin")
	return &Tx{fake: f}, nil
}

// Tx routes transaction statements back to the fake's handlers. Statements
// take effect immediately; tests assert transactional grouping through the
// fake's Log and the Commits/Rollbacks counters.
type Tx struct {
	pgx.Tx
	fake *Fake
	done bool
}

func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.fake.Commits++
	t.fake.record("commit")
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.fake.Rollbacks++
	t.fake.record("rollback")
	return nil
}

func (t *Tx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	t.fake.record(sql)
	return t.fake.QueryRowFunc(sql, args)
}

func (t *Tx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	t.fake.record(sql)
	return t.fake.QueryFunc(sql, args)
}

func (t *Tx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	t.fake.record(sql)
	affected, err := t.fake.ExecFunc(sql, args)
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", affected)), err
}

// Row is a canned pgx.Row.
type Row struct {
	Values []interface{}
	Err    error
}

func (r Row) Scan(dest ...interface{}) error {
	if r.Err != nil {
		return r.Err
	}
	if len(dest) != len(r.Values) {
		return fmt.Errorf("dbtest: scanning %d values into %d destinations", len(r.Values), len(dest))
	}
	for i, v := range r.Values {
		dv := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			dv.Set(reflect.Zero(dv.Type()))
			continue
		}
		sv := reflect.ValueOf(v)
		if !sv.Type().AssignableTo(dv.Type()) {
			if !sv.Type().ConvertibleTo(dv.Type()) {
				return fmt.Errorf("dbtest: cannot scan %T into %s", v, dv.Type())
			}
			sv = sv.Convert(dv.Type())
		}
		dv.Set(sv)
	}
	return nil
}

// Rows replays a fixed result set.
type Rows struct {
	pgx.Rows
	rows []Row
	idx  int
	err  error
}

func NewRows(rows ...Row) *Rows {
	return &Rows{rows: rows, idx: -1}
}

func (r *Rows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *Rows) Scan(dest ...interface{}) error {
	if err := r.rows[r.idx].Scan(dest...); err != nil {
		r.err = err
		return err
	}
	return nil
}

func (r *Rows) Err() error {
	return r.err
}

func (r *Rows) Close() {}

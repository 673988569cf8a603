package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"log/slog"
	"strings"
	"time"

	"bookshelf.org/internal/apperr"
	"bookshelf.org/internal/obs"
)

// Scanner is implemented by *sql.Rows and *sql.Row.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanFunc maps the current row to a value.
type ScanFunc[T any] func(Scanner) (T, error)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Executor runs parameterized statements. Outside a transaction each call
// acquires its own connection and releases it when done.
type Executor struct {
	pool *Pool
	tx   *sql.Tx
	log  *slog.Logger
}

// InTx reports whether the executor is bound to a transaction.
func (e *Executor) InTx() bool { return e.tx != nil }

// Pool returns the pool the executor draws connections from.
func (e *Executor) Pool() *Pool { return e.pool }

func (e *Executor) with(ctx context.Context, fn func(q querier) error) error {
	if e.tx != nil {
		return fn(e.tx)
	}
	conn, err := e.pool.acquire(ctx)
	if err != nil {
		return err
	}
	defer e.pool.release(conn)
	return fn(conn)
}

// Select runs query and scans every row. No match yields an empty slice.
func Select[T any](ctx context.Context, e *Executor, scan ScanFunc[T], query string, args ...any) ([]T, error) {
	start := time.Now()
	e.logStatement(ctx, query, args)

	out := make([]T, 0)
	err := e.with(ctx, func(q querier) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			v, err := scan(rows)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, e.fail(ctx, "select", start, query, args, err)
	}
	obs.ObserveQuery("select", "ok", time.Since(start))
	return out, nil
}

// SelectOne runs query expecting at most one row. found is false when nothing
// matched; more than one row is an integrity failure.
func SelectOne[T any](ctx context.Context, e *Executor, scan ScanFunc[T], query string, args ...any) (v T, found bool, err error) {
	rows, err := Select(ctx, e, scan, query, args...)
	if err != nil {
		return v, false, err
	}
	switch len(rows) {
	case 0:
		return v, false, nil
	case 1:
		return rows[0], true, nil
	}
	e.log.ErrorContext(ctx, "query returned more than one row",
		"sql", compact(query),
		"args", redactArgs(args),
		"rows", len(rows),
	)
	return v, false, apperr.Integrityf(ErrMultipleRows, "expected at most one row, got %d", len(rows))
}

// Exec runs a statement that returns no rows and reports the affected row count.
func (e *Executor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	start := time.Now()
	e.logStatement(ctx, query, args)

	var affected int64
	err := e.with(ctx, func(q querier) error {
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, e.fail(ctx, "exec", start, query, args, err)
	}
	obs.ObserveQuery("exec", "ok", time.Since(start))
	return affected, nil
}

func (e *Executor) logStatement(ctx context.Context, query string, args []any) {
	e.log.InfoContext(ctx, "executing query",
		"sql", compact(query),
		"args", redactArgs(args),
		"tx", e.tx != nil,
	)
}

func (e *Executor) fail(ctx context.Context, op string, start time.Time, query string, args []any, err error) error {
	obs.ObserveQuery(op, "error", time.Since(start))
	var classified *apperr.Error
	if errors.As(err, &classified) {
		// acquire already logged it
		return err
	}
	translated := Translate(err)
	e.log.ErrorContext(ctx, "query failed",
		"sql", compact(query),
		"args", redactArgs(args),
		"kind", apperr.KindOf(translated).String(),
		"error", err,
	)
	return translated
}

// Secret is a statement parameter that is bound normally but never logged.
type Secret string

// Value implements driver.Valuer.
func (s Secret) Value() (driver.Value, error) { return string(s), nil }

// LogValue implements slog.LogValuer.
func (Secret) LogValue() slog.Value { return slog.StringValue("[REDACTED]") }

func (Secret) String() string { return "[REDACTED]" }

func redactArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if lv, ok := a.(slog.LogValuer); ok {
			out[i] = lv.LogValue().Resolve().Any()
			continue
		}
		out[i] = a
	}
	return out
}

func compact(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

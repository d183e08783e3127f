package store

import (
	"context"
	"database/sql"
)

// fakeQuerier stands in for *sqlx.DB and *sqlx.Tx alike. Unset hooks
// succeed with no rows touched.
type fakeQuerier struct {
	getFn    func(ctx context.Context, dest any, query string, args ...any) error
	selectFn func(ctx context.Context, dest any, query string, args ...any) error
	execFn   func(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (f fakeQuerier) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if f.getFn == nil {
		return nil
	}
	return f.getFn(ctx, dest, query, args...)
}

func (f fakeQuerier) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if f.selectFn == nil {
		return nil
	}
	return f.selectFn(ctx, dest, query, args...)
}

func (f fakeQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if f.execFn == nil {
		return affected(0), nil
	}
	return f.execFn(ctx, query, args...)
}

type affected int64

func (affected) LastInsertId() (int64, error) { return 0, nil }

func (a affected) RowsAffected() (int64, error) { return int64(a), nil }

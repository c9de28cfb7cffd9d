package repository

import (
	"context"
	"database/sql"
	"errors"
)

// sqlxDB is the query surface satisfied by both *sqlx.DB and *sqlx.Tx, so
// repository helpers can run inside or outside a transaction.
type sqlxDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// HandleNotFound maps sql.ErrNoRows to a (nil, nil) result so callers can
// treat "absent" as a value rather than an error.
func HandleNotFound[T any](v *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

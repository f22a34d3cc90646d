package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is the expected zero-rows outcome of a fetch. Callers must
// distinguish it from StoreError with errors.Is; it is never wrapped into a
// generic failure.
var ErrNotFound = errors.New("record not found")

// StoreError is any store failure other than a missing row. Code is
// machine-readable: the Postgres error code when one is available, otherwise
// "unavailable".
type StoreError struct {
	Op   string
	Code string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: store error (%s): %v", e.Op, e.Code, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &StoreError{Op: op, Code: pgErr.Code, Err: err}
	}
	return &StoreError{Op: op, Code: "unavailable", Err: err}
}

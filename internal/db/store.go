package db

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Change-stream table and operation names. These are the wire contract
// shared with every other client of the store.
const (
	TableParticipants = "participants"
	TableVerses       = "verses"
	TablePenalties    = "penalties"

	OpInsert = "insert"
	OpUpdate = "update"
)

// Notifier publishes change events after successful mutations. A nil
// notifier disables publishing (useful in tests).
type Notifier interface {
	Publish(ctx context.Context, table, operation string, value interface{}) error
}

type Store struct {
	Pool     *pgxpool.Pool
	notifier Notifier
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func NewStore(pool *pgxpool.Pool, notifier Notifier) *Store {
	return &Store{Pool: pool, notifier: notifier}
}

func (s *Store) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// publish sends a change event for a committed mutation. Publish failures are
// logged and swallowed: the write already happened, and disconnected
// listeners fall back to cache TTL expiry anyway.
func (s *Store) publish(ctx context.Context, table, operation string, value interface{}) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, table, operation, value); err != nil {
		log.Printf("change publish failed for %s %s: %v", table, operation, err)
	}
}

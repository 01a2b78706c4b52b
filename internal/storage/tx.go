package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is the unit-of-work boundary shared by all repositories. Every stock
// mutation and every terminal order transition happens inside exactly one Tx;
// row locks taken with SELECT ... FOR UPDATE are held until Commit or Rollback.
type Tx interface {
	Commit() error
	Rollback() error
}

// PostgresTx implements Tx over pgx.
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit() error {
	return t.tx.Commit(context.Background())
}

func (t *PostgresTx) Rollback() error {
	return t.tx.Rollback(context.Background())
}

// Pgx unwraps the underlying pgx transaction for repository use.
func (t *PostgresTx) Pgx() pgx.Tx {
	return t.tx
}

// Begin starts a transaction on the pool.
func Begin(ctx context.Context, pool *pgxpool.Pool) (Tx, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &PostgresTx{tx: tx}, nil
}

// Unwrap returns the pgx transaction behind a Tx.
func Unwrap(tx Tx) pgx.Tx {
	return tx.(*PostgresTx).Pgx()
}

package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type contextKey string

const (
	DBTxKey    contextKey = "db_tx"
	txHooksKey contextKey = "db_tx_hooks"
)

type txHooks struct{ fns []func() }

// TxFromContext returns the transaction opened by WithinTx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// AfterCommit defers fn until the outermost transaction on ctx commits. It
// is dropped if that transaction rolls back. Without a transaction fn runs
// immediately.
func AfterCommit(ctx context.Context, fn func()) {
	if h, ok := ctx.Value(txHooksKey).(*txHooks); ok {
		h.fns = append(h.fns, fn)
		return
	}
	fn()
}

// TxRunner runs fn inside a transaction. Repositories join it through
// TxFromContext. A nested call runs in a savepoint of the outer
// transaction, so its failure can be absorbed without aborting the caller.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgTxRunner struct {
	pool beginner
}

func NewTxRunner(pool beginner) *PgTxRunner {
	return &PgTxRunner{pool: pool}
}

func (r *PgTxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var (
		tx  pgx.Tx
		err error
	)
	if outer := TxFromContext(ctx); outer != nil {
		tx, err = outer.Begin(ctx)
	} else {
		tx, err = r.pool.Begin(ctx)
	}
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	hooks := &txHooks{}
	txCtx := context.WithValue(context.WithValue(ctx, DBTxKey, tx), txHooksKey, hooks)
	if err := fn(txCtx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	// A released savepoint hands its hooks to the enclosing transaction.
	if parent, ok := ctx.Value(txHooksKey).(*txHooks); ok {
		parent.fns = append(parent.fns, hooks.fns...)
		return nil
	}
	for _, h := range hooks.fns {
		h()
	}
	return nil
}

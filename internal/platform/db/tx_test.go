package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

// fakeTx records commit/rollback calls; the embedded interface panics on
// anything else.
type fakeTx struct {
	pgx.Tx
	depth      int
	committed  bool
	rolledBack bool
	children   []*fakeTx
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	child := &fakeTx{depth: f.depth + 1}
	f.children = append(f.children, child)
	return child, nil
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return nil
}

type fakeBeginner struct{ txs []*fakeTx }

func (b *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	b.txs = append(b.txs, tx)
	return tx, nil
}

func TestWithinTx_Commits(t *testing.T) {
	b := &fakeBeginner{}
	r := NewTxRunner(b)

	var seen pgx.Tx
	err := r.WithinTx(context.Background(), func(ctx context.Context) error {
		seen = TxFromContext(ctx)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.txs) != 1 || !b.txs[0].committed {
		t.Fatal("expected one committed transaction")
	}
	if seen != b.txs[0] {
		t.Error("expected the transaction to be visible on the context")
	}
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	b := &fakeBeginner{}
	r := NewTxRunner(b)
	boom := errors.New("boom")

	err := r.WithinTx(context.Background(), func(ctx context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if b.txs[0].committed || !b.txs[0].rolledBack {
		t.Error("expected rollback without commit")
	}
}

func TestWithinTx_NestedUsesSavepoint(t *testing.T) {
	b := &fakeBeginner{}
	r := NewTxRunner(b)

	err := r.WithinTx(context.Background(), func(ctx context.Context) error {
		inner := r.WithinTx(ctx, func(ctx context.Context) error {
			return errors.New("transfer failed")
		})
		if inner == nil {
			t.Error("expected inner error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.txs) != 1 {
		t.Fatalf("expected a single top-level transaction, got %d", len(b.txs))
	}
	outer := b.txs[0]
	if !outer.committed {
		t.Error("expected outer transaction committed")
	}
	if len(outer.children) != 1 || !outer.children[0].rolledBack {
		t.Error("expected the savepoint rolled back")
	}
}

func TestTxFromContext_Empty(t *testing.T) {
	if TxFromContext(context.Background()) != nil {
		t.Error("expected nil transaction")
	}
}

func TestAfterCommit_RunsAfterOutermostCommit(t *testing.T) {
	b := &fakeBeginner{}
	r := NewTxRunner(b)

	var ran []string
	err := r.WithinTx(context.Background(), func(ctx context.Context) error {
		AfterCommit(ctx, func() { ran = append(ran, "outer") })
		_ = r.WithinTx(ctx, func(ctx context.Context) error {
			AfterCommit(ctx, func() { ran = append(ran, "kept") })
			return nil
		})
		_ = r.WithinTx(ctx, func(ctx context.Context) error {
			AfterCommit(ctx, func() { ran = append(ran, "dropped") })
			return errors.New("savepoint failed")
		})
		if len(ran) != 0 {
			t.Errorf("hooks ran before commit: %v", ran)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ran) != 2 || ran[0] != "outer" || ran[1] != "kept" {
		t.Errorf("ran = %v, want [outer kept]", ran)
	}
}

func TestAfterCommit_DroppedOnRollback(t *testing.T) {
	r := NewTxRunner(&fakeBeginner{})
	ran := false
	_ = r.WithinTx(context.Background(), func(ctx context.Context) error {
		AfterCommit(ctx, func() { ran = true })
		return errors.New("boom")
	})
	if ran {
		t.Error("expected hook dropped on rollback")
	}
}

func TestAfterCommit_NoTransaction(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func() { ran = true })
	if !ran {
		t.Error("expected immediate run without a transaction")
	}
}

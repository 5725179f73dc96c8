package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type txKey struct{}

// WithTx returns a context whose InTx calls nest inside tx as savepoints.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// InTx runs fn inside a transaction. The transaction commits only when fn
// returns nil; every other path rolls back. When ctx carries a transaction
// from WithTx, fn runs in a savepoint of it and the pool is not touched.
func InTx(ctx context.Context, starter TxStarter, logger *zap.Logger, fn func(tx pgx.Tx) error) error {
	if outer, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		starter = outer
	}

	tx, err := starter.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, logger, "Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(cleanupCtx, logger, "Failed to rollback transaction", zap.Error(err))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, logger, "Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DebitRepository remembers which orders have been debited and with what result.
type DebitRepository interface {
	Find(ctx context.Context, tx pgx.Tx, orderID int64) ([]generalDomain.DebitedStockItem, bool, error)
	Save(ctx context.Context, tx pgx.Tx, orderID int64, items []generalDomain.DebitedStockItem) error
}

type debitRepo struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewDebitRepository(logger *zap.Logger) DebitRepository {
	return &debitRepo{
		logger: logger,
		tracer: otel.Tracer("debit_repository"),
	}
}

func (r *debitRepo) Find(ctx context.Context, tx pgx.Tx, orderID int64) ([]generalDomain.DebitedStockItem, bool, error) {
	ctx, span := r.tracer.Start(ctx, "DebitRepository.Find")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	var raw []byte
	err := tx.QueryRow(ctx, `SELECT items FROM order_stock_debits WHERE order_id = $1`, orderID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("load debit of order %d: %w", orderID, err)
	}

	var items []generalDomain.DebitedStockItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false, fmt.Errorf("decode debit of order %d: %w", orderID, err)
	}

	return items, true, nil
}

// Save records the debit. A concurrent debit of the same order surfaces as
// ErrVersionConflict so the caller retries and finds the stored result.
func (r *debitRepo) Save(ctx context.Context, tx pgx.Tx, orderID int64, items []generalDomain.DebitedStockItem) error {
	ctx, span := r.tracer.Start(ctx, "DebitRepository.Save")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode debit of order %d: %w", orderID, err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO order_stock_debits (order_id, items) VALUES ($1, $2)`, orderID, raw); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("order %d already debited: %w", orderID, ErrVersionConflict)
		}

		span.RecordError(err)
		return fmt.Errorf("save debit of order %d: %w", orderID, err)
	}

	return nil
}

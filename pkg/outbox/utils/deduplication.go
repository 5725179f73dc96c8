package utils

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsmi021/eahub-shopco/pkg/db"
	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

// ProcessWithDeduplication runs action at most once per (consumer, eventID).
// action receives a context bound to the processed_events transaction, so the
// db.InTx calls it makes run as savepoints on the same connection and commit
// together with the processed_events row. A failed action leaves the event
// eligible for redelivery.
func ProcessWithDeduplication(
	ctx context.Context,
	pool db.TxStarter,
	logger *zap.Logger,
	consumer string,
	eventID string,
	action func(ctx context.Context) error,
) error {
	span := trace.SpanFromContext(ctx)

	if eventID == "" {
		return action(ctx)
	}

	errDuplicate := errors.New("duplicate event")

	err := db.InTx(ctx, pool, logger, func(tx pgx.Tx) error {
		query := `
			INSERT INTO processed_events (consumer, event_id)
			VALUES ($1, $2)
		`

		if _, err := tx.Exec(ctx, query, consumer, eventID); err != nil {
			var pgError *pgconn.PgError
			if errors.As(err, &pgError) && pgError.Code == uniqueViolation {
				return errDuplicate
			}

			span.RecordError(err)
			return fmt.Errorf("record processed event: %w", err)
		}

		return action(db.WithTx(ctx, tx))
	})

	if errors.Is(err, errDuplicate) {
		mylogger.Info(ctx, logger, "Event already processed, skipping",
			zap.String("consumer", consumer),
			zap.String("event_id", eventID),
		)
		return nil
	}

	return err
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/services/order/internal/domain"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type SagaRepository interface {
	// Start records step as pending. A step that already exists is left as is.
	Start(ctx context.Context, tx pgx.Tx, orderID int64, step domain.SagaStep, deadline time.Time) error
	// Finish moves a pending step to status. Finished steps are not touched.
	Finish(ctx context.Context, tx pgx.Tx, orderID int64, step domain.SagaStep, status domain.StepStatus, detail string) error
	// Extend pushes the deadline of a pending step and counts the attempt.
	Extend(ctx context.Context, tx pgx.Tx, orderID int64, step domain.SagaStep, deadline time.Time) (int, error)
	// ListOverdue locks the overdue steps together with their orders, skipping
	// any order another transaction holds.
	ListOverdue(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]domain.SagaCheckpoint, error)
	ListByOrder(ctx context.Context, tx pgx.Tx, orderID int64) ([]domain.SagaCheckpoint, error)
}

type sagaRepo struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewSagaRepository(logger *zap.Logger) SagaRepository {
	return &sagaRepo{
		logger: logger,
		tracer: otel.Tracer("saga_repository"),
	}
}

func (r *sagaRepo) Start(ctx context.Context, tx pgx.Tx, orderID int64, step domain.SagaStep, deadline time.Time) error {
	ctx, span := r.tracer.Start(ctx, "SagaRepository.Start")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("step", string(step)),
	)

	query := `
		INSERT INTO saga_steps (order_id, step, status, deadline)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id, step) DO NOTHING
	`

	if _, err := tx.Exec(ctx, query, orderID, string(step), string(domain.StepPending), deadline); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to start saga step", zap.Int64("order_id", orderID), zap.Error(err))
		return fmt.Errorf("start saga step %s for order %d: %w", step, orderID, err)
	}

	return nil
}

func (r *sagaRepo) Finish(ctx context.Context, tx pgx.Tx, orderID int64, step domain.SagaStep, status domain.StepStatus, detail string) error {
	ctx, span := r.tracer.Start(ctx, "SagaRepository.Finish")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("step", string(step)),
		attribute.String("status", string(status)),
	)

	query := `
		UPDATE saga_steps
		SET status = $1, detail = $2, updated_at = NOW()
		WHERE order_id = $3 AND step = $4 AND status = $5
	`

	if _, err := tx.Exec(ctx, query, string(status), detail, orderID, string(step), string(domain.StepPending)); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to finish saga step", zap.Int64("order_id", orderID), zap.Error(err))
		return fmt.Errorf("finish saga step %s for order %d: %w", step, orderID, err)
	}

	return nil
}

func (r *sagaRepo) Extend(ctx context.Context, tx pgx.Tx, orderID int64, step domain.SagaStep, deadline time.Time) (int, error) {
	ctx, span := r.tracer.Start(ctx, "SagaRepository.Extend")
	defer span.End()

	query := `
		UPDATE saga_steps
		SET deadline = $1, attempts = attempts + 1, updated_at = NOW()
		WHERE order_id = $2 AND step = $3 AND status = $4
		RETURNING attempts
	`

	var attempts int
	if err := tx.QueryRow(ctx, query, deadline, orderID, string(step), string(domain.StepPending)).Scan(&attempts); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("extend saga step %s for order %d: %w", step, orderID, err)
	}

	return attempts, nil
}

func (r *sagaRepo) ListOverdue(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]domain.SagaCheckpoint, error) {
	ctx, span := r.tracer.Start(ctx, "SagaRepository.ListOverdue")
	defer span.End()

	query := `
		SELECT s.order_id, s.step, s.status, s.deadline, s.attempts, s.detail, s.updated_at
		FROM saga_steps s
		JOIN orders o ON o.id = s.order_id
		WHERE s.status = $1 AND s.deadline < $2
		ORDER BY s.deadline
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`

	return r.list(ctx, span, tx, query, string(domain.StepPending), now, limit)
}

func (r *sagaRepo) ListByOrder(ctx context.Context, tx pgx.Tx, orderID int64) ([]domain.SagaCheckpoint, error) {
	ctx, span := r.tracer.Start(ctx, "SagaRepository.ListByOrder")
	defer span.End()

	query := `
		SELECT order_id, step, status, deadline, attempts, detail, updated_at
		FROM saga_steps
		WHERE order_id = $1
		ORDER BY created_at, step
	`

	return r.list(ctx, span, tx, query, orderID)
}

func (r *sagaRepo) list(ctx context.Context, span trace.Span, tx pgx.Tx, query string, args ...any) ([]domain.SagaCheckpoint, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query saga steps: %w", err)
	}
	defer rows.Close()

	var result []domain.SagaCheckpoint
	for rows.Next() {
		var (
			c            domain.SagaCheckpoint
			step, status string
		)
		if err := rows.Scan(&c.OrderID, &step, &status, &c.Deadline, &c.Attempts, &c.Detail, &c.UpdatedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("scan saga step: %w", err)
		}

		c.Step = domain.SagaStep(step)
		c.Status = domain.StepStatus(status)
		result = append(result, c)
	}

	return result, rows.Err()
}

package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/bsmi021/eahub-shopco/pkg/db"
	"github.com/bsmi021/eahub-shopco/pkg/kafka"
	"github.com/bsmi021/eahub-shopco/pkg/metrics"
	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/pkg/outbox/domain"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OutboxRepository interface {
	SaveOutboxEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error
	GetUnpublishedEvents(ctx context.Context, tx pgx.Tx, batchSize, maxAttempts int) ([]*domain.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, tx pgx.Tx, eventID int64) error
	MarkEventFailed(ctx context.Context, tx pgx.Tx, eventID int64, errMsg string) (int, error)
}

type KafkaProducer interface {
	Produce(ctx context.Context, msg kafka.Message) error
}

type Options struct {
	BatchSize   int
	Interval    time.Duration
	MaxAttempts int
}

type OutboxProcessor struct {
	pool          db.TxStarter
	repo          OutboxRepository
	kafkaProducer KafkaProducer
	logger        *zap.Logger
	opts          Options
	tracer        trace.Tracer
}

func NewOutboxProcessor(
	pool db.TxStarter,
	repo OutboxRepository,
	producer KafkaProducer,
	logger *zap.Logger,
	opts Options,
) *OutboxProcessor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}

	return &OutboxProcessor{
		pool:          pool,
		repo:          repo,
		kafkaProducer: producer,
		logger:        logger,
		opts:          opts,
		tracer:        otel.Tracer("outbox-worker"),
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) error {
	mylogger.Info(ctx, p.logger, "Starting outbox processor",
		zap.Int("batch_size", p.opts.BatchSize),
		zap.Duration("interval", p.opts.Interval),
	)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, p.logger, "Outbox processor stopping")
			return nil
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				mylogger.Error(ctx, p.logger, "Error processing outbox batch", zap.Error(err))
			}
		}
	}
}

// ProcessBatch produces one batch of pending rows and returns how many were
// published.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.ProcessBatch")
	defer span.End()

	published := 0
	err := db.InTx(ctx, p.pool, p.logger, func(tx pgx.Tx) error {
		events, err := p.repo.GetUnpublishedEvents(ctx, tx, p.opts.BatchSize, p.opts.MaxAttempts)
		if err != nil {
			return err
		}

		if len(events) == 0 {
			return nil
		}

		mylogger.Debug(ctx, p.logger, "Processing outbox events", zap.Int("count", len(events)))

		for _, event := range events {
			if err := p.publish(ctx, event); err != nil {
				if markErr := p.markFailed(ctx, tx, event, err); markErr != nil {
					return markErr
				}
				continue
			}

			if err := p.repo.MarkEventPublished(ctx, tx, event.ID); err != nil {
				mylogger.Error(ctx, p.logger, "Outbox worker mark published failed",
					zap.Int64("id", event.ID),
					zap.Error(err),
				)
				return err
			}

			metrics.OutboxPublished.WithLabelValues(event.Topic).Inc()
			published++
		}

		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	return published, nil
}

func (p *OutboxProcessor) publish(ctx context.Context, event *domain.OutboxEvent) error {
	if len(event.Payload) == 0 {
		return fmt.Errorf("outbox event %d has empty payload", event.ID)
	}

	return p.kafkaProducer.Produce(ctx, kafka.Message{
		Topic:   event.Topic,
		Key:     event.AggregateID,
		Value:   event.Payload,
		Headers: event.Headers,
	})
}

func (p *OutboxProcessor) markFailed(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent, cause error) error {
	metrics.OutboxFailed.WithLabelValues(event.Topic).Inc()

	attempts, err := p.repo.MarkEventFailed(ctx, tx, event.ID, cause.Error())
	if err != nil {
		mylogger.Error(ctx, p.logger, "Outbox worker mark failed failed",
			zap.Int64("id", event.ID),
			zap.Error(err),
		)
		return err
	}

	if attempts >= p.opts.MaxAttempts {
		mylogger.Error(ctx, p.logger, "Outbox event exhausted its attempts and will not be retried",
			zap.Int64("id", event.ID),
			zap.String("event_type", event.EventType),
			zap.String("aggregate_id", event.AggregateID),
			zap.Int("attempts", attempts),
			zap.Error(cause),
		)
		return nil
	}

	mylogger.Warn(ctx, p.logger, "Outbox worker produce message failed",
		zap.Int64("id", event.ID),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
	return nil
}

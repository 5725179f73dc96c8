package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/kafka"
	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	outboxDomain "github.com/bsmi021/eahub-shopco/pkg/outbox/domain"
	"github.com/bsmi021/eahub-shopco/pkg/utils"
	"github.com/jackc/pgx/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	HeaderEvent      = "event"
	HeaderSource     = "source"
	HeaderEventID    = "event_id"
	HeaderSubscriber = "subscriber"
	HeaderError      = "error"
	HeaderAttempts   = "attempts"
)

// Emitter writes an event into the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx pgx.Tx, event, aggregateType, aggregateID string, payload any) error
}

type OutboxSaver interface {
	SaveOutboxEvent(ctx context.Context, tx pgx.Tx, event *outboxDomain.OutboxEvent) error
}

// Publisher emits through the transactional outbox. The event reaches Kafka
// only if the surrounding transaction commits.
type Publisher struct {
	source string
	repo   OutboxSaver
}

func NewPublisher(source string, repo OutboxSaver) *Publisher {
	return &Publisher{source: source, repo: repo}
}

func (p *Publisher) Emit(ctx context.Context, tx pgx.Tx, event, aggregateType, aggregateID string, payload any) error {
	env, err := domain.NewEnvelope(p.source, event, payload)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", event, err)
	}

	return p.repo.SaveOutboxEvent(ctx, tx, &outboxDomain.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     event,
		Payload:       raw,
		Headers:       envelopeHeaders(env),
		Topic:         p.source,
	})
}

type Producer interface {
	Produce(ctx context.Context, msg kafka.Message) error
}

// DirectPublisher produces straight to Kafka. It is for services that keep
// no relational store to host an outbox.
type DirectPublisher struct {
	source   string
	producer Producer
	cb       *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

func NewDirectPublisher(source string, producer Producer, logger *zap.Logger) *DirectPublisher {
	return &DirectPublisher{
		source:   source,
		producer: producer,
		cb:       utils.NewBreaker(source+"-publisher", logger),
		logger:   logger,
	}
}

func (p *DirectPublisher) Publish(ctx context.Context, event, key string, payload any) error {
	env, err := domain.NewEnvelope(p.source, event, payload)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", event, err)
	}

	_, err = utils.ExecuteWithBreaker(p.cb, func() (struct{}, error) {
		return struct{}{}, p.producer.Produce(ctx, kafka.Message{
			Topic:   p.source,
			Key:     key,
			Value:   raw,
			Headers: envelopeHeaders(env),
		})
	})
	if err != nil {
		mylogger.Error(ctx, p.logger, "Failed to publish event",
			zap.String("event", event),
			zap.String("key", key),
			zap.Error(err),
		)
		return fmt.Errorf("publish %s: %w", event, err)
	}

	return nil
}

func envelopeHeaders(env *domain.Envelope) map[string]string {
	return map[string]string{
		HeaderEvent:   env.Event,
		HeaderSource:  env.Source,
		HeaderEventID: env.EventID,
	}
}

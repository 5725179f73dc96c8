package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/kafka"
	"github.com/bsmi021/eahub-shopco/pkg/metrics"
	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/pkg/utils"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type HandlerFunc func(ctx context.Context, env *domain.Envelope) error

// DedupFunc runs action at most once per (consumer, eventID).
type DedupFunc func(ctx context.Context, consumer, eventID string, action func(ctx context.Context) error) error

type Options struct {
	MaxAttempts    uint64
	InitialBackoff time.Duration
	HandlerTimeout time.Duration
	Dedup          DedupFunc
}

// Router owns the subscriptions of one subscriber. Each subscriber is a
// Kafka consumer group and each source is a topic.
type Router struct {
	subscriber string
	producer   Producer
	logger     *zap.Logger
	opts       Options
	routes     map[string]map[string]HandlerFunc
}

func NewRouter(subscriber string, producer Producer, logger *zap.Logger, opts Options) *Router {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 200 * time.Millisecond
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 10 * time.Second
	}

	return &Router{
		subscriber: subscriber,
		producer:   producer,
		logger:     logger,
		opts:       opts,
		routes:     make(map[string]map[string]HandlerFunc),
	}
}

func (r *Router) Subscribe(source, event string, h HandlerFunc) {
	if r.routes[source] == nil {
		r.routes[source] = make(map[string]HandlerFunc)
	}
	r.routes[source][event] = h
}

// On registers a handler for a typed payload. The payload is decoded and
// validated before fn runs; failures are validation errors and never retried.
func On[T any](r *Router, source, event string, fn func(ctx context.Context, msg T) error) {
	r.Subscribe(source, event, func(ctx context.Context, env *domain.Envelope) error {
		var msg T
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return fmt.Errorf("%w: decode %s: %v", domain.ErrValidation, event, err)
		}

		if err := utils.ValidateStruct(&msg); err != nil {
			return fmt.Errorf("%s payload: %w", event, err)
		}

		return fn(ctx, msg)
	})
}

func (r *Router) Subscriber() string {
	return r.subscriber
}

func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.routes))
	for source := range r.routes {
		topics = append(topics, source)
	}
	sort.Strings(topics)

	return topics
}

func (r *Router) Run(ctx context.Context, brokers []string) error {
	return kafka.NewConsumerGroup(brokers, r.subscriber, r.Topics(), r.Handle, r.logger).Run(ctx)
}

// Handle dispatches one message. It returns nil once the message is either
// handled or parked on the dead letter topic; a non-nil error leaves the
// offset unmarked.
func (r *Router) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	env, err := domain.DecodeEnvelope(msg.Value)
	if err != nil {
		mylogger.Warn(ctx, r.logger, "Malformed message",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return r.deadLetter(ctx, msg, kafka.Header(msg, HeaderEvent), err, 0)
	}

	h, ok := r.routes[msg.Topic][env.Event]
	if !ok {
		mylogger.Debug(ctx, r.logger, "Ignored event",
			zap.String("subscriber", r.subscriber),
			zap.String("source", msg.Topic),
			zap.String("event", env.Event),
		)
		return nil
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("event.name", env.Event),
		attribute.String("event.id", env.EventID),
	)

	started := time.Now()
	attempts, err := r.dispatch(ctx, env, h)
	metrics.HandlerDuration.WithLabelValues(r.subscriber, env.Event).Observe(time.Since(started).Seconds())

	if err == nil {
		metrics.EventsHandled.WithLabelValues(r.subscriber, env.Event, "ok").Inc()
		return nil
	}

	if ctx.Err() != nil {
		return err
	}

	metrics.EventsHandled.WithLabelValues(r.subscriber, env.Event, "failed").Inc()
	mylogger.Error(ctx, r.logger, "Event handling failed",
		zap.String("subscriber", r.subscriber),
		zap.String("event", env.Event),
		zap.String("event_id", env.EventID),
		zap.Int("attempts", attempts),
		zap.Bool("permanent", domain.IsPermanent(err)),
		zap.Error(err),
	)

	return r.deadLetter(ctx, msg, env.Event, err, attempts)
}

func (r *Router) dispatch(ctx context.Context, env *domain.Envelope, h HandlerFunc) (int, error) {
	attempts := 0

	op := func() error {
		attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, r.opts.HandlerTimeout)
		defer cancel()

		err := r.invoke(withEnvelope(attemptCtx, env), env, h)
		if err != nil && domain.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			mylogger.Warn(ctx, r.logger, "Event handler attempt failed",
				zap.String("event", env.Event),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
		}

		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialBackoff
	b.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, r.opts.MaxAttempts-1), ctx))

	return attempts, err
}

func (r *Router) invoke(ctx context.Context, env *domain.Envelope, h HandlerFunc) error {
	if r.opts.Dedup == nil || env.EventID == "" {
		return h(ctx, env)
	}

	return r.opts.Dedup(ctx, r.subscriber, env.EventID, func(ctx context.Context) error {
		return h(ctx, env)
	})
}

func (r *Router) deadLetter(ctx context.Context, msg *sarama.ConsumerMessage, event string, cause error, attempts int) error {
	err := r.producer.Produce(ctx, kafka.Message{
		Topic: domain.DeadLetterTopic,
		Key:   string(msg.Key),
		Value: msg.Value,
		Headers: map[string]string{
			HeaderSource:     msg.Topic,
			HeaderEvent:      event,
			HeaderSubscriber: r.subscriber,
			HeaderError:      cause.Error(),
			HeaderAttempts:   strconv.Itoa(attempts),
		},
	})
	if err != nil {
		mylogger.Error(ctx, r.logger, "Failed to dead letter event",
			zap.String("subscriber", r.subscriber),
			zap.String("event", event),
			zap.Error(err),
		)
		return errors.Join(cause, fmt.Errorf("dead letter: %w", err))
	}

	metrics.DeadLettered.WithLabelValues(r.subscriber, event).Inc()

	return nil
}

type envelopeKey struct{}

func withEnvelope(ctx context.Context, env *domain.Envelope) context.Context {
	return context.WithValue(ctx, envelopeKey{}, env)
}

// EnvelopeFromContext returns the envelope of the event being handled.
func EnvelopeFromContext(ctx context.Context) (*domain.Envelope, bool) {
	env, ok := ctx.Value(envelopeKey{}).(*domain.Envelope)
	return env, ok
}

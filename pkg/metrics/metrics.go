package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shopco",
		Subsystem: "bus",
		Name:      "events_handled_total",
		Help:      "Events delivered to a subscriber, by outcome.",
	}, []string{"subscriber", "event", "outcome"})

	HandlerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shopco",
		Subsystem: "bus",
		Name:      "handler_duration_seconds",
		Help:      "Time spent in event handlers including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"subscriber", "event"})

	DeadLettered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shopco",
		Subsystem: "bus",
		Name:      "dead_lettered_total",
		Help:      "Events moved to the dead letter topic.",
	}, []string{"subscriber", "event"})

	OutboxPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shopco",
		Subsystem: "outbox",
		Name:      "published_total",
		Help:      "Outbox rows produced to Kafka.",
	}, []string{"topic"})

	OutboxFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shopco",
		Subsystem: "outbox",
		Name:      "failed_total",
		Help:      "Outbox produce failures.",
	}, []string{"topic"})

	SagaTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shopco",
		Subsystem: "saga",
		Name:      "transitions_total",
		Help:      "Order status transitions applied.",
	}, []string{"to"})

	SagaTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shopco",
		Subsystem: "saga",
		Name:      "step_timeouts_total",
		Help:      "Saga steps that passed their deadline.",
	}, []string{"step"})

	InventoryCASConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shopco",
		Subsystem: "inventory",
		Name:      "cas_conflicts_total",
		Help:      "Ledger writes that lost the version compare-and-swap.",
	})

	InventoryShortfall = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shopco",
		Subsystem: "inventory",
		Name:      "debit_shortfall_units_total",
		Help:      "Units a paid order could not be debited for.",
	}, []string{"product_id"})
)

// NewRegistry returns a registry with the runtime, gRPC and shopco collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	grpc_prometheus.EnableHandlingTimeHistogram()
	reg.MustRegister(grpc_prometheus.DefaultServerMetrics)

	reg.MustRegister(
		EventsHandled,
		HandlerDuration,
		DeadLettered,
		OutboxPublished,
		OutboxFailed,
		SagaTransitions,
		SagaTimeouts,
		InventoryCASConflicts,
		InventoryShortfall,
	)

	return reg
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

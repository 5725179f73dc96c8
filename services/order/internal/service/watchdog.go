package service

import (
	"context"
	"time"

	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"go.uber.org/zap"
)

type Expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// Watchdog sweeps overdue saga steps on a fixed interval.
type Watchdog struct {
	expirer  Expirer
	interval time.Duration
	logger   *zap.Logger
}

func NewWatchdog(expirer Expirer, interval time.Duration, logger *zap.Logger) *Watchdog {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &Watchdog{
		expirer:  expirer,
		interval: interval,
		logger:   logger,
	}
}

func (w *Watchdog) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	mylogger.Info(ctx, w.logger, "Saga watchdog started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, w.logger, "Saga watchdog stopped")
			return nil
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

func (w *Watchdog) Sweep(ctx context.Context) {
	n, err := w.expirer.ExpireOverdue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			mylogger.Error(ctx, w.logger, "Saga sweep failed", zap.Error(err))
		}
		return
	}

	if n > 0 {
		mylogger.Info(ctx, w.logger, "Expired overdue saga steps", zap.Int("count", n))
	}
}

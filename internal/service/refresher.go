package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Retrier re-issues the last query. WeatherService implements it.
type Retrier interface {
	Retry(ctx context.Context) error
}

// Refresher periodically re-runs the last query so a long-lived renderer stays current.
type Refresher struct {
	retrier  Retrier
	interval time.Duration
	logger   *zap.Logger
}

// NewRefresher creates a Refresher that retries every interval.
func NewRefresher(retrier Retrier, interval time.Duration, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{retrier: retrier, interval: interval, logger: logger}
}

// Run refreshes at the configured interval until ctx is done. Failures are
// already emitted by the service; they are only logged here.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := r.retrier.Retry(ctx); err != nil {
				r.logger.Warn("periodic refresh failed", zap.Error(err))
				continue
			}
			r.logger.Debug("periodic refresh complete", zap.Duration("duration", time.Since(start)))
		}
	}
}

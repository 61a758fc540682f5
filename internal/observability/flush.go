package observability

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Flusher is a telemetry sink that buffers output, such as an MQTT publisher.
type Flusher interface {
	Flush(ctx context.Context) error
}

// FlushTelemetry flushes sinks and then logs before process exit.
// For pull-based Prometheus, metrics are already exposed.
func FlushTelemetry(ctx context.Context, logger *zap.Logger, sinks ...Flusher) error {
	var errs []error
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush sink: %w", err))
		}
	}
	if logger != nil {
		if err := logger.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("flush logs: %w", err))
		}
	}
	return errors.Join(errs...)
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kjstillabower/weatherlookup/internal/circuitbreaker"
	"github.com/kjstillabower/weatherlookup/internal/observability"
)

// maxBodyBytes caps how much of a provider response is read.
const maxBodyBytes = 4 << 20

// RetryConfig controls exponential backoff between attempts.
type RetryConfig struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// BreakerConfig controls the per-provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32
	Timeout          time.Duration
}

// TransportConfig bundles HTTP client and resilience settings shared by adapters.
type TransportConfig struct {
	Timeout time.Duration
	Retry   RetryConfig
	Breaker BreakerConfig
	// Client overrides the default http.Client; tests pass httptest clients.
	Client *http.Client
	Logger *zap.Logger
}

// transport issues GET requests through a breaker with retries and records metrics.
type transport struct {
	provider string
	client   *http.Client
	breaker  *circuitbreaker.CircuitBreaker
	retry    RetryConfig
	logger   *zap.Logger

	mu          sync.Mutex
	lastFailure error
}

func newTransport(provider string, cfg TransportConfig) *transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.InitialInterval <= 0 {
		cfg.Retry.InitialInterval = 100 * time.Millisecond
	}
	if cfg.Retry.MaxInterval <= 0 {
		cfg.Retry.MaxInterval = 2 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	observability.CircuitBreakerState.WithLabelValues(provider).Set(breakerGaugeValue(circuitbreaker.StateClosed))
	return &transport{
		provider: provider,
		client:   client,
		retry:    cfg.Retry,
		logger:   logger,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             provider,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Timeout:          cfg.Breaker.Timeout,
			IsFailure:        isInfrastructureFailure,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				observability.CircuitBreakerState.WithLabelValues(name).Set(breakerGaugeValue(to))
				logger.Warn("circuit breaker state change",
					zap.String("provider", name),
					zap.String("from", string(from)),
					zap.String("to", string(to)))
			},
		}),
	}
}

func breakerGaugeValue(s circuitbreaker.State) float64 {
	switch s {
	case circuitbreaker.StateHalfOpen:
		return 1
	case circuitbreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (t *transport) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.retry.InitialInterval
	bo.MaxInterval = t.retry.MaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(t.retry.Attempts-1)), ctx)
}

// get fetches rawURL and returns the response body. endpoint labels metrics.
// Non-2xx statuses and transport failures are classified into the error taxonomy.
func (t *transport) get(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	var body []byte
	operation := func() error {
		err := t.breaker.Call(ctx, func() error {
			b, err := t.do(ctx, endpoint, rawURL)
			body = b
			if isInfrastructureFailure(err) {
				t.setLastFailure(err)
			}
			return err
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, circuitbreaker.ErrOpen):
			return backoff.Permanent(t.openError(err))
		case errors.Is(err, context.Canceled), !isRetryable(err):
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		observability.ProviderRetriesTotal.WithLabelValues(t.provider).Inc()
		observability.LoggerFromContext(ctx, t.logger).Debug("retrying provider call",
			zap.String("provider", t.provider),
			zap.String("endpoint", endpoint),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	if err := backoff.RetryNotify(operation, t.newBackOff(ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			err = transportError(ctx, err)
		}
		observability.ProviderErrorsTotal.WithLabelValues(t.provider, string(CategorizeError(err))).Inc()
		return nil, err
	}
	return body, nil
}

func (t *transport) setLastFailure(err error) {
	t.mu.Lock()
	t.lastFailure = err
	t.mu.Unlock()
}

// openError reports a rejected call the way the failures that tripped the
// breaker were reported: an upstream status stays an UpstreamError, and only
// transport failures become connectivity loss.
func (t *transport) openError(err error) error {
	t.mu.Lock()
	last := t.lastFailure
	t.mu.Unlock()

	var upstream *UpstreamError
	if errors.As(last, &upstream) {
		return &UpstreamError{Status: upstream.Status, Message: upstream.Message, Err: err}
	}
	return fmt.Errorf("%w: %w", ErrConnectivityLost, err)
}

func (t *transport) do(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := t.client.Do(req)
	duration := time.Since(start).Seconds()
	observability.ProviderDuration.WithLabelValues(t.provider, endpoint).Observe(duration)
	if err != nil {
		observability.ProviderCallsTotal.WithLabelValues(t.provider, endpoint, "error").Inc()
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	observability.ProviderCallsTotal.WithLabelValues(t.provider, endpoint, statusLabel(resp.StatusCode)).Inc()
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, body)
	}
	if readErr != nil {
		return nil, transportError(ctx, fmt.Errorf("read response body: %w", readErr))
	}
	return body, nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

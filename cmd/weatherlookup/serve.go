package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	httphandler "github.com/kjstillabower/weatherlookup/internal/http"
	"github.com/kjstillabower/weatherlookup/internal/observability"
	"github.com/kjstillabower/weatherlookup/internal/service"
)

type ServeCmd struct {
	Port string `help:"Listen port; overrides server.port."`
}

func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close(ctx)
	cfg, logger := a.cfg, a.logger

	port := cfg.ServerPort
	if c.Port != "" {
		port = c.Port
	}

	healthConfig := &httphandler.HealthConfig{
		Window:           cfg.HealthWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		APIKeyConfigured: cfg.APIKeyConfigured(),
		Store:            a.pinger,
		StartTime:        time.Now(),
	}
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(
		service.NewCoalescingAdapter(a.adapter),
		a.weatherCache,
		a.settings,
		service.Config{MaxAge: cfg.CacheMaxAge, GeoTimeout: cfg.GeoTimeout},
		healthConfig,
		cfg.PublicURL,
		logger,
	)

	observability.RegisterRateLimitGauges(cfg.HealthWindow)
	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      httphandler.NewRouter(handler, limiter, cfg.RequestTimeout, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("provider", a.adapter.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("graceful shutdown triggered")
	httphandler.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}
	logger.Info("shutdown complete")
	return nil
}

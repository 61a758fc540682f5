package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/kjstillabower/weatherlookup/internal/cache"
	"github.com/kjstillabower/weatherlookup/internal/config"
	"github.com/kjstillabower/weatherlookup/internal/geo"
	"github.com/kjstillabower/weatherlookup/internal/models"
	"github.com/kjstillabower/weatherlookup/internal/observability"
	"github.com/kjstillabower/weatherlookup/internal/provider"
	"github.com/kjstillabower/weatherlookup/internal/render"
	"github.com/kjstillabower/weatherlookup/internal/service"
	"github.com/kjstillabower/weatherlookup/internal/settings"
)

// app holds the dependencies shared by every command.
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	store        cache.Store
	pinger       cache.Pinger
	adapter      provider.Adapter
	weatherCache *cache.WeatherCache
	settings     *settings.Manager
	mqtt         *render.MQTT
	out          io.Writer
	closers      []func() error
}

// newApp loads configuration, applies flag overrides and opens the store.
func newApp(ctx context.Context, g *Globals) (*app, error) {
	cfg, err := config.LoadDir(g.ConfigDir)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, g)

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, out: os.Stdout}

	if !cfg.APIKeyConfigured() {
		logger.Warn("no provider API key configured; weather requests will fail with an auth error",
			zap.String("provider", cfg.Provider))
	}

	if err := a.openStore(ctx); err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	a.weatherCache = cache.NewWeatherCache(a.store, logger)
	a.settings = settings.NewManager(a.store)

	a.adapter, err = provider.New(provider.Config{
		Name:    cfg.Provider,
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		GeoURL:  cfg.GeoURL,
		Transport: provider.TransportConfig{
			Timeout: cfg.ProviderTimeout,
			Retry: provider.RetryConfig{
				Attempts:        cfg.RetryAttempts,
				InitialInterval: cfg.RetryBaseDelay,
				MaxInterval:     cfg.RetryMaxDelay,
			},
			Breaker: provider.BreakerConfig{
				FailureThreshold: cfg.BreakerFailureThreshold,
				Timeout:          cfg.BreakerTimeout,
			},
			Logger: logger,
		},
	})
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	if g.MQTT {
		if cfg.MQTTBroker == "" {
			_ = a.close(ctx)
			return nil, fmt.Errorf("--mqtt requires mqtt.broker in config or MQTT_BROKER")
		}
		a.mqtt = render.NewMQTT(render.MQTTConfig{
			Broker:         cfg.MQTTBroker,
			ClientID:       cfg.MQTTClientID,
			Username:       cfg.MQTTUsername,
			Password:       cfg.MQTTPassword,
			TopicPrefix:    cfg.MQTTTopicPrefix,
			QoS:            cfg.MQTTQoS,
			PublishTimeout: cfg.MQTTPublishTimeout,
		}, logger)
		if err := a.mqtt.Connect(ctx); err != nil {
			_ = a.close(ctx)
			return nil, fmt.Errorf("mqtt connect: %w", err)
		}
	}
	return a, nil
}

func applyOverrides(cfg *config.Config, g *Globals) {
	if g.APIKey != "" {
		cfg.APIKey = g.APIKey
	}
	if g.Provider != "" {
		cfg.Provider = g.Provider
	}
	if g.Store != "" {
		cfg.StoreBackend = g.Store
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.StoreBackend {
	case config.StoreMemory:
		a.store = cache.NewInMemoryStore()
		a.logger.Info("store backend: memory")
	case config.StoreMemcached:
		mc := cache.NewMemcachedStore(a.cfg.MemcachedAddrs, a.cfg.MemcachedTimeout, a.cfg.MemcachedMaxIdleConns)
		a.store, a.pinger = mc, mc
		a.closers = append(a.closers, mc.Close)
		a.logger.Info("store backend: memcached", zap.String("addrs", a.cfg.MemcachedAddrs))
	default:
		db, err := sql.Open("sqlite", a.cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
			return fmt.Errorf("configure database: %w", err)
		}
		st := cache.NewSQLiteStore(db)
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		a.store, a.pinger = st, st
		a.logger.Info("store backend: sqlite", zap.String("path", a.cfg.SQLitePath))
	}
	return nil
}

// suggestionRenderer shows search matches; Text and JSON implement it.
type suggestionRenderer interface {
	RenderSuggestions(matches []models.LocationMatch)
}

// renderer builds the output renderer for the selected format, fanned out to
// MQTT when enabled. text is nil for JSON output.
func (a *app) renderer(ctx context.Context, format string) (r service.Renderer, suggestions suggestionRenderer, text *render.Text) {
	if format == "json" {
		j := render.NewJSON(a.out)
		r, suggestions = j, j
	} else {
		s, err := a.settings.Load(ctx)
		if err != nil {
			a.logger.Warn("settings unavailable, using defaults", zap.Error(err))
			s = settings.Defaults()
		}
		text = render.NewText(a.out, s)
		r, suggestions = text, text
	}
	if a.mqtt != nil {
		r = render.Multi{r, a.mqtt}
	}
	return r, suggestions, text
}

func (a *app) newService(r service.Renderer) *service.WeatherService {
	return service.NewWeatherService(a.adapter, a.weatherCache, r, service.Config{
		MaxAge:     a.cfg.CacheMaxAge,
		GeoTimeout: a.cfg.GeoTimeout,
		Logger:     a.logger,
	})
}

// locator picks the configured position source: fixed coordinates, then the
// IP lookup, else a locator that always reports access denied.
func (a *app) locator() geo.Locator {
	if a.cfg.GeoStaticLat != nil && a.cfg.GeoStaticLon != nil {
		return geo.StaticLocator{
			Position: &geo.Position{Latitude: *a.cfg.GeoStaticLat, Longitude: *a.cfg.GeoStaticLon},
			Enabled:  a.cfg.GeoEnabled,
		}
	}
	if !a.cfg.GeoEnabled {
		return geo.StaticLocator{}
	}
	return geo.NewIPLocator(a.cfg.GeoIPURL, a.cfg.GeoTimeout)
}

// close flushes telemetry sinks and releases the store.
func (a *app) close(ctx context.Context) error {
	var sinks []observability.Flusher
	if a.mqtt != nil {
		sinks = append(sinks, a.mqtt)
	}
	err := observability.FlushTelemetry(context.WithoutCancel(ctx), nil, sinks...)
	for i := len(a.closers) - 1; i >= 0; i-- {
		if cerr := a.closers[i](); cerr != nil {
			a.logger.Error("close store", zap.Error(cerr))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}

// finish maps a failed operation to errReported; the renderer already showed it.
func finish(err error) error {
	if err != nil {
		return errReported
	}
	return nil
}

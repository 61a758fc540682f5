package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weatherlookup/internal/cache"
	"github.com/kjstillabower/weatherlookup/internal/forecast"
	"github.com/kjstillabower/weatherlookup/internal/geo"
	"github.com/kjstillabower/weatherlookup/internal/models"
	"github.com/kjstillabower/weatherlookup/internal/observability"
	"github.com/kjstillabower/weatherlookup/internal/provider"
	"github.com/kjstillabower/weatherlookup/internal/traffic"
	"github.com/kjstillabower/weatherlookup/internal/validation"
)

// State is the lifecycle position of the most recent operation.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateSuccess State = "success"
	StateError   State = "error"
)

// Operation kinds used as metric labels.
const (
	kindText        = "text"
	kindCoordinates = "coordinates"
	kindGeolocation = "geolocation"
	kindRetry       = "retry"
	kindStart       = "start"
)

// Emission is the single weather value published per successful operation.
type Emission struct {
	Weather     models.CanonicalWeather `json:"weather"`
	IsCached    bool                    `json:"isCached"`
	AsOfEpochMs int64                   `json:"asOfEpochMs"`
	Theme       forecast.Theme          `json:"theme"`
	Query       models.QueryLocation    `json:"query"`
}

// ErrorEmission is the single error value published per failed operation.
type ErrorEmission struct {
	Category Category `json:"category"`
	Message  string   `json:"message"`
}

// Renderer receives everything the service has to say. It is the only way to
// observe operation results.
type Renderer interface {
	RenderWeather(Emission)
	RenderError(ErrorEmission)
}

// Config carries service tunables. Zero values take defaults.
type Config struct {
	// MaxAge is the freshness threshold for cached snapshots.
	MaxAge     time.Duration
	GeoTimeout time.Duration
	Logger     *zap.Logger
}

// WeatherService drives queries through a provider adapter, keeps the single
// cached snapshot current and publishes results to a Renderer.
type WeatherService struct {
	adapter    provider.Adapter
	cache      *cache.WeatherCache
	renderer   Renderer
	logger     *zap.Logger
	maxAge     time.Duration
	geoTimeout time.Duration
	now        func() time.Time

	// opMu serializes operations; mu guards the fields below it.
	opMu      sync.Mutex
	mu        sync.RWMutex
	state     State
	lastQuery models.QueryLocation
	lastErr   *ErrorEmission
}

// NewWeatherService returns an idle service.
func NewWeatherService(adapter provider.Adapter, wc *cache.WeatherCache, renderer Renderer, cfg Config) *WeatherService {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = cache.DefaultMaxAge
	}
	if cfg.GeoTimeout <= 0 {
		cfg.GeoTimeout = geo.DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &WeatherService{
		adapter:    adapter,
		cache:      wc,
		renderer:   renderer,
		logger:     cfg.Logger,
		maxAge:     cfg.MaxAge,
		geoTimeout: cfg.GeoTimeout,
		now:        time.Now,
		state:      StateIdle,
	}
}

// State returns the current state.
func (s *WeatherService) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastQuery returns the most recent query, zero if none was issued.
func (s *WeatherService) LastQuery() models.QueryLocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastQuery
}

// LastError returns the error emission that put the service into StateError.
func (s *WeatherService) LastError() (ErrorEmission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastErr == nil {
		return ErrorEmission{}, false
	}
	return *s.lastErr, true
}

// Query fetches weather for free text such as a city name.
func (s *WeatherService) Query(ctx context.Context, text string) error {
	return s.query(ctx, kindText, text)
}

func (s *WeatherService) query(ctx context.Context, kind, text string) error {
	clean, err := validation.ValidateLocation(text, validation.MaxQueryLen)
	if err != nil {
		s.opMu.Lock()
		defer s.opMu.Unlock()
		return s.fail(ctx, kind, "", err)
	}
	q := models.TextQuery(clean)
	return s.run(ctx, kind, q, func(ctx context.Context) (models.CanonicalWeather, error) {
		return s.adapter.FetchByQuery(ctx, clean)
	})
}

// QueryByCoordinates fetches weather for a latitude/longitude pair.
func (s *WeatherService) QueryByCoordinates(ctx context.Context, lat, lon float64) error {
	return s.queryByCoordinates(ctx, kindCoordinates, lat, lon)
}

func (s *WeatherService) queryByCoordinates(ctx context.Context, kind string, lat, lon float64) error {
	if err := validation.ValidateCoordinates(lat, lon); err != nil {
		s.opMu.Lock()
		defer s.opMu.Unlock()
		return s.fail(ctx, kind, "", err)
	}
	q := models.CoordinateQuery(lat, lon)
	return s.run(ctx, kind, q, func(ctx context.Context) (models.CanonicalWeather, error) {
		return s.adapter.FetchByCoordinates(ctx, lat, lon)
	})
}

// QueryByLocator acquires the device position and then queries by coordinates.
// Geolocation failures are classified and emitted like any other failure.
func (s *WeatherService) QueryByLocator(ctx context.Context, locator geo.Locator) error {
	pos, err := geo.Acquire(ctx, locator, s.geoTimeout)
	if err != nil {
		s.opMu.Lock()
		defer s.opMu.Unlock()
		return s.fail(ctx, kindGeolocation, "", err)
	}
	return s.queryByCoordinates(ctx, kindGeolocation, pos.Latitude, pos.Longitude)
}

// Retry re-issues the last query verbatim. It does nothing when no query was
// ever issued.
func (s *WeatherService) Retry(ctx context.Context) error {
	q := s.LastQuery()
	switch {
	case q.IsZero():
		return nil
	case q.IsCoordinates():
		return s.queryByCoordinates(ctx, kindRetry, *q.Lat, *q.Lon)
	default:
		return s.query(ctx, kindRetry, q.Text)
	}
}

// Start performs the initial render. A deep-link city triggers a query. Otherwise
// a fresh cached snapshot is emitted without network I/O and its query becomes
// the last query; with no fresh snapshot the service stays idle and emits nothing.
func (s *WeatherService) Start(ctx context.Context, deepLinkCity string) error {
	if deepLinkCity != "" {
		return s.query(ctx, kindStart, deepLinkCity)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	entry, ok := s.cache.LoadFresh(ctx, s.maxAge)
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.lastQuery = entry.QueryLocation
	s.state = StateSuccess
	s.lastErr = nil
	s.mu.Unlock()

	s.emitWeather(entry.Snapshot, true, entry.CapturedAtEpochMs, entry.QueryLocation)
	observability.RecordWeatherQuery(kindStart, "cached", entry.QueryLocation.Text)
	observability.LoggerFromContext(ctx, s.logger).Debug("rendered cached weather at startup",
		zap.String("query", entry.QueryLocation.String()),
		zap.Int64("captured_at_ms", entry.CapturedAtEpochMs))
	return nil
}

// Search returns location suggestions for partial text. Text shorter than two
// characters yields no suggestions and no request. Failures are returned as
// ErrSearchFailed and never change the service state.
func (s *WeatherService) Search(ctx context.Context, text string) ([]models.LocationMatch, error) {
	q, ok := validation.SearchText(text)
	if !ok {
		observability.SearchRequestsTotal.WithLabelValues("skipped").Inc()
		return []models.LocationMatch{}, nil
	}
	matches, err := s.adapter.SearchLocations(ctx, q)
	if err != nil {
		observability.SearchRequestsTotal.WithLabelValues("error").Inc()
		observability.LoggerFromContext(ctx, s.logger).Warn("location search failed",
			zap.String("query", q), zap.Error(err))
		if !errors.Is(err, provider.ErrSearchFailed) {
			err = fmt.Errorf("%w: %w", provider.ErrSearchFailed, err)
		}
		return []models.LocationMatch{}, err
	}
	if len(matches) == 0 {
		observability.SearchRequestsTotal.WithLabelValues("empty").Inc()
		return []models.LocationMatch{}, nil
	}
	observability.SearchRequestsTotal.WithLabelValues("ok").Inc()
	return matches, nil
}

// run executes one fetch under the operation lock and publishes exactly one emission.
func (s *WeatherService) run(ctx context.Context, kind string, q models.QueryLocation, fetch func(context.Context) (models.CanonicalWeather, error)) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.state = StateLoading
	s.lastQuery = q
	s.mu.Unlock()

	logger := observability.LoggerFromContext(ctx, s.logger)
	start := time.Now()
	w, err := fetch(ctx)
	if err != nil {
		return s.fail(ctx, kind, q.Text, err)
	}

	// The snapshot is stored even when the caller has gone away.
	if err := s.cache.Store(context.WithoutCancel(ctx), w, q); err != nil {
		logger.Warn("cache store failed", zap.Error(err))
	}
	s.mu.Lock()
	s.state = StateSuccess
	s.lastErr = nil
	s.mu.Unlock()

	s.emitWeather(w, false, s.now().UnixMilli(), q)
	traffic.Record(traffic.OutcomeSuccess)
	observability.RecordWeatherQuery(kind, "success", q.Text)
	logger.Debug("weather served",
		zap.String("kind", kind),
		zap.String("query", q.String()),
		zap.String("location", w.Location.Name),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// fail classifies err and either falls back to a fresh cached snapshot (for
// connectivity loss) or moves to StateError. Callers hold opMu.
func (s *WeatherService) fail(ctx context.Context, kind, location string, err error) error {
	logger := observability.LoggerFromContext(ctx, s.logger)
	category, message := Classify(err)

	if category == CategoryConnectivityLost {
		if entry, ok := s.cache.LoadFresh(context.WithoutCancel(ctx), s.maxAge); ok {
			s.mu.Lock()
			s.state = StateSuccess
			s.lastErr = nil
			s.mu.Unlock()

			s.emitWeather(entry.Snapshot, true, entry.CapturedAtEpochMs, entry.QueryLocation)
			observability.CacheFallbackTotal.Inc()
			traffic.Record(traffic.OutcomeCached)
			observability.RecordWeatherQuery(kind, "cached", location)
			logger.Info("serving cached weather after connectivity loss",
				zap.Duration("age", s.now().Sub(time.UnixMilli(entry.CapturedAtEpochMs))),
				zap.Error(err))
			return nil
		}
	}

	emission := ErrorEmission{Category: category, Message: message}
	s.mu.Lock()
	s.state = StateError
	s.lastErr = &emission
	s.mu.Unlock()

	s.renderer.RenderError(emission)
	traffic.Record(traffic.OutcomeError)
	observability.RecordWeatherQuery(kind, "error", location)
	logger.Warn("weather query failed",
		zap.String("kind", kind),
		zap.String("category", string(category)),
		zap.Error(err))
	return err
}

func (s *WeatherService) emitWeather(w models.CanonicalWeather, cached bool, asOfMs int64, q models.QueryLocation) {
	theme := forecast.ClassifyTheme(w.Current.ConditionText, w.Current.Sunrise, w.Current.Sunset, s.localNow(w))
	s.renderer.RenderWeather(Emission{
		Weather:     w.Clone(),
		IsCached:    cached,
		AsOfEpochMs: asOfMs,
		Theme:       theme,
		Query:       q,
	})
}

// localNow returns the location's wall clock when known, for day/night theming.
func (s *WeatherService) localNow(w models.CanonicalWeather) time.Time {
	if t, err := forecast.ParseLocalTime(w.Location.LocalTimeISO); err == nil {
		return t
	}
	return s.now()
}

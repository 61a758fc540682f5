package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weatherlookup/internal/cache"
	"github.com/kjstillabower/weatherlookup/internal/observability"
	"github.com/kjstillabower/weatherlookup/internal/provider"
	"github.com/kjstillabower/weatherlookup/internal/render"
	"github.com/kjstillabower/weatherlookup/internal/service"
	"github.com/kjstillabower/weatherlookup/internal/settings"
	"github.com/kjstillabower/weatherlookup/internal/traffic"
	"github.com/kjstillabower/weatherlookup/internal/validation"
)

// HealthConfig holds thresholds and probes for the health handler.
type HealthConfig struct {
	// Window is the sliding window used for the error rate.
	Window           time.Duration
	DegradedErrorPct int
	APIKeyConfigured bool
	// Store, when set, is pinged to report persistence reachability.
	Store     cache.Pinger
	StartTime time.Time
}

// Handler holds dependencies for HTTP handlers. Each weather request builds
// its own WeatherService over the shared adapter and cache, so the single
// emission of that operation becomes the response.
type Handler struct {
	adapter          provider.Adapter
	cache            *cache.WeatherCache
	settings         *settings.Manager
	serviceConfig    service.Config
	healthConfig     *HealthConfig
	publicURL        string
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. publicURL is the base for share links; empty omits them.
func NewHandler(
	adapter provider.Adapter,
	weatherCache *cache.WeatherCache,
	settingsManager *settings.Manager,
	serviceConfig service.Config,
	healthConfig *HealthConfig,
	publicURL string,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		adapter:       adapter,
		cache:         weatherCache,
		settings:      settingsManager,
		serviceConfig: serviceConfig,
		healthConfig:  healthConfig,
		publicURL:     publicURL,
		logger:        logger,
	}
}

// weatherResponse is the body of a successful weather request.
type weatherResponse struct {
	service.Emission
	ShareText string `json:"shareText,omitempty"`
	ShareURL  string `json:"shareUrl,omitempty"`
}

type searchResponse struct {
	Query   string      `json:"query"`
	Results interface{} `json:"results"`
}

func (h *Handler) newService(r *http.Request) (*service.WeatherService, *render.Capture) {
	capture := &render.Capture{}
	cfg := h.serviceConfig
	cfg.Logger = observability.LoggerFromContext(r.Context(), h.logger)
	return service.NewWeatherService(h.adapter, h.cache, capture, cfg), capture
}

// GetWeather handles GET /weather?city=. Without a city the fresh cached
// snapshot is served, or 404 when there is none.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	svc, capture := h.newService(r)
	if city == "" {
		_ = svc.Start(r.Context(), "")
		if capture.Weather == nil {
			writeError(w, r, http.StatusNotFound, "NO_CACHED_WEATHER", "No recent weather available. Provide a city.")
			return
		}
	} else {
		_ = svc.Query(r.Context(), city)
	}
	h.writeCapture(w, r, capture)
}

// GetWeatherByCoordinates handles GET /weather/coordinates?lat=&lon=.
func (h *Handler) GetWeatherByCoordinates(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := validation.ParseCoordinates(r.URL.Query().Get("lat"), r.URL.Query().Get("lon"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "Invalid input.")
		return
	}
	svc, capture := h.newService(r)
	_ = svc.QueryByCoordinates(r.Context(), lat, lon)
	h.writeCapture(w, r, capture)
}

// GetSearch handles GET /search?q=. Failures yield an empty result list.
func (h *Handler) GetSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	svc, _ := h.newService(r)
	matches, err := svc.Search(r.Context(), q)
	if err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Debug("search failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: strings.TrimSpace(q), Results: matches})
}

// GetSettings handles GET /settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Load(r.Context())
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// settingsPatch carries the fields a PUT /settings may change.
type settingsPatch struct {
	TemperatureUnit *string `json:"temperatureUnit"`
	Theme           *string `json:"theme"`
	ShowChart       *bool   `json:"showChart"`
}

// PutSettings handles PUT /settings. Omitted fields are left unchanged.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&patch); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "Request body must be a settings object.")
		return
	}
	ctx := r.Context()
	var err error
	if patch.TemperatureUnit != nil {
		_, err = h.settings.SetTemperatureUnit(ctx, *patch.TemperatureUnit)
	}
	if err == nil && patch.Theme != nil {
		err = h.settings.SetTheme(ctx, *patch.Theme)
	}
	if err == nil && patch.ShowChart != nil {
		err = h.settings.SetShowChart(ctx, *patch.ShowChart)
	}
	if errors.Is(err, settings.ErrInvalidSetting) {
		writeError(w, r, http.StatusBadRequest, "INVALID_SETTING", err.Error())
		return
	}
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	h.GetSettings(w, r)
}

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context(), h.logger).Warn("settings store failed", zap.Error(err))
	writeError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Settings storage is unavailable.")
}

func (h *Handler) writeCapture(w http.ResponseWriter, r *http.Request, c *render.Capture) {
	if c.Weather != nil {
		resp := weatherResponse{Emission: *c.Weather}
		if h.publicURL != "" {
			unit := settings.Celsius
			if s, err := h.settings.Load(r.Context()); err == nil {
				unit = s.TemperatureUnit
			}
			if text, link, err := render.ShareText(c.Weather.Weather, unit, h.publicURL); err == nil {
				resp.ShareText, resp.ShareURL = text, link
			}
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if c.Error != nil {
		writeError(w, r, statusForCategory(c.Error.Category), strings.ToUpper(string(c.Error.Category)), c.Error.Message)
		return
	}
	writeError(w, r, http.StatusInternalServerError, "NO_RESULT", "Failed to fetch weather data")
}

// statusForCategory maps a classified failure to an HTTP status.
func statusForCategory(c service.Category) int {
	switch c {
	case service.CategoryLocationNotFound:
		return http.StatusNotFound
	case service.CategoryInvalidInput:
		return http.StatusBadRequest
	case service.CategoryRateLimited:
		return http.StatusTooManyRequests
	case service.CategoryAuthError, service.CategoryUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result, checks := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weatherlookup",
		"provider":  h.adapter.Name(),
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && !h.healthConfig.StartTime.IsZero() {
		resp["uptimeSeconds"] = int64(time.Since(h.healthConfig.StartTime).Seconds())
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > missing API key > store unreachable > error rate > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) (healthResult, map[string]string) {
	checks := map[string]string{"provider": "healthy"}
	if IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}, checks
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}, checks
	}

	result := healthResult{"healthy", http.StatusOK, ""}
	if h.healthConfig.Store != nil {
		if err := h.healthConfig.Store.Ping(ctx); err != nil {
			checks["store"] = "unhealthy"
			result = healthResult{"degraded", http.StatusServiceUnavailable, "store_unreachable"}
		} else {
			checks["store"] = "healthy"
		}
	}
	if !h.healthConfig.APIKeyConfigured {
		checks["provider"] = "unhealthy"
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_missing"}, checks
	}
	if result.status != "healthy" {
		return result, checks
	}
	if h.healthConfig.Window > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errCount, total := traffic.ErrorRate(h.healthConfig.Window)
		if total > 0 && float64(errCount)*100/float64(total) >= float64(h.healthConfig.DegradedErrorPct) {
			checks["provider"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}, checks
		}
	}
	return result, checks
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

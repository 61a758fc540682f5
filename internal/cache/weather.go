package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weatherlookup/internal/models"
)

// DefaultMaxAge is how long a cached snapshot stays usable.
const DefaultMaxAge = time.Hour

// WeatherCache keeps the last successful snapshot in a single Store slot.
type WeatherCache struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewWeatherCache returns a WeatherCache over store.
func NewWeatherCache(store Store, logger *zap.Logger) *WeatherCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherCache{store: store, logger: logger, now: time.Now}
}

// Store overwrites the slot with snapshot captured now.
func (c *WeatherCache) Store(ctx context.Context, snapshot models.CanonicalWeather, query models.QueryLocation) error {
	entry := models.CacheEntry{
		Snapshot:          snapshot.Clone(),
		CapturedAtEpochMs: c.now().UnixMilli(),
		QueryLocation:     query,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, KeyCachedWeather, string(raw))
}

// Load returns the cached entry. A missing key, backend error or malformed
// payload all report absent; problems are logged, never returned.
func (c *WeatherCache) Load(ctx context.Context) (models.CacheEntry, bool) {
	raw, ok, err := c.store.Get(ctx, KeyCachedWeather)
	if err != nil {
		c.logger.Warn("cache load failed", zap.Error(err))
		return models.CacheEntry{}, false
	}
	if !ok {
		return models.CacheEntry{}, false
	}
	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		recordOp("weather", "decode", "malformed")
		c.logger.Warn("discarding malformed cached weather", zap.Error(err))
		return models.CacheEntry{}, false
	}
	return entry, true
}

// LoadFresh returns the cached entry only when it is younger than maxAge.
func (c *WeatherCache) LoadFresh(ctx context.Context, maxAge time.Duration) (models.CacheEntry, bool) {
	entry, ok := c.Load(ctx)
	if !ok || !IsFresh(entry, c.now().UnixMilli(), maxAge.Milliseconds()) {
		return models.CacheEntry{}, false
	}
	return entry, true
}

// IsFresh reports whether entry is strictly younger than maxAgeMs at nowMs.
func IsFresh(entry models.CacheEntry, nowMs, maxAgeMs int64) bool {
	return nowMs-entry.CapturedAtEpochMs < maxAgeMs
}

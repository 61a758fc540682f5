package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/weatherlookup/internal/cache"
	"github.com/kjstillabower/weatherlookup/internal/geo"
	"github.com/kjstillabower/weatherlookup/internal/models"
	"github.com/kjstillabower/weatherlookup/internal/provider"
	"github.com/kjstillabower/weatherlookup/internal/units"
)

type fakeAdapter struct {
	mu        sync.Mutex
	weather   models.CanonicalWeather
	err       error
	matches   []models.LocationMatch
	searchErr error
	queries   []string
	coords    [][2]float64
	searches  []string
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) SearchLocations(_ context.Context, q string) ([]models.LocationMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, q)
	return f.matches, f.searchErr
}

func (f *fakeAdapter) FetchByQuery(_ context.Context, text string) (models.CanonicalWeather, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	if f.err != nil {
		return models.CanonicalWeather{}, f.err
	}
	return f.weather.Clone(), nil
}

func (f *fakeAdapter) FetchByCoordinates(_ context.Context, lat, lon float64) (models.CanonicalWeather, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coords = append(f.coords, [2]float64{lat, lon})
	if f.err != nil {
		return models.CanonicalWeather{}, f.err
	}
	return f.weather.Clone(), nil
}

func (f *fakeAdapter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries) + len(f.coords)
}

type recordingRenderer struct {
	mu       sync.Mutex
	weathers []Emission
	errs     []ErrorEmission
}

func (r *recordingRenderer) RenderWeather(e Emission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weathers = append(r.weathers, e)
}

func (r *recordingRenderer) RenderError(e ErrorEmission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, e)
}

func (r *recordingRenderer) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.weathers) + len(r.errs)
}

func londonWeather() models.CanonicalWeather {
	return models.CanonicalWeather{
		Location: models.Location{Name: "London", Country: "United Kingdom", LocalTimeISO: "2024-01-15T12:00"},
		Current: models.Current{
			TempC:         15.5,
			TempF:         units.CToF(15.5),
			HumidityPct:   72,
			ConditionText: "Partly cloudy",
			Sunrise:       "07:58 AM",
			Sunset:        "04:20 PM",
		},
		Days: []models.ForecastDay{
			{DateISO: "2024-01-15", MaxTempC: 16, MinTempC: 9, Hours: []models.HourSample{{TimeISO: "2024-01-15T12:00", TempC: 15.5}}},
		},
	}
}

type harness struct {
	adapter  *fakeAdapter
	store    *cache.InMemoryStore
	renderer *recordingRenderer
	svc      *WeatherService
}

func newHarness() *harness {
	h := &harness{
		adapter:  &fakeAdapter{weather: londonWeather()},
		store:    cache.NewInMemoryStore(),
		renderer: &recordingRenderer{},
	}
	h.svc = NewWeatherService(h.adapter, cache.NewWeatherCache(h.store, nil), h.renderer, Config{})
	return h
}

// seedCache writes a cache entry captured age ago directly into the store.
func (h *harness) seedCache(t *testing.T, age time.Duration, q models.QueryLocation) int64 {
	t.Helper()
	captured := time.Now().Add(-age).UnixMilli()
	w := londonWeather()
	w.Location.Name = "Cached Town"
	raw, err := json.Marshal(models.CacheEntry{Snapshot: w, CapturedAtEpochMs: captured, QueryLocation: q})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.store.Set(context.Background(), cache.KeyCachedWeather, string(raw)); err != nil {
		t.Fatal(err)
	}
	return captured
}

func TestWeatherService_InitialState(t *testing.T) {
	h := newHarness()
	if got := h.svc.State(); got != StateIdle {
		t.Errorf("State() = %v, want idle", got)
	}
	if !h.svc.LastQuery().IsZero() {
		t.Error("LastQuery() should be zero before any query")
	}
}

// TestWeatherService_Query_Success verifies that a successful query emits the
// snapshot once, caches it and moves to Success.
func TestWeatherService_Query_Success(t *testing.T) {
	h := newHarness()
	if err := h.svc.Query(context.Background(), "  London "); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if h.svc.State() != StateSuccess {
		t.Errorf("State() = %v, want success", h.svc.State())
	}
	if len(h.renderer.weathers) != 1 || len(h.renderer.errs) != 0 {
		t.Fatalf("emissions = %d weather, %d error; want 1, 0", len(h.renderer.weathers), len(h.renderer.errs))
	}
	em := h.renderer.weathers[0]
	if em.IsCached {
		t.Error("fresh result emitted as cached")
	}
	if em.Weather.Location.Name != "London" || em.Query.Text != "London" {
		t.Errorf("emission = %+v", em)
	}
	if em.AsOfEpochMs == 0 {
		t.Error("AsOfEpochMs not set")
	}
	if h.adapter.queries[0] != "London" {
		t.Errorf("adapter query = %q, want trimmed London", h.adapter.queries[0])
	}

	entry, ok := cache.NewWeatherCache(h.store, nil).Load(context.Background())
	if !ok || entry.Snapshot.Location.Name != "London" || entry.QueryLocation.Text != "London" {
		t.Errorf("cached entry = %+v, %v", entry, ok)
	}
}

func TestWeatherService_EmissionIsCopy(t *testing.T) {
	h := newHarness()
	_ = h.svc.Query(context.Background(), "London")
	h.renderer.weathers[0].Weather.Days[0].DateISO = "mutated"

	entry, _ := cache.NewWeatherCache(h.store, nil).Load(context.Background())
	if entry.Snapshot.Days[0].DateISO != "2024-01-15" {
		t.Errorf("cached day = %q, renderer mutation leaked into cache", entry.Snapshot.Days[0].DateISO)
	}
}

// TestWeatherService_ConnectivityFallback verifies that a connectivity failure
// with a ten-minute-old cache emits the cached snapshot rather than an error.
func TestWeatherService_ConnectivityFallback(t *testing.T) {
	h := newHarness()
	captured := h.seedCache(t, 10*time.Minute, models.TextQuery("Cached Town"))
	h.adapter.err = fmt.Errorf("%w: dial tcp: no route", provider.ErrConnectivityLost)

	if err := h.svc.Query(context.Background(), "London"); err != nil {
		t.Fatalf("Query() error = %v, want nil after fallback", err)
	}
	if h.svc.State() != StateSuccess {
		t.Errorf("State() = %v, want success", h.svc.State())
	}
	if len(h.renderer.errs) != 0 || len(h.renderer.weathers) != 1 {
		t.Fatalf("emissions = %d weather, %d error; want 1, 0", len(h.renderer.weathers), len(h.renderer.errs))
	}
	em := h.renderer.weathers[0]
	if !em.IsCached {
		t.Error("fallback emission not marked cached")
	}
	if em.AsOfEpochMs != captured {
		t.Errorf("AsOfEpochMs = %d, want capture time %d", em.AsOfEpochMs, captured)
	}
	if em.Weather.Location.Name != "Cached Town" {
		t.Errorf("emitted location = %q, want cached snapshot", em.Weather.Location.Name)
	}
}

func TestWeatherService_ConnectivityWithoutUsableCache(t *testing.T) {
	tests := []struct {
		name string
		seed bool
		age  time.Duration
	}{
		{"no cache", false, 0},
		{"stale cache", true, 2 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			if tt.seed {
				h.seedCache(t, tt.age, models.TextQuery("Cached Town"))
			}
			h.adapter.err = fmt.Errorf("%w: offline", provider.ErrConnectivityLost)

			err := h.svc.Query(context.Background(), "London")
			if !errors.Is(err, provider.ErrConnectivityLost) {
				t.Fatalf("Query() error = %v, want ErrConnectivityLost", err)
			}
			if h.svc.State() != StateError {
				t.Errorf("State() = %v, want error", h.svc.State())
			}
			if len(h.renderer.errs) != 1 || len(h.renderer.weathers) != 0 {
				t.Fatalf("emissions = %d weather, %d error; want 0, 1", len(h.renderer.weathers), len(h.renderer.errs))
			}
			if h.renderer.errs[0].Category != CategoryConnectivityLost {
				t.Errorf("category = %v, want connectivity_lost", h.renderer.errs[0].Category)
			}
		})
	}
}

// TestWeatherService_NonConnectivityErrorsSkipCache verifies that only
// connectivity loss uses the cache fallback.
func TestWeatherService_NonConnectivityErrorsSkipCache(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantCat Category
		wantMsg string
	}{
		{"not found", provider.ErrLocationNotFound, CategoryLocationNotFound, "City not found. Please check the spelling and try again."},
		{"upstream", &provider.UpstreamError{Status: 500}, CategoryUpstreamError, "Weather service error (HTTP 500). Please try again."},
		{"auth", provider.ErrInvalidAPIKey, CategoryAuthError, "API key error. Please check your configuration."},
		{"rate limited", provider.ErrRateLimited, CategoryRateLimited, "Too many requests. Please try again later."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.seedCache(t, time.Minute, models.TextQuery("Cached Town"))
			h.adapter.err = tt.err

			_ = h.svc.Query(context.Background(), "Atlantis")
			if len(h.renderer.weathers) != 0 {
				t.Fatal("cached snapshot emitted for non-connectivity failure")
			}
			got, ok := h.svc.LastError()
			if !ok {
				t.Fatal("LastError() missing")
			}
			if got.Category != tt.wantCat || got.Message != tt.wantMsg {
				t.Errorf("LastError() = %+v, want %v %q", got, tt.wantCat, tt.wantMsg)
			}
		})
	}
}

func TestWeatherService_InvalidInput(t *testing.T) {
	h := newHarness()
	err := h.svc.Query(context.Background(), "   ")
	if err == nil {
		t.Fatal("Query(blank) error = nil")
	}
	if h.adapter.calls() != 0 {
		t.Errorf("adapter called %d times for invalid input", h.adapter.calls())
	}
	if got, _ := h.svc.LastError(); got.Category != CategoryInvalidInput {
		t.Errorf("category = %v, want invalid_input", got.Category)
	}
	if !h.svc.LastQuery().IsZero() {
		t.Error("invalid input should not become the last query")
	}

	if err := h.svc.QueryByCoordinates(context.Background(), 91, 0); err == nil {
		t.Fatal("QueryByCoordinates(91, 0) error = nil")
	}
	if h.adapter.calls() != 0 {
		t.Error("adapter called for out-of-range coordinates")
	}
}

func TestWeatherService_Retry(t *testing.T) {
	t.Run("no prior query is a no-op", func(t *testing.T) {
		h := newHarness()
		if err := h.svc.Retry(context.Background()); err != nil {
			t.Fatalf("Retry() error = %v", err)
		}
		if h.renderer.total() != 0 || h.adapter.calls() != 0 {
			t.Errorf("Retry() without query emitted %d times, called adapter %d times", h.renderer.total(), h.adapter.calls())
		}
		if h.svc.State() != StateIdle {
			t.Errorf("State() = %v, want idle", h.svc.State())
		}
	})

	t.Run("after error re-issues text query", func(t *testing.T) {
		h := newHarness()
		h.adapter.err = &provider.UpstreamError{Status: 503}
		_ = h.svc.Query(context.Background(), "London")
		if h.svc.State() != StateError {
			t.Fatalf("State() = %v, want error", h.svc.State())
		}

		h.adapter.err = nil
		if err := h.svc.Retry(context.Background()); err != nil {
			t.Fatalf("Retry() error = %v", err)
		}
		if h.svc.State() != StateSuccess {
			t.Errorf("State() = %v, want success", h.svc.State())
		}
		if len(h.adapter.queries) != 2 || h.adapter.queries[1] != "London" {
			t.Errorf("queries = %v, want London twice", h.adapter.queries)
		}
	})

	t.Run("re-issues coordinates", func(t *testing.T) {
		h := newHarness()
		_ = h.svc.QueryByCoordinates(context.Background(), 51.5, -0.12)
		_ = h.svc.Retry(context.Background())
		if len(h.adapter.coords) != 2 || h.adapter.coords[1] != [2]float64{51.5, -0.12} {
			t.Errorf("coords = %v, want (51.5,-0.12) twice", h.adapter.coords)
		}
	})
}

func TestWeatherService_Start(t *testing.T) {
	t.Run("deep link queries", func(t *testing.T) {
		h := newHarness()
		h.seedCache(t, time.Minute, models.TextQuery("Cached Town"))
		if err := h.svc.Start(context.Background(), "Paris"); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if len(h.adapter.queries) != 1 || h.adapter.queries[0] != "Paris" {
			t.Errorf("queries = %v, want [Paris]", h.adapter.queries)
		}
		if h.renderer.weathers[0].IsCached {
			t.Error("deep link emission should not be cached")
		}
	})

	t.Run("fresh cache without network", func(t *testing.T) {
		h := newHarness()
		captured := h.seedCache(t, 5*time.Minute, models.TextQuery("Cached Town"))
		if err := h.svc.Start(context.Background(), ""); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if h.adapter.calls() != 0 {
			t.Errorf("adapter called %d times on cached start", h.adapter.calls())
		}
		if len(h.renderer.weathers) != 1 {
			t.Fatalf("weather emissions = %d, want 1", len(h.renderer.weathers))
		}
		em := h.renderer.weathers[0]
		if !em.IsCached || em.AsOfEpochMs != captured {
			t.Errorf("emission cached=%v asOf=%d, want true %d", em.IsCached, em.AsOfEpochMs, captured)
		}
		if got := h.svc.LastQuery().Text; got != "Cached Town" {
			t.Errorf("LastQuery() = %q, want restored Cached Town", got)
		}
	})

	t.Run("stale cache stays idle", func(t *testing.T) {
		h := newHarness()
		h.seedCache(t, 61*time.Minute, models.TextQuery("Cached Town"))
		_ = h.svc.Start(context.Background(), "")
		if h.renderer.total() != 0 {
			t.Errorf("emissions = %d, want 0", h.renderer.total())
		}
		if h.svc.State() != StateIdle {
			t.Errorf("State() = %v, want idle", h.svc.State())
		}
	})
}

func TestWeatherService_QueryByLocator(t *testing.T) {
	t.Run("position resolves to coordinates", func(t *testing.T) {
		h := newHarness()
		loc := geo.StaticLocator{Position: &geo.Position{Latitude: 48.85, Longitude: 2.35}, Enabled: true}
		if err := h.svc.QueryByLocator(context.Background(), loc); err != nil {
			t.Fatalf("QueryByLocator() error = %v", err)
		}
		if len(h.adapter.coords) != 1 || h.adapter.coords[0] != [2]float64{48.85, 2.35} {
			t.Errorf("coords = %v", h.adapter.coords)
		}
		if !h.svc.LastQuery().IsCoordinates() {
			t.Error("LastQuery() should be a coordinate query")
		}
	})

	t.Run("denied", func(t *testing.T) {
		h := newHarness()
		_ = h.svc.QueryByLocator(context.Background(), geo.StaticLocator{})
		if len(h.renderer.errs) != 1 {
			t.Fatalf("error emissions = %d, want 1", len(h.renderer.errs))
		}
		want := ErrorEmission{CategoryGeolocationDenied, "Location access denied. Please enable location services."}
		if h.renderer.errs[0] != want {
			t.Errorf("error emission = %+v, want %+v", h.renderer.errs[0], want)
		}
		if h.adapter.calls() != 0 {
			t.Error("adapter called after geolocation failure")
		}
	})
}

func TestWeatherService_Search(t *testing.T) {
	t.Run("short text makes no request", func(t *testing.T) {
		h := newHarness()
		got, err := h.svc.Search(context.Background(), " L ")
		if err != nil || len(got) != 0 {
			t.Fatalf("Search() = %v, %v; want empty, nil", got, err)
		}
		if len(h.adapter.searches) != 0 {
			t.Errorf("searches = %v, want none", h.adapter.searches)
		}
	})

	t.Run("results", func(t *testing.T) {
		h := newHarness()
		h.adapter.matches = []models.LocationMatch{{Name: "London", Country: "United Kingdom"}}
		got, err := h.svc.Search(context.Background(), " Lon ")
		if err != nil || len(got) != 1 {
			t.Fatalf("Search() = %v, %v", got, err)
		}
		if h.adapter.searches[0] != "Lon" {
			t.Errorf("search text = %q, want trimmed", h.adapter.searches[0])
		}
	})

	t.Run("failure does not touch state", func(t *testing.T) {
		h := newHarness()
		h.adapter.searchErr = errors.New("boom")
		got, err := h.svc.Search(context.Background(), "Lon")
		if !errors.Is(err, provider.ErrSearchFailed) {
			t.Fatalf("Search() error = %v, want ErrSearchFailed", err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("Search() = %v, want empty non-nil", got)
		}
		if h.svc.State() != StateIdle || h.renderer.total() != 0 {
			t.Error("search failure changed state or emitted")
		}
	})
}

// TestWeatherService_OneEmissionPerOperation runs concurrent operations and
// checks each produced exactly one emission.
func TestWeatherService_OneEmissionPerOperation(t *testing.T) {
	h := newHarness()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = h.svc.Query(context.Background(), "London")
			} else {
				_ = h.svc.QueryByCoordinates(context.Background(), 51.5, -0.12)
			}
		}(i)
	}
	wg.Wait()
	if got := h.renderer.total(); got != 10 {
		t.Errorf("emissions = %d, want 10", got)
	}
}

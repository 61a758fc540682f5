package cache

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kjstillabower/weatherlookup/internal/models"
	"github.com/kjstillabower/weatherlookup/internal/units"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	s := NewSQLiteStore(db)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

// TestStores_GetSet runs the same contract against every local backend.
func TestStores_GetSet(t *testing.T) {
	backends := map[string]func(*testing.T) Store{
		"memory": func(*testing.T) Store { return NewInMemoryStore() },
		"sqlite": func(t *testing.T) Store { return newSQLiteStore(t) },
	}
	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()

			if _, ok, err := s.Get(ctx, KeyTheme); ok || err != nil {
				t.Fatalf("Get(missing) = ok %v, err %v; want miss", ok, err)
			}
			if err := s.Set(ctx, KeyTheme, "dark"); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := s.Set(ctx, KeyTheme, "light"); err != nil {
				t.Fatalf("Set() overwrite error = %v", err)
			}
			v, ok, err := s.Get(ctx, KeyTheme)
			if err != nil || !ok || v != "light" {
				t.Errorf("Get() = %q, %v, %v; want light, true, nil", v, ok, err)
			}
		})
	}
}

func TestInMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewInMemoryStore()
	if err := s.Set(ctx, "k", "v"); !errors.Is(err, context.Canceled) {
		t.Errorf("Set() error = %v, want context.Canceled", err)
	}
	if _, _, err := s.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
}

func TestSQLiteStore_Ping(t *testing.T) {
	if err := newSQLiteStore(t).Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func sampleSnapshot() models.CanonicalWeather {
	return models.CanonicalWeather{
		Location: models.Location{Name: "London", Country: "United Kingdom"},
		Current:  models.Current{TempC: 15.5, TempF: units.CToF(15.5), HumidityPct: 72, WindDirection: "WSW"},
		Days: []models.ForecastDay{{
			DateISO: "2024-01-15",
			Hours:   []models.HourSample{{TimeISO: "2024-01-15T00:00", TempC: 9, TempF: units.CToF(9)}},
		}},
	}
}

func TestWeatherCache_StoreLoad(t *testing.T) {
	wc := NewWeatherCache(newSQLiteStore(t), nil)
	fixed := time.UnixMilli(1_705_320_000_000)
	wc.now = func() time.Time { return fixed }
	ctx := context.Background()

	if _, ok := wc.Load(ctx); ok {
		t.Fatal("Load() on empty slot ok = true")
	}
	snap := sampleSnapshot()
	if err := wc.Store(ctx, snap, models.TextQuery("London")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	snap.Days[0].Hours[0].TempC = 99 // caller mutation must not leak into the slot

	entry, ok := wc.Load(ctx)
	if !ok {
		t.Fatal("Load() ok = false")
	}
	if entry.CapturedAtEpochMs != fixed.UnixMilli() {
		t.Errorf("CapturedAtEpochMs = %d, want %d", entry.CapturedAtEpochMs, fixed.UnixMilli())
	}
	if entry.QueryLocation.Text != "London" {
		t.Errorf("QueryLocation = %+v", entry.QueryLocation)
	}
	if entry.Snapshot.Days[0].Hours[0].TempC != 9 {
		t.Errorf("stored hour = %v, want 9", entry.Snapshot.Days[0].Hours[0].TempC)
	}
	if entry.Snapshot.Current.WindDirection != "WSW" {
		t.Errorf("WindDirection = %q", entry.Snapshot.Current.WindDirection)
	}
}

// TestWeatherCache_SingleSlot verifies a second Store replaces the first.
func TestWeatherCache_SingleSlot(t *testing.T) {
	wc := NewWeatherCache(NewInMemoryStore(), nil)
	ctx := context.Background()
	_ = wc.Store(ctx, sampleSnapshot(), models.TextQuery("London"))
	paris := sampleSnapshot()
	paris.Location.Name = "Paris"
	_ = wc.Store(ctx, paris, models.CoordinateQuery(48.85, 2.35))

	entry, ok := wc.Load(ctx)
	if !ok || entry.Snapshot.Location.Name != "Paris" || !entry.QueryLocation.IsCoordinates() {
		t.Errorf("Load() = %+v, %v; want Paris by coordinates", entry, ok)
	}
}

func TestWeatherCache_MalformedPayloadIsAbsent(t *testing.T) {
	store := NewInMemoryStore()
	_ = store.Set(context.Background(), KeyCachedWeather, "{not json")
	wc := NewWeatherCache(store, nil)
	if _, ok := wc.Load(context.Background()); ok {
		t.Error("Load() of malformed payload ok = true, want absent")
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("backend down")
}
func (failingStore) Set(context.Context, string, string) error { return errors.New("backend down") }

func TestWeatherCache_BackendErrorIsAbsent(t *testing.T) {
	wc := NewWeatherCache(failingStore{}, nil)
	if _, ok := wc.Load(context.Background()); ok {
		t.Error("Load() with failing backend ok = true")
	}
	if err := wc.Store(context.Background(), sampleSnapshot(), models.TextQuery("x")); err == nil {
		t.Error("Store() with failing backend error = nil")
	}
}

// TestIsFresh verifies the strict one-hour boundary.
func TestIsFresh(t *testing.T) {
	entry := models.CacheEntry{CapturedAtEpochMs: 1_000_000}
	maxAge := DefaultMaxAge.Milliseconds()
	tests := []struct {
		name  string
		nowMs int64
		want  bool
	}{
		{"just captured", 1_000_000, true},
		{"ten minutes", 1_000_000 + 600_000, true},
		{"one ms before expiry", 1_000_000 + 3_599_999, true},
		{"exactly one hour", 1_000_000 + 3_600_000, false},
		{"older", 1_000_000 + 7_200_000, false},
	}
	for _, tt := range tests {
		if got := IsFresh(entry, tt.nowMs, maxAge); got != tt.want {
			t.Errorf("%s: IsFresh() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWeatherCache_LoadFresh(t *testing.T) {
	wc := NewWeatherCache(NewInMemoryStore(), nil)
	base := time.UnixMilli(1_705_320_000_000)
	wc.now = func() time.Time { return base }
	ctx := context.Background()
	_ = wc.Store(ctx, sampleSnapshot(), models.TextQuery("London"))

	wc.now = func() time.Time { return base.Add(59 * time.Minute) }
	if _, ok := wc.LoadFresh(ctx, DefaultMaxAge); !ok {
		t.Error("LoadFresh() at 59m ok = false")
	}
	wc.now = func() time.Time { return base.Add(time.Hour) }
	if _, ok := wc.LoadFresh(ctx, DefaultMaxAge); ok {
		t.Error("LoadFresh() at 60m ok = true")
	}
}

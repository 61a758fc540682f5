// Package settings persists user display preferences in the cache Store.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kjstillabower/weatherlookup/internal/cache"
)

// ErrInvalidSetting is returned for values outside a setting's domain.
var ErrInvalidSetting = errors.New("invalid setting")

// TemperatureUnit is the display unit for temperatures.
type TemperatureUnit string

const (
	Celsius    TemperatureUnit = "celsius"
	Fahrenheit TemperatureUnit = "fahrenheit"
)

// DefaultTheme lets the renderer follow the weather-derived theme.
const DefaultTheme = "auto"

// Settings are the persisted display preferences.
type Settings struct {
	TemperatureUnit TemperatureUnit `json:"temperatureUnit"`
	Theme           string          `json:"theme"`
	ShowChart       bool            `json:"showChart"`
}

// Defaults returns celsius, auto theme and chart shown.
func Defaults() Settings {
	return Settings{TemperatureUnit: Celsius, Theme: DefaultTheme, ShowChart: true}
}

// IsFahrenheit reports whether temperatures display in Fahrenheit.
func (s Settings) IsFahrenheit() bool {
	return s.TemperatureUnit == Fahrenheit
}

// ParseUnit accepts "celsius"/"fahrenheit" and the short forms "c"/"f".
func ParseUnit(s string) (TemperatureUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "celsius", "c":
		return Celsius, nil
	case "fahrenheit", "f":
		return Fahrenheit, nil
	}
	return "", fmt.Errorf("%w: temperature unit %q", ErrInvalidSetting, s)
}

// Manager reads and writes Settings through a Store.
type Manager struct {
	store cache.Store
}

// NewManager returns a Manager over store.
func NewManager(store cache.Store) *Manager {
	return &Manager{store: store}
}

// Load reads all settings. Missing or unrecognised values fall back to defaults;
// the chart is hidden only when the stored value is exactly "false".
func (m *Manager) Load(ctx context.Context) (Settings, error) {
	s := Defaults()
	if v, ok, err := m.store.Get(ctx, cache.KeyTemperatureUnit); err != nil {
		return s, err
	} else if ok {
		if u, err := ParseUnit(v); err == nil {
			s.TemperatureUnit = u
		}
	}
	if v, ok, err := m.store.Get(ctx, cache.KeyTheme); err != nil {
		return s, err
	} else if ok && v != "" {
		s.Theme = v
	}
	if v, ok, err := m.store.Get(ctx, cache.KeyShowChart); err != nil {
		return s, err
	} else if ok {
		s.ShowChart = v != "false"
	}
	return s, nil
}

// SetTemperatureUnit validates and persists the unit.
func (m *Manager) SetTemperatureUnit(ctx context.Context, unit string) (TemperatureUnit, error) {
	u, err := ParseUnit(unit)
	if err != nil {
		return "", err
	}
	return u, m.store.Set(ctx, cache.KeyTemperatureUnit, string(u))
}

// SetTheme persists the theme name. An empty theme is rejected.
func (m *Manager) SetTheme(ctx context.Context, theme string) error {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return fmt.Errorf("%w: empty theme", ErrInvalidSetting)
	}
	return m.store.Set(ctx, cache.KeyTheme, theme)
}

// SetShowChart persists chart visibility as "true"/"false".
func (m *Manager) SetShowChart(ctx context.Context, show bool) error {
	return m.store.Set(ctx, cache.KeyShowChart, strconv.FormatBool(show))
}

// ToggleUnit flips between celsius and fahrenheit and returns the new unit.
func (m *Manager) ToggleUnit(ctx context.Context) (TemperatureUnit, error) {
	s, err := m.Load(ctx)
	if err != nil {
		return "", err
	}
	next := Fahrenheit
	if s.IsFahrenheit() {
		next = Celsius
	}
	return next, m.store.Set(ctx, cache.KeyTemperatureUnit, string(next))
}

// Apply persists every field of s.
func (m *Manager) Apply(ctx context.Context, s Settings) error {
	if _, err := m.SetTemperatureUnit(ctx, string(s.TemperatureUnit)); err != nil {
		return err
	}
	if err := m.SetTheme(ctx, s.Theme); err != nil {
		return err
	}
	return m.SetShowChart(ctx, s.ShowChart)
}

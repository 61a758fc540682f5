package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kjstillabower/weatherlookup/internal/models"
)

// MaxSearchResults caps the suggestions returned by SearchLocations.
const MaxSearchResults = 5

// ErrUnknownProvider is returned by New for an unrecognised provider name.
var ErrUnknownProvider = errors.New("unknown provider")

// Adapter hides one upstream weather provider's wire format behind the canonical model.
type Adapter interface {
	Name() string
	SearchLocations(ctx context.Context, query string) ([]models.LocationMatch, error)
	FetchByQuery(ctx context.Context, text string) (models.CanonicalWeather, error)
	FetchByCoordinates(ctx context.Context, lat, lon float64) (models.CanonicalWeather, error)
}

// Config selects and configures an adapter.
type Config struct {
	Name    string
	APIKey  string
	BaseURL string
	// GeoURL is the geocoding base for providers without a combined lookup.
	GeoURL    string
	Transport TransportConfig
}

// New builds the adapter named by cfg.Name.
func New(cfg Config) (Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case NameWeatherAPI, "":
		return NewWeatherAPI(cfg), nil
	case NameOpenWeather:
		return NewOpenWeather(cfg), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Name)
}

func missingKey() error {
	return fmt.Errorf("%w: no credential configured", ErrInvalidAPIKey)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func invalidResponse(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidResponse, fmt.Sprintf(format, args...))
}

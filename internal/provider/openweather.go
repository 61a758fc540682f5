package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weatherlookup/internal/forecast"
	"github.com/kjstillabower/weatherlookup/internal/models"
	"github.com/kjstillabower/weatherlookup/internal/units"
)

const (
	NameOpenWeather       = "openweather"
	DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5"
	DefaultOpenWeatherGeo = "https://api.openweathermap.org/geo/1.0"
	openWeatherIconURL    = "https://openweathermap.org/img/wn/%s@2x.png"
)

// OpenWeather adapts OpenWeatherMap: text is geocoded first, then current conditions
// and the 3-hourly forecast are fetched concurrently and aggregated into days.
type OpenWeather struct {
	apiKey  string
	baseURL string
	geoURL  string
	http    *transport
}

// NewOpenWeather returns an OpenWeather adapter. An empty key is accepted; calls fail
// with ErrInvalidAPIKey without touching the network.
func NewOpenWeather(cfg Config) *OpenWeather {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultOpenWeatherURL
	}
	geo := cfg.GeoURL
	if geo == "" {
		geo = DefaultOpenWeatherGeo
	}
	return &OpenWeather{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(base, "/"),
		geoURL:  strings.TrimRight(geo, "/"),
		http:    newTransport(NameOpenWeather, cfg.Transport),
	}
}

func (p *OpenWeather) Name() string { return NameOpenWeather }

type owGeoResult struct {
	Name    string  `json:"name"`
	State   string  `json:"state"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (p *OpenWeather) geocode(ctx context.Context, query string, limit int) ([]owGeoResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", fmt.Sprint(limit))
	params.Set("appid", p.apiKey)
	body, err := p.http.get(ctx, "geocode", p.geoURL+"/direct?"+params.Encode())
	if err != nil {
		return nil, err
	}
	var results []owGeoResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, invalidResponse("parse geocode: %v", err)
	}
	return results, nil
}

// SearchLocations geocodes query and returns at most MaxSearchResults matches.
func (p *OpenWeather) SearchLocations(ctx context.Context, query string) ([]models.LocationMatch, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, missingKey())
	}
	results, err := p.geocode(ctx, query, MaxSearchResults)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	if len(results) > MaxSearchResults {
		results = results[:MaxSearchResults]
	}
	matches := make([]models.LocationMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, models.LocationMatch{
			Name:      r.Name,
			Region:    r.State,
			Country:   r.Country,
			Latitude:  r.Lat,
			Longitude: r.Lon,
		})
	}
	return matches, nil
}

// FetchByQuery resolves text to coordinates, then delegates to FetchByCoordinates.
func (p *OpenWeather) FetchByQuery(ctx context.Context, text string) (models.CanonicalWeather, error) {
	if p.apiKey == "" {
		return models.CanonicalWeather{}, missingKey()
	}
	results, err := p.geocode(ctx, text, 1)
	if err != nil {
		return models.CanonicalWeather{}, err
	}
	if len(results) == 0 {
		return models.CanonicalWeather{}, fmt.Errorf("%w: %q", ErrLocationNotFound, text)
	}
	return p.FetchByCoordinates(ctx, results[0].Lat, results[0].Lon)
}

type owCondition struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type owCurrent struct {
	Name    string        `json:"name"`
	Dt      int64         `json:"dt"`
	Tz      int64         `json:"timezone"`
	Weather []owCondition `json:"weather"`
	Coord   struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Pressure  float64 `json:"pressure"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Visibility float64 `json:"visibility"`
	Wind       struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Sys struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
}

type owForecast struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []owCondition `json:"weather"`
	} `json:"list"`
}

// FetchByCoordinates issues the current and forecast requests concurrently. The
// first failure cancels the other request and no partial result is returned.
func (p *OpenWeather) FetchByCoordinates(ctx context.Context, lat, lon float64) (models.CanonicalWeather, error) {
	if p.apiKey == "" {
		return models.CanonicalWeather{}, missingKey()
	}
	params := url.Values{}
	params.Set("lat", formatCoord(lat))
	params.Set("lon", formatCoord(lon))
	params.Set("units", "metric")
	params.Set("appid", p.apiKey)
	query := params.Encode()

	var cur owCurrent
	var fc owForecast
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, err := p.http.get(gctx, "weather", p.baseURL+"/weather?"+query)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &cur); err != nil {
			return invalidResponse("parse current: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		body, err := p.http.get(gctx, "forecast", p.baseURL+"/forecast?"+query)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &fc); err != nil {
			return invalidResponse("parse forecast: %v", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.CanonicalWeather{}, err
	}
	return toCanonical(cur, fc)
}

func toCanonical(cur owCurrent, fc owForecast) (models.CanonicalWeather, error) {
	offset := time.Duration(cur.Tz) * time.Second
	sunrise := localClock(cur.Sys.Sunrise, offset).Format("03:04 PM")
	sunset := localClock(cur.Sys.Sunset, offset).Format("03:04 PM")

	samples := make([]forecast.RawSample, 0, len(fc.List))
	for _, item := range fc.List {
		cond := firstCondition(item.Weather)
		samples = append(samples, forecast.RawSample{
			Time:          localClock(item.Dt, offset).Format("2006-01-02 15:04:05"),
			TempC:         item.Main.Temp,
			ConditionText: capitalize(cond.Description),
			ConditionIcon: owIcon(cond.Icon),
		})
	}
	days, err := forecast.Aggregate(samples, sunrise, sunset)
	if err != nil {
		return models.CanonicalWeather{}, invalidResponse("aggregate forecast: %v", err)
	}
	if len(days) == 0 {
		return models.CanonicalWeather{}, invalidResponse("forecast has no samples")
	}

	windKph, err := units.WindToKph(cur.Wind.Speed, units.WindUnitMps)
	if err != nil {
		return models.CanonicalWeather{}, invalidResponse("wind speed: %v", err)
	}
	dir, err := units.BucketCompass(cur.Wind.Deg)
	if err != nil {
		return models.CanonicalWeather{}, invalidResponse("wind degree: %v", err)
	}
	cond := firstCondition(cur.Weather)
	w := models.CanonicalWeather{
		Location: models.Location{
			Name:         cur.Name,
			Country:      cur.Sys.Country,
			Latitude:     cur.Coord.Lat,
			Longitude:    cur.Coord.Lon,
			LocalTimeISO: localClock(cur.Dt, offset).Format("2006-01-02T15:04"),
		},
		Current: models.Current{
			TempC:         cur.Main.Temp,
			TempF:         units.CToF(cur.Main.Temp),
			FeelsLikeC:    cur.Main.FeelsLike,
			FeelsLikeF:    units.CToF(cur.Main.FeelsLike),
			HumidityPct:   units.ClampPercent(cur.Main.Humidity),
			WindKph:       units.NonNegative(windKph),
			WindDirection: dir,
			PressureMb:    cur.Main.Pressure,
			VisibilityKm:  units.NonNegative(cur.Visibility / 1000),
			UVIndex:       0,
			ConditionText: capitalize(cond.Description),
			ConditionIcon: owIcon(cond.Icon),
			Sunrise:       sunrise,
			Sunset:        sunset,
		},
		Days: days,
	}
	if err := w.Validate(); err != nil {
		return models.CanonicalWeather{}, invalidResponse("%v", err)
	}
	return w, nil
}

// localClock renders a unix timestamp as the location's wall clock, expressed in UTC.
func localClock(unix int64, offset time.Duration) time.Time {
	return time.Unix(unix, 0).UTC().Add(offset)
}

func firstCondition(c []owCondition) owCondition {
	if len(c) == 0 {
		return owCondition{}
	}
	return c[0]
}

func owIcon(icon string) string {
	if icon == "" {
		return ""
	}
	return fmt.Sprintf(openWeatherIconURL, icon)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

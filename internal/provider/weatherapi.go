package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/kjstillabower/weatherlookup/internal/forecast"
	"github.com/kjstillabower/weatherlookup/internal/models"
	"github.com/kjstillabower/weatherlookup/internal/units"
)

const (
	NameWeatherAPI       = "weatherapi"
	DefaultWeatherAPIURL = "https://api.weatherapi.com/v1"
	forecastDays         = "3"
)

// WeatherAPI adapts WeatherAPI.com, whose forecast endpoint resolves free text
// and coordinates in one call and returns pre-grouped days.
type WeatherAPI struct {
	apiKey  string
	baseURL string
	http    *transport
}

// NewWeatherAPI returns a WeatherAPI adapter. An empty key is accepted; calls fail
// with ErrInvalidAPIKey without touching the network.
func NewWeatherAPI(cfg Config) *WeatherAPI {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultWeatherAPIURL
	}
	return &WeatherAPI{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(base, "/"),
		http:    newTransport(NameWeatherAPI, cfg.Transport),
	}
}

func (p *WeatherAPI) Name() string { return NameWeatherAPI }

type waSearchResult struct {
	Name    string  `json:"name"`
	Region  string  `json:"region"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// SearchLocations returns at most MaxSearchResults matches for query.
func (p *WeatherAPI) SearchLocations(ctx context.Context, query string) ([]models.LocationMatch, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, missingKey())
	}
	params := url.Values{}
	params.Set("key", p.apiKey)
	params.Set("q", query)
	body, err := p.http.get(ctx, "search", p.baseURL+"/search.json?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	var results []waSearchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, invalidResponse("parse search: %v", err))
	}
	if len(results) > MaxSearchResults {
		results = results[:MaxSearchResults]
	}
	matches := make([]models.LocationMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, models.LocationMatch{
			Name:      r.Name,
			Region:    r.Region,
			Country:   r.Country,
			Latitude:  r.Lat,
			Longitude: r.Lon,
		})
	}
	return matches, nil
}

// FetchByQuery resolves text and fetches weather in a single forecast call.
func (p *WeatherAPI) FetchByQuery(ctx context.Context, text string) (models.CanonicalWeather, error) {
	return p.fetch(ctx, text)
}

// FetchByCoordinates fetches weather for "lat,lon".
func (p *WeatherAPI) FetchByCoordinates(ctx context.Context, lat, lon float64) (models.CanonicalWeather, error) {
	return p.fetch(ctx, formatCoord(lat)+","+formatCoord(lon))
}

func (p *WeatherAPI) fetch(ctx context.Context, q string) (models.CanonicalWeather, error) {
	if p.apiKey == "" {
		return models.CanonicalWeather{}, missingKey()
	}
	params := url.Values{}
	params.Set("key", p.apiKey)
	params.Set("q", q)
	params.Set("days", forecastDays)
	params.Set("aqi", "no")
	params.Set("alerts", "no")
	body, err := p.http.get(ctx, "forecast", p.baseURL+"/forecast.json?"+params.Encode())
	if err != nil {
		return models.CanonicalWeather{}, err
	}
	var resp waForecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.CanonicalWeather{}, invalidResponse("parse forecast: %v", err)
	}
	return resp.toCanonical()
}

type waCondition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
}

type waForecastResponse struct {
	Location struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Lat       float64 `json:"lat"`
		Lon       float64 `json:"lon"`
		LocalTime string  `json:"localtime"`
	} `json:"location"`
	Current struct {
		TempC      float64     `json:"temp_c"`
		FeelsLikeC float64     `json:"feelslike_c"`
		Humidity   int         `json:"humidity"`
		WindKph    float64     `json:"wind_kph"`
		WindDegree float64     `json:"wind_degree"`
		PressureMb float64     `json:"pressure_mb"`
		VisKm      float64     `json:"vis_km"`
		UV         float64     `json:"uv"`
		Condition  waCondition `json:"condition"`
	} `json:"current"`
	Forecast struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Day  struct {
				MaxTempC  float64     `json:"maxtemp_c"`
				MinTempC  float64     `json:"mintemp_c"`
				Condition waCondition `json:"condition"`
			} `json:"day"`
			Astro struct {
				Sunrise string `json:"sunrise"`
				Sunset  string `json:"sunset"`
			} `json:"astro"`
			Hour []struct {
				Time  string  `json:"time"`
				TempC float64 `json:"temp_c"`
			} `json:"hour"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

func (r waForecastResponse) toCanonical() (models.CanonicalWeather, error) {
	if len(r.Forecast.ForecastDay) == 0 {
		return models.CanonicalWeather{}, invalidResponse("forecast has no days")
	}
	dir, err := units.BucketCompass(r.Current.WindDegree)
	if err != nil {
		return models.CanonicalWeather{}, invalidResponse("wind degree: %v", err)
	}
	localTime := r.Location.LocalTime
	if t, err := forecast.ParseLocalTime(localTime); err == nil {
		localTime = t.Format("2006-01-02T15:04")
	}

	days := make([]models.ForecastDay, 0, len(r.Forecast.ForecastDay))
	for _, fd := range r.Forecast.ForecastDay {
		hours := make([]models.HourSample, 0, len(fd.Hour))
		for _, h := range fd.Hour {
			t, err := forecast.ParseLocalTime(h.Time)
			if err != nil {
				return models.CanonicalWeather{}, invalidResponse("hour time: %v", err)
			}
			hours = append(hours, models.HourSample{
				TimeISO: t.Format("2006-01-02T15:04"),
				TempC:   h.TempC,
				TempF:   units.CToF(h.TempC),
			})
		}
		days = append(days, models.ForecastDay{
			DateISO:       fd.Date,
			MaxTempC:      fd.Day.MaxTempC,
			MaxTempF:      units.CToF(fd.Day.MaxTempC),
			MinTempC:      fd.Day.MinTempC,
			MinTempF:      units.CToF(fd.Day.MinTempC),
			ConditionText: fd.Day.Condition.Text,
			ConditionIcon: iconURL(fd.Day.Condition.Icon),
			Sunrise:       fd.Astro.Sunrise,
			Sunset:        fd.Astro.Sunset,
			Hours:         hours,
		})
	}
	if len(days) > forecast.MaxDays {
		days = days[:forecast.MaxDays]
	}

	c := r.Current
	w := models.CanonicalWeather{
		Location: models.Location{
			Name:         r.Location.Name,
			Country:      r.Location.Country,
			Latitude:     r.Location.Lat,
			Longitude:    r.Location.Lon,
			LocalTimeISO: localTime,
		},
		Current: models.Current{
			TempC:         c.TempC,
			TempF:         units.CToF(c.TempC),
			FeelsLikeC:    c.FeelsLikeC,
			FeelsLikeF:    units.CToF(c.FeelsLikeC),
			HumidityPct:   units.ClampPercent(c.Humidity),
			WindKph:       units.NonNegative(c.WindKph),
			WindDirection: dir,
			PressureMb:    c.PressureMb,
			VisibilityKm:  units.NonNegative(c.VisKm),
			UVIndex:       units.NonNegative(c.UV),
			ConditionText: c.Condition.Text,
			ConditionIcon: iconURL(c.Condition.Icon),
			Sunrise:       days[0].Sunrise,
			Sunset:        days[0].Sunset,
		},
		Days: days,
	}
	if err := w.Validate(); err != nil {
		return models.CanonicalWeather{}, invalidResponse("%v", err)
	}
	return w, nil
}

// iconURL turns protocol-relative icon references into absolute https URLs.
func iconURL(icon string) string {
	if strings.HasPrefix(icon, "//") {
		return "https:" + icon
	}
	return icon
}

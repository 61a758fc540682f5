package models

import (
	"errors"
	"fmt"
	"math"

	"github.com/kjstillabower/weatherlookup/internal/units"
)

// ErrInvalidWeather is returned by Validate when a snapshot breaks a model invariant.
var ErrInvalidWeather = errors.New("invalid weather snapshot")

// CanonicalWeather is the provider-agnostic weather model every adapter maps into.
type CanonicalWeather struct {
	Location Location      `json:"location"`
	Current  Current       `json:"current"`
	Days     []ForecastDay `json:"days"`
}

// Location identifies where a snapshot was taken.
type Location struct {
	Name         string  `json:"name"`
	Country      string  `json:"country"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	LocalTimeISO string  `json:"localTimeIso"`
}

// Current holds present conditions. Fahrenheit fields are always derived from Celsius.
type Current struct {
	TempC         float64         `json:"tempC"`
	TempF         float64         `json:"tempF"`
	FeelsLikeC    float64         `json:"feelsLikeC"`
	FeelsLikeF    float64         `json:"feelsLikeF"`
	HumidityPct   int             `json:"humidityPct"`
	WindKph       float64         `json:"windKph"`
	WindDirection units.Direction `json:"windDirection"`
	PressureMb    float64         `json:"pressureMb"`
	VisibilityKm  float64         `json:"visibilityKm"`
	UVIndex       float64         `json:"uvIndex"`
	ConditionText string          `json:"conditionText"`
	ConditionIcon string          `json:"conditionIconRef"`
	Sunrise       string          `json:"sunrise,omitempty"`
	Sunset        string          `json:"sunset,omitempty"`
}

// ForecastDay is one calendar day of forecast.
type ForecastDay struct {
	DateISO       string       `json:"dateIso"`
	MaxTempC      float64      `json:"maxTempC"`
	MaxTempF      float64      `json:"maxTempF"`
	MinTempC      float64      `json:"minTempC"`
	MinTempF      float64      `json:"minTempF"`
	ConditionText string       `json:"conditionText"`
	ConditionIcon string       `json:"conditionIconRef"`
	Sunrise       string       `json:"sunrise"`
	Sunset        string       `json:"sunset"`
	Hours         []HourSample `json:"hours"`
}

// HourSample is a single hourly temperature point.
type HourSample struct {
	TimeISO string  `json:"timeIso"`
	TempC   float64 `json:"tempC"`
	TempF   float64 `json:"tempF"`
}

// LocationMatch is one search suggestion.
type LocationMatch struct {
	Name      string  `json:"name"`
	Region    string  `json:"region,omitempty"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Label renders the match as "Name, Country", the form fed back into a query.
func (m LocationMatch) Label() string {
	if m.Country == "" {
		return m.Name
	}
	return m.Name + ", " + m.Country
}

// Clone returns a deep copy so renderer and cache never share slices with the producer.
func (w CanonicalWeather) Clone() CanonicalWeather {
	out := w
	if w.Days != nil {
		out.Days = make([]ForecastDay, len(w.Days))
		for i, d := range w.Days {
			out.Days[i] = d
			if d.Hours != nil {
				out.Days[i].Hours = append([]HourSample(nil), d.Hours...)
			}
		}
	}
	return out
}

// Validate checks the model invariants: at least one day, humidity in range,
// Fahrenheit derived from Celsius, non-negative UV and chronological days.
func (w CanonicalWeather) Validate() error {
	if len(w.Days) == 0 {
		return fmt.Errorf("%w: no forecast days", ErrInvalidWeather)
	}
	if w.Current.HumidityPct < 0 || w.Current.HumidityPct > 100 {
		return fmt.Errorf("%w: humidity %d out of range", ErrInvalidWeather, w.Current.HumidityPct)
	}
	if w.Current.UVIndex < 0 {
		return fmt.Errorf("%w: negative uv index", ErrInvalidWeather)
	}
	if math.Abs(w.Current.TempF-units.CToF(w.Current.TempC)) > 1e-9 {
		return fmt.Errorf("%w: tempF not derived from tempC", ErrInvalidWeather)
	}
	for i := 1; i < len(w.Days); i++ {
		if w.Days[i].DateISO <= w.Days[i-1].DateISO {
			return fmt.Errorf("%w: days out of order at %s", ErrInvalidWeather, w.Days[i].DateISO)
		}
	}
	return nil
}

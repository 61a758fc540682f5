// Package forecast turns flat provider samples into daily forecasts and derives
// presentation metrics (theme, hourly chart) from canonical weather.
package forecast

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kjstillabower/weatherlookup/internal/models"
	"github.com/kjstillabower/weatherlookup/internal/units"
)

// MaxDays is the number of calendar days kept: today plus two.
const MaxDays = 3

// ErrBadTimestamp is returned when a sample's wall-clock time cannot be parsed.
var ErrBadTimestamp = errors.New("bad sample timestamp")

// RawSample is one provider sample in the location's local wall-clock time.
type RawSample struct {
	Time          string
	TempC         float64
	ConditionText string
	ConditionIcon string
}

var sampleLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseLocalTime parses a wall-clock timestamp without applying any zone.
func ParseLocalTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range sampleLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

type dayGroup struct {
	date    string
	samples []RawSample
	times   []time.Time
}

// Aggregate groups samples by calendar date and summarises each group. The first
// sample of a day supplies its condition; sunrise and sunset are attached to every day.
// At most MaxDays days are returned in chronological order.
func Aggregate(samples []RawSample, sunrise, sunset string) ([]models.ForecastDay, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	groups := make(map[string]*dayGroup)
	for _, s := range samples {
		t, err := ParseLocalTime(s.Time)
		if err != nil {
			return nil, err
		}
		date := t.Format("2006-01-02")
		g, ok := groups[date]
		if !ok {
			g = &dayGroup{date: date}
			groups[date] = g
		}
		g.samples = append(g.samples, s)
		g.times = append(g.times, t)
	}

	dates := make([]string, 0, len(groups))
	for d := range groups {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	if len(dates) > MaxDays {
		dates = dates[:MaxDays]
	}

	days := make([]models.ForecastDay, 0, len(dates))
	for _, d := range dates {
		days = append(days, summarise(groups[d], sunrise, sunset))
	}
	return days, nil
}

func summarise(g *dayGroup, sunrise, sunset string) models.ForecastDay {
	first := g.samples[0]
	maxC, minC := first.TempC, first.TempC
	hours := make([]models.HourSample, 0, len(g.samples))
	for i, s := range g.samples {
		if s.TempC > maxC {
			maxC = s.TempC
		}
		if s.TempC < minC {
			minC = s.TempC
		}
		hours = append(hours, models.HourSample{
			TimeISO: g.times[i].Format("2006-01-02T15:04"),
			TempC:   s.TempC,
			TempF:   units.CToF(s.TempC),
		})
	}
	return models.ForecastDay{
		DateISO:       g.date,
		MaxTempC:      maxC,
		MaxTempF:      units.CToF(maxC),
		MinTempC:      minC,
		MinTempF:      units.CToF(minC),
		ConditionText: first.ConditionText,
		ConditionIcon: first.ConditionIcon,
		Sunrise:       sunrise,
		Sunset:        sunset,
		Hours:         hours,
	}
}

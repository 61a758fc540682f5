package forecast

import (
	"strings"
	"time"
)

// Theme is the visual mood derived from conditions and time of day.
type Theme string

const (
	ThemeSunny  Theme = "sunny"
	ThemeCloudy Theme = "cloudy"
	ThemeRainy  Theme = "rainy"
	ThemeSnowy  Theme = "snowy"
	ThemeNight  Theme = "night"
)

// sunTimeLayouts covers "07:45 AM" and 24h "07:45".
var sunTimeLayouts = []string{"03:04 PM", "3:04 PM", "15:04"}

// ParseSunTime places a sunrise/sunset clock string on day's date in day's location.
func ParseSunTime(clock string, day time.Time) (time.Time, bool) {
	clock = strings.TrimSpace(clock)
	for _, layout := range sunTimeLayouts {
		t, err := time.Parse(layout, clock)
		if err != nil {
			continue
		}
		return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), true
	}
	return time.Time{}, false
}

// ClassifyTheme returns night outside daylight, otherwise a theme keyed off the
// condition text. Unparsable sun times skip the night check.
func ClassifyTheme(conditionText, sunrise, sunset string, now time.Time) Theme {
	rise, okRise := ParseSunTime(sunrise, now)
	set, okSet := ParseSunTime(sunset, now)
	if okRise && okSet && (now.Before(rise) || now.After(set)) {
		return ThemeNight
	}

	c := strings.ToLower(conditionText)
	switch {
	case strings.Contains(c, "sunny"), strings.Contains(c, "clear"):
		return ThemeSunny
	case strings.Contains(c, "rain"), strings.Contains(c, "drizzle"):
		return ThemeRainy
	case strings.Contains(c, "snow"), strings.Contains(c, "blizzard"):
		return ThemeSnowy
	default:
		return ThemeCloudy
	}
}

package forecast

import (
	"testing"
	"time"
)

func TestClassifyTheme(t *testing.T) {
	noon := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		condition string
		sunrise   string
		sunset    string
		now       time.Time
		want      Theme
	}{
		{"sunny", "Sunny", "07:45 AM", "04:30 PM", noon, ThemeSunny},
		{"clear", "Clear sky", "07:45 AM", "04:30 PM", noon, ThemeSunny},
		{"rain", "Patchy light rain", "07:45 AM", "04:30 PM", noon, ThemeRainy},
		{"drizzle", "Freezing drizzle", "07:45 AM", "04:30 PM", noon, ThemeRainy},
		{"snow", "Heavy snow", "07:45 AM", "04:30 PM", noon, ThemeSnowy},
		{"blizzard", "Blizzard", "07:45 AM", "04:30 PM", noon, ThemeSnowy},
		{"fallback cloudy", "Overcast", "07:45 AM", "04:30 PM", noon, ThemeCloudy},
		{"before sunrise", "Sunny", "07:45 AM", "04:30 PM", noon.Add(-5 * time.Hour), ThemeNight},
		{"after sunset", "Sunny", "07:45 AM", "04:30 PM", noon.Add(5 * time.Hour), ThemeNight},
		{"24h clock", "Sunny", "07:45", "16:30", noon.Add(5 * time.Hour), ThemeNight},
		{"unparsable sun times", "Sunny", "dawn", "dusk", noon.Add(-11 * time.Hour), ThemeSunny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyTheme(tt.condition, tt.sunrise, tt.sunset, tt.now); got != tt.want {
				t.Errorf("ClassifyTheme() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseSunTime(t *testing.T) {
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	got, ok := ParseSunTime("05:02 AM", day)
	if !ok {
		t.Fatal("ParseSunTime() ok = false")
	}
	want := time.Date(2024, 6, 1, 5, 2, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseSunTime() = %v, want %v", got, want)
	}
}

package render

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kjstillabower/weatherlookup/internal/forecast"
	"github.com/kjstillabower/weatherlookup/internal/models"
	"github.com/kjstillabower/weatherlookup/internal/service"
	"github.com/kjstillabower/weatherlookup/internal/settings"
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Text writes a human-readable summary for terminals.
type Text struct {
	mu       sync.Mutex
	w        io.Writer
	settings settings.Settings
	now      func() time.Time
}

// NewText returns a Text renderer honouring s.
func NewText(w io.Writer, s settings.Settings) *Text {
	return &Text{w: w, settings: s, now: time.Now}
}

// SetSettings replaces the display preferences used for later emissions.
func (t *Text) SetSettings(s settings.Settings) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settings = s
}

func (t *Text) RenderWeather(e service.Emission) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	w := e.Weather
	unit := t.settings.TemperatureUnit
	cur := w.Current

	fmt.Fprintf(&b, "%s, %s", w.Location.Name, w.Location.Country)
	if w.Location.LocalTimeISO != "" {
		fmt.Fprintf(&b, "  (local time %s)", strings.Replace(w.Location.LocalTimeISO, "T", " ", 1))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s  %s  feels like %s\n",
		cur.ConditionText, Temperature(cur.TempC, cur.TempF, unit), Temperature(cur.FeelsLikeC, cur.FeelsLikeF, unit))
	fmt.Fprintf(&b, "Wind %s km/h %s | Humidity %d%% | Pressure %s mb | Visibility %s km | UV %s\n",
		humanize.Ftoa(round1(cur.WindKph)), cur.WindDirection, cur.HumidityPct,
		humanize.Ftoa(cur.PressureMb), humanize.Ftoa(cur.VisibilityKm), humanize.Ftoa(cur.UVIndex))
	if cur.Sunrise != "" || cur.Sunset != "" {
		fmt.Fprintf(&b, "Sunrise %s | Sunset %s\n", cur.Sunrise, cur.Sunset)
	}

	theme := string(e.Theme)
	if t.settings.Theme != "" && t.settings.Theme != settings.DefaultTheme {
		theme = t.settings.Theme
	}
	fmt.Fprintf(&b, "Theme %s\n", theme)

	b.WriteString("\n")
	for _, d := range w.Days {
		fmt.Fprintf(&b, "%-12s %5s / %-5s %s\n", dayLabel(d.DateISO),
			Temperature(d.MaxTempC, d.MaxTempF, unit), Temperature(d.MinTempC, d.MinTempF, unit), d.ConditionText)
	}

	if t.settings.ShowChart {
		localNow := t.now()
		if lt, err := forecast.ParseLocalTime(w.Location.LocalTimeISO); err == nil {
			localNow = lt
		}
		if line := sparkline(forecast.ChartSeries(w.Days, localNow, t.settings.IsFahrenheit())); line != "" {
			fmt.Fprintf(&b, "\nNext hours %s\n", line)
		}
	}

	asOf := time.UnixMilli(e.AsOfEpochMs)
	if e.IsCached {
		fmt.Fprintf(&b, "\nLast updated %s (cached)\n", humanize.RelTime(asOf, t.now(), "ago", "from now"))
	} else {
		fmt.Fprintf(&b, "\nLast updated %s\n", asOf.Format("15:04:05"))
	}
	_, _ = io.WriteString(t.w, b.String())
}

func (t *Text) RenderError(e service.ErrorEmission) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "Error: %s\n", e.Message)
}

// RenderSuggestions lists search matches one per line.
func (t *Text) RenderSuggestions(matches []models.LocationMatch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(matches) == 0 {
		fmt.Fprintln(t.w, "No suggestions")
		return
	}
	for i, m := range matches {
		fmt.Fprintf(t.w, "%d. %s", i+1, m.Label())
		if m.Region != "" {
			fmt.Fprintf(t.w, " (%s)", m.Region)
		}
		fmt.Fprintln(t.w)
	}
}

func dayLabel(dateISO string) string {
	d, err := time.Parse("2006-01-02", dateISO)
	if err != nil {
		return dateISO
	}
	return d.Format("Mon Jan 2")
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// sparkline renders temperatures as block characters with the range and the
// first and last labelled hours.
func sparkline(points []forecast.ChartPoint) string {
	if len(points) == 0 {
		return ""
	}
	lo, hi := points[0].Temp, points[0].Temp
	for _, p := range points {
		lo = math.Min(lo, p.Temp)
		hi = math.Max(hi, p.Temp)
	}
	var b strings.Builder
	for _, p := range points {
		idx := 0
		if hi > lo {
			idx = int((p.Temp - lo) / (hi - lo) * float64(len(sparkBlocks)-1))
		}
		b.WriteRune(sparkBlocks[idx])
	}
	first, last := points[0].Label, ""
	for _, p := range points {
		if p.Label != "" {
			last = p.Label
		}
	}
	return fmt.Sprintf("%s %s %s  %d°..%d°", first, b.String(), last, int(math.Round(lo)), int(math.Round(hi)))
}

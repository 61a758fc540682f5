package forecast

import (
	"time"

	"github.com/kjstillabower/weatherlookup/internal/models"
)

const (
	// ChartPoints is the maximum length of the hourly chart.
	ChartPoints = 24
	// ChartLabelEvery labels every nth point to avoid crowding.
	ChartLabelEvery = 3
)

// ChartPoint is one hourly temperature in the requested unit.
type ChartPoint struct {
	TimeISO string  `json:"timeIso"`
	Temp    float64 `json:"temp"`
	Label   string  `json:"label,omitempty"`
}

// ChartSeries returns up to ChartPoints hourly temperatures starting at now's hour
// on the first day. fahrenheit selects the unit. Every ChartLabelEvery-th point
// carries an "3 PM"-style label.
func ChartSeries(days []models.ForecastDay, now time.Time, fahrenheit bool) []ChartPoint {
	if len(days) == 0 {
		return nil
	}
	startHour := now.Hour()
	var points []ChartPoint
	for di, day := range days {
		for _, h := range day.Hours {
			t, err := ParseLocalTime(h.TimeISO)
			if err != nil {
				continue
			}
			if di == 0 && t.Hour() < startHour {
				continue
			}
			temp := h.TempC
			if fahrenheit {
				temp = h.TempF
			}
			p := ChartPoint{TimeISO: h.TimeISO, Temp: temp}
			if len(points)%ChartLabelEvery == 0 {
				p.Label = t.Format("3 PM")
			}
			points = append(points, p)
			if len(points) == ChartPoints {
				return points
			}
		}
	}
	return points
}

// Package render turns service emissions into output for terminals, pipes,
// MQTT brokers and share links.
package render

import (
	"fmt"
	"math"
	"net/url"

	"github.com/kjstillabower/weatherlookup/internal/models"
	"github.com/kjstillabower/weatherlookup/internal/service"
	"github.com/kjstillabower/weatherlookup/internal/settings"
)

// Multi fans every emission out to each renderer in order.
type Multi []service.Renderer

func (m Multi) RenderWeather(e service.Emission) {
	for _, r := range m {
		r.RenderWeather(e)
	}
}

func (m Multi) RenderError(e service.ErrorEmission) {
	for _, r := range m {
		r.RenderError(e)
	}
}

// Capture keeps the last emission of each kind. Serve mode uses one per request.
type Capture struct {
	Weather *service.Emission
	Error   *service.ErrorEmission
}

func (c *Capture) RenderWeather(e service.Emission) { c.Weather = &e }
func (c *Capture) RenderError(e service.ErrorEmission) { c.Error = &e }

// Temperature formats a rounded temperature with its unit symbol.
func Temperature(c, f float64, unit settings.TemperatureUnit) string {
	if unit == settings.Fahrenheit {
		return fmt.Sprintf("%d°F", int(math.Round(f)))
	}
	return fmt.Sprintf("%d°C", int(math.Round(c)))
}

// ShareText builds the share message and the deep link that reopens the same city.
func ShareText(w models.CanonicalWeather, unit settings.TemperatureUnit, baseURL string) (string, string, error) {
	text := fmt.Sprintf("Current weather in %s: %s, %s",
		w.Location.Name, w.Current.ConditionText, Temperature(w.Current.TempC, w.Current.TempF, unit))

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", "", fmt.Errorf("parse share base URL: %w", err)
	}
	q := u.Query()
	q.Set("city", w.Location.Name)
	u.RawQuery = q.Encode()
	return text, u.String(), nil
}

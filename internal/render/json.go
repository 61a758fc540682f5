package render

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/kjstillabower/weatherlookup/internal/models"
	"github.com/kjstillabower/weatherlookup/internal/service"
)

// Envelope is the wire form of a single emission.
type Envelope struct {
	Type    string                 `json:"type"`
	Weather *service.Emission      `json:"weather,omitempty"`
	Error   *service.ErrorEmission `json:"error,omitempty"`
}

const (
	TypeWeather     = "weather"
	TypeError       = "error"
	TypeSuggestions = "suggestions"
)

type suggestionsEnvelope struct {
	Type    string                 `json:"type"`
	Results []models.LocationMatch `json:"results"`
}

// JSON writes one JSON object per line for each emission.
type JSON struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSON returns a JSON renderer writing to w.
func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w)}
}

func (j *JSON) RenderWeather(e service.Emission) {
	j.write(Envelope{Type: TypeWeather, Weather: &e})
}

func (j *JSON) RenderError(e service.ErrorEmission) {
	j.write(Envelope{Type: TypeError, Error: &e})
}

// RenderSuggestions writes search matches; an empty list is written as [].
func (j *JSON) RenderSuggestions(matches []models.LocationMatch) {
	if matches == nil {
		matches = []models.LocationMatch{}
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(suggestionsEnvelope{Type: TypeSuggestions, Results: matches})
}

func (j *JSON) write(env Envelope) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(env)
}

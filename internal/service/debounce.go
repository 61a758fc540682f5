package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weatherlookup/internal/models"
	"github.com/kjstillabower/weatherlookup/internal/observability"
)

// DefaultDebounce is the input quiescence required before a search is issued.
const DefaultDebounce = 300 * time.Millisecond

// Searcher is satisfied by WeatherService.
type Searcher interface {
	Search(ctx context.Context, text string) ([]models.LocationMatch, error)
}

// Suggestions is one delivered search result.
type Suggestions struct {
	Query   string
	Matches []models.LocationMatch
	Err     error
}

// Suggester debounces keystroke-driven searches. Only the newest input is ever
// delivered; responses to superseded inputs are dropped.
type Suggester struct {
	searcher Searcher
	delay    time.Duration
	deliver  func(Suggestions)

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer

	deliverMu sync.Mutex
}

// NewSuggester returns a Suggester that calls deliver with each surviving result.
func NewSuggester(searcher Searcher, delay time.Duration, deliver func(Suggestions)) *Suggester {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Suggester{searcher: searcher, delay: delay, deliver: deliver}
}

// Input records a new value of the search box and restarts the quiet period.
func (s *Suggester) Input(ctx context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() { s.fire(ctx, gen, text) })
}

// Stop cancels any pending search and drops in-flight results.
func (s *Suggester) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Suggester) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

func (s *Suggester) fire(ctx context.Context, gen uint64, text string) {
	if !s.current(gen) {
		return
	}
	matches, err := s.searcher.Search(ctx, text)

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if !s.current(gen) {
		observability.SearchRequestsTotal.WithLabelValues("superseded").Inc()
		return
	}
	s.deliver(Suggestions{Query: text, Matches: matches, Err: err})
}

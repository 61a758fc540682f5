// Package cache provides the key-value persistence slot and the single-slot
// weather snapshot cache built on top of it.
package cache

import (
	"context"
	"sync"

	"github.com/kjstillabower/weatherlookup/internal/observability"
)

// Fixed persistence slot keys.
const (
	KeyTemperatureUnit = "temperatureUnit"
	KeyTheme           = "theme"
	KeyShowChart       = "showChart"
	KeyCachedWeather   = "cachedWeather"
)

// Store is a string key-value store. Get returns ("", false, nil) on a miss.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Pinger is implemented by stores with a remote backend. Used for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

func recordOp(backend, op, result string) {
	observability.CacheOperationsTotal.WithLabelValues(backend, op, result).Inc()
}

func getResult(ok bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case ok:
		return "hit"
	default:
		return "miss"
	}
}

func setResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// InMemoryStore implements Store with a mutex-guarded map. Values live for the process.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]string)}
}

// Get returns the stored value for key.
func (s *InMemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		recordOp("memory", "get", "error")
		return "", false, err
	}
	s.mu.RLock()
	v, ok := s.data[key]
	s.mu.RUnlock()
	recordOp("memory", "get", getResult(ok, nil))
	return v, ok, nil
}

// Set overwrites the value for key.
func (s *InMemoryStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		recordOp("memory", "set", "error")
		return err
	}
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
	recordOp("memory", "set", "ok")
	return nil
}

//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weatherlookup/internal/provider"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	Provider      string
	APIKey        string
	BaseURL       string
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	return IntegrationTestConfig{
		Provider:      os.Getenv("WEATHER_PROVIDER"),
		APIKey:        apiKey,
		BaseURL:       os.Getenv("WEATHER_API_URL"),
		MemcachedAddr: MemcachedAddrs(),
	}
}

// MemcachedAddrs returns MEMCACHED_ADDRS or the local default.
func MemcachedAddrs() string {
	if addrs := os.Getenv("MEMCACHED_ADDRS"); addrs != "" {
		return addrs
	}
	return "localhost:11211"
}

// SetupIntegrationAdapter builds the configured live provider adapter.
func SetupIntegrationAdapter(t *testing.T, cfg IntegrationTestConfig) provider.Adapter {
	t.Helper()
	a, err := provider.New(provider.Config{
		Name:    cfg.Provider,
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Transport: provider.TransportConfig{
			Timeout: 5 * time.Second,
			Retry:   provider.RetryConfig{Attempts: 2},
		},
	})
	if err != nil {
		t.Fatalf("provider.New() error = %v", err)
	}
	return a
}

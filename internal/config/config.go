package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreMemory    = "memory"
	StoreSQLite    = "sqlite"
	StoreMemcached = "memcached"
)

// Config holds configuration loaded from YAML and env.
type Config struct {
	Provider        string
	APIKey          string
	BaseURL         string
	GeoURL          string
	ProviderTimeout time.Duration

	RetryAttempts           int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
	BreakerFailureThreshold uint32
	BreakerTimeout          time.Duration

	StoreBackend          string
	SQLitePath            string
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	CacheMaxAge    time.Duration
	SearchDebounce time.Duration

	GeoEnabled   bool
	GeoIPURL     string
	GeoStaticLat *float64
	GeoStaticLon *float64
	GeoTimeout   time.Duration

	MQTTBroker         string
	MQTTClientID       string
	MQTTUsername       string
	MQTTPassword       string
	MQTTTopicPrefix    string
	MQTTQoS            byte
	MQTTPublishTimeout time.Duration

	ServerPort       string
	PublicURL        string
	RequestTimeout   time.Duration
	RateLimitRPS     int
	RateLimitBurst   int
	ShutdownTimeout  time.Duration
	HealthWindow     time.Duration
	DegradedErrorPct int

	RefreshInterval  time.Duration
	TrackedLocations []string
	LogLevel         string
}

// APIKeyConfigured reports whether a provider credential was found.
func (c *Config) APIKeyConfigured() bool {
	return c.APIKey != ""
}

type fileConfig struct {
	Provider struct {
		Name    string `yaml:"name"`
		BaseURL string `yaml:"base_url"`
		GeoURL  string `yaml:"geo_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"provider"`

	Reliability struct {
		RetryMaxAttempts        int    `yaml:"retry_max_attempts"`
		RetryBaseDelay          string `yaml:"retry_base_delay"`
		RetryMaxDelay           string `yaml:"retry_max_delay"`
		BreakerFailureThreshold uint32 `yaml:"breaker_failure_threshold"`
		BreakerTimeout          string `yaml:"breaker_timeout"`
	} `yaml:"reliability"`

	Store struct {
		Backend   string              `yaml:"backend"`
		SQLite    sqliteFileConfig    `yaml:"sqlite"`
		Memcached memcachedFileConfig `yaml:"memcached"`
	} `yaml:"store"`

	Cache struct {
		MaxAge string `yaml:"max_age"`
	} `yaml:"cache"`

	Search struct {
		Debounce string `yaml:"debounce"`
	} `yaml:"search"`

	Geolocation struct {
		Enabled   *bool    `yaml:"enabled"`
		IPURL     string   `yaml:"ip_url"`
		Latitude  *float64 `yaml:"latitude"`
		Longitude *float64 `yaml:"longitude"`
		Timeout   string   `yaml:"timeout"`
	} `yaml:"geolocation"`

	MQTT struct {
		Broker         string `yaml:"broker"`
		ClientID       string `yaml:"client_id"`
		Username       string `yaml:"username"`
		TopicPrefix    string `yaml:"topic_prefix"`
		QoS            int    `yaml:"qos"`
		PublishTimeout string `yaml:"publish_timeout"`
	} `yaml:"mqtt"`

	Server struct {
		Port           string `yaml:"port"`
		PublicURL      string `yaml:"public_url"`
		RequestTimeout string `yaml:"request_timeout"`
		RateLimitRPS   int    `yaml:"rate_limit_rps"`
		RateLimitBurst int    `yaml:"rate_limit_burst"`
	} `yaml:"server"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		Window           string `yaml:"window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Watch struct {
		RefreshInterval string `yaml:"refresh_interval"`
	} `yaml:"watch"`

	Metrics struct {
		TrackedLocations []string `yaml:"tracked_locations"`
	} `yaml:"metrics"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

type sqliteFileConfig struct {
	Path string `yaml:"path"`
}

type memcachedFileConfig struct {
	Addrs        string `yaml:"addrs"`
	Timeout      string `yaml:"timeout"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	MQTTPassword  string `yaml:"mqtt_password"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml relative to the working directory. A missing dev file
// yields defaults; a missing file for an explicit ENV_NAME is an error. The API
// key comes from WEATHER_API_KEY or the secrets file and may be absent.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadDir(filepath.Join(cwd, "config"))
}

// LoadDir is Load with an explicit config directory.
func LoadDir(dir string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	explicit := env != ""
	if !explicit {
		env = "dev"
	}

	var fc fileConfig
	configPath := filepath.Join(dir, env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case os.IsNotExist(err) && !explicit:
	case os.IsNotExist(err):
		return nil, fmt.Errorf("config file not found: %s", configPath)
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var sec secretsFile
	secretsData, err := os.ReadFile(filepath.Join(dir, "secrets.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}

	cfg := &Config{}

	cfg.Provider = firstNonEmpty(os.Getenv("WEATHER_PROVIDER"), fc.Provider.Name, "weatherapi")
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.APIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)
	cfg.BaseURL = strings.TrimSpace(fc.Provider.BaseURL)
	cfg.GeoURL = strings.TrimSpace(fc.Provider.GeoURL)
	cfg.ProviderTimeout = parseDurationOrZero(fc.Provider.Timeout, 10*time.Second)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.BreakerFailureThreshold = fc.Reliability.BreakerFailureThreshold
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerTimeout = parseDuration(fc.Reliability.BreakerTimeout, 30*time.Second)

	cfg.StoreBackend = strings.ToLower(firstNonEmpty(os.Getenv("STORE_BACKEND"), fc.Store.Backend, StoreSQLite))
	cfg.SQLitePath = firstNonEmpty(os.Getenv("SQLITE_PATH"), fc.Store.SQLite.Path, "weatherlookup.db")
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Store.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Store.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Store.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.CacheMaxAge = parseDuration(fc.Cache.MaxAge, time.Hour)
	cfg.SearchDebounce = parseDuration(fc.Search.Debounce, 300*time.Millisecond)

	cfg.GeoEnabled = true
	if fc.Geolocation.Enabled != nil {
		cfg.GeoEnabled = *fc.Geolocation.Enabled
	}
	cfg.GeoIPURL = strings.TrimSpace(fc.Geolocation.IPURL)
	cfg.GeoStaticLat = fc.Geolocation.Latitude
	cfg.GeoStaticLon = fc.Geolocation.Longitude
	cfg.GeoTimeout = parseDuration(fc.Geolocation.Timeout, 10*time.Second)

	cfg.MQTTBroker = firstNonEmpty(os.Getenv("MQTT_BROKER"), fc.MQTT.Broker)
	cfg.MQTTClientID = strings.TrimSpace(fc.MQTT.ClientID)
	cfg.MQTTUsername = strings.TrimSpace(fc.MQTT.Username)
	cfg.MQTTPassword = firstNonEmpty(os.Getenv("MQTT_PASSWORD"), sec.MQTTPassword)
	cfg.MQTTTopicPrefix = firstNonEmpty(fc.MQTT.TopicPrefix, "weatherlookup")
	cfg.MQTTQoS = byte(fc.MQTT.QoS)
	cfg.MQTTPublishTimeout = parseDuration(fc.MQTT.PublishTimeout, 5*time.Second)

	cfg.ServerPort = firstNonEmpty(fc.Server.Port, "8080")
	cfg.PublicURL = strings.TrimSpace(fc.Server.PublicURL)
	cfg.RequestTimeout = parseDuration(fc.Server.RequestTimeout, 15*time.Second)
	cfg.RateLimitRPS = fc.Server.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Server.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.HealthWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.RefreshInterval = parseDuration(fc.Watch.RefreshInterval, 10*time.Minute)
	cfg.TrackedLocations = fc.Metrics.TrackedLocations
	cfg.LogLevel = strings.ToLower(firstNonEmpty(os.Getenv("LOG_LEVEL"), fc.Log.Level, "info"))

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is for validate to reject.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised above
// ProviderTimeout when needed so a cut-off request can still serve the cache.
func validate(cfg *Config) error {
	if cfg.ProviderTimeout <= 0 {
		return fmt.Errorf("provider.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.ProviderTimeout {
		cfg.RequestTimeout = cfg.ProviderTimeout + time.Second
	}
	switch cfg.Provider {
	case "weatherapi", "openweather":
	default:
		return fmt.Errorf("provider.name must be weatherapi or openweather, got %q", cfg.Provider)
	}
	switch cfg.StoreBackend {
	case StoreMemory, StoreSQLite, StoreMemcached:
	default:
		return fmt.Errorf("store.backend must be memory, sqlite or memcached, got %q", cfg.StoreBackend)
	}
	if (cfg.GeoStaticLat == nil) != (cfg.GeoStaticLon == nil) {
		return fmt.Errorf("geolocation.latitude and geolocation.longitude must be set together")
	}
	if cfg.MQTTQoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTTQoS)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be at most 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}

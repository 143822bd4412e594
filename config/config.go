package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Poller    PollerConfig    `yaml:"poller"`
	Liveness  LivenessConfig  `yaml:"liveness"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Report    ReportConfig    `yaml:"report"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// PollerConfig holds the upstream telemetry poller configuration.
type PollerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
	HTTPProxy       string        `yaml:"http_proxy"`
	Timezone        string        `yaml:"timezone"`
	Request         PollerRequest `yaml:"request"`
}

// PollerRequest defines the HTTP request for the poller.
type PollerRequest struct {
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	PageSize int               `yaml:"pageSize"`
	Payload  map[string]any    `yaml:"payload"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// LivenessConfig controls when a heartbeat is considered stale.
type LivenessConfig struct {
	StaleThresholdSeconds int           `yaml:"stale_threshold_seconds"`
	StaleThreshold        time.Duration `yaml:"-"`
}

// ReconcileConfig holds the daily delta heuristics.
type ReconcileConfig struct {
	DailyCapMinutes float64 `yaml:"daily_cap_minutes"`
	// Zero is a valid buffer and threshold, so unset is nil.
	BufferSetting      *float64 `yaml:"cumulative_buffer_minutes"`
	MaterialitySetting *float64 `yaml:"materiality_seconds"`

	CumulativeBufferMinutes float64 `yaml:"-"`
	MaterialitySeconds      float64 `yaml:"-"`
}

// ReportConfig bounds report synthesis.
type ReportConfig struct {
	FetchTimeoutSeconds int           `yaml:"fetch_timeout_seconds"`
	FetchTimeout        time.Duration `yaml:"-"`
	MaxConcurrency      int           `yaml:"max_concurrency"`
}

// LogConfig selects the zap logger flavour.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values with working defaults and derives the durations.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	// Liveness moves in seconds, so the read cache stays short.
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Poller.IntervalSeconds <= 0 {
		cfg.Poller.IntervalSeconds = 30
	}
	cfg.Poller.Interval = time.Duration(cfg.Poller.IntervalSeconds) * time.Second
	if cfg.Poller.Request.PageSize <= 0 {
		cfg.Poller.Request.PageSize = 100
	}
	if cfg.Poller.Timezone == "" {
		cfg.Poller.Timezone = "UTC"
	}

	if cfg.Liveness.StaleThresholdSeconds <= 0 {
		cfg.Liveness.StaleThresholdSeconds = 40
	}
	cfg.Liveness.StaleThreshold = time.Duration(cfg.Liveness.StaleThresholdSeconds) * time.Second

	if cfg.Reconcile.DailyCapMinutes <= 0 {
		cfg.Reconcile.DailyCapMinutes = 1440
	}
	cfg.Reconcile.CumulativeBufferMinutes = 5
	if v := cfg.Reconcile.BufferSetting; v != nil && *v >= 0 {
		cfg.Reconcile.CumulativeBufferMinutes = *v
	}
	cfg.Reconcile.MaterialitySeconds = 10
	if v := cfg.Reconcile.MaterialitySetting; v != nil && *v >= 0 {
		cfg.Reconcile.MaterialitySeconds = *v
	}

	if cfg.Report.FetchTimeoutSeconds <= 0 {
		cfg.Report.FetchTimeoutSeconds = 15
	}
	cfg.Report.FetchTimeout = time.Duration(cfg.Report.FetchTimeoutSeconds) * time.Second
	if cfg.Report.MaxConcurrency <= 0 {
		cfg.Report.MaxConcurrency = 4
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tangentleman/docpull/internal/scrape"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig        `mapstructure:"server"`
	Auth     AuthConfig          `mapstructure:"auth"`
	Scraper  ScraperConfig       `mapstructure:"scraper"`
	Headless HeadlessConfig      `mapstructure:"headless"`
	Storage  StorageConfig       `mapstructure:"storage"`
	DB       DBConfig            `mapstructure:"db"`
	PubSub   PubSubConfig        `mapstructure:"pubsub"`
	Logging  LoggingConfig       `mapstructure:"logging"`
	Sites    []scrape.SiteConfig `mapstructure:"sites"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScraperConfig governs classification, planning, and worker behavior.
type ScraperConfig struct {
	WorkerBudget     int    `mapstructure:"worker_budget"`
	DelaySeconds     int    `mapstructure:"delay_seconds"`
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxAgeSeconds    int    `mapstructure:"max_age_seconds"`
	ErrorThreshold   int    `mapstructure:"error_threshold"`
	ErrorExpiryHours int    `mapstructure:"error_expiry_hours"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// StorageConfig selects and parameterizes the content archive backend.
type StorageConfig struct {
	// Backend is one of memory, local, gcs. Empty disables archiving.
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DBConfig controls the optional Postgres key-value backend. An empty DSN
// selects the in-memory store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for completion event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCPULL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scraper.worker_budget", 100)
	v.SetDefault("scraper.delay_seconds", 1)
	v.SetDefault("scraper.user_agent", "docpull-bot/0.1")
	v.SetDefault("scraper.timeout_seconds", 15)
	v.SetDefault("scraper.max_age_seconds", 3600)
	v.SetDefault("scraper.error_threshold", 3)
	v.SetDefault("scraper.error_expiry_hours", 24)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("db.table", "docpull_kv")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.WorkerBudget <= 0 {
		return fmt.Errorf("scraper.worker_budget must be > 0")
	}
	if c.Scraper.TimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.timeout_seconds must be > 0")
	}
	if c.Scraper.MaxAgeSeconds < 0 {
		return fmt.Errorf("scraper.max_age_seconds must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case "", "memory":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	for _, site := range c.Sites {
		if site.ID == "" || site.BaseURL == "" {
			return fmt.Errorf("every site needs id and base_url")
		}
	}
	return nil
}

// Delay returns the inter-fetch spacing as a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Scraper.DelaySeconds) * time.Second
}

// FetchTimeout returns the per-request fetch timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Scraper.TimeoutSeconds) * time.Second
}

// DefaultMaxAge returns the cache TTL applied when a submission carries no
// explicit max age.
func (c Config) DefaultMaxAge() time.Duration {
	return time.Duration(c.Scraper.MaxAgeSeconds) * time.Second
}

// ErrorExpiry returns the circuit breaker expiry window.
func (c Config) ErrorExpiry() time.Duration {
	return time.Duration(c.Scraper.ErrorExpiryHours) * time.Hour
}

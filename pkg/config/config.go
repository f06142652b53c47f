// Package config loads the svgifyd configuration from an optional YAML file
// overlaid with environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreMemory    = "memory"
	StoreRedis     = "redis"
	StoreFirestore = "firestore"
)

// Icon sources.
const (
	SourceHTTP = "http"
	SourceGCS  = "gcs"
)

// Config is the complete daemon configuration.
type Config struct {
	Service      ServiceConfig      `yaml:"service" envPrefix:"SVGIFY_"`
	Provider     ProviderConfig     `yaml:"provider" envPrefix:"SVGIFY_PROVIDER_"`
	Store        StoreConfig        `yaml:"store" envPrefix:"SVGIFY_STORE_"`
	Source       SourceConfig       `yaml:"source" envPrefix:"SVGIFY_SOURCE_"`
	Invalidation InvalidationConfig `yaml:"invalidation" envPrefix:"SVGIFY_INVALIDATION_"`
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL"`
	HTTPPort        string        `yaml:"http_port" env:"HTTP_PORT"`
	RenderTimeout   time.Duration `yaml:"render_timeout" env:"RENDER_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	NotFoundElement string        `yaml:"not_found_element" env:"NOT_FOUND_ELEMENT"`
	// WarmIcons are loaded into the cache at startup.
	WarmIcons []string `yaml:"warm_icons" env:"WARM_ICONS" envSeparator:","`
}

// ProviderConfig mirrors svgify.Config.
type ProviderConfig struct {
	Version            int           `yaml:"version" env:"VERSION"`
	ClearForOldVersion bool          `yaml:"clear_for_old_version" env:"CLEAR_FOR_OLD_VERSION"`
	BasePath           string        `yaml:"base_path" env:"BASE_PATH"`
	Origin             string        `yaml:"origin" env:"ORIGIN"`
	StaggerDelay       time.Duration `yaml:"stagger_delay" env:"STAGGER_DELAY"`
}

// StoreConfig selects and configures the cache backend.
type StoreConfig struct {
	Backend        string `yaml:"backend" env:"BACKEND"`
	QuotaBytes     int64  `yaml:"quota_bytes" env:"QUOTA_BYTES"`
	RedisAddr      string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword  string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB        int    `yaml:"redis_db" env:"REDIS_DB"`
	RedisNamespace string `yaml:"redis_namespace" env:"REDIS_NAMESPACE"`
	ProjectID      string `yaml:"project_id" env:"PROJECT_ID"`
	Collection     string `yaml:"collection" env:"COLLECTION"`
}

// SourceConfig selects where icons are fetched from.
type SourceConfig struct {
	Kind   string `yaml:"kind" env:"KIND"`
	Bucket string `yaml:"bucket" env:"BUCKET"`
	Prefix string `yaml:"prefix" env:"PREFIX"`
}

// InvalidationConfig enables the Pub/Sub version listener when
// SubscriptionID is set.
type InvalidationConfig struct {
	ProjectID      string `yaml:"project_id" env:"PROJECT_ID"`
	SubscriptionID string `yaml:"subscription_id" env:"SUBSCRIPTION_ID"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			LogLevel:        "info",
			HTTPPort:        ":8080",
			RenderTimeout:   10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Provider: ProviderConfig{
			Version:      1,
			BasePath:     "/assets/icons",
			StaggerDelay: 5 * time.Millisecond,
		},
		Store: StoreConfig{
			Backend:        StoreMemory,
			QuotaBytes:     5 << 20,
			RedisAddr:      "localhost:6379",
			RedisNamespace: "svgify:",
			Collection:     "svgify-icons",
		},
		Source: SourceConfig{
			Kind: SourceHTTP,
		},
	}
}

// Load applies the YAML file at path, if any, and then the environment on top
// of the defaults. An empty path or a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the enumerations and the settings each choice requires.
func (c *Config) Validate() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.Source.Kind = strings.ToLower(strings.TrimSpace(c.Source.Kind))

	var errs []error
	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required for the redis backend"))
		}
		if strings.TrimSpace(c.Store.RedisNamespace) == "" {
			errs = append(errs, errors.New("store.redis_namespace is required for the redis backend"))
		}
	case StoreFirestore:
		if c.Store.ProjectID == "" {
			errs = append(errs, errors.New("store.project_id is required for the firestore backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	switch c.Source.Kind {
	case SourceHTTP:
		if c.Provider.Origin == "" {
			errs = append(errs, errors.New("provider.origin is required for the http source"))
		}
	case SourceGCS:
		if c.Source.Bucket == "" {
			errs = append(errs, errors.New("source.bucket is required for the gcs source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown icon source %q", c.Source.Kind))
	}

	if c.Provider.Version < 0 {
		errs = append(errs, fmt.Errorf("provider.version must not be negative, got %d", c.Provider.Version))
	}
	if c.Invalidation.SubscriptionID != "" && c.Invalidation.ProjectID == "" {
		errs = append(errs, errors.New("invalidation.project_id is required with a subscription"))
	}
	return errors.Join(errs...)
}

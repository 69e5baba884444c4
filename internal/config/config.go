// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"package-health/internal/npm"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	HTTPAddr           string        `mapstructure:"HTTP_ADDR"`
	NpmRegistryURL     string        `mapstructure:"NPM_REGISTRY_URL"`
	NpmDownloadsURL    string        `mapstructure:"NPM_DOWNLOADS_URL"`
	GithubAPIURL       string        `mapstructure:"GITHUB_API_URL"`
	GithubToken        string        `mapstructure:"GITHUB_TOKEN"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	DBURL              string        `mapstructure:"DB_URL"`
	WatchPackages      []string      `mapstructure:"WATCH_PACKAGES"`
	RefreshInterval    time.Duration `mapstructure:"REFRESH_INTERVAL"`
	TrackerConcurrency int           `mapstructure:"TRACKER_CONCURRENCY"`
}

// LoadConfig reads configuration from a .env file in the working directory and/or
// environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if file not found

	return FromViper(v)
}

// SetDefaults registers the default of every configuration key on v.
// Keys without a default are registered empty so AutomaticEnv can fill them on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("NPM_REGISTRY_URL", npm.DefaultRegistryURL)
	v.SetDefault("NPM_DOWNLOADS_URL", npm.DefaultDownloadsURL)
	v.SetDefault("GITHUB_API_URL", "")
	v.SetDefault("GITHUB_TOKEN", "")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("DB_URL", "")
	v.SetDefault("WATCH_PACKAGES", []string{})
	v.SetDefault("REFRESH_INTERVAL", "6h")
	v.SetDefault("TRACKER_CONCURRENCY", 5)
}

// FromViper builds and validates a Config from v, with environment variables
// taking precedence over anything v already holds.
func FromViper(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	// Bind environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.WatchPackages = cleanList(cfg.WatchPackages)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and cross-field requirements.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be a positive duration (e.g. 15s)")
	}
	if len(c.WatchPackages) == 0 {
		return nil
	}
	if c.DBURL == "" {
		return errors.New("WATCH_PACKAGES requires DB_URL to store snapshots")
	}
	if c.RefreshInterval <= 0 {
		return errors.New("REFRESH_INTERVAL must be a positive duration (e.g. 6h)")
	}
	if c.TrackerConcurrency < 1 {
		return errors.New("TRACKER_CONCURRENCY must be at least 1")
	}
	return nil
}

// cleanList trims entries and drops empty ones, so "react, vue," yields [react vue].
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Package config loads the relay settings into a typed Config.
// Values come from built-in defaults, then an optional YAML file named by
// RELAY_CONFIG, then environment variables; later sources win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// HTTP
	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Provider
	YouTubeBaseURL    string `yaml:"youtube_base_url"`
	YouTubeDataAPIKey string `yaml:"youtube_data_api_key"`

	// Community gateway; empty base disables catalog fetches
	CommunityAPIBase     string `yaml:"community_api_base"`
	CommunityModBadgeURL string `yaml:"community_mod_badge_url"`

	// Relay timing
	PollInterval           time.Duration `yaml:"poll_interval"`
	DedupWindow            time.Duration `yaml:"dedup_window"`
	DedupSweepInterval     time.Duration `yaml:"dedup_sweep_interval"`
	CatalogRefreshInterval time.Duration `yaml:"catalog_refresh_interval"`
	RelayIdleTimeout       time.Duration `yaml:"relay_idle_timeout"`

	// Database; empty disables session checkpoints
	DBDsn string `yaml:"db_dsn"`

	// Websocket upgrades
	UpgradeRatePerMinute int `yaml:"upgrade_rate_per_minute"`
	UpgradeBurst         int `yaml:"upgrade_burst"`
	SubscriberBuffer     int `yaml:"subscriber_buffer"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		HTTPAddr:               ":8080",
		LogLevel:               "info",
		LogFormat:              "text",
		YouTubeBaseURL:         "https://www.youtube.com",
		CommunityModBadgeURL:   "https://overlay.truffle.vip/mod.png",
		PollInterval:           250 * time.Millisecond,
		DedupWindow:            60 * time.Second,
		DedupSweepInterval:     60 * time.Second,
		CatalogRefreshInterval: 60 * time.Second,
		RelayIdleTimeout:       10 * time.Minute,
		UpgradeRatePerMinute:   30,
		UpgradeBurst:           10,
		SubscriberBuffer:       256,
	}
}

// Load applies the YAML file named by RELAY_CONFIG (if set) and then the
// environment over the defaults, and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("RELAY_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read RELAY_CONFIG: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse RELAY_CONFIG: %w", err)
		}
	}

	str(&cfg.HTTPAddr, "HTTP_ADDR")
	str(&cfg.LogLevel, "LOG_LEVEL")
	str(&cfg.LogFormat, "LOG_FORMAT")
	str(&cfg.YouTubeBaseURL, "YOUTUBE_BASE_URL")
	str(&cfg.YouTubeDataAPIKey, "YOUTUBE_DATA_API_KEY")
	str(&cfg.CommunityAPIBase, "COMMUNITY_API_BASE")
	str(&cfg.CommunityModBadgeURL, "COMMUNITY_MOD_BADGE_URL")
	str(&cfg.DBDsn, "DB_DSN")

	for _, d := range []struct {
		dst *time.Duration
		key string
	}{
		{&cfg.PollInterval, "POLL_INTERVAL"},
		{&cfg.DedupWindow, "DEDUP_WINDOW"},
		{&cfg.DedupSweepInterval, "DEDUP_SWEEP_INTERVAL"},
		{&cfg.CatalogRefreshInterval, "CATALOG_REFRESH_INTERVAL"},
		{&cfg.RelayIdleTimeout, "RELAY_IDLE_TIMEOUT"},
	} {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	for _, n := range []struct {
		dst *int
		key string
	}{
		{&cfg.UpgradeRatePerMinute, "UPGRADE_RATE_PER_MINUTE"},
		{&cfg.UpgradeBurst, "UPGRADE_BURST"},
		{&cfg.SubscriberBuffer, "SUBSCRIBER_BUFFER"},
	} {
		if v := os.Getenv(n.key); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", n.key, err)
			}
			*n.dst = parsed
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func str(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate rejects settings the relay cannot run with.
func (c *Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"POLL_INTERVAL":            c.PollInterval,
		"DEDUP_WINDOW":             c.DedupWindow,
		"DEDUP_SWEEP_INTERVAL":     c.DedupSweepInterval,
		"CATALOG_REFRESH_INTERVAL": c.CatalogRefreshInterval,
		"RELAY_IDLE_TIMEOUT":       c.RelayIdleTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.UpgradeRatePerMinute <= 0 || c.UpgradeBurst <= 0 {
		return fmt.Errorf("UPGRADE_RATE_PER_MINUTE and UPGRADE_BURST must be positive")
	}
	if c.SubscriberBuffer <= 0 {
		return fmt.Errorf("SUBSCRIBER_BUFFER must be positive, got %d", c.SubscriberBuffer)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	return nil
}

// DataAPIEnabled reports whether the Data API channel fallback is configured.
func (c *Config) DataAPIEnabled() bool { return c.YouTubeDataAPIKey != "" }

// CheckpointsEnabled reports whether a database is configured.
func (c *Config) CheckpointsEnabled() bool { return c.DBDsn != "" }

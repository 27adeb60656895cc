package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a configuration file.
// Environment variables prefixed with ROOMLOG_ override file values.
func Load(_ context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-provided config path is expected
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks a configuration for errors, fills defaults for zero values
// and resolves the time zone.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.RoomName) == "" {
		return errors.New("room_name: is required")
	}

	if cfg.MinMinutes < 0 {
		return fmt.Errorf("min_minutes: must be >= 0, got %d", cfg.MinMinutes)
	}

	loc, err := resolveLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	cfg.location = loc

	if cfg.LogDir == "" {
		cfg.LogDir = DefaultLogDir
	}

	if err := validateYouTube(&cfg.YouTube); err != nil {
		return fmt.Errorf("youtube: %w", err)
	}

	if err := validateTitleCache(&cfg.TitleCache); err != nil {
		return fmt.Errorf("title_cache: %w", err)
	}

	if err := validateDatabase(&cfg.Database); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Webhooks are optional, but validate if present
	for i := range cfg.Webhooks {
		if err := validateWebhook(&cfg.Webhooks[i]); err != nil {
			name := cfg.Webhooks[i].Name
			if name == "" {
				name = cfg.Webhooks[i].URL
			}
			return fmt.Errorf("webhooks[%d] (%s): %w", i, name, err)
		}
	}

	return nil
}

func resolveLocation(name string) (*time.Location, error) {
	switch name {
	case "", "Local", "local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown zone %q: %w", name, err)
	}
	return loc, nil
}

func validateYouTube(yt *YouTubeConfig) error {
	yt.APIKey = expandEnvVar(yt.APIKey)

	if yt.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %s", yt.Timeout)
	}
	if yt.Timeout == 0 {
		yt.Timeout = DefaultLookupTimeout
	}

	if yt.RatePerSecond < 0 {
		return fmt.Errorf("rate_per_second must be >= 0, got %v", yt.RatePerSecond)
	}
	if yt.RatePerSecond == 0 {
		yt.RatePerSecond = DefaultLookupRate
	}

	if yt.Burst < 0 {
		return fmt.Errorf("burst must be >= 0, got %d", yt.Burst)
	}
	if yt.Burst == 0 {
		yt.Burst = DefaultLookupBurst
	}

	return nil
}

func validateTitleCache(tc *TitleCacheConfig) error {
	if tc.Backend == "" {
		tc.Backend = CacheBackendJSON
	}

	switch tc.Backend {
	case CacheBackendJSON, CacheBackendBadger:
		if tc.Path == "" {
			return fmt.Errorf("path is required for the %s backend", tc.Backend)
		}
	case CacheBackendMemory:
		// No path
	default:
		return fmt.Errorf("invalid backend %q (must be json, badger, or memory)", tc.Backend)
	}

	return nil
}

func validateDatabase(db *DatabaseConfig) error {
	if db.Driver == "" {
		db.Driver = DriverSQLite
	}

	switch db.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("invalid driver %q (must be sqlite or postgres)", db.Driver)
	}

	db.DSN = expandEnvVar(db.DSN)
	if db.DSN == "" {
		return errors.New("dsn is required")
	}

	return nil
}

func validateWebhook(wh *WebhookConfig) error {
	if wh.URL == "" {
		return errors.New("url is required")
	}

	// Validate URL format
	u, err := url.Parse(wh.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("url must have a host")
	}

	// Expand environment variables in token
	wh.Token = expandEnvVar(wh.Token)

	if wh.Trigger != "" {
		switch wh.Trigger {
		case WebhookTriggerOnRecords, WebhookTriggerAlways, WebhookTriggerNever:
			// Valid
		default:
			return fmt.Errorf("invalid trigger %q (must be on_records, always, or never)", wh.Trigger)
		}
	} else {
		wh.Trigger = WebhookTriggerOnRecords
	}

	if wh.Timeout <= 0 {
		wh.Timeout = DefaultWebhookTimeout
	}

	return nil
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	if s == "" {
		return s
	}

	// Handle ${VAR} format
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}

	// Handle $VAR format (no braces)
	if strings.HasPrefix(s, "$") && !strings.HasPrefix(s, "${") {
		varName := s[1:]
		return os.Getenv(varName)
	}

	return s
}

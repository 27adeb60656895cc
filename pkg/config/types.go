// Package config provides configuration loading and validation for roomlog.
package config

import (
	"time"
)

// Config is the root configuration structure loaded from YAML.
type Config struct {
	// RoomName scopes room-enter and video-play lines.
	RoomName string `yaml:"room_name" env:"ROOM_NAME"`

	// MinMinutes is the minimum total presence per name across one pass.
	MinMinutes int `yaml:"min_minutes" env:"MIN_MINUTES"`

	// Timezone is the IANA zone the log timestamps are written in.
	// "Local" (default) uses the host zone.
	Timezone string `yaml:"timezone" env:"TIMEZONE"`

	// LogDir is the directory holding the client's log files.
	LogDir    string `yaml:"log_dir" env:"LOG_DIR"`
	LogPrefix string `yaml:"log_prefix"`
	LogSuffix string `yaml:"log_suffix"`

	Consent     ConsentConfig    `yaml:"consent"`
	BannedSongs []string         `yaml:"banned_songs,omitempty"`
	YouTube     YouTubeConfig    `yaml:"youtube"`
	TitleCache  TitleCacheConfig `yaml:"title_cache"`
	Database    DatabaseConfig   `yaml:"database"`
	Logging     LoggingConfig    `yaml:"logging"`

	// MetricsFile, when set, receives a Prometheus textfile after each ingest run.
	MetricsFile string `yaml:"metrics_file,omitempty" env:"METRICS_FILE"`

	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`

	// location is the resolved Timezone (populated during validation).
	location *time.Location
}

// Location returns the resolved time zone for log timestamps.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// MinDuration returns MinMinutes as a duration.
func (c *Config) MinDuration() time.Duration {
	return time.Duration(c.MinMinutes) * time.Minute
}

// ConsentConfig defines whose records may be emitted.
// An empty allow-list (and no store lookup) disables filtering.
type ConsentConfig struct {
	// Names is a static allow-list of participant names.
	Names []string `yaml:"names,omitempty"`

	// FromStore adds every registered user nickname in the store to the allow-list.
	FromStore bool `yaml:"from_store"`
}

// YouTubeConfig configures video title lookups.
type YouTubeConfig struct {
	// APIKey is the Data API key. Empty disables lookups.
	// Supports ${VAR} and $VAR expansion.
	APIKey string `yaml:"api_key,omitempty" env:"YOUTUBE_API_KEY"`

	// Timeout bounds a single lookup.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// RatePerSecond limits lookups per second.
	RatePerSecond float64 `yaml:"rate_per_second,omitempty"`

	// Burst is the limiter burst size.
	Burst int `yaml:"burst,omitempty"`
}

// CacheBackend selects the title cache implementation.
type CacheBackend string

const (
	// CacheBackendJSON stores titles in a flat JSON object file.
	CacheBackendJSON CacheBackend = "json"
	// CacheBackendBadger stores titles in an embedded Badger database directory.
	CacheBackendBadger CacheBackend = "badger"
	// CacheBackendMemory keeps titles for the life of the process only.
	CacheBackendMemory CacheBackend = "memory"
)

// TitleCacheConfig configures the persistent title cache.
type TitleCacheConfig struct {
	Backend CacheBackend `yaml:"backend"`
	Path    string       `yaml:"path"`
}

// DatabaseDriver selects the persistence backend.
type DatabaseDriver string

const (
	DriverSQLite   DatabaseDriver = "sqlite"
	DriverPostgres DatabaseDriver = "postgres"
)

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	Driver DatabaseDriver `yaml:"driver" env:"DATABASE_DRIVER"`

	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN string `yaml:"dsn" env:"DATABASE_DSN"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// WebhookTrigger determines when a webhook fires.
type WebhookTrigger string

const (
	// WebhookTriggerOnRecords fires only when a run produced records (default).
	WebhookTriggerOnRecords WebhookTrigger = "on_records"
	// WebhookTriggerAlways fires after every ingest run.
	WebhookTriggerAlways WebhookTrigger = "always"
	// WebhookTriggerNever disables the webhook.
	WebhookTriggerNever WebhookTrigger = "never"
)

// WebhookConfig defines a webhook endpoint for sending ingest reports.
type WebhookConfig struct {
	// Name is an optional identifier for the webhook.
	Name string `yaml:"name,omitempty"`

	// URL is the webhook endpoint (required).
	URL string `yaml:"url"`

	// Token is an optional bearer token for authentication.
	Token string `yaml:"token,omitempty"`

	// Trigger determines when the webhook fires.
	// Defaults to "on_records" if not specified.
	Trigger WebhookTrigger `yaml:"trigger,omitempty"`

	// Timeout is the HTTP request timeout.
	// Defaults to 10s if not specified.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

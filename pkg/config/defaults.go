package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Default values for configuration.
const (
	DefaultRoomName       = "PyPyDance"
	DefaultMinMinutes     = 30
	DefaultTimezone       = "Local"
	DefaultLogDir         = "."
	DefaultLogPrefix      = "output_log"
	DefaultLogSuffix      = ".txt"
	DefaultTitleCachePath = "youtube_title_cache.json"
	DefaultDatabaseDSN    = "roomlog.db"
	DefaultLookupTimeout  = 10 * time.Second
	DefaultLookupRate     = 5.0
	DefaultLookupBurst    = 1
	DefaultWebhookTimeout = 10 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	EnvPrefix             = "ROOMLOG_"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RoomName:   DefaultRoomName,
		MinMinutes: DefaultMinMinutes,
		Timezone:   DefaultTimezone,
		LogDir:     DefaultLogDir,
		LogPrefix:  DefaultLogPrefix,
		LogSuffix:  DefaultLogSuffix,
		YouTube: YouTubeConfig{
			Timeout:       DefaultLookupTimeout,
			RatePerSecond: DefaultLookupRate,
			Burst:         DefaultLookupBurst,
		},
		TitleCache: TitleCacheConfig{
			Backend: CacheBackendJSON,
			Path:    DefaultTitleCachePath,
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    DefaultDatabaseDSN,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// applyEnvironmentOverrides applies ROOMLOG_* environment variables to the config.
// Only variables that are set override file values.
func (c *Config) applyEnvironmentOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

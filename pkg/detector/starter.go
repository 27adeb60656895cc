package detector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pypydance/roomlog/pkg/config"
)

// ErrConfigExists is returned when a starter config would overwrite a file.
var ErrConfigExists = errors.New("config file already exists")

// StarterConfig renders a YAML config scoped to the detected room, with the
// log directory set to the directory of logFile.
func StarterConfig(match *RoomMatch, logFile string) string {
	logDir := filepath.Dir(logFile)
	if abs, err := filepath.Abs(logDir); err == nil {
		logDir = abs
	}

	// Room names are free text; single-quoted YAML doubles embedded quotes.
	room := "'" + strings.ReplaceAll(match.Name, "'", "''") + "'"

	return fmt.Sprintf(`# roomlog configuration
# Generated by: roomlog detect
# Detected room: %s (%d enters, %d video plays, %d players)

room_name: %s
min_minutes: %d
timezone: %s

log_dir: '%s'
log_prefix: %s
log_suffix: %s

consent:
  # Only these players (and, with from_store, registered users) are recorded.
  names: []
  from_store: true

# banned_songs:
#   - Some Song Title

youtube:
  # Leave empty to fall back to titles from the log.
  api_key: ${ROOMLOG_YOUTUBE_API_KEY}
  timeout: %s

title_cache:
  backend: %s
  path: %s

database:
  driver: %s
  dsn: %s

logging:
  level: %s
  format: %s

# webhooks:
#   - name: discord-relay
#     url: https://example.com/hook
#     trigger: on_records
`, match.Name, match.Enters, match.VideoPlays, match.Players,
		room,
		config.DefaultMinMinutes,
		config.DefaultTimezone,
		strings.ReplaceAll(logDir, "'", "''"),
		config.DefaultLogPrefix,
		config.DefaultLogSuffix,
		config.DefaultLookupTimeout,
		config.CacheBackendJSON,
		config.DefaultTitleCachePath,
		config.DriverSQLite,
		config.DefaultDatabaseDSN,
		config.DefaultLogLevel,
		config.DefaultLogFormat)
}

// WriteStarterConfig writes content to path. It never overwrites.
func WriteStarterConfig(path, content string) error {
	// #nosec G306 - config file doesn't need restrictive permissions
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s (will not overwrite)", ErrConfigExists, path)
		}
		return fmt.Errorf("creating config file: %w", err)
	}

	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	return f.Close()
}

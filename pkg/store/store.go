// Package store persists reconstructed records and per-file progress.
//
// Inserts are idempotent: re-saving records from a reprocessed slice adds
// no rows and leaves the attendance summary untouched.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pypydance/roomlog/pkg/analyzer"
	"github.com/pypydance/roomlog/pkg/config"
)

// ErrUnknownDriver is returned by Open for an unsupported driver.
var ErrUnknownDriver = errors.New("store: unknown database driver")

// Store is the persistence collaborator of an ingest run.
type Store interface {
	// ConsentedNames returns every registered user nickname.
	ConsentedNames(ctx context.Context) ([]string, error)

	// AddUser registers a nickname and returns its user id.
	// Registering an existing nickname returns the existing id.
	AddUser(ctx context.Context, nickname string) (int64, error)

	// LastProcessedLine returns the resumption marker for a log file name,
	// or 0 if the file was never processed.
	LastProcessedLine(ctx context.Context, file string) (int, error)

	// SaveProgress records the total line count processed for a file name.
	SaveProgress(ctx context.Context, file string, lines int) error

	// Progress lists every resumption marker, most recently updated first.
	Progress(ctx context.Context) ([]FileProgress, error)

	// Users lists registered users with their attendance summary.
	Users(ctx context.Context) ([]UserSummary, error)

	// SaveResults inserts records in one transaction. Records of names
	// without a registered user are skipped and counted.
	SaveResults(ctx context.Context, attendance []analyzer.AttendanceRecord, music []analyzer.MusicPlayRecord) (SaveStats, error)

	Close() error
}

// FileProgress is the resumption marker of one log file.
type FileProgress struct {
	File      string    `json:"file"`
	Lines     int       `json:"lines"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserSummary is a registered user and their attendance totals.
type UserSummary struct {
	ID           int64     `json:"user_id"`
	Nickname     string    `json:"nickname"`
	TotalCount   int       `json:"total_count"`
	LastAttended time.Time `json:"last_attended,omitempty"`
}

// SaveStats counts what one SaveResults call did.
type SaveStats struct {
	AttendanceInserted    int `json:"attendance_inserted"`
	AttendanceDuplicates  int `json:"attendance_duplicates"`
	AttendanceUnknownUser int `json:"attendance_unknown_user"`
	MusicInserted         int `json:"music_inserted"`
	MusicDuplicates       int `json:"music_duplicates"`
	MusicUnknownUser      int `json:"music_unknown_user"`
}

// Add accumulates other into s.
func (s *SaveStats) Add(other SaveStats) {
	s.AttendanceInserted += other.AttendanceInserted
	s.AttendanceDuplicates += other.AttendanceDuplicates
	s.AttendanceUnknownUser += other.AttendanceUnknownUser
	s.MusicInserted += other.MusicInserted
	s.MusicDuplicates += other.MusicDuplicates
	s.MusicUnknownUser += other.MusicUnknownUser
}

// Inserted returns the number of rows inserted.
func (s SaveStats) Inserted() int {
	return s.AttendanceInserted + s.MusicInserted
}

// Open connects to the store selected by cfg and applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		return OpenSQLite(ctx, cfg.DSN)
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// userCache memoizes nickname lookups within one transaction.
type userCache map[string]int64

// lookup returns the cached id, calling query on a miss.
// A name query reports as unknown is cached as 0.
func (c userCache) lookup(name string, query func(string) (int64, bool, error)) (int64, bool, error) {
	if id, ok := c[name]; ok {
		return id, id != 0, nil
	}
	id, ok, err := query(name)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		id = 0
	}
	c[name] = id
	return id, ok, nil
}

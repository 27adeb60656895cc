package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pypydance/roomlog/pkg/analyzer"
)

// sqliteTimeLayout stores instants as fixed-width UTC text so that text
// comparison orders them in time.
const sqliteTimeLayout = "2006-01-02T15:04:05Z"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY AUTOINCREMENT,
		nickname TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS log_process_tracker (
		log_filename TEXT PRIMARY KEY,
		last_line_processed INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		enter_time TEXT NOT NULL,
		leave_time TEXT NOT NULL,
		duration_sec INTEGER NOT NULL,
		UNIQUE(user_id, enter_time)
	)`,
	`CREATE TABLE IF NOT EXISTS user_attendance_summary (
		user_id INTEGER PRIMARY KEY REFERENCES users(user_id) ON DELETE CASCADE,
		total_count INTEGER NOT NULL,
		last_attended TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS music_play (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		played_at TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		UNIQUE(user_id, played_at, title)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_music_play_played_at ON music_play (played_at)`,
}

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is a Store in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at dsn (":memory:" for a
// private in-memory database) and applies the schema.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", dsn, err)
	}

	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening sqlite %s: %w", dsn, err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite %s: %w", dsn, err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	pragmas := []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
	}
	for _, stmt := range append(pragmas, sqliteSchema...) {
		if _, err := s.db.ExecContext(ctx, strings.TrimSpace(stmt)); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// ConsentedNames returns every registered nickname.
func (s *SQLiteStore) ConsentedNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT nickname FROM users ORDER BY nickname`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// AddUser registers a nickname.
func (s *SQLiteStore) AddUser(ctx context.Context, nickname string) (int64, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return 0, errors.New("nickname is required")
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (nickname, created_at) VALUES (?, ?) ON CONFLICT(nickname) DO NOTHING`,
		nickname, formatTime(time.Now())); err != nil {
		return 0, fmt.Errorf("adding user %q: %w", nickname, err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM users WHERE nickname = ?`, nickname).Scan(&id); err != nil {
		return 0, fmt.Errorf("adding user %q: %w", nickname, err)
	}
	return id, nil
}

// LastProcessedLine returns the marker for file, or 0.
func (s *SQLiteStore) LastProcessedLine(ctx context.Context, file string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT last_line_processed FROM log_process_tracker WHERE log_filename = ?`, file).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading progress for %s: %w", file, err)
	}
	return n, nil
}

// SaveProgress records the marker for file.
func (s *SQLiteStore) SaveProgress(ctx context.Context, file string, lines int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO log_process_tracker (log_filename, last_line_processed, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(log_filename) DO UPDATE SET
			last_line_processed = excluded.last_line_processed,
			updated_at = excluded.updated_at`,
		file, lines, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("saving progress for %s: %w", file, err)
	}
	return nil
}

// Progress lists every marker.
func (s *SQLiteStore) Progress(ctx context.Context) ([]FileProgress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT log_filename, last_line_processed, updated_at
		FROM log_process_tracker ORDER BY updated_at DESC, log_filename`)
	if err != nil {
		return nil, fmt.Errorf("listing progress: %w", err)
	}
	defer rows.Close()

	var list []FileProgress
	for rows.Next() {
		var p FileProgress
		var updated string
		if err := rows.Scan(&p.File, &p.Lines, &updated); err != nil {
			return nil, err
		}
		p.UpdatedAt, _ = time.Parse(sqliteTimeLayout, updated)
		list = append(list, p)
	}
	return list, rows.Err()
}

// SaveResults inserts records in one transaction.
func (s *SQLiteStore) SaveResults(ctx context.Context, attendance []analyzer.AttendanceRecord, music []analyzer.MusicPlayRecord) (SaveStats, error) {
	var stats SaveStats

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	users := userCache{}
	userID := func(name string) (int64, bool, error) {
		return users.lookup(name, func(n string) (int64, bool, error) {
			var id int64
			err := tx.QueryRowContext(ctx, `SELECT user_id FROM users WHERE nickname = ?`, n).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				return 0, false, nil
			}
			return id, err == nil, err
		})
	}

	for _, a := range attendance {
		id, ok, err := userID(a.Name)
		if err != nil {
			return SaveStats{}, fmt.Errorf("looking up user %q: %w", a.Name, err)
		}
		if !ok {
			stats.AttendanceUnknownUser++
			continue
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO attendance (user_id, enter_time, leave_time, duration_sec)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id, enter_time) DO NOTHING`,
			id, formatTime(a.Start), formatTime(a.End), int64(a.Duration.Seconds()))
		if err != nil {
			return SaveStats{}, fmt.Errorf("inserting attendance for %q: %w", a.Name, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			stats.AttendanceDuplicates++
			continue
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_attendance_summary (user_id, total_count, last_attended)
			VALUES (?, 1, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				total_count = total_count + 1,
				last_attended = max(last_attended, excluded.last_attended)`,
			id, formatTime(a.End)); err != nil {
			return SaveStats{}, fmt.Errorf("updating attendance summary for %q: %w", a.Name, err)
		}
		stats.AttendanceInserted++
	}

	for _, m := range music {
		id, ok, err := userID(m.User)
		if err != nil {
			return SaveStats{}, fmt.Errorf("looking up user %q: %w", m.User, err)
		}
		if !ok {
			stats.MusicUnknownUser++
			continue
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO music_play (user_id, played_at, title, url)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id, played_at, title) DO NOTHING`,
			id, formatTime(m.Timestamp), m.Title, m.URL)
		if err != nil {
			return SaveStats{}, fmt.Errorf("inserting music play %q: %w", m.Title, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			stats.MusicDuplicates++
			continue
		}
		stats.MusicInserted++
	}

	if err := tx.Commit(); err != nil {
		return SaveStats{}, fmt.Errorf("committing results: %w", err)
	}
	return stats, nil
}

// Users lists every registered user with attendance totals.
func (s *SQLiteStore) Users(ctx context.Context) ([]UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.user_id, u.nickname, COALESCE(s.total_count, 0), COALESCE(s.last_attended, '')
		FROM users u LEFT JOIN user_attendance_summary s ON s.user_id = u.user_id
		ORDER BY u.nickname`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var list []UserSummary
	for rows.Next() {
		var u UserSummary
		var last string
		if err := rows.Scan(&u.ID, &u.Nickname, &u.TotalCount, &last); err != nil {
			return nil, err
		}
		if last != "" {
			u.LastAttended, _ = time.Parse(sqliteTimeLayout, last)
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pypydance/roomlog/pkg/analyzer"
)

const postgresInitTimeout = 15 * time.Second

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id BIGSERIAL PRIMARY KEY,
		nickname TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS log_process_tracker (
		log_filename TEXT PRIMARY KEY,
		last_line_processed INTEGER NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		enter_time TIMESTAMPTZ NOT NULL,
		leave_time TIMESTAMPTZ NOT NULL,
		duration_sec INTEGER NOT NULL,
		UNIQUE(user_id, enter_time)
	)`,
	`CREATE TABLE IF NOT EXISTS user_attendance_summary (
		user_id BIGINT PRIMARY KEY REFERENCES users(user_id) ON DELETE CASCADE,
		total_count INTEGER NOT NULL,
		last_attended TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS music_play (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		played_at TIMESTAMPTZ NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		UNIQUE(user_id, played_at, title)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_music_play_played_at ON music_play (played_at)`,
}

var _ Store = (*PostgresStore)(nil)

// PostgresStore is a Store in a PostgreSQL database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, verifies the connection and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, postgresInitTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if err := runPostgresMigration(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrating postgres: %w", err)
	}
	return NewPostgresStore(pool), nil
}

// NewPostgresStore wraps an open pool. The schema must already exist.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func runPostgresMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range postgresSchema {
		if _, err := pool.Exec(ctx, strings.TrimSpace(s)); err != nil {
			return err
		}
	}
	return nil
}

// ConsentedNames returns every registered nickname.
func (s *PostgresStore) ConsentedNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT nickname FROM users ORDER BY nickname`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return names, nil
}

// AddUser registers a nickname.
func (s *PostgresStore) AddUser(ctx context.Context, nickname string) (int64, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return 0, errors.New("nickname is required")
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO users (nickname) VALUES ($1)
			ON CONFLICT (nickname) DO NOTHING
			RETURNING user_id
		)
		SELECT user_id FROM ins
		UNION ALL
		SELECT user_id FROM users WHERE nickname = $1
		LIMIT 1`, nickname).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("adding user %q: %w", nickname, err)
	}
	return id, nil
}

// LastProcessedLine returns the marker for file, or 0.
func (s *PostgresStore) LastProcessedLine(ctx context.Context, file string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT last_line_processed FROM log_process_tracker WHERE log_filename = $1`, file).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading progress for %s: %w", file, err)
	}
	return n, nil
}

// SaveProgress records the marker for file.
func (s *PostgresStore) SaveProgress(ctx context.Context, file string, lines int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO log_process_tracker (log_filename, last_line_processed, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (log_filename) DO UPDATE SET
			last_line_processed = EXCLUDED.last_line_processed,
			updated_at = EXCLUDED.updated_at`,
		file, lines)
	if err != nil {
		return fmt.Errorf("saving progress for %s: %w", file, err)
	}
	return nil
}

// Progress lists every marker.
func (s *PostgresStore) Progress(ctx context.Context) ([]FileProgress, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT log_filename, last_line_processed, updated_at
		FROM log_process_tracker ORDER BY updated_at DESC, log_filename`)
	if err != nil {
		return nil, fmt.Errorf("listing progress: %w", err)
	}
	defer rows.Close()

	var list []FileProgress
	for rows.Next() {
		var p FileProgress
		if err := rows.Scan(&p.File, &p.Lines, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Users lists every registered user with attendance totals.
func (s *PostgresStore) Users(ctx context.Context) ([]UserSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.user_id, u.nickname, COALESCE(s.total_count, 0), s.last_attended
		FROM users u LEFT JOIN user_attendance_summary s ON s.user_id = u.user_id
		ORDER BY u.nickname`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var list []UserSummary
	for rows.Next() {
		var u UserSummary
		var last *time.Time
		if err := rows.Scan(&u.ID, &u.Nickname, &u.TotalCount, &last); err != nil {
			return nil, err
		}
		if last != nil {
			u.LastAttended = *last
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// SaveResults inserts records in one transaction.
func (s *PostgresStore) SaveResults(ctx context.Context, attendance []analyzer.AttendanceRecord, music []analyzer.MusicPlayRecord) (SaveStats, error) {
	var stats SaveStats

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	users := userCache{}
	userID := func(name string) (int64, bool, error) {
		return users.lookup(name, func(n string) (int64, bool, error) {
			var id int64
			err := tx.QueryRow(ctx, `SELECT user_id FROM users WHERE nickname = $1`, n).Scan(&id)
			if errors.Is(err, pgx.ErrNoRows) {
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

		tag, err := tx.Exec(ctx, `
			INSERT INTO attendance (user_id, enter_time, leave_time, duration_sec)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, enter_time) DO NOTHING`,
			id, a.Start, a.End, int64(a.Duration.Seconds()))
		if err != nil {
			return SaveStats{}, fmt.Errorf("inserting attendance for %q: %w", a.Name, err)
		}
		if tag.RowsAffected() == 0 {
			stats.AttendanceDuplicates++
			continue
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO user_attendance_summary (user_id, total_count, last_attended)
			VALUES ($1, 1, $2)
			ON CONFLICT (user_id) DO UPDATE SET
				total_count = user_attendance_summary.total_count + 1,
				last_attended = GREATEST(user_attendance_summary.last_attended, EXCLUDED.last_attended)`,
			id, a.End); err != nil {
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

		tag, err := tx.Exec(ctx, `
			INSERT INTO music_play (user_id, played_at, title, url)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, played_at, title) DO NOTHING`,
			id, m.Timestamp, m.Title, m.URL)
		if err != nil {
			return SaveStats{}, fmt.Errorf("inserting music play %q: %w", m.Title, err)
		}
		if tag.RowsAffected() == 0 {
			stats.MusicDuplicates++
			continue
		}
		stats.MusicInserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return SaveStats{}, fmt.Errorf("committing results: %w", err)
	}
	return stats, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pypydance/roomlog/pkg/analyzer"
	"github.com/pypydance/roomlog/pkg/config"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func at(hh, mm int) time.Time {
	return time.Date(2025, 1, 1, hh, mm, 0, 0, time.UTC)
}

func TestSQLiteStore_Users(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id1, err := s.AddUser(ctx, "Alice")
	if err != nil {
		t.Fatalf("AddUser() error = %v", err)
	}
	id2, err := s.AddUser(ctx, " Alice ")
	if err != nil {
		t.Fatalf("AddUser() again error = %v", err)
	}
	if id1 != id2 {
		t.Errorf("AddUser() ids differ for same nickname: %d, %d", id1, id2)
	}
	if _, err := s.AddUser(ctx, "  "); err == nil {
		t.Error("AddUser() expected error for blank nickname")
	}
	s.AddUser(ctx, "Bob")

	names, err := s.ConsentedNames(ctx)
	if err != nil {
		t.Fatalf("ConsentedNames() error = %v", err)
	}
	if len(names) != 2 || names[0] != "Alice" || names[1] != "Bob" {
		t.Errorf("ConsentedNames() = %v", names)
	}
}

func TestSQLiteStore_Progress(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.LastProcessedLine(ctx, "output_log_1.txt")
	if err != nil || n != 0 {
		t.Fatalf("LastProcessedLine() = (%d, %v), want (0, nil)", n, err)
	}

	if err := s.SaveProgress(ctx, "output_log_1.txt", 120); err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}
	if err := s.SaveProgress(ctx, "output_log_1.txt", 250); err != nil {
		t.Fatalf("SaveProgress() update error = %v", err)
	}

	n, err = s.LastProcessedLine(ctx, "output_log_1.txt")
	if err != nil || n != 250 {
		t.Errorf("LastProcessedLine() = (%d, %v), want 250", n, err)
	}

	list, err := s.Progress(ctx)
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if len(list) != 1 || list[0].Lines != 250 || list[0].UpdatedAt.IsZero() {
		t.Errorf("Progress() = %+v", list)
	}
}

func TestSQLiteStore_SaveResults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.AddUser(ctx, "Alice")
	s.AddUser(ctx, "Bob")

	attendance := []analyzer.AttendanceRecord{
		{Name: "Alice", Start: at(20, 0), End: at(20, 40), Duration: 40 * time.Minute},
		{Name: "Bob", Start: at(20, 0), End: at(21, 0), Duration: time.Hour},
		{Name: "Stranger", Start: at(20, 0), End: at(21, 0), Duration: time.Hour},
		{Name: "Alice", Start: at(22, 0), End: at(22, 30), Duration: 30 * time.Minute},
	}
	music := []analyzer.MusicPlayRecord{
		{Timestamp: at(20, 15), Title: "Song", User: "Alice", URL: "https://youtu.be/a"},
		{Timestamp: at(20, 20), Title: "Other", User: "Unknown", URL: "https://youtu.be/b"},
	}

	stats, err := s.SaveResults(ctx, attendance, music)
	if err != nil {
		t.Fatalf("SaveResults() error = %v", err)
	}
	want := SaveStats{
		AttendanceInserted:    3,
		AttendanceUnknownUser: 1,
		MusicInserted:         1,
		MusicUnknownUser:      1,
	}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}

	users, err := s.Users(ctx)
	if err != nil {
		t.Fatalf("Users() error = %v", err)
	}
	if len(users) != 2 || users[0].Nickname != "Alice" {
		t.Fatalf("Users() = %+v", users)
	}
	if users[0].TotalCount != 2 || !users[0].LastAttended.Equal(at(22, 30)) {
		t.Errorf("Alice summary = %+v, want 2 visits last at 22:30", users[0])
	}
	if users[1].TotalCount != 1 {
		t.Errorf("Bob summary = %+v", users[1])
	}
}

func TestSQLiteStore_SaveResultsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.AddUser(ctx, "Alice")

	attendance := []analyzer.AttendanceRecord{
		{Name: "Alice", Start: at(20, 0), End: at(20, 40), Duration: 40 * time.Minute},
	}
	music := []analyzer.MusicPlayRecord{
		{Timestamp: at(20, 15), Title: "Song", User: "Alice", URL: "u"},
	}

	if _, err := s.SaveResults(ctx, attendance, music); err != nil {
		t.Fatal(err)
	}
	stats, err := s.SaveResults(ctx, attendance, music)
	if err != nil {
		t.Fatalf("second SaveResults() error = %v", err)
	}
	if stats.Inserted() != 0 || stats.AttendanceDuplicates != 1 || stats.MusicDuplicates != 1 {
		t.Errorf("second save stats = %+v, want only duplicates", stats)
	}

	users, _ := s.Users(ctx)
	if len(users) != 1 || users[0].TotalCount != 1 {
		t.Errorf("summary bumped by duplicate insert: %+v", users)
	}
}

func TestSQLiteStore_LastAttendedKeepsLatest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.AddUser(ctx, "Alice")

	// Saved newest first, as a reprocessed older file would be.
	s.SaveResults(ctx, []analyzer.AttendanceRecord{
		{Name: "Alice", Start: at(22, 0), End: at(23, 0), Duration: time.Hour},
	}, nil)
	s.SaveResults(ctx, []analyzer.AttendanceRecord{
		{Name: "Alice", Start: at(18, 0), End: at(19, 0), Duration: time.Hour},
	}, nil)

	users, _ := s.Users(ctx)
	if len(users) != 1 || !users[0].LastAttended.Equal(at(23, 0)) {
		t.Errorf("LastAttended = %v, want 23:00", users[0].LastAttended)
	}
}

func TestSQLiteStore_ReopenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "roomlog.db")

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	s.SaveProgress(ctx, "f.txt", 10)
	s.Close()

	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	if n, _ := s.LastProcessedLine(ctx, "f.txt"); n != 10 {
		t.Errorf("LastProcessedLine() after reopen = %d, want 10", n)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Open(sqlite) error = %v", err)
	}
	s.Close()

	_, err = Open(ctx, config.DatabaseConfig{Driver: "mysql", DSN: "x"})
	if !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("Open(mysql) error = %v, want ErrUnknownDriver", err)
	}
}

func TestSaveStats_Add(t *testing.T) {
	total := SaveStats{AttendanceInserted: 1}
	total.Add(SaveStats{AttendanceInserted: 2, MusicInserted: 3, MusicDuplicates: 1})
	if total.AttendanceInserted != 3 || total.MusicInserted != 3 || total.MusicDuplicates != 1 {
		t.Errorf("Add() = %+v", total)
	}
	if total.Inserted() != 6 {
		t.Errorf("Inserted() = %d, want 6", total.Inserted())
	}
}

package analyzer

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/pypydance/roomlog/pkg/config"
)

// fakeResolver resolves ids from a fixed table and counts calls.
type fakeResolver struct {
	titles map[string]string
	calls  int
}

func (f *fakeResolver) Resolve(_ context.Context, id string) (string, bool) {
	f.calls++
	if title, ok := f.titles[id]; ok {
		return title, true
	}
	return id, false
}

func createTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RoomName = "PyPyDance"
	cfg.MinMinutes = 30
	cfg.Timezone = "UTC"
	cfg.TitleCache.Backend = config.CacheBackendMemory
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return cfg
}

func at(hh, mm, ss int) time.Time {
	return time.Date(2025, 1, 1, hh, mm, ss, 0, time.UTC)
}

var exampleLines = []string{
	"2025.01.01 19:59:58 Log        -  [Network] Connecting",
	"2025.01.01 20:00:00 Log        -  [Behaviour] Entering Room: PyPyDance",
	"2025.01.01 20:00:05 Log        -  [Behaviour] OnPlayerJoinComplete Alice",
	"2025.01.01 20:00:10 Log        -  [Behaviour] OnPlayerJoinComplete Bob",
	`2025.01.01 20:15:00 Log        -  [VRCX] VideoPlay(PyPyDance) "https://www.youtube.com/watch?v=abc123",0,120,"Song Title (Alice)"`,
	"2025.01.01 20:40:00 Log        -  [Behaviour] OnPlayerLeft Alice (usr_a)",
	"2025.01.01 21:00:00 Log        -  [Behaviour] Successfully left room",
}

func TestNewAnalyzer(t *testing.T) {
	a, err := NewAnalyzer(createTestConfig(t))
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}
	if a.Room() != "PyPyDance" {
		t.Errorf("Room() = %q", a.Room())
	}
}

func TestNewAnalyzer_Errors(t *testing.T) {
	if _, err := NewAnalyzer(nil); err == nil {
		t.Error("NewAnalyzer(nil) expected error")
	}

	cfg := createTestConfig(t)
	cfg.RoomName = ""
	if _, err := NewAnalyzer(cfg); err == nil {
		t.Error("NewAnalyzer() expected error for empty room")
	}
}

func TestAnalyzer_ExampleScenario(t *testing.T) {
	a, err := NewAnalyzer(createTestConfig(t))
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}

	result, err := a.Analyze(context.Background(), exampleLines)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	wantAttendance := []AttendanceRecord{
		{Name: "Alice", Start: at(20, 0, 5), End: at(20, 40, 0), Duration: 39*time.Minute + 55*time.Second},
		{Name: "Bob", Start: at(20, 0, 10), End: at(21, 0, 0), Duration: 59*time.Minute + 50*time.Second},
	}
	if !reflect.DeepEqual(result.Attendance, wantAttendance) {
		t.Errorf("Attendance = %+v\nwant %+v", result.Attendance, wantAttendance)
	}

	wantMusic := []MusicPlayRecord{{
		Timestamp: at(20, 15, 0),
		Title:     "Song Title",
		User:      "Alice",
		URL:       "https://www.youtube.com/watch?v=abc123",
	}}
	if !reflect.DeepEqual(result.Music, wantMusic) {
		t.Errorf("Music = %+v\nwant %+v", result.Music, wantMusic)
	}

	if len(result.Ranges) != 1 || result.Ranges[0] != (SessionRange{Start: 1, End: 6}) {
		t.Errorf("Ranges = %v", result.Ranges)
	}
	if result.Stats.LinesProcessed != len(exampleLines) {
		t.Errorf("LinesProcessed = %d", result.Stats.LinesProcessed)
	}
	if result.Stats.Events["player_join"] != 2 {
		t.Errorf("Events[player_join] = %d, want 2", result.Stats.Events["player_join"])
	}
	if !result.HasRecords() {
		t.Error("HasRecords() = false")
	}
}

func TestAnalyzer_ResolvedTitleWins(t *testing.T) {
	resolver := &fakeResolver{titles: map[string]string{"abc123": "Official Title"}}
	a, err := NewAnalyzer(createTestConfig(t), WithTitleResolver(resolver))
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}

	result, err := a.Analyze(context.Background(), exampleLines)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(result.Music) != 1 || result.Music[0].Title != "Official Title" {
		t.Fatalf("Music = %+v", result.Music)
	}
	if result.Stats.Music.Resolved != 1 {
		t.Errorf("Resolved = %d, want 1", result.Stats.Music.Resolved)
	}
}

func TestAnalyzer_ConsentFromConfig(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Consent.Names = []string{"Bob"}

	resolver := &fakeResolver{}
	a, err := NewAnalyzer(cfg, WithTitleResolver(resolver))
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}

	result, err := a.Analyze(context.Background(), exampleLines)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(result.Attendance) != 1 || result.Attendance[0].Name != "Bob" {
		t.Errorf("Attendance = %+v, want only Bob", result.Attendance)
	}
	if len(result.Music) != 0 {
		t.Errorf("Music = %+v, want none", result.Music)
	}
	if resolver.calls != 0 {
		t.Errorf("resolver calls = %d, want 0 for a non-consenting user", resolver.calls)
	}
	if result.Stats.Music.NotConsented != 1 {
		t.Errorf("NotConsented = %d, want 1", result.Stats.Music.NotConsented)
	}
}

func TestAnalyzer_WithConsentAddsNames(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Consent.Names = []string{"Bob"}

	a, err := NewAnalyzer(cfg, WithConsent([]string{"Alice"}))
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}

	result, err := a.Analyze(context.Background(), exampleLines)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(result.Attendance) != 2 {
		t.Errorf("Attendance = %+v, want Alice and Bob", result.Attendance)
	}
}

func TestAnalyzer_BannedSongs(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.BannedSongs = []string{"song title"}

	a, err := NewAnalyzer(cfg)
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}

	result, err := a.Analyze(context.Background(), exampleLines)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(result.Music) != 0 {
		t.Errorf("Music = %+v, want banned song dropped", result.Music)
	}
	if result.Stats.Music.Banned != 1 {
		t.Errorf("Banned = %d, want 1", result.Stats.Music.Banned)
	}
}

func TestAnalyzer_DanglingSession(t *testing.T) {
	a, err := NewAnalyzer(createTestConfig(t))
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}

	// Drop the final room-leave line.
	result, err := a.Analyze(context.Background(), exampleLines[:len(exampleLines)-1])
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(result.Attendance) != 0 || len(result.Ranges) != 0 {
		t.Errorf("dangling session produced records: %+v", result)
	}
	if result.Stats.DanglingSessions != 1 {
		t.Errorf("DanglingSessions = %d, want 1", result.Stats.DanglingSessions)
	}
	// Music does not depend on sessions.
	if len(result.Music) != 1 {
		t.Errorf("Music = %+v, want 1 record", result.Music)
	}
}

func TestAnalyzer_EmptyInput(t *testing.T) {
	a, err := NewAnalyzer(createTestConfig(t))
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}

	result, err := a.Analyze(context.Background(), nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.HasRecords() {
		t.Errorf("HasRecords() = true for empty input")
	}
}

func TestAnalyzer_Cancelled(t *testing.T) {
	a, err := NewAnalyzer(createTestConfig(t))
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Analyze(ctx, exampleLines); err == nil {
		t.Error("Analyze() expected error for cancelled context")
	}
}

// Two sessions that do not cross the split point give the same records
// whether analyzed in one pass or two.
func TestAnalyzer_SliceEquivalence(t *testing.T) {
	lines := []string{
		"2025.01.01 20:00:00 Entering Room: PyPyDance",
		"2025.01.01 20:00:05 OnPlayerJoinComplete Alice",
		`2025.01.01 20:10:00 [VRCX] VideoPlay(PyPyDance) "https://youtu.be/aaa",0,1,"First (Alice)"`,
		"2025.01.01 20:50:00 OnPlayerLeft Alice",
		"2025.01.01 21:00:00 Successfully left room",
		"2025.01.01 22:00:00 Entering Room: PyPyDance",
		"2025.01.01 22:00:05 OnPlayerJoinComplete Bob",
		`2025.01.01 22:10:00 [VRCX] VideoPlay(PyPyDance) "https://youtu.be/bbb",0,1,"Queue : Second (Bob)"`,
		"2025.01.01 23:00:00 Safe handle has been closed",
	}
	const split = 5

	a, err := NewAnalyzer(createTestConfig(t))
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}
	ctx := context.Background()

	full, err := a.Analyze(ctx, lines)
	if err != nil {
		t.Fatalf("Analyze(full) error = %v", err)
	}
	first, err := a.Analyze(ctx, lines[:split])
	if err != nil {
		t.Fatalf("Analyze(first) error = %v", err)
	}
	second, err := a.Analyze(ctx, lines[split:])
	if err != nil {
		t.Fatalf("Analyze(second) error = %v", err)
	}

	attendance := append(append([]AttendanceRecord{}, first.Attendance...), second.Attendance...)
	music := append(append([]MusicPlayRecord{}, first.Music...), second.Music...)

	if !reflect.DeepEqual(full.Attendance, attendance) {
		t.Errorf("Attendance differs:\nfull   %+v\nsliced %+v", full.Attendance, attendance)
	}
	if !reflect.DeepEqual(full.Music, music) {
		t.Errorf("Music differs:\nfull   %+v\nsliced %+v", full.Music, music)
	}
	if len(full.Attendance) != 2 || len(full.Music) != 2 {
		t.Errorf("full pass = %d attendance, %d music; want 2, 2", len(full.Attendance), len(full.Music))
	}
}

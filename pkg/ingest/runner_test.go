package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pypydance/roomlog/pkg/analyzer"
	"github.com/pypydance/roomlog/pkg/config"
	"github.com/pypydance/roomlog/pkg/metrics"
	"github.com/pypydance/roomlog/pkg/store"
)

var sessionLines = []string{
	"2025.01.01 20:00:00 Log        -  [Behaviour] Entering Room: PyPyDance",
	"2025.01.01 20:00:05 Log        -  [Behaviour] OnPlayerJoinComplete Alice",
	"2025.01.01 20:00:10 Log        -  [Behaviour] OnPlayerJoinComplete Bob",
	`2025.01.01 20:15:00 Log        -  [VRCX] VideoPlay(PyPyDance) "https://example.com/v.mp4",0,120,"Song Title (Alice)"`,
	"2025.01.01 20:40:00 Log        -  [Behaviour] OnPlayerLeft Alice (usr_a)",
	"2025.01.01 21:00:00 Log        -  [Behaviour] Successfully left room",
}

var laterSessionLines = []string{
	"2025.01.02 20:00:00 Log        -  [Behaviour] Entering Room: PyPyDance",
	"2025.01.02 20:00:05 Log        -  [Behaviour] OnPlayerJoinComplete Alice",
	"2025.01.02 21:00:00 Log        -  [Behaviour] Successfully left room",
}

type testEnv struct {
	cfg   *config.Config
	dir   string
	store *store.SQLiteStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.LogDir = dir
	cfg.Timezone = "UTC"
	cfg.TitleCache.Backend = config.CacheBackendMemory
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	st, err := store.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	for _, name := range []string{"Alice", "Bob"} {
		if _, err := st.AddUser(context.Background(), name); err != nil {
			t.Fatal(err)
		}
	}

	return &testEnv{cfg: cfg, dir: dir, store: st}
}

func (e *testEnv) runner(t *testing.T, opts ...Option) *Runner {
	t.Helper()
	a, err := analyzer.NewAnalyzer(e.cfg)
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}
	var st store.Store = e.store
	r, err := NewRunner(e.cfg, st, a, opts...)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return r
}

func (e *testEnv) writeLog(t *testing.T, name string, lines []string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func appendLines(t *testing.T, path string, lines []string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		t.Fatal(err)
	}
}

func TestRunner_IncrementalRuns(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := env.writeLog(t, "output_log_1.txt", sessionLines, time.Now())

	run, err := env.runner(t).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.RunID == "" {
		t.Error("RunID is empty")
	}
	if len(run.Files) != 1 {
		t.Fatalf("Files = %+v", run.Files)
	}
	first := run.Files[0]
	if first.FromLine != 0 || first.TotalLines != len(sessionLines) {
		t.Errorf("first run lines %d..%d", first.FromLine, first.TotalLines)
	}
	if first.Saved.AttendanceInserted != 2 || first.Saved.MusicInserted != 1 {
		t.Errorf("first run saved %+v", first.Saved)
	}
	if n, _ := env.store.LastProcessedLine(ctx, "output_log_1.txt"); n != len(sessionLines) {
		t.Errorf("marker = %d, want %d", n, len(sessionLines))
	}

	// Nothing new.
	run, err = env.runner(t).Run(ctx)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if !run.Files[0].Skipped || run.Files[0].SkipReason != SkipNoNewLines {
		t.Errorf("second run = %+v, want skipped", run.Files[0])
	}
	if run.HasRecords() {
		t.Error("second run has records")
	}

	// Appended session only.
	appendLines(t, path, laterSessionLines)
	run, err = env.runner(t).Run(ctx)
	if err != nil {
		t.Fatalf("third Run() error = %v", err)
	}
	third := run.Files[0]
	if third.FromLine != len(sessionLines) {
		t.Errorf("third run FromLine = %d", third.FromLine)
	}
	if third.Result.Stats.LinesProcessed != len(laterSessionLines) {
		t.Errorf("third run analyzed %d lines, want %d", third.Result.Stats.LinesProcessed, len(laterSessionLines))
	}
	if third.Saved.AttendanceInserted != 1 || third.Saved.AttendanceDuplicates != 0 {
		t.Errorf("third run saved %+v", third.Saved)
	}

	users, _ := env.store.Users(ctx)
	if users[0].Nickname != "Alice" || users[0].TotalCount != 2 {
		t.Errorf("Alice summary = %+v", users[0])
	}
}

func TestRunner_OldestFileFirst(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	env.writeLog(t, "output_log_b.txt", laterSessionLines, now)
	env.writeLog(t, "output_log_a.txt", sessionLines, now.Add(time.Hour))
	env.writeLog(t, "other.txt", sessionLines, now.Add(-time.Hour))

	run, err := env.runner(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(run.Files) != 2 {
		t.Fatalf("Files = %+v, want 2 matching files", run.Files)
	}
	if run.Files[0].File != "output_log_b.txt" || run.Files[1].File != "output_log_a.txt" {
		t.Errorf("order = %s, %s", run.Files[0].File, run.Files[1].File)
	}
}

func TestRunner_TruncatedFileSkipped(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.writeLog(t, "output_log_1.txt", sessionLines, time.Now())
	env.store.SaveProgress(ctx, "output_log_1.txt", 1000)

	run, err := env.runner(t).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !run.Files[0].Skipped || run.Files[0].SkipReason != SkipTruncated {
		t.Errorf("file = %+v, want truncated skip", run.Files[0])
	}
	if n, _ := env.store.LastProcessedLine(ctx, "output_log_1.txt"); n != 1000 {
		t.Errorf("marker changed to %d", n)
	}
}

func TestRunner_ReadError(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.runner(t).ProcessFile(context.Background(), filepath.Join(env.dir, "output_log_missing.txt"))
	var readErr *ReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("error = %v, want *ReadError", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ReadError does not unwrap to os.ErrNotExist: %v", err)
	}
	if n, _ := env.store.LastProcessedLine(context.Background(), "output_log_missing.txt"); n != 0 {
		t.Errorf("marker = %d, want 0", n)
	}
}

func TestRunner_MissingDirectory(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.LogDir = filepath.Join(env.dir, "nope")

	if _, err := env.runner(t).Run(context.Background()); err == nil {
		t.Error("Run() expected error for missing directory")
	}
}

// failingStore fails SaveResults and records SaveProgress calls.
type failingStore struct {
	store.Store
	progressCalls int
}

func (f *failingStore) SaveResults(context.Context, []analyzer.AttendanceRecord, []analyzer.MusicPlayRecord) (store.SaveStats, error) {
	return store.SaveStats{}, errors.New("connection reset")
}

func (f *failingStore) SaveProgress(context.Context, string, int) error {
	f.progressCalls++
	return nil
}

func TestRunner_PersistFailureKeepsMarker(t *testing.T) {
	env := newTestEnv(t)
	env.writeLog(t, "output_log_1.txt", sessionLines, time.Now())

	fs := &failingStore{Store: env.store}
	a, _ := analyzer.NewAnalyzer(env.cfg)
	r, err := NewRunner(env.cfg, fs, a)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("Run() expected error")
	}
	if fs.progressCalls != 0 {
		t.Errorf("SaveProgress called %d times after failed save", fs.progressCalls)
	}
}

func TestRunner_DryRun(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := env.writeLog(t, "output_log_1.txt", sessionLines, time.Now())

	a, _ := analyzer.NewAnalyzer(env.cfg)
	r, err := NewRunner(env.cfg, nil, a, WithDryRun(), WithFromLine(1))
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	res, err := r.ProcessFile(ctx, path)
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	if res.FromLine != 1 || res.Result == nil {
		t.Fatalf("result = %+v", res)
	}
	// The room-enter line was skipped, so no session exists.
	if len(res.Result.Attendance) != 0 || len(res.Result.Music) != 1 {
		t.Errorf("records = %d attendance, %d music", len(res.Result.Attendance), len(res.Result.Music))
	}
	if n, _ := env.store.LastProcessedLine(ctx, "output_log_1.txt"); n != 0 {
		t.Errorf("dry run moved the marker to %d", n)
	}
}

func TestNewRunner_Errors(t *testing.T) {
	env := newTestEnv(t)
	a, _ := analyzer.NewAnalyzer(env.cfg)

	if _, err := NewRunner(env.cfg, nil, a); err == nil {
		t.Error("NewRunner() without store expected error")
	}
	if _, err := NewRunner(nil, env.store, a); err == nil {
		t.Error("NewRunner() without config expected error")
	}
}

func TestRunner_Metrics(t *testing.T) {
	env := newTestEnv(t)
	env.writeLog(t, "output_log_1.txt", sessionLines, time.Now())
	m := metrics.New()

	if _, err := env.runner(t, WithMetrics(m)).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "roomlog.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `roomlog_files_total{outcome="processed"} 1`) {
		t.Errorf("metrics missing processed file:\n%s", data)
	}
}

func TestRunner_RunFiles(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	first := env.writeLog(t, "session_a.log", sessionLines, time.Now())
	second := env.writeLog(t, "session_b.log", laterSessionLines, time.Now().Add(-time.Hour))

	run, err := env.runner(t).RunFiles(ctx, []string{first, second})
	if err != nil {
		t.Fatalf("RunFiles() error = %v", err)
	}
	if run.RunID == "" || run.EndTime.Before(run.StartTime) {
		t.Errorf("run = %+v", run)
	}
	// Given order wins over modification time, and names need not match the prefix.
	if len(run.Files) != 2 || run.Files[0].File != "session_a.log" || run.Files[1].File != "session_b.log" {
		t.Fatalf("Files = %+v", run.Files)
	}
	if n, _ := env.store.LastProcessedLine(ctx, "session_b.log"); n != len(laterSessionLines) {
		t.Errorf("marker = %d, want %d", n, len(laterSessionLines))
	}
}

func TestRunner_RunFiles_StopsAtFirstFailure(t *testing.T) {
	env := newTestEnv(t)
	good := env.writeLog(t, "output_log_1.txt", sessionLines, time.Now())

	run, err := env.runner(t).RunFiles(context.Background(), []string{filepath.Join(env.dir, "gone.txt"), good})
	var readErr *ReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("RunFiles() error = %v, want *ReadError", err)
	}
	if len(run.Files) != 0 {
		t.Errorf("Files = %+v, want none", run.Files)
	}
}

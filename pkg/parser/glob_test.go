package parser

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeWithModTime(t *testing.T, path string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("test\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestListLogFiles_OldestFirst(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	writeWithModTime(t, filepath.Join(dir, "output_log_c.txt"), base)
	writeWithModTime(t, filepath.Join(dir, "output_log_a.txt"), base.Add(2*time.Hour))
	writeWithModTime(t, filepath.Join(dir, "output_log_b.txt"), base.Add(time.Hour))

	files, err := ListLogFiles(dir, "output_log", ".txt")
	if err != nil {
		t.Fatalf("ListLogFiles() error = %v", err)
	}

	want := []string{"output_log_c.txt", "output_log_b.txt", "output_log_a.txt"}
	if len(files) != len(want) {
		t.Fatalf("ListLogFiles() returned %d files, want %d", len(files), len(want))
	}
	for i, name := range want {
		if files[i].Name != name {
			t.Errorf("files[%d].Name = %q, want %q", i, files[i].Name, name)
		}
		if files[i].Path != filepath.Join(dir, name) {
			t.Errorf("files[%d].Path = %q", i, files[i].Path)
		}
	}
}

func TestListLogFiles_FiltersPrefixAndSuffix(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	writeWithModTime(t, filepath.Join(dir, "output_log_1.txt"), now)
	writeWithModTime(t, filepath.Join(dir, "output_log_2.log"), now)
	writeWithModTime(t, filepath.Join(dir, "player_prefs.txt"), now)
	if err := os.Mkdir(filepath.Join(dir, "output_log_dir.txt"), 0755); err != nil {
		t.Fatal(err)
	}

	files, err := ListLogFiles(dir, "output_log", ".txt")
	if err != nil {
		t.Fatalf("ListLogFiles() error = %v", err)
	}
	if len(files) != 1 || files[0].Name != "output_log_1.txt" {
		t.Errorf("ListLogFiles() = %+v, want only output_log_1.txt", files)
	}
}

func TestListLogFiles_TieBreaksByName(t *testing.T) {
	dir := t.TempDir()
	mod := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	writeWithModTime(t, filepath.Join(dir, "output_log_b.txt"), mod)
	writeWithModTime(t, filepath.Join(dir, "output_log_a.txt"), mod)

	files, err := ListLogFiles(dir, "output_log", ".txt")
	if err != nil {
		t.Fatalf("ListLogFiles() error = %v", err)
	}
	if len(files) != 2 || files[0].Name != "output_log_a.txt" {
		t.Errorf("ListLogFiles() = %+v, want a before b", files)
	}
}

func TestListLogFiles_MissingDir(t *testing.T) {
	_, err := ListLogFiles(filepath.Join(t.TempDir(), "nope"), "output_log", ".txt")
	if err == nil {
		t.Error("ListLogFiles() expected error for missing directory")
	}
}

package output

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/pypydance/roomlog/pkg/ingest"
)

func TestNewTextFormatter(t *testing.T) {
	f := NewTextFormatter(FormatOptions{})
	if f == nil {
		t.Fatal("NewTextFormatter() returned nil")
	}
	if f.Name() != "text" {
		t.Errorf("Name() = %q, want %q", f.Name(), "text")
	}
}

func TestTextFormatter_Format_Empty(t *testing.T) {
	f := NewTextFormatter(FormatOptions{})
	report := NewReport(&ingest.RunResult{}, "config.yaml", "PyPyDance")

	var buf bytes.Buffer
	err := f.Format(context.Background(), report, &buf)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "roomlog Ingest Report: PyPyDance") {
		t.Error("Output missing header")
	}
	if !strings.Contains(output, "0 file(s) processed") {
		t.Error("Output missing summary")
	}
}

func TestTextFormatter_Format_WithRecords(t *testing.T) {
	f := NewTextFormatter(FormatOptions{})
	report := createTestReport()

	var buf bytes.Buffer
	err := f.Format(context.Background(), report, &buf)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	output := buf.String()

	checks := []string{
		"[FILE] output_log_2025-01-01.txt (lines 0-120)",
		"Alice: 2025-01-01 20:00:00 to 2025-01-01 20:40:00 (40m0s)",
		`"Song B" by Alice`,
		"Saved: 1 attendance, 1 music (1 duplicate, 0 unknown user)",
		"Skipped: no new lines",
		"1 file(s) processed, 1 skipped, 1 attendance, 2 music, 2 inserted",
	}
	for _, want := range checks {
		if !strings.Contains(output, want) {
			t.Errorf("Output missing %q\n%s", want, output)
		}
	}

	// URLs only appear in verbose mode
	if strings.Contains(output, "youtu.be") {
		t.Error("Non-verbose output should not include URLs")
	}
}

func TestTextFormatter_Format_DryRun(t *testing.T) {
	f := NewTextFormatter(FormatOptions{})
	report := NewReport(createTestRun(true), "config.yaml", "PyPyDance")

	var buf bytes.Buffer
	if err := f.Format(context.Background(), report, &buf); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "roomlog Analysis Report") {
		t.Error("Dry run should use the analysis header")
	}
	if strings.Contains(output, "Saved:") || strings.Contains(output, "inserted") {
		t.Error("Dry run should not report persistence")
	}
}

func TestTextFormatter_Format_Quiet(t *testing.T) {
	f := NewTextFormatter(FormatOptions{Quiet: true})
	report := createTestReport()

	var buf bytes.Buffer
	err := f.Format(context.Background(), report, &buf)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	output := buf.String()
	want := "roomlog: 1 file(s), 1 attendance, 2 music, 2 inserted\n"
	if output != want {
		t.Errorf("Quiet output = %q, want %q", output, want)
	}
}

func TestTextFormatter_Format_Verbose(t *testing.T) {
	f := NewTextFormatter(FormatOptions{Verbose: true})
	report := createTestReport()

	var buf bytes.Buffer
	err := f.Format(context.Background(), report, &buf)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	output := buf.String()
	checks := []string{
		"URL: https://youtu.be/abc123",
		"Dropped: 1 below threshold, 0 not consented, 0 banned, 2 duplicate",
		"Lines processed: 120",
		"Run ID: " + report.Metadata.RunID,
		"Duration: 1.5s",
	}
	for _, want := range checks {
		if !strings.Contains(output, want) {
			t.Errorf("Verbose output missing %q", want)
		}
	}
}

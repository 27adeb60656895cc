// Package output provides formatting and output generation for run reports.
package output

import (
	"time"

	"github.com/pypydance/roomlog/pkg/ingest"
)

// Report is the complete output of an analyze or ingest run.
type Report struct {
	// Summary provides aggregate statistics.
	Summary Summary `json:"summary"`

	// Files contains per-file outcomes in processing order.
	Files []ingest.FileResult `json:"files"`

	// Metadata provides context about the run.
	Metadata Metadata `json:"metadata"`
}

// Summary provides aggregate statistics.
type Summary struct {
	// FilesProcessed counts files that were analyzed.
	FilesProcessed int `json:"files_processed"`

	// FilesSkipped counts files with nothing to analyze.
	FilesSkipped int `json:"files_skipped"`

	// LinesProcessed is the total number of log lines analyzed.
	LinesProcessed int `json:"lines_processed"`

	// Attendance is the number of attendance records reconstructed.
	Attendance int `json:"attendance"`

	// Music is the number of music plays extracted.
	Music int `json:"music"`

	// Inserted is the number of rows written to the store.
	Inserted int `json:"inserted"`
}

// Metadata provides context about the run.
type Metadata struct {
	RunID      string        `json:"run_id"`
	ConfigFile string        `json:"config_file"`
	Room       string        `json:"room"`
	DryRun     bool          `json:"dry_run"`
	AnalyzedAt time.Time     `json:"analyzed_at"`
	Duration   time.Duration `json:"duration"`
}

// NewReport creates a Report from a run.
func NewReport(run *ingest.RunResult, configFile, room string) *Report {
	report := &Report{
		Files: run.Files,
		Metadata: Metadata{
			RunID:      run.RunID,
			ConfigFile: configFile,
			Room:       room,
			DryRun:     run.DryRun,
			AnalyzedAt: run.EndTime,
			Duration:   run.EndTime.Sub(run.StartTime),
		},
	}

	for _, f := range run.Files {
		if f.Skipped || f.Result == nil {
			report.Summary.FilesSkipped++
			continue
		}
		report.Summary.FilesProcessed++
		report.Summary.LinesProcessed += f.Result.Stats.LinesProcessed
		report.Summary.Attendance += len(f.Result.Attendance)
		report.Summary.Music += len(f.Result.Music)
		report.Summary.Inserted += f.Saved.Inserted()
	}

	return report
}

// HasRecords returns true if any attendance or music record was produced.
func (r *Report) HasRecords() bool {
	return r.Summary.Attendance > 0 || r.Summary.Music > 0
}

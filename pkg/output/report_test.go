package output

import (
	"time"

	"github.com/pypydance/roomlog/pkg/analyzer"
	"github.com/pypydance/roomlog/pkg/ingest"
	"github.com/pypydance/roomlog/pkg/store"
)

var baseTime = time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)

func createTestRun(dryRun bool) *ingest.RunResult {
	return &ingest.RunResult{
		RunID:     "3f1c6b2e-0000-4000-8000-000000000001",
		DryRun:    dryRun,
		StartTime: baseTime,
		EndTime:   baseTime.Add(1500 * time.Millisecond),
		Files: []ingest.FileResult{
			{
				File:       "output_log_2025-01-01.txt",
				Path:       "/logs/output_log_2025-01-01.txt",
				FromLine:   0,
				TotalLines: 120,
				Result: &analyzer.Result{
					Attendance: []analyzer.AttendanceRecord{
						{
							Name:     "Alice",
							Start:    baseTime,
							End:      baseTime.Add(40 * time.Minute),
							Duration: 40 * time.Minute,
						},
					},
					Music: []analyzer.MusicPlayRecord{
						{
							Timestamp: baseTime.Add(15 * time.Minute),
							Title:     "Song A",
							User:      "Alice",
							URL:       "https://youtu.be/abc123",
						},
						{
							Timestamp: baseTime.Add(20 * time.Minute),
							Title:     "Song B",
							User:      "Alice",
							URL:       "https://youtu.be/def456",
						},
					},
					Ranges: []analyzer.SessionRange{{Start: 0, End: 119}},
					Stats: analyzer.Stats{
						LinesProcessed: 120,
						BelowThreshold: 1,
						Music:          analyzer.MusicStats{Duplicates: 2},
					},
				},
				Saved: store.SaveStats{AttendanceInserted: 1, MusicInserted: 1, MusicDuplicates: 1},
			},
			{
				File:       "output_log_2025-01-02.txt",
				Path:       "/logs/output_log_2025-01-02.txt",
				FromLine:   30,
				TotalLines: 30,
				Skipped:    true,
				SkipReason: ingest.SkipNoNewLines,
			},
		},
	}
}

func createTestReport() *Report {
	return NewReport(createTestRun(false), "config.yaml", "PyPyDance")
}

// Package analyzer reconstructs attendance sessions and music plays from
// classified log lines.
package analyzer

import (
	"time"
)

// SessionRange is an inclusive line-index interval bounded by a room-enter
// line and the next room-leave line.
type SessionRange struct {
	Start int `json:"start_index"`
	End   int `json:"end_index"`
}

// AttendanceRecord is one participant's presence within one session range.
type AttendanceRecord struct {
	Name     string        `json:"name"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
}

// MusicPlayRecord is one accepted video play.
type MusicPlayRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Title     string    `json:"title"`
	User      string    `json:"user"`
	URL       string    `json:"url"`
}

// Result is the output of one analysis pass.
type Result struct {
	// Attendance is ordered by start time.
	Attendance []AttendanceRecord `json:"attendance"`

	// Music is ordered by timestamp.
	Music []MusicPlayRecord `json:"music"`

	// Ranges are the complete sessions found, in line order.
	Ranges []SessionRange `json:"ranges"`

	// Stats provides execution statistics.
	Stats Stats `json:"stats"`
}

// HasRecords returns true if the pass produced any attendance or music record.
func (r *Result) HasRecords() bool {
	return len(r.Attendance) > 0 || len(r.Music) > 0
}

// Stats counts what a pass saw and discarded.
type Stats struct {
	// LinesProcessed is the number of lines examined.
	LinesProcessed int `json:"lines_processed"`

	// Events counts classified lines by kind name.
	Events map[string]int `json:"events"`

	// DanglingSessions is 1 when the pass ended inside an open session.
	DanglingSessions int `json:"dangling_sessions"`

	// BelowThreshold counts attendance records dropped by the minimum-minutes filter.
	BelowThreshold int `json:"below_threshold"`

	// Music holds music extraction counters.
	Music MusicStats `json:"music"`

	// StartTime is when the pass began.
	StartTime time.Time `json:"start_time"`

	// EndTime is when the pass completed.
	EndTime time.Time `json:"end_time"`
}

// MusicStats counts music events dropped at each stage.
type MusicStats struct {
	// NotConsented counts plays by users outside the allow-list.
	NotConsented int `json:"not_consented"`

	// Banned counts plays of banned songs.
	Banned int `json:"banned"`

	// Duplicates counts plays suppressed by the recent-play window.
	Duplicates int `json:"duplicates"`

	// Resolved counts plays whose title came from the title resolver.
	Resolved int `json:"resolved"`
}

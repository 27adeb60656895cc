package output

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pypydance/roomlog/pkg/ingest"
)

const clockLayout = "2006-01-02 15:04:05"

// TextFormatter formats reports as human-readable text.
type TextFormatter struct {
	opts FormatOptions
}

// NewTextFormatter creates a new text formatter with the given options.
func NewTextFormatter(opts FormatOptions) *TextFormatter {
	return &TextFormatter{opts: opts}
}

// Name returns the format name.
func (f *TextFormatter) Name() string {
	return "text"
}

// Format renders the report as text.
func (f *TextFormatter) Format(ctx context.Context, report *Report, w io.Writer) error {
	if f.opts.Quiet {
		return f.formatQuiet(report, w)
	}
	return f.formatFull(report, w)
}

func (f *TextFormatter) formatQuiet(report *Report, w io.Writer) error {
	_, err := fmt.Fprintf(w, "roomlog: %d file(s), %d attendance, %d music, %d inserted\n",
		report.Summary.FilesProcessed,
		report.Summary.Attendance,
		report.Summary.Music,
		report.Summary.Inserted)
	return err
}

func (f *TextFormatter) formatFull(report *Report, w io.Writer) error {
	title := "Ingest"
	if report.Metadata.DryRun {
		title = "Analysis"
	}
	fmt.Fprintf(w, "=== roomlog %s Report: %s ===\n", title, report.Metadata.Room)
	fmt.Fprintln(w)

	for i := range report.Files {
		f.formatFile(&report.Files[i], report.Metadata.DryRun, w)
	}

	fmt.Fprintln(w, "---")
	fmt.Fprintf(w, "Summary: %d file(s) processed, %d skipped, %d attendance, %d music",
		report.Summary.FilesProcessed,
		report.Summary.FilesSkipped,
		report.Summary.Attendance,
		report.Summary.Music)
	if !report.Metadata.DryRun {
		fmt.Fprintf(w, ", %d inserted", report.Summary.Inserted)
	}
	fmt.Fprintln(w)

	if f.opts.Verbose {
		fmt.Fprintf(w, "Lines processed: %d\n", report.Summary.LinesProcessed)
		fmt.Fprintf(w, "Run ID: %s\n", report.Metadata.RunID)
		_, err := fmt.Fprintf(w, "Duration: %s\n", report.Metadata.Duration.Round(time.Millisecond))
		return err
	}

	return nil
}

func (f *TextFormatter) formatFile(file *ingest.FileResult, dryRun bool, w io.Writer) {
	fmt.Fprintf(w, "[FILE] %s (lines %d-%d)\n", file.File, file.FromLine, file.TotalLines)

	if file.Skipped || file.Result == nil {
		fmt.Fprintf(w, "  Skipped: %s\n\n", file.SkipReason)
		return
	}

	res := file.Result
	fmt.Fprintf(w, "  Sessions: %d\n", len(res.Ranges))

	fmt.Fprintf(w, "  Attendance: %d record(s)\n", len(res.Attendance))
	for _, a := range res.Attendance {
		fmt.Fprintf(w, "  - %s: %s to %s (%s)\n",
			a.Name,
			a.Start.Format(clockLayout),
			a.End.Format(clockLayout),
			a.Duration)
	}

	fmt.Fprintf(w, "  Music: %d play(s)\n", len(res.Music))
	for _, m := range res.Music {
		fmt.Fprintf(w, "  - %s %q by %s\n", m.Timestamp.Format(clockLayout), m.Title, m.User)
		if f.opts.Verbose {
			fmt.Fprintf(w, "    URL: %s\n", m.URL)
		}
	}

	if f.opts.Verbose {
		st := res.Stats
		fmt.Fprintf(w, "  Dropped: %d below threshold, %d not consented, %d banned, %d duplicate\n",
			st.BelowThreshold, st.Music.NotConsented, st.Music.Banned, st.Music.Duplicates)
		if st.DanglingSessions > 0 {
			fmt.Fprintln(w, "  Open session at end of slice was not counted")
		}
	}

	if !dryRun {
		fmt.Fprintf(w, "  Saved: %d attendance, %d music (%d duplicate, %d unknown user)\n",
			file.Saved.AttendanceInserted,
			file.Saved.MusicInserted,
			file.Saved.AttendanceDuplicates+file.Saved.MusicDuplicates,
			file.Saved.AttendanceUnknownUser+file.Saved.MusicUnknownUser)
	}

	fmt.Fprintln(w)
}

// Package ingest drives incremental analysis of a directory of log files.
//
// Each file is resumed from the line count recorded by the previous run, so
// repeated runs against growing files only analyze appended lines.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pypydance/roomlog/internal/logging"
	"github.com/pypydance/roomlog/pkg/analyzer"
	"github.com/pypydance/roomlog/pkg/config"
	"github.com/pypydance/roomlog/pkg/metrics"
	"github.com/pypydance/roomlog/pkg/parser"
	"github.com/pypydance/roomlog/pkg/store"
)

// ReadError reports that a log file could not be read.
// The file's resumption marker is left unchanged.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading log file %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Skip reasons reported in FileResult.
const (
	SkipNoNewLines = "no new lines"
	SkipTruncated  = "file shorter than recorded progress"
)

// FileResult is the outcome of processing one file.
type FileResult struct {
	File       string           `json:"file"`
	Path       string           `json:"path"`
	FromLine   int              `json:"from_line"`
	TotalLines int              `json:"total_lines"`
	Skipped    bool             `json:"skipped"`
	SkipReason string           `json:"skip_reason,omitempty"`
	Result     *analyzer.Result `json:"result,omitempty"`
	Saved      store.SaveStats  `json:"saved"`
}

// RunResult is the outcome of one run over the log directory.
type RunResult struct {
	RunID     string       `json:"run_id"`
	DryRun    bool         `json:"dry_run"`
	Files     []FileResult `json:"files"`
	StartTime time.Time    `json:"start_time"`
	EndTime   time.Time    `json:"end_time"`
}

// HasRecords returns true if any file produced a record.
func (r *RunResult) HasRecords() bool {
	for _, f := range r.Files {
		if f.Result != nil && f.Result.HasRecords() {
			return true
		}
	}
	return false
}

// Runner processes log files against a store.
type Runner struct {
	cfg      *config.Config
	store    store.Store
	analyzer *analyzer.Analyzer
	metrics  *metrics.Metrics
	dryRun   bool
	fromLine int // -1 means resume from the stored marker
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithDryRun analyzes without writing records or progress.
func WithDryRun() Option {
	return func(r *Runner) {
		r.dryRun = true
	}
}

// WithFromLine starts every file at line n instead of its stored marker.
func WithFromLine(n int) Option {
	return func(r *Runner) {
		if n >= 0 {
			r.fromLine = n
		}
	}
}

// NewRunner creates a runner. st may be nil only for a dry run.
func NewRunner(cfg *config.Config, st store.Store, a *analyzer.Analyzer, opts ...Option) (*Runner, error) {
	r := &Runner{
		cfg:      cfg,
		store:    st,
		analyzer: a,
		fromLine: -1,
	}
	for _, opt := range opts {
		opt(r)
	}

	if cfg == nil || a == nil {
		return nil, errors.New("ingest: config and analyzer are required")
	}
	if st == nil && !r.dryRun {
		return nil, errors.New("ingest: a store is required unless dry run")
	}
	return r, nil
}

// Run processes every matching file in the log directory, oldest first.
// It stops at the first file that fails and returns the results so far.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	files, err := parser.ListLogFiles(r.cfg.LogDir, r.cfg.LogPrefix, r.cfg.LogSuffix)
	if err != nil {
		run := r.newRun()
		run.EndTime = run.StartTime
		return run, err
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}

	logging.Info().
		Str("dir", r.cfg.LogDir).
		Int("files", len(files)).
		Bool("dry_run", r.dryRun).
		Msg("Starting ingest run")

	return r.RunFiles(ctx, paths)
}

// RunFiles processes the given files in order, stopping at the first failure.
func (r *Runner) RunFiles(ctx context.Context, paths []string) (*RunResult, error) {
	run := r.newRun()
	defer func() {
		run.EndTime = time.Now()
		r.metrics.RunFinished()
	}()

	logging.Debug().Str("run_id", run.RunID).Int("files", len(paths)).Msg("Processing files")

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return run, err
		}

		res, err := r.ProcessFile(ctx, path)
		if err != nil {
			return run, err
		}
		run.Files = append(run.Files, res)
	}

	return run, nil
}

func (r *Runner) newRun() *RunResult {
	return &RunResult{
		RunID:     uuid.NewString(),
		DryRun:    r.dryRun,
		StartTime: time.Now(),
	}
}

// ProcessFile analyzes the lines of path appended since its marker,
// persists the records and advances the marker to the file's line count.
// On any error the marker is not advanced.
func (r *Runner) ProcessFile(ctx context.Context, path string) (FileResult, error) {
	name := filepath.Base(path)
	res := FileResult{File: name, Path: path}

	marker, err := r.marker(ctx, name)
	if err != nil {
		r.metrics.FileVisited("failed")
		return res, err
	}
	res.FromLine = marker

	lines, err := parser.ReadLines(ctx, path)
	if err != nil {
		r.metrics.FileVisited("failed")
		return res, &ReadError{Path: path, Err: err}
	}
	res.TotalLines = len(lines)

	switch {
	case marker > len(lines):
		logging.Warn().
			Str("file", name).
			Int("marker", marker).
			Int("lines", len(lines)).
			Msg("Log file is shorter than recorded progress, skipping")
		res.Skipped, res.SkipReason = true, SkipTruncated
		r.metrics.FileVisited("skipped")
		return res, nil
	case marker == len(lines):
		logging.Debug().Str("file", name).Msg("No new lines")
		res.Skipped, res.SkipReason = true, SkipNoNewLines
		r.metrics.FileVisited("skipped")
		return res, nil
	}

	result, err := r.analyzer.Analyze(ctx, lines[marker:])
	if err != nil {
		r.metrics.FileVisited("failed")
		return res, fmt.Errorf("analyzing %s: %w", name, err)
	}
	res.Result = result
	r.observe(result)

	if !r.dryRun {
		saved, err := r.store.SaveResults(ctx, result.Attendance, result.Music)
		if err != nil {
			r.metrics.FileVisited("failed")
			return res, fmt.Errorf("saving results for %s: %w", name, err)
		}
		res.Saved = saved

		if err := r.store.SaveProgress(ctx, name, len(lines)); err != nil {
			r.metrics.FileVisited("failed")
			return res, err
		}
	}

	r.metrics.FileVisited("processed")
	logging.Info().
		Str("file", name).
		Int("from_line", marker).
		Int("to_line", len(lines)).
		Int("attendance", len(result.Attendance)).
		Int("music", len(result.Music)).
		Int("inserted", res.Saved.Inserted()).
		Msg("Processed log file")

	return res, nil
}

func (r *Runner) marker(ctx context.Context, name string) (int, error) {
	if r.fromLine >= 0 {
		return r.fromLine, nil
	}
	if r.store == nil {
		return 0, nil
	}
	return r.store.LastProcessedLine(ctx, name)
}

func (r *Runner) observe(result *analyzer.Result) {
	if r.metrics == nil {
		return
	}
	r.metrics.AddLines(result.Stats.LinesProcessed)
	for kind, n := range result.Stats.Events {
		r.metrics.AddEvents(kind, n)
	}
	r.metrics.AddRecords("attendance", len(result.Attendance))
	r.metrics.AddRecords("music", len(result.Music))
	r.metrics.AddDropped("below_threshold", result.Stats.BelowThreshold)
	r.metrics.AddDropped("not_consented", result.Stats.Music.NotConsented)
	r.metrics.AddDropped("banned", result.Stats.Music.Banned)
	r.metrics.AddDropped("duplicate", result.Stats.Music.Duplicates)
}

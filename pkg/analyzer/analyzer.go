package analyzer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pypydance/roomlog/pkg/config"
	"github.com/pypydance/roomlog/pkg/parser"
)

// Analyzer reconstructs attendance and music records for one room.
//
// Each call to Analyze is independent: sessions, join/left pairs and the
// recent-play window are never carried from one call to the next.
type Analyzer struct {
	classifier *parser.Classifier
	minimum    time.Duration
	consent    map[string]struct{}
	banned     map[string]struct{}
	titles     TitleResolver
}

// AnalyzerOption configures analyzer behavior.
type AnalyzerOption func(*Analyzer)

// WithTitleResolver resolves video identifiers to titles.
// Without one, plays keep their metadata title.
func WithTitleResolver(r TitleResolver) AnalyzerOption {
	return func(a *Analyzer) {
		a.titles = r
	}
}

// WithConsent adds names to the allow-list.
func WithConsent(names []string) AnalyzerOption {
	return func(a *Analyzer) {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				a.consent[n] = struct{}{}
			}
		}
	}
}

// WithBannedSongs adds titles or video identifiers whose plays are dropped.
// Matching is case-insensitive.
func WithBannedSongs(songs []string) AnalyzerOption {
	return func(a *Analyzer) {
		for _, s := range songs {
			if s = strings.TrimSpace(s); s != "" {
				a.banned[strings.ToLower(s)] = struct{}{}
			}
		}
	}
}

// NewAnalyzer creates an analyzer from configuration.
// The configured consent names and banned songs are applied before opts.
func NewAnalyzer(cfg *config.Config, opts ...AnalyzerOption) (*Analyzer, error) {
	if cfg == nil {
		return nil, errors.New("analyzer: nil config")
	}
	if strings.TrimSpace(cfg.RoomName) == "" {
		return nil, errors.New("analyzer: room name is required")
	}

	a := &Analyzer{
		classifier: parser.NewClassifier(cfg.RoomName, cfg.Location()),
		minimum:    cfg.MinDuration(),
		consent:    make(map[string]struct{}),
		banned:     make(map[string]struct{}),
	}

	WithConsent(cfg.Consent.Names)(a)
	WithBannedSongs(cfg.BannedSongs)(a)

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Room returns the room this analyzer is scoped to.
func (a *Analyzer) Room() string {
	return a.classifier.Room()
}

// Analyze runs one pass over lines. Callers resuming a file pass only the
// lines appended since the previous pass.
//
// Malformed lines are skipped; the only error is cancellation of ctx.
func (a *Analyzer) Analyze(ctx context.Context, lines []string) (*Result, error) {
	result := &Result{
		Stats: Stats{
			LinesProcessed: len(lines),
			Events:         make(map[string]int),
			StartTime:      time.Now(),
		},
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events := a.classifier.ClassifyAll(lines)
	for _, ev := range events {
		if ev.IsEvent() {
			result.Stats.Events[ev.Kind.String()]++
		}
	}

	seg := NewSegmenter()
	for _, ev := range events {
		seg.Process(ev)
	}
	result.Ranges = seg.Ranges()
	if seg.Dangling() {
		result.Stats.DanglingSessions = 1
	}

	result.Attendance, result.Stats.BelowThreshold = ReconstructAttendance(events, result.Ranges, a.minimum, a.consent)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	music := NewMusicExtractor(a.consent, a.banned, a.titles)
	result.Music, result.Stats.Music = music.Extract(ctx, events)

	result.Stats.EndTime = time.Now()

	return result, nil
}

// Package detector finds the rooms a session log visits, so a config can be
// scoped to one of them.
package detector

import (
	"bufio"
	"context"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pypydance/roomlog/pkg/parser"
)

var (
	enterPattern = regexp.MustCompile(`Entering Room: (.+)$`)
	videoPattern = regexp.MustCompile(`\[VRCX\] VideoPlay\(([^)]+)\)`)
	joinPattern  = regexp.MustCompile(`OnPlayerJoinComplete (.+)$`)
)

// DetectionResult holds the result of scanning a log file.
type DetectionResult struct {
	Rooms            []RoomMatch // Rooms seen, most visited first
	SampledLines     int         // Number of lines scanned
	TimestampedLines int         // Lines starting with a client timestamp
}

// RoomMatch summarizes one room seen in a log.
type RoomMatch struct {
	Name       string    `json:"name"`
	Enters     int       `json:"enters"`
	VideoPlays int       `json:"video_plays"`
	Players    int       `json:"players"` // Distinct players joining while in the room
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	SampleLine string    `json:"sample_line"`
}

// Detector scans log files for room activity.
type Detector struct {
	sampleSize int
	loc        *time.Location
}

// Option configures the Detector.
type Option func(*Detector)

// WithSampleSize limits the number of lines scanned (default: whole file).
func WithSampleSize(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.sampleSize = n
		}
	}
}

// WithLocation sets the zone timestamps are read in (default local).
func WithLocation(loc *time.Location) Option {
	return func(d *Detector) {
		if loc != nil {
			d.loc = loc
		}
	}
}

// New creates a new Detector.
func New(opts ...Option) *Detector {
	d := &Detector{loc: time.Local}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectFromFile scans a log file and returns the rooms found.
func (d *Detector) DetectFromFile(ctx context.Context, path string) (*DetectionResult, error) {
	lines, err := d.sampleFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return d.DetectFromLines(lines), nil
}

// DetectFromLines scans a slice of log lines.
func (d *Detector) DetectFromLines(lines []string) *DetectionResult {
	result := &DetectionResult{SampledLines: len(lines)}
	ts := parser.NewTimestampParser(d.loc)

	type roomStats struct {
		match   RoomMatch
		players map[string]struct{}
	}
	stats := make(map[string]*roomStats)
	get := func(name string) *roomStats {
		s := stats[name]
		if s == nil {
			s = &roomStats{match: RoomMatch{Name: name}, players: make(map[string]struct{})}
			stats[name] = s
		}
		return s
	}

	current := ""
	for _, line := range lines {
		when, err := ts.Leading(line)
		if err != nil {
			continue
		}
		result.TimestampedLines++

		var s *roomStats
		switch {
		case strings.Contains(line, "[VRCX] VideoPlay("):
			m := videoPattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			s = get(m[1])
			s.match.VideoPlays++
		case strings.Contains(line, "Entering Room: "):
			m := enterPattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			current = strings.TrimSpace(m[1])
			s = get(current)
			s.match.Enters++
			if s.match.SampleLine == "" {
				s.match.SampleLine = line
			}
		case current != "" && strings.Contains(line, "OnPlayerJoinComplete "):
			m := joinPattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			s = get(current)
			s.players[strings.TrimSpace(m[1])] = struct{}{}
		default:
			continue
		}

		if s.match.FirstSeen.IsZero() || when.Before(s.match.FirstSeen) {
			s.match.FirstSeen = when
		}
		if when.After(s.match.LastSeen) {
			s.match.LastSeen = when
		}
	}

	for _, s := range stats {
		s.match.Players = len(s.players)
		result.Rooms = append(result.Rooms, s.match)
	}

	// Most entered first, then most played, then by name
	sort.Slice(result.Rooms, func(i, j int) bool {
		a, b := result.Rooms[i], result.Rooms[j]
		if a.Enters != b.Enters {
			return a.Enters > b.Enters
		}
		if a.VideoPlays != b.VideoPlays {
			return a.VideoPlays > b.VideoPlays
		}
		return a.Name < b.Name
	})

	return result
}

// sampleFile reads up to sampleSize lines from a file, or all of it.
func (d *Detector) sampleFile(ctx context.Context, path string) ([]string, error) {
	if d.sampleSize == 0 {
		return parser.ReadLines(ctx, path)
	}

	// #nosec G304 - path is provided by user via CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() && len(lines) < d.sampleSize {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

// BestMatch returns the most visited room, or nil if none was found.
func (r *DetectionResult) BestMatch() *RoomMatch {
	if len(r.Rooms) == 0 {
		return nil
	}
	return &r.Rooms[0]
}

// HasMatch returns true if at least one room was found.
func (r *DetectionResult) HasMatch() bool {
	return len(r.Rooms) > 0
}

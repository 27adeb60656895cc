package parser

import (
	"fmt"
	"time"
)

// TimestampLayout is the Go layout of the leading log timestamp.
const TimestampLayout = "2006.01.02 15:04:05"

// TimestampWidth is the fixed width of the leading log timestamp.
const TimestampWidth = len(TimestampLayout)

// TimestampParser parses log timestamps in a fixed location.
type TimestampParser struct {
	loc *time.Location
}

// NewTimestampParser creates a parser for the given location.
// A nil location means UTC.
func NewTimestampParser(loc *time.Location) *TimestampParser {
	if loc == nil {
		loc = time.UTC
	}
	return &TimestampParser{loc: loc}
}

// Parse parses a captured timestamp string.
func (p *TimestampParser) Parse(ts string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, ts, p.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", ts, err)
	}
	return t, nil
}

// Leading parses the timestamp at the start of a line.
// Returns an error if the line is shorter than the timestamp or does not start with one.
func (p *TimestampParser) Leading(line string) (time.Time, error) {
	if len(line) < TimestampWidth {
		return time.Time{}, fmt.Errorf("line too short for timestamp")
	}
	return p.Parse(line[:TimestampWidth])
}

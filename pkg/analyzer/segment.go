package analyzer

import (
	"github.com/pypydance/roomlog/pkg/parser"
)

// Segmenter finds complete room sessions in a stream of events.
//
// Only one session is open at a time: a room-enter while a session is open
// is ignored, and a room-leave with no open session is ignored.
type Segmenter struct {
	open   int // index of the open room-enter line, -1 when none
	ranges []SessionRange
}

// NewSegmenter creates a segmenter with no open session.
func NewSegmenter() *Segmenter {
	return &Segmenter{open: -1}
}

// Process handles one event.
func (s *Segmenter) Process(ev parser.Event) {
	switch ev.Kind {
	case parser.KindRoomEnter:
		if s.open < 0 {
			s.open = ev.Index
		}
	case parser.KindRoomLeave:
		if s.open >= 0 {
			s.ranges = append(s.ranges, SessionRange{Start: s.open, End: ev.Index})
			s.open = -1
		}
	}
}

// Ranges returns the sessions closed so far.
func (s *Segmenter) Ranges() []SessionRange {
	return s.ranges
}

// Dangling returns true if a session is still open.
// A dangling session produces no range.
func (s *Segmenter) Dangling() bool {
	return s.open >= 0
}

// Segment returns the complete sessions in events, in line order.
func Segment(events []parser.Event) []SessionRange {
	s := NewSegmenter()
	for _, ev := range events {
		s.Process(ev)
	}
	return s.Ranges()
}

package parser

import (
	"regexp"
	"strings"
	"time"
)

const timestampPattern = `(\d{4}\.\d{2}\.\d{2} \d{2}:\d{2}:\d{2})`

// Literal markers written by the client.
const (
	markerEnterRoom   = "Entering Room: "
	markerLeftRoom    = "Successfully left room"
	markerHandleClose = "Safe handle has been closed"
	markerJoin        = "OnPlayerJoinComplete "
	markerLeft        = "OnPlayerLeft "
	markerVideoPlay   = "[VRCX] VideoPlay("
)

var (
	leavePattern = regexp.MustCompile(timestampPattern + ` .*?(?:` +
		regexp.QuoteMeta(markerLeftRoom) + `|` + regexp.QuoteMeta(markerHandleClose) + `)`)
	joinPattern = regexp.MustCompile(timestampPattern + ` .*?` + regexp.QuoteMeta(markerJoin) + `(.+)`)

	// The left capture stops at '(' while the join capture does not, so a
	// name containing parentheses is truncated on left lines only.
	leftPattern = regexp.MustCompile(timestampPattern + ` .*?` + regexp.QuoteMeta(markerLeft) + `([^(]+)`)
)

// Classifier turns raw log lines into events for one room.
// A Classifier is immutable and safe for concurrent use.
type Classifier struct {
	room       string
	enterRoom  *regexp.Regexp
	videoPlay  *regexp.Regexp
	timestamps *TimestampParser
}

// NewClassifier creates a classifier scoped to the given room name.
// Timestamps are interpreted in loc (UTC when nil).
func NewClassifier(room string, loc *time.Location) *Classifier {
	quoted := regexp.QuoteMeta(room)
	return &Classifier{
		room:      room,
		enterRoom: regexp.MustCompile(timestampPattern + ` .*?` + regexp.QuoteMeta(markerEnterRoom) + quoted),
		videoPlay: regexp.MustCompile(timestampPattern + ` .*?` + regexp.QuoteMeta(markerVideoPlay) +
			quoted + `\) "([^"]+)",.*?,"([^"]+)"`),
		timestamps: NewTimestampParser(loc),
	}
}

// Room returns the room name this classifier is scoped to.
func (c *Classifier) Room() string {
	return c.room
}

// Classify classifies a single line.
//
// A line is tested against each pattern at most once, in the order video
// play, room enter, room leave, player join, player left; the first match
// wins. Video play is tested first because its metadata is free text chosen
// by players and must not drive segmentation.
// A matching line whose timestamp does not parse is KindNone.
func (c *Classifier) Classify(index int, line string) Event {
	ev := Event{Index: index}

	// Cheap substring checks keep the regex engine off the common path.
	switch {
	case strings.Contains(line, markerVideoPlay) && c.match(&ev, c.videoPlay, line, KindVideoPlay):
	case strings.Contains(line, markerEnterRoom) && c.match(&ev, c.enterRoom, line, KindRoomEnter):
	case (strings.Contains(line, markerLeftRoom) || strings.Contains(line, markerHandleClose)) &&
		c.match(&ev, leavePattern, line, KindRoomLeave):
	case strings.Contains(line, markerJoin) && c.match(&ev, joinPattern, line, KindPlayerJoin):
	case strings.Contains(line, markerLeft) && c.match(&ev, leftPattern, line, KindPlayerLeft):
	}

	return ev
}

// ClassifyAll classifies every line; the result has one event per line.
func (c *Classifier) ClassifyAll(lines []string) []Event {
	events := make([]Event, len(lines))
	for i, line := range lines {
		events[i] = c.Classify(i, line)
	}
	return events
}

func (c *Classifier) match(ev *Event, re *regexp.Regexp, line string, kind Kind) bool {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	ts, err := c.timestamps.Parse(m[1])
	if err != nil {
		// Shaped like a timestamp but not a real date, e.g. month 13.
		return false
	}

	ev.Kind = kind
	ev.Timestamp = ts

	switch kind {
	case KindPlayerJoin, KindPlayerLeft:
		ev.Name = strings.TrimSpace(m[2])
	case KindVideoPlay:
		ev.URL = m[2]
		ev.Meta = m[3]
	}
	return true
}

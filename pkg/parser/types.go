// Package parser provides log file reading and line classification.
package parser

import "time"

// Kind identifies what a log line means to the reconstruction engine.
type Kind int

const (
	// KindNone is a line that matched no pattern.
	KindNone Kind = iota
	// KindRoomEnter marks the local player entering the configured room.
	KindRoomEnter
	// KindRoomLeave marks the local player leaving a room or the connection closing.
	KindRoomLeave
	// KindPlayerJoin marks a player finishing their join.
	KindPlayerJoin
	// KindPlayerLeft marks a player leaving.
	KindPlayerLeft
	// KindVideoPlay marks a video starting on the room's player.
	KindVideoPlay
)

// String returns the kind name used in logs and reports.
func (k Kind) String() string {
	switch k {
	case KindRoomEnter:
		return "room_enter"
	case KindRoomLeave:
		return "room_leave"
	case KindPlayerJoin:
		return "player_join"
	case KindPlayerLeft:
		return "player_left"
	case KindVideoPlay:
		return "video_play"
	default:
		return "none"
	}
}

// Event is a classified log line.
type Event struct {
	// Kind is the line classification.
	Kind Kind

	// Index is the 0-based position of the line in the slice it came from.
	Index int

	// Timestamp is the timestamp captured from the line (zero for KindNone).
	Timestamp time.Time

	// Name is the player name for join and left lines.
	Name string

	// URL is the video URL for video play lines.
	URL string

	// Meta is the trailing metadata field for video play lines.
	Meta string
}

// IsEvent returns true if the line matched one of the patterns.
func (e Event) IsEvent() bool {
	return e.Kind != KindNone
}

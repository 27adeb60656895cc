package analyzer

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/pypydance/roomlog/pkg/parser"
)

// UnknownUser is the user of a play whose metadata names nobody.
const UnknownUser = "Unknown"

var videoIDPattern = regexp.MustCompile(`(?:v=|be/)([\w\-]+)`)

// ParseVideoMeta splits the trailing metadata of a video play line into a
// title and the requesting user.
//
// "Queue : Title (user)" yields the text between the first " : " and the last
// "(" as title. "Title (user)" splits on the last "(". Anything else is all
// title with user Unknown.
func ParseVideoMeta(meta string) (title, user string) {
	title, user = meta, UnknownUser

	if i := strings.Index(meta, " : "); i >= 0 && strings.Contains(meta[i+3:], "(") {
		rest := meta[i+3:]
		j := strings.LastIndex(rest, "(")
		title, user = rest[:j], rest[j+1:]
	} else if j := strings.LastIndex(meta, "("); j >= 0 {
		title, user = meta[:j], meta[j+1:]
	}

	return strings.TrimSpace(title), strings.Trim(user, ")")
}

// VideoID extracts the video identifier from a YouTube URL.
// Returns false for other hosts or when no identifier is present.
func VideoID(url string) (string, bool) {
	if !strings.Contains(url, "youtu.be") && !strings.Contains(url, "youtube.com") {
		return "", false
	}
	m := videoIDPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// MusicExtractor turns video play events into music records.
type MusicExtractor struct {
	consent map[string]struct{}
	banned  map[string]struct{}
	titles  TitleResolver
	window  int
}

// NewMusicExtractor creates an extractor. titles may be nil, in which case
// no identifier is ever resolved.
func NewMusicExtractor(consent, banned map[string]struct{}, titles TitleResolver) *MusicExtractor {
	return &MusicExtractor{
		consent: consent,
		banned:  banned,
		titles:  titles,
		window:  DedupWindowSize,
	}
}

// Extract scans every event, not only those inside sessions, and returns
// the accepted plays ordered by timestamp.
//
// A play is suppressed when its (title, user) pair matches any of the last
// DedupWindowSize accepted plays. Suppressed plays do not enter the window.
func (m *MusicExtractor) Extract(ctx context.Context, events []parser.Event) ([]MusicPlayRecord, MusicStats) {
	var stats MusicStats
	recent := newRecentWindow(m.window)
	var records []MusicPlayRecord

	for _, ev := range events {
		if ev.Kind != parser.KindVideoPlay {
			continue
		}

		title, user := ParseVideoMeta(ev.Meta)

		if !allowed(m.consent, user) {
			stats.NotConsented++
			continue
		}

		videoID, isVideo := VideoID(ev.URL)
		if isVideo {
			resolvedTitle, ok := m.resolve(ctx, videoID)
			switch {
			case ok:
				title = resolvedTitle
				stats.Resolved++
			case title == "":
				title = videoID
			}
		}

		if m.isBanned(title, videoID) {
			stats.Banned++
			continue
		}

		key := songKey{title: title, user: user}
		if recent.Contains(key) {
			stats.Duplicates++
			continue
		}
		recent.Push(key)

		records = append(records, MusicPlayRecord{
			Timestamp: ev.Timestamp,
			Title:     title,
			User:      user,
			URL:       ev.URL,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	return records, stats
}

func (m *MusicExtractor) resolve(ctx context.Context, videoID string) (string, bool) {
	if m.titles == nil {
		return videoID, false
	}
	return m.titles.Resolve(ctx, videoID)
}

func (m *MusicExtractor) isBanned(title, videoID string) bool {
	if len(m.banned) == 0 {
		return false
	}
	if _, ok := m.banned[strings.ToLower(title)]; ok {
		return true
	}
	if videoID != "" {
		if _, ok := m.banned[strings.ToLower(videoID)]; ok {
			return true
		}
	}
	return false
}

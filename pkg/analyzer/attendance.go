package analyzer

import (
	"sort"
	"time"

	"github.com/pypydance/roomlog/pkg/parser"
)

// ReconstructRange pairs join and left events by name within one session.
//
// The first join for a name wins and the last left wins. A name with no left
// line ends at the range's room-leave timestamp. Left lines without a join are
// ignored. Names outside a non-empty consent set are skipped, and records
// with a non-positive duration are dropped. Records are returned in
// first-join order.
func ReconstructRange(events []parser.Event, r SessionRange, consent map[string]struct{}) []AttendanceRecord {
	if r.Start < 0 || r.End >= len(events) || r.Start > r.End {
		return nil
	}

	rangeEnd := events[r.End].Timestamp

	joins := make(map[string]time.Time)
	lefts := make(map[string]time.Time)
	var order []string

	for i := r.Start; i <= r.End; i++ {
		ev := events[i]
		switch ev.Kind {
		case parser.KindPlayerJoin:
			if _, seen := joins[ev.Name]; !seen {
				joins[ev.Name] = ev.Timestamp
				order = append(order, ev.Name)
			}
		case parser.KindPlayerLeft:
			lefts[ev.Name] = ev.Timestamp
		}
	}

	var records []AttendanceRecord
	for _, name := range order {
		if !allowed(consent, name) {
			continue
		}
		start := joins[name]
		end, ok := lefts[name]
		if !ok {
			end = rangeEnd
		}
		duration := end.Sub(start)
		if duration <= 0 {
			continue
		}
		records = append(records, AttendanceRecord{
			Name:     name,
			Start:    start,
			End:      end,
			Duration: duration,
		})
	}

	return records
}

// FilterByTotal keeps every record of a name whose summed duration reaches
// minimum, and drops every record of the other names.
// Returns the kept records and the number dropped.
func FilterByTotal(records []AttendanceRecord, minimum time.Duration) ([]AttendanceRecord, int) {
	totals := make(map[string]time.Duration)
	for _, rec := range records {
		totals[rec.Name] += rec.Duration
	}

	kept := make([]AttendanceRecord, 0, len(records))
	for _, rec := range records {
		if totals[rec.Name] >= minimum {
			kept = append(kept, rec)
		}
	}
	return kept, len(records) - len(kept)
}

// ReconstructAttendance runs ReconstructRange over every range, applies the
// name-global minimum and orders the result by start time.
// Returns the records and the number dropped by the minimum.
func ReconstructAttendance(events []parser.Event, ranges []SessionRange, minimum time.Duration, consent map[string]struct{}) ([]AttendanceRecord, int) {
	var all []AttendanceRecord
	for _, r := range ranges {
		all = append(all, ReconstructRange(events, r, consent)...)
	}

	kept, dropped := FilterByTotal(all, minimum)
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Start.Before(kept[j].Start)
	})
	return kept, dropped
}

// allowed reports whether name passes the consent set.
// An empty set allows everyone.
func allowed(consent map[string]struct{}, name string) bool {
	if len(consent) == 0 {
		return true
	}
	_, ok := consent[name]
	return ok
}

package wikistream

import (
	"fmt"
	"sort"
	"time"
)

// DefaultLeaderboardSize is the number of editors returned by leaderboard
// queries when the caller does not request a specific size.
const DefaultLeaderboardSize = 5

const dayLayout = "2006-01-02"

// Day is one time-zone-naive calendar day, represented as midnight UTC.
//
// All day derivation in the system uses UTC as the single fixed reference so
// that writers and readers agree on record identity.
type Day struct {
	t time.Time
}

// DayOf floors a unix-seconds timestamp to its UTC calendar day.
func DayOf(timestampUnix int64) Day {
	at := time.Unix(timestampUnix, 0).UTC()

	return Day{t: time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDay validates and parses a caller-supplied YYYY-MM-DD date string.
func ParseDay(raw string) (Day, error) {
	parsed, err := time.Parse(dayLayout, raw)
	if err != nil {
		return Day{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}

	return Day{t: time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)}, nil
}

// Time returns the midnight-UTC instant identifying this day.
func (d Day) Time() time.Time {
	return d.t
}

// String formats the day as YYYY-MM-DD.
func (d Day) String() string {
	return d.t.Format(dayLayout)
}

// Before reports whether this day is strictly earlier than the given instant.
func (d Day) Before(at time.Time) bool {
	return d.t.Before(at)
}

// EditorStat is one editor's contribution inside a daily record.
type EditorStat struct {
	// DisplayName is the editor name as supplied by the upstream event,
	// unmodified by storage-key escaping.
	DisplayName string
	// ChangeCount is the number of changes attributed to the editor that day.
	ChangeCount int64
}

// DailyStats is the aggregate record for one (language, day) pair.
//
// Invariant: ChangeCount always equals the sum of all TopEditors change
// counts, because both are incremented atomically in the same store upsert.
type DailyStats struct {
	// Lang is the language edition the record belongs to.
	Lang LanguageKey
	// Date is the UTC calendar day the record covers.
	Date Day
	// ChangeCount is the total number of changes recorded for the day.
	ChangeCount int64
	// TopEditors maps editor identity to per-editor contribution.
	TopEditors map[string]EditorStat
}

// LeaderboardEntry pairs an editor identity with its daily contribution for
// sorted presentation.
type LeaderboardEntry struct {
	Editor string
	Stat   EditorStat
}

// Leaderboard returns up to size editors ordered by change count descending.
//
// A non-positive size falls back to DefaultLeaderboardSize. Ties keep a
// stable editor-name order so repeated queries over the same record agree.
func (s DailyStats) Leaderboard(size int) []LeaderboardEntry {
	if size <= 0 {
		size = DefaultLeaderboardSize
	}

	entries := make([]LeaderboardEntry, 0, len(s.TopEditors))
	for editor, stat := range s.TopEditors {
		entries = append(entries, LeaderboardEntry{Editor: editor, Stat: stat})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Stat.ChangeCount != entries[j].Stat.ChangeCount {
			return entries[i].Stat.ChangeCount > entries[j].Stat.ChangeCount
		}
		return entries[i].Editor < entries[j].Editor
	})

	if len(entries) > size {
		entries = entries[:size]
	}

	return entries
}

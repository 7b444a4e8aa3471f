package adherence

import (
	"sort"
	"time"

	"github.com/careoclock/server/internal/store"
)

// GapPolicy controls how days with no intake records affect a streak
type GapPolicy int

const (
	// SkipEmptyDays ignores days without records: the streak continues
	// across them as long as every recorded day is fully adherent.
	SkipEmptyDays GapPolicy = iota
	// BreakOnGaps requires consecutive calendar days: a day with no
	// records breaks the streak.
	BreakOnGaps
)

// Streak summarizes consecutive fully-adherent days
type Streak struct {
	Current int `json:"current_streak"`
	Longest int `json:"longest_streak"`
}

type dayTally struct {
	taken int
	total int
}

// ComputeStreak derives current and longest streaks from intake records.
// A day counts toward a streak only when every dose recorded that day is
// taken; pending, missed, and skipped doses all spoil the day.
func ComputeStreak(records []store.IntakeRecord, policy GapPolicy) Streak {
	byDate := make(map[string]*dayTally)
	for i := range records {
		key := records[i].DateString()
		t := byDate[key]
		if t == nil {
			t = &dayTally{}
			byDate[key] = t
		}
		t.total++
		if records[i].Status == store.IntakeTaken {
			t.taken++
		}
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	// The current streak is the leading run from the most recent tracked
	// day; once broken it stays frozen while the walk continues looking
	// for the longest run.
	var current, longest, temp int
	leading := true
	for i, date := range dates {
		if policy == BreakOnGaps && i > 0 && !adjacentDays(dates[i-1], date) {
			temp = 0
			leading = false
		}

		t := byDate[date]
		if t.total > 0 && t.taken == t.total {
			temp++
			if leading {
				current = temp
			}
			if temp > longest {
				longest = temp
			}
		} else {
			temp = 0
			leading = false
		}
	}

	return Streak{Current: current, Longest: longest}
}

// adjacentDays reports whether newer is exactly one calendar day after older,
// given dates in YYYY-MM-DD form with newer > older.
func adjacentDays(newer, older string) bool {
	n, err1 := time.Parse("2006-01-02", newer)
	o, err2 := time.Parse("2006-01-02", older)
	if err1 != nil || err2 != nil {
		return false
	}
	return n.Sub(o) == 24*time.Hour
}

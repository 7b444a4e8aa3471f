// Package adherence derives medication-adherence statistics from intake
// records. All computations are pure functions over record slices so the
// same inputs always produce the same report.
package adherence

import (
	"sort"

	"github.com/careoclock/server/internal/store"
)

// Summary aggregates intake outcomes over a window
type Summary struct {
	TotalDoses    int     `json:"total_doses"`
	Taken         int     `json:"taken"`
	Missed        int     `json:"missed"`
	Skipped       int     `json:"skipped"`
	Pending       int     `json:"pending"`
	AdherenceRate float64 `json:"adherence_rate"` // percent, 0-100
}

// DailyBreakdown is one calendar day's adherence
type DailyBreakdown struct {
	Date          string  `json:"date"` // YYYY-MM-DD
	Total         int     `json:"total"`
	Taken         int     `json:"taken"`
	AdherenceRate float64 `json:"adherence_rate"`
}

// Report is the full adherence picture for a window of records
type Report struct {
	Summary
	Streak
	Daily []DailyBreakdown `json:"daily"`
}

// Compute tallies a window of intake records into a summary. The rate is
// the exact percentage of taken doses over all doses; an empty window
// yields a zero rate rather than a division error. Rounding, if wanted,
// happens at the presentation edge.
func Compute(records []store.IntakeRecord) Summary {
	var s Summary
	for i := range records {
		s.TotalDoses++
		switch records[i].Status {
		case store.IntakeTaken:
			s.Taken++
		case store.IntakeMissed:
			s.Missed++
		case store.IntakeSkipped:
			s.Skipped++
		default:
			s.Pending++
		}
	}
	s.AdherenceRate = rate(s.Taken, s.TotalDoses)
	return s
}

// ComputeDaily groups records by calendar day, oldest first
func ComputeDaily(records []store.IntakeRecord) []DailyBreakdown {
	type tally struct{ taken, total int }
	byDate := make(map[string]*tally)
	for i := range records {
		key := records[i].DateString()
		t := byDate[key]
		if t == nil {
			t = &tally{}
			byDate[key] = t
		}
		t.total++
		if records[i].Status == store.IntakeTaken {
			t.taken++
		}
	}

	days := make([]DailyBreakdown, 0, len(byDate))
	for date, t := range byDate {
		days = append(days, DailyBreakdown{
			Date:          date,
			Total:         t.total,
			Taken:         t.taken,
			AdherenceRate: rate(t.taken, t.total),
		})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}

// BuildReport combines the summary, streaks, and daily breakdown
func BuildReport(records []store.IntakeRecord, policy GapPolicy) Report {
	return Report{
		Summary: Compute(records),
		Streak:  ComputeStreak(records, policy),
		Daily:   ComputeDaily(records),
	}
}

func rate(taken, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(taken) / float64(total) * 100
}

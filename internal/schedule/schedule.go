// Package schedule builds a patient's dose schedule for a day by crossing
// active prescriptions with their reminder times and joining the day's
// intake records.
package schedule

import (
	"sort"
	"time"

	"github.com/careoclock/server/internal/store"
)

// Reminder times assumed when a prescription has none configured
var defaultReminderTimes = []string{"09:00", "21:00"}

// Entry is one expected dose slot on the schedule
type Entry struct {
	MedicineID    string `json:"medicine_id"`
	MedicineName  string `json:"medicine_name"`
	Dosage        string `json:"dosage"`
	ScheduledTime string `json:"scheduled_time"`
	Status        string `json:"status"`
	IntakeID      string `json:"intake_id,omitempty"`
	LowStock      bool   `json:"low_stock,omitempty"`
}

// Builder assembles day schedules from the store
type Builder struct {
	store *store.Store
}

func NewBuilder(st *store.Store) *Builder {
	return &Builder{store: st}
}

// ForDay returns the schedule for one calendar day, ordered by time then
// medicine name. Slots without a logged intake appear as pending.
func (b *Builder) ForDay(userID string, day time.Time) ([]Entry, error) {
	medicines, err := b.store.ListActiveMedicines(userID)
	if err != nil {
		return nil, err
	}

	intakes, err := b.store.GetIntakesForDay(userID, day)
	if err != nil {
		return nil, err
	}

	type slot struct{ medicineID, schedTime string }
	logged := make(map[slot]*store.IntakeRecord, len(intakes))
	for i := range intakes {
		logged[slot{intakes[i].MedicineID, intakes[i].ScheduledTime}] = &intakes[i]
	}

	entries := []Entry{}
	for i := range medicines {
		med := &medicines[i]
		times := med.ReminderTimes
		if len(times) == 0 {
			times = defaultReminderTimes
		}
		for _, at := range times {
			entry := Entry{
				MedicineID:    med.ID,
				MedicineName:  med.Name,
				Dosage:        med.Dosage,
				ScheduledTime: at,
				Status:        store.IntakePending,
				LowStock:      med.IsLowStock(),
			}
			if rec := logged[slot{med.ID, at}]; rec != nil {
				entry.Status = rec.Status
				entry.IntakeID = rec.ID
			}
			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ScheduledTime != entries[j].ScheduledTime {
			return entries[i].ScheduledTime < entries[j].ScheduledTime
		}
		return entries[i].MedicineName < entries[j].MedicineName
	})
	return entries, nil
}

// ForToday is ForDay for the current date
func (b *Builder) ForToday(userID string) ([]Entry, error) {
	return b.ForDay(userID, time.Now())
}

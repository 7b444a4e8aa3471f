package store

import (
	"time"

	"gorm.io/gorm"
)

// MissedCount is the number of missed doses of one medicine in a window
type MissedCount struct {
	MedicineID string
	Count      int64
}

// UpsertIntake records or updates the intake for a (user, medicine, date,
// scheduled time) tuple. A later log for the same slot replaces the earlier
// status instead of creating a second record.
func (s *Store) UpsertIntake(rec *IntakeRecord) (*IntakeRecord, error) {
	day := truncateToDay(rec.Date)

	var existing IntakeRecord
	err := s.db.Where(
		"user_id = ? AND medicine_id = ? AND date = ? AND scheduled_time = ?",
		rec.UserID, rec.MedicineID, day, rec.ScheduledTime,
	).First(&existing).Error

	if err == gorm.ErrRecordNotFound {
		rec.ID = generateID("int")
		rec.Date = day
		rec.CreatedAt = time.Now()
		rec.UpdatedAt = time.Now()
		if err := s.db.Create(rec).Error; err != nil {
			return nil, err
		}
		return rec, nil
	}
	if err != nil {
		return nil, err
	}

	existing.Status = rec.Status
	existing.ActualTime = rec.ActualTime
	if rec.Notes != "" {
		existing.Notes = rec.Notes
	}
	existing.UpdatedAt = time.Now()
	if err := s.db.Save(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

// GetRecentIntakes returns a user's newest intake records, capped at limit
func (s *Store) GetRecentIntakes(userID string, limit int) ([]IntakeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []IntakeRecord
	err := s.db.Where("user_id = ?", userID).
		Order("date DESC, scheduled_time DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// GetIntakesSince returns all of a user's intake records dated on or after
// the given day
func (s *Store) GetIntakesSince(userID string, since time.Time) ([]IntakeRecord, error) {
	var records []IntakeRecord
	err := s.db.Where("user_id = ? AND date >= ?", userID, truncateToDay(since)).
		Order("date ASC, scheduled_time ASC").
		Find(&records).Error
	return records, err
}

// GetIntakesInRange returns a user's intake records with from <= date < to
func (s *Store) GetIntakesInRange(userID string, from, to time.Time) ([]IntakeRecord, error) {
	var records []IntakeRecord
	err := s.db.Where("user_id = ? AND date >= ? AND date < ?", userID, from, to).
		Order("date ASC, scheduled_time ASC").
		Find(&records).Error
	return records, err
}

// GetIntakesForDay returns all intake records on one calendar day
func (s *Store) GetIntakesForDay(userID string, day time.Time) ([]IntakeRecord, error) {
	var records []IntakeRecord
	err := s.db.Where("user_id = ? AND date = ?", userID, truncateToDay(day)).
		Find(&records).Error
	return records, err
}

// CountMissedInWindow counts missed doses per medicine with from <= date < to
func (s *Store) CountMissedInWindow(userID string, from, to time.Time) ([]MissedCount, error) {
	var counts []MissedCount
	err := s.db.Model(&IntakeRecord{}).
		Select("medicine_id, COUNT(*) as count").
		Where("user_id = ? AND status = ? AND date >= ? AND date < ?",
			userID, IntakeMissed, from, to).
		Group("medicine_id").
		Scan(&counts).Error
	return counts, err
}

// CountMissedForUser counts all missed doses in a window regardless of medicine
func (s *Store) CountMissedForUser(userID string, from, to time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&IntakeRecord{}).
		Where("user_id = ? AND status = ? AND date >= ? AND date < ?",
			userID, IntakeMissed, from, to).
		Count(&count).Error
	return count, err
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

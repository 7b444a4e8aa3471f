package store

import (
	"time"

	"gorm.io/gorm"
)

func (s *Store) CreateHealthRecord(rec *HealthRecord) error {
	if rec.ID == "" {
		rec.ID = generateID("hlt")
	}
	if rec.Date.IsZero() {
		rec.Date = time.Now()
	}
	rec.AlertFlagsJSON = marshalStrings(rec.AlertFlags)
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = time.Now()
	return s.db.Create(rec).Error
}

func (s *Store) GetHealthRecord(id string) (*HealthRecord, error) {
	var rec HealthRecord
	err := s.db.Where("id = ?", id).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.AlertFlags = unmarshalStrings(rec.AlertFlagsJSON)
	return &rec, nil
}

// ListHealthRecords returns a user's vitals submissions in a window, newest
// first. A zero `from` means no lower bound.
func (s *Store) ListHealthRecords(userID string, from, to time.Time, limit int) ([]HealthRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.Where("user_id = ?", userID)
	if !from.IsZero() {
		q = q.Where("date >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("date < ?", to)
	}
	var records []HealthRecord
	err := q.Order("date DESC").Limit(limit).Find(&records).Error
	for i := range records {
		records[i].AlertFlags = unmarshalStrings(records[i].AlertFlagsJSON)
	}
	return records, err
}

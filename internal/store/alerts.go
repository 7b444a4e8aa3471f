package store

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

func marshalRecipients(recipients []Recipient) string {
	if len(recipients) == 0 {
		return ""
	}
	b, _ := json.Marshal(recipients)
	return string(b)
}

func unmarshalRecipients(raw string) []Recipient {
	if raw == "" {
		return nil
	}
	var recipients []Recipient
	json.Unmarshal([]byte(raw), &recipients)
	return recipients
}

func (s *Store) CreateAlert(alert *Alert) error {
	if alert.ID == "" {
		alert.ID = generateID("alt")
	}
	if alert.Status == "" {
		alert.Status = AlertPending
	}
	alert.RecipientsJSON = marshalRecipients(alert.Recipients)
	alert.SuggestedActionsJSON = marshalStrings(alert.SuggestedActions)
	alert.CreatedAt = time.Now()
	alert.UpdatedAt = time.Now()
	return s.db.Create(alert).Error
}

func (s *Store) GetAlert(id string) (*Alert, error) {
	var alert Alert
	err := s.db.Where("id = ?", id).First(&alert).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	hydrateAlert(&alert)
	return &alert, nil
}

// GetActiveAlertsFor returns unresolved alerts where the user is either the
// subject patient or one of the snapshotted recipients, newest first.
// Recipient matching happens after hydration since the snapshot is a
// serialized column.
func (s *Store) GetActiveAlertsFor(userID string) ([]Alert, error) {
	var candidates []Alert
	err := s.db.Where("status IN ?", []string{AlertPending, AlertSent, AlertAcknowledged}).
		Order("created_at DESC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	alerts := []Alert{}
	for i := range candidates {
		hydrateAlert(&candidates[i])
		if candidates[i].UserID == userID || candidates[i].IsRecipient(userID) {
			alerts = append(alerts, candidates[i])
		}
	}
	return alerts, nil
}

// ListAlertsForSubject returns every alert about a patient, newest first
func (s *Store) ListAlertsForSubject(userID string, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	var alerts []Alert
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&alerts).Error
	for i := range alerts {
		hydrateAlert(&alerts[i])
	}
	return alerts, err
}

// HasRecentAlert reports whether an alert of the given type already exists for
// the (user, medicine) pair since the cutoff. Used to suppress duplicates when
// a condition persists across evaluations.
func (s *Store) HasRecentAlert(userID, alertType, medicineID string, since time.Time) (bool, error) {
	q := s.db.Model(&Alert{}).
		Where("user_id = ? AND type = ? AND created_at >= ?", userID, alertType, since)
	if medicineID != "" {
		q = q.Where("medicine_id = ?", medicineID)
	}
	var count int64
	err := q.Count(&count).Error
	return count > 0, err
}

// AcknowledgeAlert marks an alert acknowledged by the given user
func (s *Store) AcknowledgeAlert(id, byUserID string) (*Alert, error) {
	alert, err := s.GetAlert(id)
	if err != nil || alert == nil {
		return nil, err
	}
	now := time.Now()
	alert.Status = AlertAcknowledged
	alert.AcknowledgedBy = byUserID
	alert.AcknowledgedAt = &now
	alert.UpdatedAt = now
	if err := s.db.Save(alert).Error; err != nil {
		return nil, err
	}
	return alert, nil
}

// UpdateAlertStatus transitions an alert to the given status
func (s *Store) UpdateAlertStatus(id, status string) error {
	return s.db.Model(&Alert{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func hydrateAlert(alert *Alert) {
	alert.Recipients = unmarshalRecipients(alert.RecipientsJSON)
	alert.SuggestedActions = unmarshalStrings(alert.SuggestedActionsJSON)
}

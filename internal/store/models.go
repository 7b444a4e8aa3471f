package store

import (
	"time"
)

// User roles
const (
	RolePatient   = "patient"
	RoleCaregiver = "caregiver"
	RoleDoctor    = "doctor"
)

// Intake statuses
const (
	IntakePending = "pending"
	IntakeTaken   = "taken"
	IntakeMissed  = "missed"
	IntakeSkipped = "skipped"
)

// Alert severities, ordered low to critical
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert statuses
const (
	AlertPending      = "pending"
	AlertSent         = "sent"
	AlertAcknowledged = "acknowledged"
	AlertResolved     = "resolved"
	AlertDismissed    = "dismissed"
)

// Alert types
const (
	AlertTypeAdherence      = "medication-adherence"
	AlertTypeAdherenceTrend = "adherence-trend"
	AlertTypeHealthReading  = "health-reading"
)

// User represents an account with role-based care relationships.
// Caregiver and doctor assignments are stored as serialized ID lists;
// the relationship graph is read-only from this package's perspective.
type User struct {
	ID    string `json:"id" gorm:"primaryKey"`
	Name  string `json:"name"`
	Email string `json:"email" gorm:"uniqueIndex"`
	Role  string `json:"role" gorm:"index"` // patient, caregiver, doctor

	Caregivers     []string `json:"caregivers,omitempty" gorm:"-"`
	CaregiversJSON string   `json:"-" gorm:"type:text"`
	Doctors        []string `json:"doctors,omitempty" gorm:"-"`
	DoctorsJSON    string   `json:"-" gorm:"type:text"`

	// No column default: a zero value must stay false on insert
	IsActive bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Medicine represents a prescription owned by a patient
type Medicine struct {
	ID     string `json:"id" gorm:"primaryKey"`
	UserID string `json:"user_id" gorm:"index"`

	Name      string `json:"name"`
	Dosage    string `json:"dosage"`    // e.g., "10mg", "1 tablet"
	Frequency string `json:"frequency"` // once-daily, twice-daily, three-times-daily, four-times-daily, as-needed

	// Stock management; stock decrements only on a taken dose
	Stock        int `json:"stock"`
	LowStockDays int `json:"low_stock_days"`

	ReminderTimes     []string `json:"reminder_times" gorm:"-"` // ["08:00", "20:00"]
	ReminderTimesJSON string   `json:"-" gorm:"type:text"`

	IsActive bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DailyDoses returns how many doses the schedule expects per day
func (m *Medicine) DailyDoses() int {
	if n := len(m.ReminderTimes); n > 0 {
		return n
	}
	switch m.Frequency {
	case "twice-daily":
		return 2
	case "three-times-daily":
		return 3
	case "four-times-daily":
		return 4
	default:
		return 1
	}
}

// DaysRemaining estimates days of stock left at the scheduled cadence
func (m *Medicine) DaysRemaining() int {
	doses := m.DailyDoses()
	if doses <= 0 {
		return 0
	}
	return m.Stock / doses
}

// IsLowStock reports whether remaining stock covers fewer days than the threshold
func (m *Medicine) IsLowStock() bool {
	return m.DaysRemaining() <= m.LowStockDays
}

// IntakeRecord is one expected-dose event: at most one record exists per
// (user, medicine, date, scheduled time) tuple.
type IntakeRecord struct {
	ID         string `json:"id" gorm:"primaryKey"`
	UserID     string `json:"user_id" gorm:"index:idx_intake_user_date"`
	MedicineID string `json:"medicine_id" gorm:"index"`

	Date          time.Time  `json:"date" gorm:"index:idx_intake_user_date"` // calendar day
	ScheduledTime string     `json:"scheduled_time"`                         // HH:MM
	ActualTime    *time.Time `json:"actual_time,omitempty"`
	Status        string     `json:"status"` // pending, taken, missed, skipped
	Notes         string     `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DateString returns the record's calendar day in YYYY-MM-DD form
func (r *IntakeRecord) DateString() string {
	return r.Date.Format("2006-01-02")
}

// HealthRecord is one vitals submission. Optional vitals are pointers so an
// absent measurement is distinguishable from a zero reading; alert flags are
// always recomputed server-side before persisting.
type HealthRecord struct {
	ID     string    `json:"id" gorm:"primaryKey"`
	UserID string    `json:"user_id" gorm:"index:idx_health_user_date"`
	Date   time.Time `json:"date" gorm:"index:idx_health_user_date"`

	Systolic      *int     `json:"systolic,omitempty"`
	Diastolic     *int     `json:"diastolic,omitempty"`
	BloodSugar    *float64 `json:"blood_sugar,omitempty"`
	SugarTestType string   `json:"sugar_test_type,omitempty"` // fasting, random, post-meal, bedtime
	HeartRate     *int     `json:"heart_rate,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"` // degrees F
	OxygenLevel   *float64 `json:"oxygen_level,omitempty"`
	SleepHours    *float64 `json:"sleep_hours,omitempty"`

	AlertFlags         []string `json:"alert_flags" gorm:"-"`
	AlertFlagsJSON     string   `json:"-" gorm:"type:text"`
	HasAbnormalReading bool     `json:"has_abnormal_reading" gorm:"index"`

	Notes string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Recipient is one addressee of an alert, captured at creation time
type Recipient struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Alert is a system-generated notification addressed to a patient's care
// team. Recipients are a snapshot of the relationship graph at creation;
// later relationship changes never alter a stored alert.
type Alert struct {
	ID     string `json:"id" gorm:"primaryKey"`
	UserID string `json:"user_id" gorm:"index"` // subject patient

	Type     string `json:"type"`
	Severity string `json:"severity" gorm:"index"`
	Title    string `json:"title"`
	Message  string `json:"message"`

	MedicineID string `json:"medicine_id,omitempty"`

	Recipients     []Recipient `json:"recipients" gorm:"-"`
	RecipientsJSON string      `json:"-" gorm:"type:text"`

	Status         string `json:"status" gorm:"default:pending;index"`
	ActionRequired bool   `json:"action_required"`

	SuggestedActions     []string `json:"suggested_actions" gorm:"-"`
	SuggestedActionsJSON string   `json:"-" gorm:"type:text"`

	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsRecipient reports whether the given user is addressed by this alert
func (a *Alert) IsRecipient(userID string) bool {
	for _, r := range a.Recipients {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

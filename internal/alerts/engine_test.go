package alerts

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/careoclock/server/internal/store"
	_ "github.com/glebarez/go-sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db, err := gorm.Open(sqlite.Dialector{Conn: conn}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	st, err := store.NewWithDB(db)
	require.NoError(t, err)
	return st
}

func missRec(medicineID string, daysAgo int, schedTime, status string) store.IntakeRecord {
	day := time.Now().AddDate(0, 0, -daysAgo)
	return store.IntakeRecord{
		UserID:        "usr_1",
		MedicineID:    medicineID,
		Date:          time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
		ScheduledTime: schedTime,
		Status:        status,
	}
}

func TestConsecutiveMissThreeFiresHigh(t *testing.T) {
	records := []store.IntakeRecord{
		missRec("med_1", 0, "09:00", store.IntakeMissed),
		missRec("med_1", 1, "09:00", store.IntakeMissed),
		missRec("med_1", 2, "09:00", store.IntakeMissed),
	}

	conditions := ConsecutiveMissConditions(records, map[string]string{"med_1": "Aspirin"})
	assert.Len(t, conditions, 1)
	assert.Equal(t, ConditionConsecutiveMissed, conditions[0].Type)
	assert.Equal(t, "med_1", conditions[0].MedicineID)
	assert.Equal(t, store.SeverityHigh, conditions[0].Severity)
	assert.Equal(t, 3, conditions[0].ConsecutiveMissed)
}

func TestConsecutiveMissMonotonicity(t *testing.T) {
	// 1 leading miss emits nothing, 2 medium, 3 high.
	one := []store.IntakeRecord{
		missRec("med_1", 0, "09:00", store.IntakeMissed),
		missRec("med_1", 1, "09:00", store.IntakeTaken),
	}
	assert.Empty(t, ConsecutiveMissConditions(one, nil))

	two := []store.IntakeRecord{
		missRec("med_1", 0, "09:00", store.IntakeMissed),
		missRec("med_1", 1, "09:00", store.IntakeMissed),
		missRec("med_1", 2, "09:00", store.IntakeTaken),
	}
	conds := ConsecutiveMissConditions(two, nil)
	assert.Len(t, conds, 1)
	assert.Equal(t, store.SeverityMedium, conds[0].Severity)

	three := []store.IntakeRecord{
		missRec("med_1", 0, "09:00", store.IntakeMissed),
		missRec("med_1", 1, "09:00", store.IntakeMissed),
		missRec("med_1", 2, "09:00", store.IntakeMissed),
	}
	conds = ConsecutiveMissConditions(three, nil)
	assert.Len(t, conds, 1)
	assert.Equal(t, store.SeverityHigh, conds[0].Severity)
}

func TestConsecutiveMissRunStopsAtTaken(t *testing.T) {
	// Misses older than a taken dose do not count toward the leading run.
	records := []store.IntakeRecord{
		missRec("med_1", 0, "09:00", store.IntakeMissed),
		missRec("med_1", 1, "09:00", store.IntakeTaken),
		missRec("med_1", 2, "09:00", store.IntakeMissed),
		missRec("med_1", 2, "21:00", store.IntakeMissed),
	}
	assert.Empty(t, ConsecutiveMissConditions(records, nil))
}

func TestConsecutiveMissPerMedicine(t *testing.T) {
	records := []store.IntakeRecord{
		missRec("med_1", 0, "09:00", store.IntakeMissed),
		missRec("med_1", 1, "09:00", store.IntakeMissed),
		missRec("med_2", 0, "09:00", store.IntakeTaken),
		missRec("med_2", 1, "09:00", store.IntakeMissed),
	}

	conditions := ConsecutiveMissConditions(records, nil)
	assert.Len(t, conditions, 1)
	assert.Equal(t, "med_1", conditions[0].MedicineID)
}

func TestRisingTrendFires(t *testing.T) {
	// Previous week 2 misses, current week 4: ratio 2.0 > 1.5.
	current := []store.MissedCount{{MedicineID: "med_1", Count: 4}}
	previous := []store.MissedCount{{MedicineID: "med_1", Count: 2}}

	conditions := RisingTrendConditions(current, previous, map[string]string{"med_1": "Metformin"})
	assert.Len(t, conditions, 1)
	assert.Equal(t, ConditionRisingTrend, conditions[0].Type)
	assert.Equal(t, store.SeverityMedium, conditions[0].Severity)
	assert.Equal(t, 4, conditions[0].MissedCurrentWeek)
	assert.Equal(t, 2, conditions[0].MissedPreviousWeek)
}

func TestRisingTrendNoPreviousBaseline(t *testing.T) {
	current := []store.MissedCount{{MedicineID: "med_1", Count: 5}}
	assert.Empty(t, RisingTrendConditions(current, nil, nil))
}

func TestRisingTrendRatioMustExceedThreshold(t *testing.T) {
	// 3/2 = 1.5 exactly does not fire.
	current := []store.MissedCount{{MedicineID: "med_1", Count: 3}}
	previous := []store.MissedCount{{MedicineID: "med_1", Count: 2}}
	assert.Empty(t, RisingTrendConditions(current, previous, nil))
}

func TestRisingTrendRequiresTwoCurrentMisses(t *testing.T) {
	current := []store.MissedCount{{MedicineID: "med_1", Count: 1}}
	previous := []store.MissedCount{{MedicineID: "med_1", Count: 0}}
	assert.Empty(t, RisingTrendConditions(current, previous, nil))
}

func TestBuildAlertRecipientsAreCareTeamOnly(t *testing.T) {
	user := &store.User{ID: "usr_1", Name: "Margaret"}
	team := &store.CareTeam{
		Caregivers: []store.CareMember{{ID: "usr_2", Name: "Carl"}},
		Doctors:    []store.CareMember{{ID: "usr_3", Name: "Dr. Lee"}},
	}
	cond := Condition{
		Type:              ConditionConsecutiveMissed,
		MedicineID:        "med_1",
		MedicineName:      "Aspirin",
		Severity:          store.SeverityHigh,
		ConsecutiveMissed: 3,
	}

	alert := BuildAlert(user, cond, team)
	assert.Equal(t, store.AlertTypeAdherence, alert.Type)
	assert.Equal(t, "Medication Adherence Alert - Aspirin", alert.Title)
	assert.Equal(t, "Margaret has missed 3 consecutive doses of Aspirin. Immediate intervention may be required.", alert.Message)
	assert.True(t, alert.ActionRequired)
	assert.Len(t, alert.Recipients, 2)
	assert.False(t, alert.IsRecipient("usr_1"))
	assert.True(t, alert.IsRecipient("usr_2"))
	assert.True(t, alert.IsRecipient("usr_3"))
	assert.Equal(t, []string{
		"Contact patient immediately",
		"Verify medication availability",
		"Assess patient wellbeing",
		"Consider medication adjustment",
	}, alert.SuggestedActions)
}

func TestBuildAlertTrendMessage(t *testing.T) {
	user := &store.User{ID: "usr_1", Name: "Margaret"}
	cond := Condition{
		Type:               ConditionRisingTrend,
		MedicineID:         "med_1",
		MedicineName:       "Metformin",
		Severity:           store.SeverityMedium,
		MissedCurrentWeek:  4,
		MissedPreviousWeek: 2,
	}

	alert := BuildAlert(user, cond, nil)
	assert.Equal(t, store.AlertTypeAdherenceTrend, alert.Type)
	assert.Equal(t, "Rising missed doses for Metformin: 4 this week (2 last week)", alert.Message)
	assert.False(t, alert.ActionRequired)
}

func TestEngineEvaluateUserCreatesAlert(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(st, zap.NewNop())
	ctx := context.Background()

	caregiver := &store.User{Name: "Carl", Email: "carl@example.com", Role: store.RoleCaregiver}
	require.NoError(t, st.CreateUser(caregiver))
	doctor := &store.User{Name: "Dr. Lee", Email: "lee@example.com", Role: store.RoleDoctor}
	require.NoError(t, st.CreateUser(doctor))

	patient := &store.User{
		Name: "Margaret", Email: "margaret@example.com", Role: store.RolePatient,
		IsActive: true, Caregivers: []string{caregiver.ID}, Doctors: []string{doctor.ID},
	}
	require.NoError(t, st.CreateUser(patient))

	med := &store.Medicine{UserID: patient.ID, Name: "Aspirin", IsActive: true}
	require.NoError(t, st.CreateMedicine(med))

	for daysAgo := 0; daysAgo < 3; daysAgo++ {
		r := missRec(med.ID, daysAgo, "09:00", store.IntakeMissed)
		r.UserID = patient.ID
		_, err := st.UpsertIntake(&r)
		require.NoError(t, err)
	}

	created, err := engine.EvaluateUser(ctx, patient.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, store.SeverityHigh, created[0].Severity)
	assert.True(t, created[0].IsRecipient(caregiver.ID))
	assert.True(t, created[0].IsRecipient(doctor.ID))

	// A second evaluation within the suppression window creates nothing.
	again, err := engine.EvaluateUser(ctx, patient.ID)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestEngineRecipientSnapshotImmutable(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(st, zap.NewNop())
	ctx := context.Background()

	caregiver := &store.User{Name: "Carl", Email: "carl@example.com", Role: store.RoleCaregiver}
	require.NoError(t, st.CreateUser(caregiver))

	patient := &store.User{
		Name: "Margaret", Email: "margaret@example.com", Role: store.RolePatient,
		IsActive: true, Caregivers: []string{caregiver.ID},
	}
	require.NoError(t, st.CreateUser(patient))

	med := &store.Medicine{UserID: patient.ID, Name: "Aspirin", IsActive: true}
	require.NoError(t, st.CreateMedicine(med))

	for daysAgo := 0; daysAgo < 2; daysAgo++ {
		r := missRec(med.ID, daysAgo, "09:00", store.IntakeMissed)
		r.UserID = patient.ID
		_, err := st.UpsertIntake(&r)
		require.NoError(t, err)
	}

	created, err := engine.EvaluateUser(ctx, patient.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)

	// Unlink the caregiver afterwards; the stored alert keeps its snapshot.
	patient.Caregivers = nil
	require.NoError(t, st.UpdateUser(patient))

	stored, err := st.GetAlert(created[0].ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.IsRecipient(caregiver.ID))
}

func TestEngineUnknownUser(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(st, zap.NewNop())

	_, err := engine.EvaluateUser(context.Background(), "usr_missing")
	assert.Error(t, err)
}

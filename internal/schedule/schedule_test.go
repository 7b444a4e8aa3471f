package schedule

import (
	"database/sql"
	"testing"
	"time"

	"github.com/careoclock/server/internal/store"
	_ "github.com/glebarez/go-sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestForDayBuildsPendingSlots(t *testing.T) {
	st := newTestStore(t)
	builder := NewBuilder(st)

	med := &store.Medicine{
		UserID:        "usr_1",
		Name:          "Aspirin",
		Dosage:        "100mg",
		ReminderTimes: []string{"08:00", "20:00"},
		IsActive:      true,
		Stock:         60,
		LowStockDays:  7,
	}
	require.NoError(t, st.CreateMedicine(med))

	entries, err := builder.ForDay("usr_1", time.Now())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "08:00", entries[0].ScheduledTime)
	assert.Equal(t, store.IntakePending, entries[0].Status)
	assert.Equal(t, store.IntakePending, entries[1].Status)
	assert.False(t, entries[0].LowStock)
}

func TestForDayJoinsLoggedIntakes(t *testing.T) {
	st := newTestStore(t)
	builder := NewBuilder(st)

	med := &store.Medicine{
		UserID:        "usr_1",
		Name:          "Aspirin",
		ReminderTimes: []string{"08:00", "20:00"},
		IsActive:      true,
	}
	require.NoError(t, st.CreateMedicine(med))

	rec := &store.IntakeRecord{
		UserID:        "usr_1",
		MedicineID:    med.ID,
		Date:          time.Now(),
		ScheduledTime: "08:00",
		Status:        store.IntakeTaken,
	}
	_, err := st.UpsertIntake(rec)
	require.NoError(t, err)

	entries, err := builder.ForDay("usr_1", time.Now())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, store.IntakeTaken, entries[0].Status)
	assert.NotEmpty(t, entries[0].IntakeID)
	assert.Equal(t, store.IntakePending, entries[1].Status)
}

func TestForDayDefaultReminderTimes(t *testing.T) {
	st := newTestStore(t)
	builder := NewBuilder(st)

	med := &store.Medicine{UserID: "usr_1", Name: "Metformin", IsActive: true}
	require.NoError(t, st.CreateMedicine(med))

	entries, err := builder.ForDay("usr_1", time.Now())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "09:00", entries[0].ScheduledTime)
	assert.Equal(t, "21:00", entries[1].ScheduledTime)
}

func TestForDayInactiveMedicinesExcluded(t *testing.T) {
	st := newTestStore(t)
	builder := NewBuilder(st)

	med := &store.Medicine{UserID: "usr_1", Name: "Old Med", IsActive: false}
	require.NoError(t, st.CreateMedicine(med))

	entries, err := builder.ForDay("usr_1", time.Now())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// Package vitals evaluates health readings against fixed clinical
// thresholds. CheckAbnormal is pure: the stored flags are always
// recomputed server-side at write time, never trusted from the client.
package vitals

import "github.com/careoclock/server/internal/store"

// Alert flags raised by CheckAbnormal
const (
	FlagHighSystolicBP    = "high_systolic_bp"
	FlagHighDiastolicBP   = "high_diastolic_bp"
	FlagLowSystolicBP     = "low_systolic_bp"
	FlagLowDiastolicBP    = "low_diastolic_bp"
	FlagHighBloodSugar    = "high_blood_sugar"
	FlagLowBloodSugar     = "low_blood_sugar"
	FlagHighHeartRate     = "high_heart_rate"
	FlagLowHeartRate      = "low_heart_rate"
	FlagLowOxygenLevel    = "low_oxygen_level"
	FlagFever             = "fever"
	FlagHypothermia       = "hypothermia"
	FlagInsufficientSleep = "insufficient_sleep"
)

// CheckAbnormal evaluates a vitals submission and returns the flags for
// every threshold breach, in a fixed order. Comparisons are strict, so a
// reading exactly at a threshold does not flag. Blood pressure is only
// evaluated when both systolic and diastolic are present; all other
// vitals are evaluated independently when present.
func CheckAbnormal(rec *store.HealthRecord) []string {
	flags := []string{}

	if rec.Systolic != nil && rec.Diastolic != nil {
		if *rec.Systolic > 140 {
			flags = append(flags, FlagHighSystolicBP)
		}
		if *rec.Diastolic > 90 {
			flags = append(flags, FlagHighDiastolicBP)
		}
		if *rec.Systolic < 90 {
			flags = append(flags, FlagLowSystolicBP)
		}
		if *rec.Diastolic < 60 {
			flags = append(flags, FlagLowDiastolicBP)
		}
	}

	if rec.BloodSugar != nil {
		if *rec.BloodSugar > 200 {
			flags = append(flags, FlagHighBloodSugar)
		}
		if *rec.BloodSugar < 70 {
			flags = append(flags, FlagLowBloodSugar)
		}
	}

	if rec.HeartRate != nil {
		if *rec.HeartRate > 100 {
			flags = append(flags, FlagHighHeartRate)
		}
		if *rec.HeartRate < 60 {
			flags = append(flags, FlagLowHeartRate)
		}
	}

	if rec.OxygenLevel != nil && *rec.OxygenLevel < 95 {
		flags = append(flags, FlagLowOxygenLevel)
	}

	if rec.Temperature != nil {
		if *rec.Temperature > 100.4 {
			flags = append(flags, FlagFever)
		}
		if *rec.Temperature < 97 {
			flags = append(flags, FlagHypothermia)
		}
	}

	if rec.SleepHours != nil && *rec.SleepHours < 6 {
		flags = append(flags, FlagInsufficientSleep)
	}

	return flags
}

// Annotate recomputes and stores the record's alert flags in place
func Annotate(rec *store.HealthRecord) {
	flags := CheckAbnormal(rec)
	rec.AlertFlags = flags
	rec.HasAbnormalReading = len(flags) > 0
}

// Validate rejects readings that are physiologically impossible rather
// than merely abnormal. Bounds come from the intake form limits.
func Validate(rec *store.HealthRecord) []string {
	var errs []string
	if rec.Systolic != nil && (*rec.Systolic < 70 || *rec.Systolic > 250) {
		errs = append(errs, "systolic out of range (70-250)")
	}
	if rec.Diastolic != nil && (*rec.Diastolic < 40 || *rec.Diastolic > 160) {
		errs = append(errs, "diastolic out of range (40-160)")
	}
	if rec.BloodSugar != nil && (*rec.BloodSugar < 20 || *rec.BloodSugar > 600) {
		errs = append(errs, "blood sugar out of range (20-600)")
	}
	if rec.HeartRate != nil && (*rec.HeartRate < 30 || *rec.HeartRate > 220) {
		errs = append(errs, "heart rate out of range (30-220)")
	}
	if rec.SleepHours != nil && (*rec.SleepHours < 0 || *rec.SleepHours > 24) {
		errs = append(errs, "sleep hours out of range (0-24)")
	}
	if rec.Temperature != nil && (*rec.Temperature < 95 || *rec.Temperature > 107) {
		errs = append(errs, "temperature out of range (95-107)")
	}
	if rec.OxygenLevel != nil && (*rec.OxygenLevel < 50 || *rec.OxygenLevel > 100) {
		errs = append(errs, "oxygen level out of range (50-100)")
	}
	return errs
}

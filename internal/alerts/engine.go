// Package alerts implements the rule-based alert engine: condition
// evaluation over intake history, alert materialization with recipient
// snapshots, and the periodic generation sweep.
package alerts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/careoclock/server/internal/errors"
	"github.com/careoclock/server/internal/metrics"
	"github.com/careoclock/server/internal/store"
	"go.uber.org/zap"
)

// Condition types emitted by the rules
const (
	ConditionConsecutiveMissed = "consecutive-missed"
	ConditionRisingTrend       = "rising-missed-trend"
)

// Condition is one fired rule for one medicine, before materialization
type Condition struct {
	Type         string `json:"type"`
	MedicineID   string `json:"medicine_id"`
	MedicineName string `json:"medicine_name"`
	Severity     string `json:"severity"`

	ConsecutiveMissed  int `json:"consecutive_missed,omitempty"`
	MissedCurrentWeek  int `json:"missed_current_week,omitempty"`
	MissedPreviousWeek int `json:"missed_previous_week,omitempty"`
}

// ConsecutiveMissConditions applies the consecutive-miss rule to intake
// records from the evaluation window. Records are grouped per medicine and
// walked newest first; the leading run of missed doses stops at the first
// record with any other status. Two leading misses fire at medium severity,
// three or more at high.
func ConsecutiveMissConditions(records []store.IntakeRecord, medicineNames map[string]string) []Condition {
	groups := make(map[string][]store.IntakeRecord)
	for i := range records {
		groups[records[i].MedicineID] = append(groups[records[i].MedicineID], records[i])
	}

	medicineIDs := make([]string, 0, len(groups))
	for id := range groups {
		medicineIDs = append(medicineIDs, id)
	}
	sort.Strings(medicineIDs)

	var conditions []Condition
	for _, medicineID := range medicineIDs {
		group := groups[medicineID]
		sort.Slice(group, func(i, j int) bool {
			if !group[i].Date.Equal(group[j].Date) {
				return group[i].Date.After(group[j].Date)
			}
			return group[i].ScheduledTime > group[j].ScheduledTime
		})

		consecutive := 0
		for i := range group {
			if group[i].Status != store.IntakeMissed {
				break
			}
			consecutive++
		}

		if consecutive >= 2 {
			severity := store.SeverityMedium
			if consecutive >= 3 {
				severity = store.SeverityHigh
			}
			conditions = append(conditions, Condition{
				Type:              ConditionConsecutiveMissed,
				MedicineID:        medicineID,
				MedicineName:      medicineNames[medicineID],
				Severity:          severity,
				ConsecutiveMissed: consecutive,
			})
		}
	}
	return conditions
}

// RisingTrendConditions compares missed-dose counts per medicine between the
// previous and current week. A medicine fires when the current week has at
// least 2 misses, the previous week had at least one, and the ratio exceeds
// 1.5. Medicines with no misses in the previous week never fire, so a flat
// baseline cannot produce a division blowup.
func RisingTrendConditions(current, previous []store.MissedCount, medicineNames map[string]string) []Condition {
	prevByMedicine := make(map[string]int64, len(previous))
	for _, c := range previous {
		prevByMedicine[c.MedicineID] = c.Count
	}

	sorted := make([]store.MissedCount, len(current))
	copy(sorted, current)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MedicineID < sorted[j].MedicineID })

	var conditions []Condition
	for _, curr := range sorted {
		prev := prevByMedicine[curr.MedicineID]
		if curr.Count >= 2 && prev > 0 && float64(curr.Count)/float64(prev) > 1.5 {
			conditions = append(conditions, Condition{
				Type:               ConditionRisingTrend,
				MedicineID:         curr.MedicineID,
				MedicineName:       medicineNames[curr.MedicineID],
				Severity:           store.SeverityMedium,
				MissedCurrentWeek:  int(curr.Count),
				MissedPreviousWeek: int(prev),
			})
		}
	}
	return conditions
}

// Engine evaluates alert rules against stored intake history and writes
// the resulting alerts
type Engine struct {
	store  *store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(st *store.Store, logger *zap.Logger) *Engine {
	return &Engine{store: st, logger: logger, now: time.Now}
}

// EvaluateConditions runs both rules for one user and returns the fired
// conditions without materializing alerts
func (e *Engine) EvaluateConditions(ctx context.Context, userID string) ([]Condition, error) {
	now := e.now()

	recent, err := e.store.GetIntakesSince(userID, now.AddDate(0, 0, -3))
	if err != nil {
		return nil, errors.Wrap(err, "ALERT_002", "failed to load recent intakes")
	}

	currWeek, err := e.store.CountMissedInWindow(userID, now.AddDate(0, 0, -7), now)
	if err != nil {
		return nil, errors.Wrap(err, "ALERT_002", "failed to count current week misses")
	}
	prevWeek, err := e.store.CountMissedInWindow(userID, now.AddDate(0, 0, -14), now.AddDate(0, 0, -7))
	if err != nil {
		return nil, errors.Wrap(err, "ALERT_002", "failed to count previous week misses")
	}

	names, err := e.medicineNames(recent, currWeek)
	if err != nil {
		return nil, err
	}

	conditions := ConsecutiveMissConditions(recent, names)
	conditions = append(conditions, RisingTrendConditions(currWeek, prevWeek, names)...)
	return conditions, nil
}

// EvaluateUser runs the rules for one user and materializes an alert per
// fired condition. Duplicate conditions already alerted within the last day
// are suppressed.
func (e *Engine) EvaluateUser(ctx context.Context, userID string) ([]store.Alert, error) {
	user, err := e.store.GetUser(userID)
	if err != nil {
		return nil, errors.Wrap(err, "ALERT_002", "failed to load user")
	}
	if user == nil {
		return nil, errors.ErrUserNotFound
	}

	conditions, err := e.EvaluateConditions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(conditions) == 0 {
		return nil, nil
	}

	team, err := e.store.GetCareTeam(userID)
	if err != nil {
		return nil, errors.Wrap(err, "ALERT_002", "failed to resolve care team")
	}

	cutoff := e.now().AddDate(0, 0, -1)
	var created []store.Alert
	for _, cond := range conditions {
		alertType := AlertTypeForCondition(cond.Type)

		dup, err := e.store.HasRecentAlert(userID, alertType, cond.MedicineID, cutoff)
		if err != nil {
			return created, errors.Wrap(err, "ALERT_002", "failed duplicate check")
		}
		if dup {
			e.logger.Debug("suppressing duplicate alert",
				zap.String("user_id", userID),
				zap.String("type", alertType),
				zap.String("medicine_id", cond.MedicineID))
			continue
		}

		alert := BuildAlert(user, cond, team)
		if err := e.store.CreateAlert(alert); err != nil {
			return created, errors.Wrap(err, "ALERT_002", "failed to create alert")
		}

		metrics.AlertsGenerated.WithLabelValues(alert.Type, alert.Severity).Inc()
		e.logger.Info("alert created",
			zap.String("alert_id", alert.ID),
			zap.String("user_id", userID),
			zap.String("type", alert.Type),
			zap.String("severity", alert.Severity))
		created = append(created, *alert)
	}
	return created, nil
}

// AlertTypeForCondition maps a condition type to the stored alert type
func AlertTypeForCondition(conditionType string) string {
	if conditionType == ConditionRisingTrend {
		return store.AlertTypeAdherenceTrend
	}
	return store.AlertTypeAdherence
}

// BuildAlert materializes a fired condition into an alert record. The
// recipient list snapshots the patient's caregivers and doctors at this
// moment; adherence alerts are addressed to the care team only, never to
// the patient themselves.
func BuildAlert(user *store.User, cond Condition, team *store.CareTeam) *store.Alert {
	recipients := []store.Recipient{}
	if team != nil {
		for _, c := range team.Caregivers {
			recipients = append(recipients, store.Recipient{UserID: c.ID, Role: store.RoleCaregiver})
		}
		for _, d := range team.Doctors {
			recipients = append(recipients, store.Recipient{UserID: d.ID, Role: store.RoleDoctor})
		}
	}

	alert := &store.Alert{
		UserID:     user.ID,
		Type:       AlertTypeForCondition(cond.Type),
		Severity:   cond.Severity,
		MedicineID: cond.MedicineID,
		Recipients: recipients,
	}

	switch cond.Type {
	case ConditionRisingTrend:
		alert.Title = fmt.Sprintf("Adherence Trend Alert - %s", cond.MedicineName)
		alert.Message = fmt.Sprintf("Rising missed doses for %s: %d this week (%d last week)",
			cond.MedicineName, cond.MissedCurrentWeek, cond.MissedPreviousWeek)
	default:
		alert.Title = fmt.Sprintf("Medication Adherence Alert - %s", cond.MedicineName)
		alert.Message = fmt.Sprintf("%s has missed %d consecutive doses of %s. Immediate intervention may be required.",
			user.Name, cond.ConsecutiveMissed, cond.MedicineName)
		alert.ActionRequired = true
		alert.SuggestedActions = []string{
			"Contact patient immediately",
			"Verify medication availability",
			"Assess patient wellbeing",
			"Consider medication adjustment",
		}
	}
	return alert
}

func (e *Engine) medicineNames(records []store.IntakeRecord, counts []store.MissedCount) (map[string]string, error) {
	ids := make(map[string]bool)
	for i := range records {
		ids[records[i].MedicineID] = true
	}
	for i := range counts {
		ids[counts[i].MedicineID] = true
	}

	names := make(map[string]string, len(ids))
	for id := range ids {
		med, err := e.store.GetMedicine(id)
		if err != nil {
			return nil, errors.Wrap(err, "ALERT_002", "failed to load medicine")
		}
		if med != nil {
			names[id] = med.Name
		}
	}
	return names, nil
}

package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pasientflyt/backend/internal/patient"
)

func TestMatchesEventTypeAndSubFilters(t *testing.T) {
	w := &Workflow{TriggerType: TriggerAppointmentMissed}
	occ := Occurrence{Type: TriggerAppointmentMissed}
	require.True(t, MatchesEvent(w, occ))

	occ.Type = TriggerAppointmentCompleted
	require.False(t, MatchesEvent(w, occ))

	// Appointment type sub-filter.
	w.TriggerConfig.AppointmentType = "kontroll"
	occ = Occurrence{Type: TriggerAppointmentMissed, Payload: map[string]any{"appointmentType": "kontroll"}}
	require.True(t, MatchesEvent(w, occ))
	occ.Payload["appointmentType"] = "akutt"
	require.False(t, MatchesEvent(w, occ))
	occ.Payload = nil
	require.False(t, MatchesEvent(w, occ))
}

func TestMatchesEventLifecycleChange(t *testing.T) {
	w := &Workflow{
		TriggerType:   TriggerLifecycleChange,
		TriggerConfig: TriggerConfig{LifecycleFrom: "ACTIVE", LifecycleTo: "AT_RISK"},
	}
	occ := Occurrence{
		Type:    TriggerLifecycleChange,
		Payload: map[string]any{"from": "ACTIVE", "to": "AT_RISK"},
	}
	require.True(t, MatchesEvent(w, occ))

	occ.Payload["to"] = "DORMANT"
	require.False(t, MatchesEvent(w, occ))

	// Only the destination constrained.
	w.TriggerConfig = TriggerConfig{LifecycleTo: "AT_RISK"}
	occ.Payload = map[string]any{"from": "NEW", "to": "AT_RISK"}
	require.True(t, MatchesEvent(w, occ))
}

func TestMatchesEventCustomName(t *testing.T) {
	w := &Workflow{
		TriggerType:   TriggerCustom,
		TriggerConfig: TriggerConfig{EventName: "consent.given"},
	}
	occ := Occurrence{Type: TriggerCustom, Payload: map[string]any{"eventName": "consent.given"}}
	require.True(t, MatchesEvent(w, occ))

	occ.Payload["eventName"] = "consent.revoked"
	require.False(t, MatchesEvent(w, occ))
}

func TestMatchesEventRejectsTimeBasedTriggers(t *testing.T) {
	w := &Workflow{TriggerType: TriggerDaysSinceVisit}
	require.False(t, MatchesEvent(w, Occurrence{Type: TriggerDaysSinceVisit}))
}

func TestMatchesTickDaysSinceVisit(t *testing.T) {
	w := &Workflow{
		TriggerType:   TriggerDaysSinceVisit,
		TriggerConfig: TriggerConfig{Days: 42},
	}
	lastVisit := time.Date(2026, 7, 1, 14, 30, 0, 0, time.UTC)
	p := &patient.Patient{LastVisitDate: &lastVisit}

	// Due exactly 42 calendar days later, regardless of time of day.
	require.True(t, MatchesTick(w, p, time.Date(2026, 8, 12, 6, 0, 0, 0, time.UTC)))
	require.False(t, MatchesTick(w, p, time.Date(2026, 8, 11, 23, 59, 0, 0, time.UTC)))
	require.False(t, MatchesTick(w, p, time.Date(2026, 8, 13, 0, 0, 0, 0, time.UTC)))

	p.LastVisitDate = nil
	require.False(t, MatchesTick(w, p, time.Date(2026, 8, 12, 6, 0, 0, 0, time.UTC)))
}

func TestMatchesTickBirthday(t *testing.T) {
	birth := time.Date(1984, 3, 15, 0, 0, 0, 0, time.UTC)
	p := &patient.Patient{BirthDate: &birth}

	w := &Workflow{TriggerType: TriggerBirthday}
	require.True(t, MatchesTick(w, p, time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)))
	require.False(t, MatchesTick(w, p, time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)))

	// Fire three days ahead of the birthday.
	w.TriggerConfig.DaysBefore = 3
	require.True(t, MatchesTick(w, p, time.Date(2026, 3, 12, 8, 0, 0, 0, time.UTC)))
	require.False(t, MatchesTick(w, p, time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)))

	p.BirthDate = nil
	require.False(t, MatchesTick(w, p, time.Date(2026, 3, 12, 8, 0, 0, 0, time.UTC)))
}

func TestOccurrenceKey(t *testing.T) {
	evt := Occurrence{ID: "abc-123", Type: TriggerAppointmentMissed}
	require.Equal(t, "evt:abc-123", evt.Key())

	tick := Occurrence{
		Type:       TriggerDaysSinceVisit,
		OccurredAt: time.Date(2026, 8, 12, 6, 0, 0, 0, time.UTC),
	}
	require.Equal(t, "DAYS_SINCE_VISIT:2026-08-12", tick.Key())
}

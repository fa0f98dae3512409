package workflow

import (
	"time"

	"pasientflyt/backend/internal/patient"
)

// MatchesEvent reports whether the workflow's trigger fires for the given
// occurrence, including the trigger-config sub-filters. Time-derived
// triggers never match a discrete occurrence.
func MatchesEvent(w *Workflow, occ Occurrence) bool {
	if w.TriggerType.IsTimeBased() || w.TriggerType != occ.Type {
		return false
	}
	cfg := w.TriggerConfig
	switch w.TriggerType {
	case TriggerAppointmentScheduled, TriggerAppointmentCompleted,
		TriggerAppointmentMissed, TriggerAppointmentCancelled:
		if cfg.AppointmentType != "" {
			got, _ := occ.Payload["appointmentType"].(string)
			if got != cfg.AppointmentType {
				return false
			}
		}
	case TriggerLifecycleChange:
		if cfg.LifecycleFrom != "" {
			got, _ := occ.Payload["from"].(string)
			if got != cfg.LifecycleFrom {
				return false
			}
		}
		if cfg.LifecycleTo != "" {
			got, _ := occ.Payload["to"].(string)
			if got != cfg.LifecycleTo {
				return false
			}
		}
	case TriggerCustom:
		got, _ := occ.Payload["eventName"].(string)
		if got != cfg.EventName {
			return false
		}
	}
	return true
}

// MatchesTick reports whether a time-derived workflow is due for the given
// patient on the asOf date. Comparison is by calendar date, never by hours,
// so the daily tick fires exactly once per patient regardless of time of day.
func MatchesTick(w *Workflow, p *patient.Patient, asOf time.Time) bool {
	switch w.TriggerType {
	case TriggerDaysSinceVisit:
		if p.LastVisitDate == nil {
			return false
		}
		due := dateOnly(*p.LastVisitDate).AddDate(0, 0, w.TriggerConfig.Days)
		return due.Equal(dateOnly(asOf))
	case TriggerBirthday:
		if p.BirthDate == nil {
			return false
		}
		target := dateOnly(asOf).AddDate(0, 0, w.TriggerConfig.DaysBefore)
		return p.BirthDate.Month() == target.Month() && p.BirthDate.Day() == target.Day()
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TickOccurrence builds the synthetic occurrence a time-derived trigger
// produces for one patient on one day.
func TickOccurrence(w *Workflow, p *patient.Patient, asOf time.Time) Occurrence {
	return Occurrence{
		Type:           w.TriggerType,
		OrganizationID: w.OrganizationID,
		PatientID:      p.ID,
		OccurredAt:     asOf,
	}
}

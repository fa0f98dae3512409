package workflow

import (
	"fmt"
	"time"

	"pasientflyt/backend/internal/common"
)

// TriggerType is the closed set of workflow triggers.
type TriggerType string

const (
	// Event-based triggers fire on a discrete domain occurrence.
	TriggerPatientCreated       TriggerType = "PATIENT_CREATED"
	TriggerAppointmentScheduled TriggerType = "APPOINTMENT_SCHEDULED"
	TriggerAppointmentCompleted TriggerType = "APPOINTMENT_COMPLETED"
	TriggerAppointmentMissed    TriggerType = "APPOINTMENT_MISSED"
	TriggerAppointmentCancelled TriggerType = "APPOINTMENT_CANCELLED"
	TriggerLifecycleChange      TriggerType = "LIFECYCLE_CHANGE"
	TriggerCustom               TriggerType = "CUSTOM"

	// Time-derived triggers are evaluated on the daily tick.
	TriggerDaysSinceVisit TriggerType = "DAYS_SINCE_VISIT"
	TriggerBirthday       TriggerType = "BIRTHDAY"
)

// EventTriggerTypes lists the triggers fired by discrete occurrences.
var EventTriggerTypes = []TriggerType{
	TriggerPatientCreated,
	TriggerAppointmentScheduled,
	TriggerAppointmentCompleted,
	TriggerAppointmentMissed,
	TriggerAppointmentCancelled,
	TriggerLifecycleChange,
	TriggerCustom,
}

// TimeTriggerTypes lists the triggers evaluated on the daily tick.
var TimeTriggerTypes = []TriggerType{
	TriggerDaysSinceVisit,
	TriggerBirthday,
}

// IsTimeBased reports whether the trigger belongs to the daily-tick family.
func (t TriggerType) IsTimeBased() bool {
	return t == TriggerDaysSinceVisit || t == TriggerBirthday
}

// TriggerConfig carries the trigger-type specific parameters. Only the
// fields relevant to the workflow's trigger type are set.
type TriggerConfig struct {
	// Event sub-filters.
	AppointmentType string `json:"appointmentType,omitempty"`
	LifecycleFrom   string `json:"lifecycleFrom,omitempty"`
	LifecycleTo     string `json:"lifecycleTo,omitempty"`
	EventName       string `json:"eventName,omitempty"` // CUSTOM only

	// Time-derived parameters.
	Days       int `json:"days,omitempty"`       // DAYS_SINCE_VISIT
	DaysBefore int `json:"daysBefore,omitempty"` // BIRTHDAY
}

// Operator is the closed set of condition operators. Unknown operators are
// rejected when the workflow is saved, never at evaluation time.
type Operator string

const (
	OpEquals         Operator = "EQUALS"
	OpNotEquals      Operator = "NOT_EQUALS"
	OpGreaterThan    Operator = "GREATER_THAN"
	OpLessThan       Operator = "LESS_THAN"
	OpGreaterOrEqual Operator = "GREATER_OR_EQUAL"
	OpLessOrEqual    Operator = "LESS_OR_EQUAL"
	OpContains       Operator = "CONTAINS"
	OpNotContains    Operator = "NOT_CONTAINS"
	OpIn             Operator = "IN"
	OpNotIn          Operator = "NOT_IN"
	OpIsSet          Operator = "IS_SET"
	OpIsNotSet       Operator = "IS_NOT_SET"
)

// Logic joins a condition clause to the preceding one.
const (
	LogicAnd = "AND"
	LogicOr  = "OR"
)

// ConditionClause is one {field, operator, value} predicate. Logic joins
// the clause to the one before it; the default (and first clause's value)
// is AND. Consecutive OR clauses form a group that is OR-ed internally and
// AND-ed against the other groups.
type ConditionClause struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
	Logic    string   `json:"logic,omitempty"`
}

// ActionType is the closed set of workflow actions.
type ActionType string

const (
	ActionSendSMS         ActionType = "SEND_SMS"
	ActionSendEmail       ActionType = "SEND_EMAIL"
	ActionCreateFollowUp  ActionType = "CREATE_FOLLOW_UP"
	ActionCreateTask      ActionType = "CREATE_TASK"
	ActionUpdateStatus    ActionType = "UPDATE_STATUS"
	ActionUpdateLifecycle ActionType = "UPDATE_LIFECYCLE"
	ActionNotifyStaff     ActionType = "NOTIFY_STAFF"
	ActionAddTag          ActionType = "ADD_TAG"
)

// ActionSpec is one declared side effect. The list order on the workflow is
// the execution order. Fields are per-kind; the validator enforces which are
// required for each type.
type ActionSpec struct {
	Type ActionType `json:"type"`

	// SEND_SMS / SEND_EMAIL
	Message string `json:"message,omitempty"` // template text
	Subject string `json:"subject,omitempty"` // SEND_EMAIL only

	// CREATE_FOLLOW_UP / CREATE_TASK / NOTIFY_STAFF
	Title     string `json:"title,omitempty"`
	DueInDays int    `json:"dueInDays,omitempty"`

	// UPDATE_STATUS / UPDATE_LIFECYCLE
	NewStatus    string `json:"newStatus,omitempty"`
	NewLifecycle string `json:"newLifecycle,omitempty"`

	// NOTIFY_STAFF audience: explicit ids win over the role filter.
	StaffIDs   []string `json:"staffIds,omitempty"`
	StaffRoles []string `json:"staffRoles,omitempty"`

	// ADD_TAG
	Tag string `json:"tag,omitempty"`
}

// Workflow is the persisted rule definition, scoped to an organization and
// consumed read-only by the engine.
type Workflow struct {
	ID             string `json:"id" gorm:"primaryKey;type:uuid"`
	OrganizationID string `json:"organizationId" gorm:"type:uuid;not null;index"`

	Name        string `json:"name" gorm:"size:255;not null"`
	Description string `json:"description" gorm:"type:text"`

	TriggerType   TriggerType       `json:"triggerType" gorm:"size:50;not null;index"`
	TriggerConfig TriggerConfig     `json:"triggerConfig" gorm:"type:jsonb;serializer:json"`
	Conditions    []ConditionClause `json:"conditions" gorm:"type:jsonb;serializer:json"`
	Actions       []ActionSpec      `json:"actions" gorm:"type:jsonb;serializer:json"`

	IsActive          bool `json:"isActive" gorm:"default:true;index"`
	MaxRunsPerPatient int  `json:"maxRunsPerPatient" gorm:"default:1"`

	CreatedBy string `json:"createdBy" gorm:"size:100"`

	common.TimestampModel
	common.SoftDeleteModel
}

// ExecutionStatus is the run state machine. Transitions are monotonic:
// PENDING -> RUNNING -> COMPLETED | FAILED. SKIPPED is terminal on creation.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "PENDING"
	StatusRunning   ExecutionStatus = "RUNNING"
	StatusCompleted ExecutionStatus = "COMPLETED"
	StatusFailed    ExecutionStatus = "FAILED"
	StatusSkipped   ExecutionStatus = "SKIPPED"
)

// Occurrence is one triggering event, either a real domain event or the
// synthetic daily tick.
type Occurrence struct {
	ID             string         `json:"id"`
	Type           TriggerType    `json:"type"`
	OrganizationID string         `json:"organizationId"`
	PatientID      string         `json:"patientId,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
}

// Key identifies the occurrence for idempotency purposes. Domain events use
// their event id; the engine assigns one to events that arrive without it.
// The daily tick carries no id, so it keys on trigger type plus date:
// re-running one day's tick is idempotent while the next day is a new
// occurrence.
func (o Occurrence) Key() string {
	if o.ID != "" {
		return "evt:" + o.ID
	}
	return fmt.Sprintf("%s:%s", o.Type, o.OccurredAt.Format("2006-01-02"))
}

// ActionResult is the recorded outcome of one action within a run, kept in
// list order on the execution row.
type ActionResult struct {
	Index      int        `json:"index"`
	Type       ActionType `json:"type"`
	Success    bool       `json:"success"`
	SideEffect string     `json:"sideEffect,omitempty"` // message id, follow-up id, ...
	Error      string     `json:"error,omitempty"`
}

// WorkflowExecution is the append-only record of one workflow run against
// one patient for one occurrence. The unique index on (workflow_id,
// patient_id, occurrence_key) is the race backstop for the idempotency
// check-and-insert.
type WorkflowExecution struct {
	ID             string  `json:"id" gorm:"primaryKey;type:uuid"`
	OrganizationID string  `json:"organizationId" gorm:"type:uuid;not null;index"`
	WorkflowID     string  `json:"workflowId" gorm:"type:uuid;not null;index;uniqueIndex:idx_run_occurrence"`
	PatientID      *string `json:"patientId,omitempty" gorm:"type:uuid;index;uniqueIndex:idx_run_occurrence"`
	OccurrenceKey  string  `json:"occurrenceKey" gorm:"size:100;not null;uniqueIndex:idx_run_occurrence"`

	Status ExecutionStatus `json:"status" gorm:"size:20;not null;default:PENDING;index"`

	Trigger       Occurrence     `json:"trigger" gorm:"type:jsonb;serializer:json"`
	ActionResults []ActionResult `json:"actionResults" gorm:"type:jsonb;serializer:json"`
	ErrorMessage  string         `json:"errorMessage,omitempty" gorm:"type:text"`

	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`

	TraceID   string    `json:"traceId" gorm:"size:100;index"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime;index"`
}

// IsTerminal reports whether the execution reached a final state.
func (e *WorkflowExecution) IsTerminal() bool {
	switch e.Status {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

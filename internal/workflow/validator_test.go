package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validWorkflow() *Workflow {
	return &Workflow{
		Name:          "Recall etter 42 dager",
		TriggerType:   TriggerDaysSinceVisit,
		TriggerConfig: TriggerConfig{Days: 42},
		Conditions: []ConditionClause{
			{Field: "lifecycle", Operator: OpEquals, Value: "ACTIVE"},
		},
		Actions: []ActionSpec{
			{Type: ActionSendSMS, Message: "Hei {firstName}, på tide med en time!"},
		},
		MaxRunsPerPatient: 1,
	}
}

func TestValidateAcceptsWellFormedWorkflow(t *testing.T) {
	require.NoError(t, Validate(validWorkflow()))
}

func TestValidateRejectsUnknownTrigger(t *testing.T) {
	w := validWorkflow()
	w.TriggerType = "APPOINTMENT_EXPLODED"
	err := Validate(w)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "triggerType", cfgErr.Field)
}

func TestValidateRejectsUnknownOperator(t *testing.T) {
	w := validWorkflow()
	w.Conditions[0].Operator = "FUZZY_MATCH"
	err := Validate(w)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Contains(t, cfgErr.Field, "operator")
}

func TestValidateRejectsUnknownActionType(t *testing.T) {
	w := validWorkflow()
	w.Actions[0].Type = "LAUNCH_ROCKET"
	require.Error(t, Validate(w))
}

func TestValidateTriggerConfigRequirements(t *testing.T) {
	w := validWorkflow()
	w.TriggerConfig.Days = 0
	require.Error(t, Validate(w))

	w = validWorkflow()
	w.TriggerType = TriggerCustom
	w.TriggerConfig = TriggerConfig{}
	require.Error(t, Validate(w))
	w.TriggerConfig.EventName = "consent.given"
	require.NoError(t, Validate(w))
}

func TestValidateActionRequirements(t *testing.T) {
	tests := []struct {
		name   string
		action ActionSpec
		ok     bool
	}{
		{"sms without message", ActionSpec{Type: ActionSendSMS}, false},
		{"email without subject", ActionSpec{Type: ActionSendEmail, Message: "hei"}, false},
		{"email complete", ActionSpec{Type: ActionSendEmail, Message: "hei", Subject: "Påminnelse"}, true},
		{"follow-up without title", ActionSpec{Type: ActionCreateFollowUp}, false},
		{"task complete", ActionSpec{Type: ActionCreateTask, Title: "Ring pasient", DueInDays: 2}, true},
		{"status without value", ActionSpec{Type: ActionUpdateStatus}, false},
		{"lifecycle complete", ActionSpec{Type: ActionUpdateLifecycle, NewLifecycle: "AT_RISK"}, true},
		{"notify without audience", ActionSpec{Type: ActionNotifyStaff, Message: "hei"}, false},
		{"notify with roles", ActionSpec{Type: ActionNotifyStaff, Message: "hei", StaffRoles: []string{"lege"}}, true},
		{"tag without value", ActionSpec{Type: ActionAddTag}, false},
		{"tag complete", ActionSpec{Type: ActionAddTag, Tag: "recall"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := validWorkflow()
			w.Actions = []ActionSpec{tt.action}
			err := Validate(w)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestValidateConditionValueRules(t *testing.T) {
	w := validWorkflow()

	// IN needs a list value.
	w.Conditions = []ConditionClause{{Field: "lifecycle", Operator: OpIn, Value: "ACTIVE"}}
	require.Error(t, Validate(w))
	w.Conditions[0].Value = []any{"ACTIVE", "AT_RISK"}
	require.NoError(t, Validate(w))

	// IS_SET ignores the value.
	w.Conditions = []ConditionClause{{Field: "email", Operator: OpIsSet}}
	require.NoError(t, Validate(w))

	// Comparison operators need a value.
	w.Conditions = []ConditionClause{{Field: "total_visits", Operator: OpGreaterThan}}
	require.Error(t, Validate(w))

	// Logic must be AND or OR when present.
	w.Conditions = []ConditionClause{{Field: "lifecycle", Operator: OpEquals, Value: "ACTIVE", Logic: "XOR"}}
	require.Error(t, Validate(w))
}

func TestValidateRequiresNameAndActions(t *testing.T) {
	w := validWorkflow()
	w.Name = ""
	require.Error(t, Validate(w))

	w = validWorkflow()
	w.Actions = nil
	require.Error(t, Validate(w))

	w = validWorkflow()
	w.MaxRunsPerPatient = -1
	require.Error(t, Validate(w))
}

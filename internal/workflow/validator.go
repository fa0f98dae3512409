package workflow

import "fmt"

// ConfigError reports a rejected workflow definition. Validation runs at
// save time so the engine never sees an unknown trigger, operator or action.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid workflow config: %s: %s", e.Field, e.Reason)
}

func configErr(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

var validOperators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true,
	OpGreaterThan: true, OpLessThan: true,
	OpGreaterOrEqual: true, OpLessOrEqual: true,
	OpContains: true, OpNotContains: true,
	OpIn: true, OpNotIn: true,
	OpIsSet: true, OpIsNotSet: true,
}

var validActionTypes = map[ActionType]bool{
	ActionSendSMS: true, ActionSendEmail: true,
	ActionCreateFollowUp: true, ActionCreateTask: true,
	ActionUpdateStatus: true, ActionUpdateLifecycle: true,
	ActionNotifyStaff: true, ActionAddTag: true,
}

var validTriggerTypes = func() map[TriggerType]bool {
	m := make(map[TriggerType]bool)
	for _, t := range EventTriggerTypes {
		m[t] = true
	}
	for _, t := range TimeTriggerTypes {
		m[t] = true
	}
	return m
}()

// Validate checks the full definition against the closed trigger, operator
// and action sets and the per-kind required fields.
func Validate(w *Workflow) error {
	if w.Name == "" {
		return configErr("name", "required")
	}
	if err := validateTrigger(w.TriggerType, w.TriggerConfig); err != nil {
		return err
	}
	for i, c := range w.Conditions {
		if err := validateClause(i, c); err != nil {
			return err
		}
	}
	if len(w.Actions) == 0 {
		return configErr("actions", "at least one action is required")
	}
	for i, a := range w.Actions {
		if err := validateAction(i, a); err != nil {
			return err
		}
	}
	if w.MaxRunsPerPatient < 0 {
		return configErr("maxRunsPerPatient", "must not be negative")
	}
	return nil
}

func validateTrigger(t TriggerType, cfg TriggerConfig) error {
	if !validTriggerTypes[t] {
		return configErr("triggerType", "unknown trigger type %q", t)
	}
	switch t {
	case TriggerCustom:
		if cfg.EventName == "" {
			return configErr("triggerConfig.eventName", "required for CUSTOM trigger")
		}
	case TriggerDaysSinceVisit:
		if cfg.Days <= 0 {
			return configErr("triggerConfig.days", "must be positive for DAYS_SINCE_VISIT")
		}
	case TriggerBirthday:
		if cfg.DaysBefore < 0 {
			return configErr("triggerConfig.daysBefore", "must not be negative")
		}
	}
	return nil
}

func validateClause(i int, c ConditionClause) error {
	field := fmt.Sprintf("conditions[%d]", i)
	if c.Field == "" {
		return configErr(field+".field", "required")
	}
	if !validOperators[c.Operator] {
		return configErr(field+".operator", "unknown operator %q", c.Operator)
	}
	switch c.Operator {
	case OpIsSet, OpIsNotSet:
		// value is ignored
	case OpIn, OpNotIn:
		if _, ok := c.Value.([]any); !ok {
			if _, ok := c.Value.([]string); !ok {
				return configErr(field+".value", "must be a list for %s", c.Operator)
			}
		}
	default:
		if c.Value == nil {
			return configErr(field+".value", "required for %s", c.Operator)
		}
	}
	if c.Logic != "" && c.Logic != LogicAnd && c.Logic != LogicOr {
		return configErr(field+".logic", "must be AND or OR")
	}
	return nil
}

func validateAction(i int, a ActionSpec) error {
	field := fmt.Sprintf("actions[%d]", i)
	if !validActionTypes[a.Type] {
		return configErr(field+".type", "unknown action type %q", a.Type)
	}
	switch a.Type {
	case ActionSendSMS:
		if a.Message == "" {
			return configErr(field+".message", "required for SEND_SMS")
		}
	case ActionSendEmail:
		if a.Message == "" {
			return configErr(field+".message", "required for SEND_EMAIL")
		}
		if a.Subject == "" {
			return configErr(field+".subject", "required for SEND_EMAIL")
		}
	case ActionCreateFollowUp, ActionCreateTask:
		if a.Title == "" {
			return configErr(field+".title", "required for %s", a.Type)
		}
		if a.DueInDays < 0 {
			return configErr(field+".dueInDays", "must not be negative")
		}
	case ActionUpdateStatus:
		if a.NewStatus == "" {
			return configErr(field+".newStatus", "required for UPDATE_STATUS")
		}
	case ActionUpdateLifecycle:
		if a.NewLifecycle == "" {
			return configErr(field+".newLifecycle", "required for UPDATE_LIFECYCLE")
		}
	case ActionNotifyStaff:
		if a.Message == "" {
			return configErr(field+".message", "required for NOTIFY_STAFF")
		}
		if len(a.StaffIDs) == 0 && len(a.StaffRoles) == 0 {
			return configErr(field, "staffIds or staffRoles required for NOTIFY_STAFF")
		}
	case ActionAddTag:
		if a.Tag == "" {
			return configErr(field+".tag", "required for ADD_TAG")
		}
	}
	return nil
}

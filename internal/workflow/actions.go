package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pasientflyt/backend/internal/followup"
	"pasientflyt/backend/internal/metrics"
	"pasientflyt/backend/internal/patient"
	"pasientflyt/backend/internal/staff"
)

// PatientWriter is the slice of the patient service the executor mutates
// through.
type PatientWriter interface {
	UpdateStatus(ctx context.Context, organizationID, patientID, status string) error
	UpdateLifecycle(ctx context.Context, organizationID, patientID, lifecycle string) error
	AddTag(ctx context.Context, organizationID, patientID, tag string) error
}

// FollowUpCreator opens follow-ups and tasks.
type FollowUpCreator interface {
	Create(ctx context.Context, in followup.CreateInput) (*followup.FollowUp, error)
}

// StaffResolver resolves a NOTIFY_STAFF audience.
type StaffResolver interface {
	Resolve(ctx context.Context, organizationID string, ids []string, roles []string) ([]*staff.Staff, error)
}

// SMSSender and EmailSender mirror the messaging package interfaces; the
// executor depends on them so dry runs and tests can swap in fakes.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) (string, error)
}

// ActionExecutor runs one action spec against one patient. Each action gets
// its own timeout; a failing or panicking action is recorded and never
// aborts the rest of the list.
type ActionExecutor struct {
	patients  PatientWriter
	followups FollowUpCreator
	staff     StaffResolver
	sms       SMSSender
	email     EmailSender
	timeout   time.Duration
	logger    *zap.Logger
}

func NewActionExecutor(patients PatientWriter, followups FollowUpCreator, directory StaffResolver, sms SMSSender, email EmailSender, timeout time.Duration, logger *zap.Logger) *ActionExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ActionExecutor{
		patients:  patients,
		followups: followups,
		staff:     directory,
		sms:       sms,
		email:     email,
		timeout:   timeout,
		logger:    logger,
	}
}

// ExecuteAll runs the action list in order and returns one result per spec.
// The patient may be nil for occurrences that carry none; only staff
// notifications can run then.
func (e *ActionExecutor) ExecuteAll(ctx context.Context, w *Workflow, p *patient.Patient, now time.Time) []ActionResult {
	vars := TemplateVars(p, now)
	patientID := ""
	if p != nil {
		patientID = p.ID
	}
	results := make([]ActionResult, 0, len(w.Actions))
	for i, spec := range w.Actions {
		res := e.execute(ctx, w, p, spec, vars)
		res.Index = i
		res.Type = spec.Type
		outcome := "success"
		if !res.Success {
			outcome = "failure"
			e.logger.Warn("workflow action failed",
				zap.String("workflow_id", w.ID),
				zap.String("patient_id", patientID),
				zap.String("action_type", string(spec.Type)),
				zap.Int("action_index", i),
				zap.String("error", res.Error))
		}
		metrics.ActionResultsTotal.WithLabelValues(string(spec.Type), outcome).Inc()
		results = append(results, res)
	}
	return results
}

func (e *ActionExecutor) execute(ctx context.Context, w *Workflow, p *patient.Patient, spec ActionSpec, vars map[string]string) (res ActionResult) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			res = ActionResult{Success: false, Error: fmt.Sprintf("action panicked: %v", r)}
		}
	}()

	// NOTIFY_STAFF is the only action that does not need a patient.
	if p == nil && spec.Type != ActionNotifyStaff {
		return ActionResult{Success: false, Error: "occurrence has no patient"}
	}

	var sideEffect string
	var err error

	switch spec.Type {
	case ActionSendSMS:
		if p.Phone == "" {
			err = fmt.Errorf("patient has no phone number")
			break
		}
		sideEffect, err = e.sms.SendSMS(ctx, p.Phone, RenderTemplate(spec.Message, vars))
	case ActionSendEmail:
		if p.Email == "" {
			err = fmt.Errorf("patient has no email address")
			break
		}
		sideEffect, err = e.email.SendEmail(ctx, p.Email, RenderTemplate(spec.Subject, vars), RenderTemplate(spec.Message, vars))
	case ActionCreateFollowUp, ActionCreateTask:
		kind := followup.KindFollowUp
		if spec.Type == ActionCreateTask {
			kind = followup.KindTask
		}
		var fu *followup.FollowUp
		fu, err = e.followups.Create(ctx, followup.CreateInput{
			OrganizationID: w.OrganizationID,
			PatientID:      &p.ID,
			Kind:           kind,
			Title:          RenderTemplate(spec.Title, vars),
			Description:    RenderTemplate(spec.Message, vars),
			DueInDays:      spec.DueInDays,
			AutoGenerated:  true,
			TriggerRule:    w.Name,
		})
		if err == nil {
			sideEffect = fu.ID
		}
	case ActionUpdateStatus:
		err = e.patients.UpdateStatus(ctx, w.OrganizationID, p.ID, spec.NewStatus)
	case ActionUpdateLifecycle:
		err = e.patients.UpdateLifecycle(ctx, w.OrganizationID, p.ID, spec.NewLifecycle)
	case ActionNotifyStaff:
		sideEffect, err = e.notifyStaff(ctx, w, p, spec, vars)
	case ActionAddTag:
		err = e.patients.AddTag(ctx, w.OrganizationID, p.ID, spec.Tag)
	default:
		err = fmt.Errorf("unknown action type %q", spec.Type)
	}

	if err != nil {
		return ActionResult{Success: false, Error: err.Error()}
	}
	return ActionResult{Success: true, SideEffect: sideEffect}
}

// notifyStaff resolves the audience and opens one task per resolved staff
// member, assigned to them. Partial creation failures are collected; the
// action fails only if no task could be created.
func (e *ActionExecutor) notifyStaff(ctx context.Context, w *Workflow, p *patient.Patient, spec ActionSpec, vars map[string]string) (string, error) {
	members, err := e.staff.Resolve(ctx, w.OrganizationID, spec.StaffIDs, spec.StaffRoles)
	if err != nil {
		return "", fmt.Errorf("resolve staff: %w", err)
	}
	if len(members) == 0 {
		return "", fmt.Errorf("no staff matched the notification audience")
	}
	title := spec.Title
	if title == "" {
		title = fmt.Sprintf("Varsel: %s", w.Name)
	}
	title = RenderTemplate(title, vars)
	description := RenderTemplate(spec.Message, vars)
	var patientID *string
	if p != nil {
		patientID = &p.ID
	}

	created := 0
	var lastErr error
	for _, m := range members {
		assignee := m.ID
		_, createErr := e.followups.Create(ctx, followup.CreateInput{
			OrganizationID: w.OrganizationID,
			PatientID:      patientID,
			AssigneeID:     &assignee,
			Kind:           followup.KindTask,
			Title:          title,
			Description:    description,
			DueInDays:      spec.DueInDays,
			AutoGenerated:  true,
			TriggerRule:    w.Name,
		})
		if createErr != nil {
			lastErr = createErr
			continue
		}
		created++
	}
	if created == 0 {
		return "", fmt.Errorf("notify staff: %w", lastErr)
	}
	return fmt.Sprintf("notified %d staff", created), nil
}

// PreviewAll renders every action without touching the database or the
// messaging gateways. Used by the dry-run endpoint.
func PreviewAll(w *Workflow, p *patient.Patient, now time.Time) []ActionPreview {
	vars := TemplateVars(p, now)
	previews := make([]ActionPreview, 0, len(w.Actions))
	for i, spec := range w.Actions {
		pv := ActionPreview{Index: i, Type: spec.Type}
		switch spec.Type {
		case ActionSendSMS:
			pv.Recipient = p.Phone
			pv.Message = RenderTemplate(spec.Message, vars)
		case ActionSendEmail:
			pv.Recipient = p.Email
			pv.Subject = RenderTemplate(spec.Subject, vars)
			pv.Message = RenderTemplate(spec.Message, vars)
		case ActionCreateFollowUp, ActionCreateTask:
			pv.Title = RenderTemplate(spec.Title, vars)
			pv.Message = RenderTemplate(spec.Message, vars)
			pv.DueInDays = spec.DueInDays
		case ActionUpdateStatus:
			pv.Detail = fmt.Sprintf("status -> %s", spec.NewStatus)
		case ActionUpdateLifecycle:
			pv.Detail = fmt.Sprintf("lifecycle -> %s", spec.NewLifecycle)
		case ActionNotifyStaff:
			pv.Message = RenderTemplate(spec.Message, vars)
			pv.Detail = fmt.Sprintf("audience: ids=%v roles=%v", spec.StaffIDs, spec.StaffRoles)
		case ActionAddTag:
			pv.Detail = fmt.Sprintf("tag += %s", spec.Tag)
		}
		previews = append(previews, pv)
	}
	return previews
}

// ActionPreview is the dry-run rendering of one action.
type ActionPreview struct {
	Index     int        `json:"index"`
	Type      ActionType `json:"type"`
	Recipient string     `json:"recipient,omitempty"`
	Subject   string     `json:"subject,omitempty"`
	Title     string     `json:"title,omitempty"`
	Message   string     `json:"message,omitempty"`
	DueInDays int        `json:"dueInDays,omitempty"`
	Detail    string     `json:"detail,omitempty"`
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"pasientflyt/backend/internal/common"
	"pasientflyt/backend/internal/logger"
	"pasientflyt/backend/internal/metrics"
	"pasientflyt/backend/internal/patient"
)

var tracer = otel.Tracer("pasientflyt/workflow")

// PatientReader is the slice of the patient service the engine reads
// through.
type PatientReader interface {
	Get(ctx context.Context, organizationID, patientID string) (*patient.Patient, error)
	ListByOrganization(ctx context.Context, organizationID string, fn func(batch []*patient.Patient) error) error
}

// Engine evaluates and runs workflows. It is safe for concurrent use; all
// state lives in the database.
type Engine struct {
	db         *gorm.DB
	patients   PatientReader
	executions *ExecutionStore
	actions    *ActionExecutor
	logger     *zap.Logger
}

func NewEngine(db *gorm.DB, patients PatientReader, executions *ExecutionStore, actions *ActionExecutor, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		db:         db,
		patients:   patients,
		executions: executions,
		actions:    actions,
		logger:     log,
	}
}

// TriggerWorkflow dispatches a domain occurrence to every active workflow in
// the organization whose trigger matches. Each matching workflow runs
// independently; one workflow's failure never stops the others.
func (e *Engine) TriggerWorkflow(ctx context.Context, occ Occurrence) error {
	ctx, span := tracer.Start(ctx, "workflow.trigger",
		trace.WithAttributes(
			attribute.String("occurrence.type", string(occ.Type)),
			attribute.String("organization.id", occ.OrganizationID),
		))
	defer span.End()

	if occ.Type.IsTimeBased() {
		return fmt.Errorf("occurrence type %s is time-based, use ProcessTimeBasedTriggers", occ.Type)
	}
	if occ.OccurredAt.IsZero() {
		occ.OccurredAt = time.Now().UTC()
	}
	// Every event needs a distinct idempotency key. Without an id, two
	// same-day events of the same type for the same patient would collapse
	// into one occurrence.
	if occ.ID == "" {
		occ.ID = uuid.New().String()
	}

	workflows, err := e.activeWorkflows(ctx, occ.OrganizationID, EventTriggerTypes)
	if err != nil {
		return err
	}

	var firstErr error
	for _, w := range workflows {
		if !MatchesEvent(w, occ) {
			continue
		}
		if err := e.runOne(ctx, w, occ); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ProcessTimeBasedTriggers evaluates every time-derived workflow in the
// organization against every patient for the asOf date. Safe to re-run for
// the same day: the occurrence key makes repeats no-ops.
func (e *Engine) ProcessTimeBasedTriggers(ctx context.Context, organizationID string, asOf time.Time) error {
	ctx, span := tracer.Start(ctx, "workflow.tick",
		trace.WithAttributes(attribute.String("organization.id", organizationID)))
	defer span.End()

	workflows, err := e.activeWorkflows(ctx, organizationID, TimeTriggerTypes)
	if err != nil {
		return err
	}
	if len(workflows) == 0 {
		return nil
	}

	scanned := 0
	var firstErr error
	err = e.patients.ListByOrganization(ctx, organizationID, func(batch []*patient.Patient) error {
		scanned += len(batch)
		for _, p := range batch {
			for _, w := range workflows {
				if !MatchesTick(w, p, asOf) {
					continue
				}
				occ := TickOccurrence(w, p, asOf)
				if runErr := e.runOne(ctx, w, occ); runErr != nil && firstErr == nil {
					firstErr = runErr
				}
			}
		}
		return nil
	})
	metrics.TriggerScanPatients.WithLabelValues(organizationID).Set(float64(scanned))
	if err != nil {
		return fmt.Errorf("scan patients: %w", err)
	}
	return firstErr
}

// runOne executes a single workflow against a single occurrence: condition
// check, idempotent execution record, actions, finalization. Returns an
// error only for infrastructure failures; failed actions still complete the
// run.
func (e *Engine) runOne(ctx context.Context, w *Workflow, occ Occurrence) error {
	traceID := logger.GetTraceID(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
		ctx = logger.WithTraceID(ctx, traceID)
	}
	log := e.logger.With(
		zap.String("trace_id", traceID),
		zap.String("workflow_id", w.ID),
		zap.String("workflow_name", w.Name),
		zap.String("patient_id", occ.PatientID),
	)

	var p *patient.Patient
	if occ.PatientID != "" {
		var err error
		p, err = e.patients.Get(ctx, w.OrganizationID, occ.PatientID)
		if err != nil {
			if errors.Is(err, patient.ErrNotFound) {
				log.Warn("occurrence references unknown patient, skipping")
				return nil
			}
			return fmt.Errorf("load patient: %w", err)
		}
	}

	evalCtx := map[string]any{}
	if p != nil {
		evalCtx = p.EvaluationContext()
	}
	if !EvaluateConditions(w.Conditions, evalCtx) {
		log.Debug("conditions not met, workflow not run")
		return nil
	}

	exec, err := e.executions.CreatePending(ctx, w, occ, traceID)
	if err != nil {
		if errors.Is(err, ErrDuplicateRun) {
			log.Debug("occurrence already processed, skipping")
			return nil
		}
		return fmt.Errorf("record execution: %w", err)
	}
	if exec.Status == StatusSkipped {
		log.Info("run skipped, max runs per patient reached",
			zap.Int("max_runs", w.MaxRunsPerPatient))
		return nil
	}

	if err := e.executions.MarkRunning(ctx, exec); err != nil {
		return err
	}
	started := time.Now()

	results := e.actions.ExecuteAll(ctx, w, p, occ.OccurredAt)

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}

	// Individual action failures never fail the run; FAILED is reserved for
	// infrastructure errors outside action execution.
	status := StatusCompleted
	if err := e.executions.Finalize(ctx, exec, status, results, nil); err != nil {
		return err
	}

	metrics.WorkflowRunsTotal.WithLabelValues(string(w.TriggerType), string(status)).Inc()
	metrics.WorkflowRunDuration.WithLabelValues(string(w.TriggerType)).Observe(time.Since(started).Seconds())
	log.Info("workflow run finished",
		zap.String("status", string(status)),
		zap.Int("actions", len(results)),
		zap.Int("actions_failed", failed),
		zap.Duration("duration", time.Since(started)))
	return nil
}

func (e *Engine) activeWorkflows(ctx context.Context, organizationID string, types []TriggerType) ([]*Workflow, error) {
	var workflows []*Workflow
	err := e.db.WithContext(ctx).
		Scopes(common.NotDeleted(), common.ByOrganization(organizationID), common.ActiveOnly()).
		Where("trigger_type IN ?", types).
		Find(&workflows).Error
	if err != nil {
		return nil, fmt.Errorf("load active workflows: %w", err)
	}
	return workflows, nil
}

// TestResult is the outcome of a dry run.
type TestResult struct {
	TriggerMatched   bool            `json:"triggerMatched"`
	ConditionsPassed bool            `json:"conditionsPassed"`
	WouldRun         bool            `json:"wouldRun"`
	SkipReason       string          `json:"skipReason,omitempty"`
	Previews         []ActionPreview `json:"previews,omitempty"`
}

// TestWorkflow evaluates a workflow against a real patient without writing
// an execution record, mutating the patient or calling any gateway. The
// trigger is assumed to have fired; condition evaluation and the
// max-runs-per-patient guard are reported as they would apply.
func (e *Engine) TestWorkflow(ctx context.Context, w *Workflow, patientID string) (*TestResult, error) {
	p, err := e.patients.Get(ctx, w.OrganizationID, patientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	res := &TestResult{TriggerMatched: true}
	res.ConditionsPassed = EvaluateConditions(w.Conditions, p.EvaluationContext())
	if !res.ConditionsPassed {
		res.SkipReason = "conditions not met"
		return res, nil
	}

	if w.ID != "" && w.MaxRunsPerPatient > 0 {
		var completed int64
		err := e.db.WithContext(ctx).Model(&WorkflowExecution{}).
			Where("workflow_id = ? AND patient_id = ? AND status = ?",
				w.ID, patientID, StatusCompleted).
			Count(&completed).Error
		if err != nil {
			return nil, fmt.Errorf("count completed runs: %w", err)
		}
		if completed >= int64(w.MaxRunsPerPatient) {
			res.SkipReason = fmt.Sprintf("max runs per patient reached (%d)", w.MaxRunsPerPatient)
			return res, nil
		}
	}

	res.WouldRun = true
	res.Previews = PreviewAll(w, p, time.Now().UTC())
	return res, nil
}

// GetWorkflowExecutions lists execution records for an organization.
func (e *Engine) GetWorkflowExecutions(ctx context.Context, organizationID string, f ExecutionFilter) ([]*WorkflowExecution, int64, error) {
	return e.executions.List(ctx, organizationID, f)
}

// ExecutionStats aggregates run outcomes for one workflow.
func (e *Engine) ExecutionStats(ctx context.Context, organizationID, workflowID string) (*ExecutionStats, error) {
	return e.executions.Stats(ctx, organizationID, workflowID)
}

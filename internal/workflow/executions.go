package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"pasientflyt/backend/internal/metrics"
)

// ErrDuplicateRun means an execution for the same workflow, patient and
// occurrence already exists; the caller lost the check-and-insert race.
var ErrDuplicateRun = errors.New("execution already recorded for this occurrence")

// ExecutionStore persists WorkflowExecution rows and enforces the
// idempotency guarantees around their creation.
type ExecutionStore struct {
	db *gorm.DB
}

func NewExecutionStore(db *gorm.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

// CreatePending records the intent to run a workflow for an occurrence, in
// one transaction with the idempotency checks:
//
//   - a row for the same (workflow, patient, occurrence) already existing
//     returns ErrDuplicateRun, whether found by lookup or by losing the
//     insert race on the unique index;
//   - a patient already at the workflow's MaxRunsPerPatient completed runs
//     gets a terminal SKIPPED row instead of a PENDING one.
//
// The returned execution is PENDING or SKIPPED; only PENDING rows proceed.
func (s *ExecutionStore) CreatePending(ctx context.Context, w *Workflow, occ Occurrence, traceID string) (*WorkflowExecution, error) {
	exec := &WorkflowExecution{
		ID:             uuid.New().String(),
		OrganizationID: w.OrganizationID,
		WorkflowID:     w.ID,
		OccurrenceKey:  occ.Key(),
		Status:         StatusPending,
		Trigger:        occ,
		TraceID:        traceID,
	}
	if occ.PatientID != "" {
		pid := occ.PatientID
		exec.PatientID = &pid
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dup int64
		q := tx.Model(&WorkflowExecution{}).
			Where("workflow_id = ? AND occurrence_key = ?", w.ID, exec.OccurrenceKey)
		if exec.PatientID != nil {
			q = q.Where("patient_id = ?", *exec.PatientID)
		} else {
			q = q.Where("patient_id IS NULL")
		}
		if err := q.Count(&dup).Error; err != nil {
			return fmt.Errorf("check duplicate run: %w", err)
		}
		if dup > 0 {
			return ErrDuplicateRun
		}

		if exec.PatientID != nil && w.MaxRunsPerPatient > 0 {
			var completed int64
			if err := tx.Model(&WorkflowExecution{}).
				Where("workflow_id = ? AND patient_id = ? AND status = ?",
					w.ID, *exec.PatientID, StatusCompleted).
				Count(&completed).Error; err != nil {
				return fmt.Errorf("count completed runs: %w", err)
			}
			if completed >= int64(w.MaxRunsPerPatient) {
				now := time.Now().UTC()
				exec.Status = StatusSkipped
				exec.CompletedAt = &now
				exec.ErrorMessage = fmt.Sprintf("max runs per patient reached (%d)", w.MaxRunsPerPatient)
			}
		}

		if err := tx.Create(exec).Error; err != nil {
			if isDuplicateKeyError(err) {
				return ErrDuplicateRun
			}
			return fmt.Errorf("create execution: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if exec.Status == StatusSkipped {
		metrics.WorkflowRunsTotal.WithLabelValues(string(w.TriggerType), string(StatusSkipped)).Inc()
	}
	return exec, nil
}

// isDuplicateKeyError recognizes unique-index violations from both postgres
// and sqlite without importing driver-specific error types.
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}

// MarkRunning transitions a PENDING execution to RUNNING.
func (s *ExecutionStore) MarkRunning(ctx context.Context, exec *WorkflowExecution) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&WorkflowExecution{}).
		Where("id = ? AND status = ?", exec.ID, StatusPending).
		Updates(map[string]any{"status": StatusRunning, "started_at": now})
	if res.Error != nil {
		return fmt.Errorf("mark running: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("execution %s is not PENDING", exec.ID)
	}
	exec.Status = StatusRunning
	exec.StartedAt = &now
	return nil
}

// Finalize writes the terminal state and the per-action results. The update
// goes through a struct so the jsonb serializer handles ActionResults.
func (s *ExecutionStore) Finalize(ctx context.Context, exec *WorkflowExecution, status ExecutionStatus, results []ActionResult, runErr error) error {
	now := time.Now().UTC()
	exec.Status = status
	exec.CompletedAt = &now
	exec.ActionResults = results
	if runErr != nil {
		exec.ErrorMessage = runErr.Error()
	}
	res := s.db.WithContext(ctx).Model(&WorkflowExecution{}).
		Where("id = ? AND status = ?", exec.ID, StatusRunning).
		Select("status", "completed_at", "action_results", "error_message").
		Updates(exec)
	if res.Error != nil {
		return fmt.Errorf("finalize execution: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("execution %s is not RUNNING", exec.ID)
	}
	return nil
}

// ExecutionFilter narrows a listing.
type ExecutionFilter struct {
	WorkflowID string
	PatientID  string
	Status     ExecutionStatus
	Page       int
	PageSize   int
}

// List returns executions for an organization, newest first, with the total
// row count for the filter.
func (s *ExecutionStore) List(ctx context.Context, organizationID string, f ExecutionFilter) ([]*WorkflowExecution, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 200 {
		f.PageSize = 50
	}
	q := s.db.WithContext(ctx).Model(&WorkflowExecution{}).
		Where("organization_id = ?", organizationID)
	if f.WorkflowID != "" {
		q = q.Where("workflow_id = ?", f.WorkflowID)
	}
	if f.PatientID != "" {
		q = q.Where("patient_id = ?", f.PatientID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	var rows []*WorkflowExecution
	if err := q.Order("created_at DESC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	return rows, total, nil
}

// ExecutionStats aggregates run outcomes for one workflow.
type ExecutionStats struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
	InFlight  int64 `json:"inFlight"`
}

// Stats counts executions by outcome for a workflow.
func (s *ExecutionStore) Stats(ctx context.Context, organizationID, workflowID string) (*ExecutionStats, error) {
	type row struct {
		Status ExecutionStatus
		N      int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&WorkflowExecution{}).
		Select("status, COUNT(*) AS n").
		Where("organization_id = ? AND workflow_id = ?", organizationID, workflowID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("execution stats: %w", err)
	}
	stats := &ExecutionStats{}
	for _, r := range rows {
		stats.Total += r.N
		switch r.Status {
		case StatusCompleted:
			stats.Completed += r.N
		case StatusFailed:
			stats.Failed += r.N
		case StatusSkipped:
			stats.Skipped += r.N
		case StatusPending, StatusRunning:
			stats.InFlight += r.N
		}
	}
	return stats, nil
}

// ReconcileStaleRunning marks in-flight rows abandoned by a crashed process
// as FAILED: RUNNING rows whose started_at is older than the cutoff, and
// PENDING rows whose created_at is. A leftover PENDING row would otherwise
// block redelivery of its occurrence forever through the duplicate check.
// Called at startup.
func (s *ExecutionStore) ReconcileStaleRunning(ctx context.Context, cutoff time.Duration) (int64, error) {
	now := time.Now().UTC()
	terminal := map[string]any{
		"status":        StatusFailed,
		"completed_at":  now,
		"error_message": "reconciled: run interrupted by process restart",
	}

	running := s.db.WithContext(ctx).Model(&WorkflowExecution{}).
		Where("status = ? AND started_at < ?", StatusRunning, now.Add(-cutoff)).
		Updates(terminal)
	if running.Error != nil {
		return 0, fmt.Errorf("reconcile stale runs: %w", running.Error)
	}

	pending := s.db.WithContext(ctx).Model(&WorkflowExecution{}).
		Where("status = ? AND created_at < ?", StatusPending, now.Add(-cutoff)).
		Updates(terminal)
	if pending.Error != nil {
		return 0, fmt.Errorf("reconcile stale runs: %w", pending.Error)
	}

	reconciled := running.RowsAffected + pending.RowsAffected
	if reconciled > 0 {
		metrics.ExecutionsReconciled.Add(float64(reconciled))
	}
	return reconciled, nil
}

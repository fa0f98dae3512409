package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"pasientflyt/backend/internal/followup"
	"pasientflyt/backend/internal/patient"
	"pasientflyt/backend/internal/staff"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&patient.Patient{},
		&staff.Staff{},
		&followup.FollowUp{},
		&Workflow{},
		&WorkflowExecution{},
	))
	return db
}

func seedWorkflow(t *testing.T, db *gorm.DB, w *Workflow) *Workflow {
	t.Helper()
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.MaxRunsPerPatient == 0 {
		w.MaxRunsPerPatient = 1
	}
	w.IsActive = true
	require.NoError(t, db.Create(w).Error)
	return w
}

func eventOccurrence(w *Workflow, patientID string) Occurrence {
	return Occurrence{
		ID:             uuid.New().String(),
		Type:           w.TriggerType,
		OrganizationID: w.OrganizationID,
		PatientID:      patientID,
		OccurredAt:     time.Now().UTC(),
	}
}

func TestCreatePendingHappyPath(t *testing.T) {
	db := newTestDB(t)
	store := NewExecutionStore(db)
	w := seedWorkflow(t, db, &Workflow{
		OrganizationID: uuid.New().String(),
		Name:           "Recall",
		TriggerType:    TriggerAppointmentMissed,
		Actions:        []ActionSpec{{Type: ActionSendSMS, Message: "hei"}},
	})

	exec, err := store.CreatePending(context.Background(), w, eventOccurrence(w, uuid.New().String()), "trace-1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, exec.Status)
	require.NotEmpty(t, exec.OccurrenceKey)
	require.Equal(t, "trace-1", exec.TraceID)
}

func TestCreatePendingDuplicateOccurrence(t *testing.T) {
	db := newTestDB(t)
	store := NewExecutionStore(db)
	w := seedWorkflow(t, db, &Workflow{
		OrganizationID: uuid.New().String(),
		Name:           "Recall",
		TriggerType:    TriggerAppointmentMissed,
		Actions:        []ActionSpec{{Type: ActionSendSMS, Message: "hei"}},
	})
	occ := eventOccurrence(w, uuid.New().String())

	_, err := store.CreatePending(context.Background(), w, occ, "t1")
	require.NoError(t, err)

	_, err = store.CreatePending(context.Background(), w, occ, "t2")
	require.ErrorIs(t, err, ErrDuplicateRun)
}

func TestCreatePendingMaxRunsSkips(t *testing.T) {
	db := newTestDB(t)
	store := NewExecutionStore(db)
	ctx := context.Background()
	w := seedWorkflow(t, db, &Workflow{
		OrganizationID:    uuid.New().String(),
		Name:              "Recall",
		TriggerType:       TriggerAppointmentMissed,
		Actions:           []ActionSpec{{Type: ActionSendSMS, Message: "hei"}},
		MaxRunsPerPatient: 1,
	})
	patientID := uuid.New().String()

	first, err := store.CreatePending(ctx, w, eventOccurrence(w, patientID), "t1")
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, first))
	require.NoError(t, store.Finalize(ctx, first, StatusCompleted, nil, nil))

	second, err := store.CreatePending(ctx, w, eventOccurrence(w, patientID), "t2")
	require.NoError(t, err)
	require.Equal(t, StatusSkipped, second.Status)
	require.NotNil(t, second.CompletedAt)
	require.Contains(t, second.ErrorMessage, "max runs")
}

func TestCreatePendingFailedRunsDoNotCountTowardMax(t *testing.T) {
	db := newTestDB(t)
	store := NewExecutionStore(db)
	ctx := context.Background()
	w := seedWorkflow(t, db, &Workflow{
		OrganizationID:    uuid.New().String(),
		Name:              "Recall",
		TriggerType:       TriggerAppointmentMissed,
		Actions:           []ActionSpec{{Type: ActionSendSMS, Message: "hei"}},
		MaxRunsPerPatient: 1,
	})
	patientID := uuid.New().String()

	first, err := store.CreatePending(ctx, w, eventOccurrence(w, patientID), "t1")
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, first))
	require.NoError(t, store.Finalize(ctx, first, StatusFailed, nil, context.DeadlineExceeded))

	second, err := store.CreatePending(ctx, w, eventOccurrence(w, patientID), "t2")
	require.NoError(t, err)
	require.Equal(t, StatusPending, second.Status)
}

func TestExecutionStateTransitions(t *testing.T) {
	db := newTestDB(t)
	store := NewExecutionStore(db)
	ctx := context.Background()
	w := seedWorkflow(t, db, &Workflow{
		OrganizationID: uuid.New().String(),
		Name:           "Recall",
		TriggerType:    TriggerAppointmentMissed,
		Actions:        []ActionSpec{{Type: ActionSendSMS, Message: "hei"}},
	})

	exec, err := store.CreatePending(ctx, w, eventOccurrence(w, uuid.New().String()), "t1")
	require.NoError(t, err)

	// Finalize before MarkRunning must fail.
	require.Error(t, store.Finalize(ctx, exec, StatusCompleted, nil, nil))

	require.NoError(t, store.MarkRunning(ctx, exec))
	require.NotNil(t, exec.StartedAt)

	// MarkRunning twice must fail.
	require.Error(t, store.MarkRunning(ctx, exec))

	results := []ActionResult{{Index: 0, Type: ActionSendSMS, Success: true, SideEffect: "sms-1"}}
	require.NoError(t, store.Finalize(ctx, exec, StatusCompleted, results, nil))

	var stored WorkflowExecution
	require.NoError(t, db.First(&stored, "id = ?", exec.ID).Error)
	require.Equal(t, StatusCompleted, stored.Status)
	require.Len(t, stored.ActionResults, 1)
	require.Equal(t, "sms-1", stored.ActionResults[0].SideEffect)
	require.True(t, stored.IsTerminal())
}

func TestListExecutionsFilterAndPaging(t *testing.T) {
	db := newTestDB(t)
	store := NewExecutionStore(db)
	ctx := context.Background()
	orgID := uuid.New().String()
	w := seedWorkflow(t, db, &Workflow{
		OrganizationID:    orgID,
		Name:              "Recall",
		TriggerType:       TriggerAppointmentMissed,
		Actions:           []ActionSpec{{Type: ActionSendSMS, Message: "hei"}},
		MaxRunsPerPatient: 100,
	})

	for i := 0; i < 5; i++ {
		exec, err := store.CreatePending(ctx, w, eventOccurrence(w, uuid.New().String()), "t")
		require.NoError(t, err)
		require.NoError(t, store.MarkRunning(ctx, exec))
		status := StatusCompleted
		if i%2 == 1 {
			status = StatusFailed
		}
		require.NoError(t, store.Finalize(ctx, exec, status, nil, nil))
	}

	rows, total, err := store.List(ctx, orgID, ExecutionFilter{WorkflowID: w.ID})
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
	require.Len(t, rows, 5)

	rows, total, err = store.List(ctx, orgID, ExecutionFilter{Status: StatusFailed})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, rows, 2)

	rows, total, err = store.List(ctx, orgID, ExecutionFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
	require.Len(t, rows, 2)

	// Nothing leaks across organizations.
	rows, total, err = store.List(ctx, uuid.New().String(), ExecutionFilter{})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, rows)
}

func TestExecutionStats(t *testing.T) {
	db := newTestDB(t)
	store := NewExecutionStore(db)
	ctx := context.Background()
	orgID := uuid.New().String()
	w := seedWorkflow(t, db, &Workflow{
		OrganizationID:    orgID,
		Name:              "Recall",
		TriggerType:       TriggerAppointmentMissed,
		Actions:           []ActionSpec{{Type: ActionSendSMS, Message: "hei"}},
		MaxRunsPerPatient: 1,
	})

	p1 := uuid.New().String()
	exec, err := store.CreatePending(ctx, w, eventOccurrence(w, p1), "t")
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, exec))
	require.NoError(t, store.Finalize(ctx, exec, StatusCompleted, nil, nil))

	// Second run for the same patient hits the max-runs guard.
	_, err = store.CreatePending(ctx, w, eventOccurrence(w, p1), "t")
	require.NoError(t, err)

	// A pending run for another patient.
	_, err = store.CreatePending(ctx, w, eventOccurrence(w, uuid.New().String()), "t")
	require.NoError(t, err)

	stats, err := store.Stats(ctx, orgID, w.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.Total)
	require.EqualValues(t, 1, stats.Completed)
	require.EqualValues(t, 1, stats.Skipped)
	require.EqualValues(t, 1, stats.InFlight)
	require.Zero(t, stats.Failed)
}

func TestReconcileStaleRunning(t *testing.T) {
	db := newTestDB(t)
	store := NewExecutionStore(db)
	ctx := context.Background()
	w := seedWorkflow(t, db, &Workflow{
		OrganizationID:    uuid.New().String(),
		Name:              "Recall",
		TriggerType:       TriggerAppointmentMissed,
		Actions:           []ActionSpec{{Type: ActionSendSMS, Message: "hei"}},
		MaxRunsPerPatient: 100,
	})

	stale, err := store.CreatePending(ctx, w, eventOccurrence(w, uuid.New().String()), "t")
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, stale))
	old := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, db.Model(&WorkflowExecution{}).
		Where("id = ?", stale.ID).
		Update("started_at", old).Error)

	fresh, err := store.CreatePending(ctx, w, eventOccurrence(w, uuid.New().String()), "t")
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, fresh))

	n, err := store.ReconcileStaleRunning(ctx, time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	var reloaded WorkflowExecution
	require.NoError(t, db.First(&reloaded, "id = ?", stale.ID).Error)
	require.Equal(t, StatusFailed, reloaded.Status)
	require.Contains(t, reloaded.ErrorMessage, "reconciled")

	var reloadedFresh WorkflowExecution
	require.NoError(t, db.First(&reloadedFresh, "id = ?", fresh.ID).Error)
	require.Equal(t, StatusRunning, reloadedFresh.Status)
}

func TestReconcileStalePending(t *testing.T) {
	db := newTestDB(t)
	store := NewExecutionStore(db)
	ctx := context.Background()
	w := seedWorkflow(t, db, &Workflow{
		OrganizationID:    uuid.New().String(),
		Name:              "Recall",
		TriggerType:       TriggerAppointmentMissed,
		Actions:           []ActionSpec{{Type: ActionSendSMS, Message: "hei"}},
		MaxRunsPerPatient: 100,
	})

	// A crash between CreatePending and MarkRunning leaves a PENDING row.
	stale, err := store.CreatePending(ctx, w, eventOccurrence(w, uuid.New().String()), "t")
	require.NoError(t, err)
	old := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, db.Model(&WorkflowExecution{}).
		Where("id = ?", stale.ID).
		Update("created_at", old).Error)

	fresh, err := store.CreatePending(ctx, w, eventOccurrence(w, uuid.New().String()), "t")
	require.NoError(t, err)

	n, err := store.ReconcileStaleRunning(ctx, time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	var reloaded WorkflowExecution
	require.NoError(t, db.First(&reloaded, "id = ?", stale.ID).Error)
	require.Equal(t, StatusFailed, reloaded.Status)
	require.Contains(t, reloaded.ErrorMessage, "reconciled")
	require.NotNil(t, reloaded.CompletedAt)

	var reloadedFresh WorkflowExecution
	require.NoError(t, db.First(&reloadedFresh, "id = ?", fresh.ID).Error)
	require.Equal(t, StatusPending, reloadedFresh.Status)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Workflow engine metrics.
var (
	// WorkflowRunsTotal counts finalized workflow runs by outcome.
	WorkflowRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pasientflyt_workflow_runs_total",
			Help: "Workflow runs by trigger type and final status",
		},
		[]string{"trigger_type", "status"},
	)

	// WorkflowRunDuration tracks run wall time in seconds.
	WorkflowRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pasientflyt_workflow_run_duration_seconds",
			Help:    "Workflow run duration distribution",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"trigger_type"},
	)

	// ActionResultsTotal counts individual action outcomes inside runs.
	ActionResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pasientflyt_workflow_action_results_total",
			Help: "Action results by action type and outcome",
		},
		[]string{"action_type", "outcome"},
	)

	// TriggerScanPatients reports how many patients the last time-based
	// trigger scan considered for an organization.
	TriggerScanPatients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pasientflyt_trigger_scan_patients",
			Help: "Patients scanned by the last time-based trigger pass",
		},
		[]string{"organization_id"},
	)

	// ExecutionsReconciled counts RUNNING executions reconciled to FAILED
	// after a crash.
	ExecutionsReconciled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pasientflyt_workflow_executions_reconciled_total",
			Help: "Stale RUNNING executions marked FAILED at startup",
		},
	)
)

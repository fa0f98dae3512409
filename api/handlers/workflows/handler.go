package workflows

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pasientflyt/backend/internal/worker"
	"pasientflyt/backend/internal/workflow"
)

// Handler serves the workflow management and execution endpoints.
type Handler struct {
	workflows *workflow.Service
	engine    *workflow.Engine
	enqueuer  *worker.Enqueuer
}

func NewHandler(workflows *workflow.Service, engine *workflow.Engine, enqueuer *worker.Enqueuer) *Handler {
	return &Handler{workflows: workflows, engine: engine, enqueuer: enqueuer}
}

func orgID(c *gin.Context) string {
	return c.GetString("organization_id")
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var cfgErr *workflow.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": cfgErr.Error()})
	case errors.Is(err, workflow.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Create registers a new workflow definition.
// POST /api/v1/workflows
func (h *Handler) Create(c *gin.Context) {
	var in workflow.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	createdBy := c.GetHeader("X-User-ID")
	w, err := h.workflows.Create(c.Request.Context(), orgID(c), createdBy, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// List returns the organization's workflows.
// GET /api/v1/workflows?trigger_type=&active=
func (h *Handler) List(c *gin.Context) {
	f := workflow.ListFilter{
		TriggerType: workflow.TriggerType(c.Query("trigger_type")),
		ActiveOnly:  c.Query("active") == "true",
	}
	list, err := h.workflows.List(c.Request.Context(), orgID(c), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list, "total": len(list)})
}

// Get returns one workflow.
// GET /api/v1/workflows/:id
func (h *Handler) Get(c *gin.Context) {
	w, err := h.workflows.Get(c.Request.Context(), orgID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// Update rewrites a workflow definition.
// PUT /api/v1/workflows/:id
func (h *Handler) Update(c *gin.Context) {
	var in workflow.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w, err := h.workflows.Update(c.Request.Context(), orgID(c), c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// Delete soft deletes a workflow; execution history is retained.
// DELETE /api/v1/workflows/:id
func (h *Handler) Delete(c *gin.Context) {
	err := h.workflows.Delete(c.Request.Context(), orgID(c), c.Param("id"), c.GetHeader("X-User-ID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetActive toggles a workflow on or off.
// PATCH /api/v1/workflows/:id/active
func (h *Handler) SetActive(c *gin.Context) {
	var in struct {
		IsActive *bool `json:"isActive" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.workflows.SetActive(c.Request.Context(), orgID(c), c.Param("id"), *in.IsActive); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isActive": *in.IsActive})
}

// Test dry-runs a workflow against a real patient. Nothing is written and
// no message leaves the system.
// POST /api/v1/workflows/:id/test
func (h *Handler) Test(c *gin.Context) {
	var in struct {
		PatientID string `json:"patientId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w, err := h.workflows.Get(c.Request.Context(), orgID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := h.engine.TestWorkflow(c.Request.Context(), w, in.PatientID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Stats aggregates run outcomes for one workflow.
// GET /api/v1/workflows/:id/stats
func (h *Handler) Stats(c *gin.Context) {
	w, err := h.workflows.Get(c.Request.Context(), orgID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	stats, err := h.engine.ExecutionStats(c.Request.Context(), orgID(c), w.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListExecutions pages through the execution history.
// GET /api/v1/workflow-executions?workflow_id=&patient_id=&status=&page=&page_size=
func (h *Handler) ListExecutions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	f := workflow.ExecutionFilter{
		WorkflowID: c.Query("workflow_id"),
		PatientID:  c.Query("patient_id"),
		Status:     workflow.ExecutionStatus(c.Query("status")),
		Page:       page,
		PageSize:   pageSize,
	}
	rows, total, err := h.engine.GetWorkflowExecutions(c.Request.Context(), orgID(c), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":     rows,
		"total":     total,
		"page":      f.Page,
		"page_size": f.PageSize,
	})
}

// TriggerEvent accepts a domain occurrence and queues it for the engine.
// Upstream systems (booking, patient registry) post here when something
// happens.
// POST /api/v1/events
func (h *Handler) TriggerEvent(c *gin.Context) {
	var in struct {
		ID         string         `json:"id"`
		Type       string         `json:"type" binding:"required"`
		PatientID  string         `json:"patientId"`
		Payload    map[string]any `json:"payload"`
		OccurredAt *time.Time     `json:"occurredAt"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	occ := workflow.Occurrence{
		ID:             in.ID,
		Type:           workflow.TriggerType(in.Type),
		OrganizationID: orgID(c),
		PatientID:      in.PatientID,
		Payload:        in.Payload,
		OccurredAt:     time.Now().UTC(),
	}
	if in.OccurredAt != nil {
		occ.OccurredAt = *in.OccurredAt
	}
	if occ.Type.IsTimeBased() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "time-based triggers cannot be posted as events"})
		return
	}
	// Pin the id before the event enters the queue so worker retries
	// re-deliver the same occurrence instead of a new one.
	if occ.ID == "" {
		occ.ID = uuid.New().String()
	}
	if err := h.enqueuer.EnqueueOccurrence(c.Request.Context(), occ); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"pasientflyt/backend/internal/workflow"
)

// Handlers binds queue tasks to the workflow engine.
type Handlers struct {
	engine    *workflow.Engine
	workflows *workflow.Service
	logger    *zap.Logger
}

func NewHandlers(engine *workflow.Engine, workflows *workflow.Service, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{engine: engine, workflows: workflows, logger: logger}
}

// HandleDailyTick runs the time-based trigger pass for every organization
// that has at least one active time-derived workflow. Organizations are
// processed independently; one failing does not stop the rest.
func (h *Handlers) HandleDailyTick(ctx context.Context, t *asynq.Task) error {
	var p DailyTickPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal daily tick payload: %v: %w", err, asynq.SkipRetry)
	}
	asOf := time.Now().UTC()
	if p.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", p.AsOf)
		if err != nil {
			return fmt.Errorf("parse asOf %q: %v: %w", p.AsOf, err, asynq.SkipRetry)
		}
		asOf = parsed
	}

	orgs, err := h.workflows.OrganizationIDs(ctx)
	if err != nil {
		return err
	}
	h.logger.Info("daily tick started",
		zap.String("as_of", asOf.Format("2006-01-02")),
		zap.Int("organizations", len(orgs)))

	var failed int
	for _, orgID := range orgs {
		if err := h.engine.ProcessTimeBasedTriggers(ctx, orgID, asOf); err != nil {
			failed++
			h.logger.Error("time-based trigger pass failed",
				zap.String("organization_id", orgID),
				zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("daily tick: %d of %d organizations failed", failed, len(orgs))
	}
	return nil
}

// HandleDomainEvent dispatches a queued occurrence to the engine.
func (h *Handlers) HandleDomainEvent(ctx context.Context, t *asynq.Task) error {
	var p DomainEventPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal domain event payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.Occurrence.OrganizationID == "" {
		return fmt.Errorf("domain event has no organization id: %w", asynq.SkipRetry)
	}
	return h.engine.TriggerWorkflow(ctx, p.Occurrence)
}

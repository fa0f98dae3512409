package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"pasientflyt/backend/internal/workflow"
)

// Task type names registered on the asynq mux.
const (
	TypeDailyTick   = "workflow:daily_tick"
	TypeDomainEvent = "workflow:domain_event"
)

// DailyTickPayload addresses one day's time-based trigger pass. An empty
// AsOf means "today".
type DailyTickPayload struct {
	AsOf string `json:"asOf,omitempty"` // 2006-01-02
}

// DomainEventPayload wraps an occurrence for asynchronous dispatch.
type DomainEventPayload struct {
	Occurrence workflow.Occurrence `json:"occurrence"`
}

// NewDailyTickTask builds the scheduled tick task.
func NewDailyTickTask(asOf time.Time) (*asynq.Task, error) {
	p := DailyTickPayload{}
	if !asOf.IsZero() {
		p.AsOf = asOf.Format("2006-01-02")
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal daily tick payload: %w", err)
	}
	return asynq.NewTask(TypeDailyTick, payload, asynq.MaxRetry(3)), nil
}

// NewDomainEventTask wraps an occurrence for the queue. Retries are capped
// low: the execution store's occurrence key makes redelivery harmless.
func NewDomainEventTask(occ workflow.Occurrence) (*asynq.Task, error) {
	payload, err := json.Marshal(DomainEventPayload{Occurrence: occ})
	if err != nil {
		return nil, fmt.Errorf("marshal domain event payload: %w", err)
	}
	return asynq.NewTask(TypeDomainEvent, payload, asynq.MaxRetry(5), asynq.Timeout(5*time.Minute)), nil
}

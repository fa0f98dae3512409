package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"pasientflyt/backend/internal/config"
	"pasientflyt/backend/internal/workflow"
)

// Enqueuer publishes tasks onto the queue. The API layer uses it to hand
// domain events to the workflow engine asynchronously.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(cfg *config.RedisConfig) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(redisOpt(cfg))}
}

// EnqueueOccurrence queues a domain event for engine dispatch.
func (e *Enqueuer) EnqueueOccurrence(ctx context.Context, occ workflow.Occurrence) error {
	task, err := NewDomainEventTask(occ)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue domain event: %w", err)
	}
	return nil
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}

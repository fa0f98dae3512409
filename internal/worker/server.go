package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"pasientflyt/backend/internal/config"
)

// Server wraps the asynq consumer and the cron scheduler that enqueues the
// daily tick.
type Server struct {
	srv       *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *zap.Logger
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewServer builds the consumer, registers the handlers and wires the tick
// cron entry from config.
func NewServer(cfg *config.Config, h *Handlers, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opt := redisOpt(&cfg.Redis)

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			"default": 5,
			"ticks":   1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("task failed",
				zap.String("task_type", task.Type()),
				zap.Error(err))
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeDailyTick, h.HandleDailyTick)
	mux.HandleFunc(TypeDomainEvent, h.HandleDomainEvent)

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{})
	tick, err := NewDailyTickTask(time.Time{})
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.Register(cfg.Engine.TickCron, tick, asynq.Queue("ticks")); err != nil {
		return nil, fmt.Errorf("register daily tick schedule: %w", err)
	}

	return &Server{srv: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// Start launches the scheduler and the consumer. Non-blocking.
func (s *Server) Start() error {
	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := s.srv.Start(s.mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	s.logger.Info("worker started")
	return nil
}

// Shutdown drains in-flight tasks and stops the scheduler.
func (s *Server) Shutdown() {
	s.scheduler.Shutdown()
	s.srv.Shutdown()
	s.logger.Info("worker stopped")
}

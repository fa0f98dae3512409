package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"pasientflyt/backend/api"
	"pasientflyt/backend/api/handlers/workflows"
	"pasientflyt/backend/internal/config"
	"pasientflyt/backend/internal/followup"
	"pasientflyt/backend/internal/infra"
	"pasientflyt/backend/internal/logger"
	"pasientflyt/backend/internal/messaging"
	"pasientflyt/backend/internal/patient"
	"pasientflyt/backend/internal/staff"
	"pasientflyt/backend/internal/worker"
	"pasientflyt/backend/internal/workflow"
)

func main() {
	env := flag.String("env", "dev", "environment name (dev, prod, test)")
	configPath := flag.String("config", "", "explicit config file path")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Get()

	db, err := infra.InitDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("init database", zap.Error(err))
	}
	defer infra.CloseDatabase()

	if cfg.Database.AutoMigrate {
		err := infra.AutoMigrate(db,
			&patient.Patient{},
			&staff.Staff{},
			&followup.FollowUp{},
			&messaging.MessageLog{},
			&workflow.Workflow{},
			&workflow.WorkflowExecution{},
		)
		if err != nil {
			log.Fatal("auto migrate", zap.Error(err))
		}
	}

	if _, err := infra.InitRedis(&cfg.Redis); err != nil {
		log.Fatal("init redis", zap.Error(err))
	}
	defer infra.CloseRedis()

	// Wiring.
	patients := patient.NewService(db)
	followups := followup.NewService(db, log)
	directory := staff.NewDirectory(db)
	sms := messaging.NewSMSGateway(cfg.Messaging.SMS, db, log)
	email := messaging.NewSMTPSender(cfg.Messaging.SMTP, db, log)

	executions := workflow.NewExecutionStore(db)
	actions := workflow.NewActionExecutor(patients, followups, directory, sms, email,
		time.Duration(cfg.Engine.ActionTimeout)*time.Second, log)
	engine := workflow.NewEngine(db, patients, executions, actions, log)
	workflowSvc := workflow.NewService(db)

	// Runs interrupted by a previous crash must not stay RUNNING forever.
	reconciled, err := executions.ReconcileStaleRunning(context.Background(),
		time.Duration(cfg.Engine.StaleRunCutoff)*time.Minute)
	if err != nil {
		log.Fatal("reconcile stale executions", zap.Error(err))
	}
	if reconciled > 0 {
		log.Warn("reconciled stale executions", zap.Int64("count", reconciled))
	}

	enqueuer := worker.NewEnqueuer(&cfg.Redis)
	defer enqueuer.Close()

	handlers := worker.NewHandlers(engine, workflowSvc, log)
	workerSrv, err := worker.NewServer(cfg, handlers, log)
	if err != nil {
		log.Fatal("build worker", zap.Error(err))
	}
	if err := workerSrv.Start(); err != nil {
		log.Fatal("start worker", zap.Error(err))
	}

	wh := workflows.NewHandler(workflowSvc, engine, enqueuer)
	router := api.Setup(cfg.Server.Mode, wh)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	workerSrv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	log.Info("stopped")
}

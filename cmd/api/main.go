// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adiadia/feedback-orchestrator/internal/activity"
	"github.com/adiadia/feedback-orchestrator/internal/agent"
	"github.com/adiadia/feedback-orchestrator/internal/catalog"
	"github.com/adiadia/feedback-orchestrator/internal/config"
	"github.com/adiadia/feedback-orchestrator/internal/domain"
	"github.com/adiadia/feedback-orchestrator/internal/engine"
	"github.com/adiadia/feedback-orchestrator/internal/logging"
	"github.com/adiadia/feedback-orchestrator/internal/persistence/postgres"
	"github.com/adiadia/feedback-orchestrator/internal/repository"
	httptransport "github.com/adiadia/feedback-orchestrator/internal/transport/http"
	natstransport "github.com/adiadia/feedback-orchestrator/internal/transport/nats"
	"github.com/adiadia/feedback-orchestrator/internal/workflow"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.Component(logging.NewLogger(cfg.Env), "api")

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
			log.Fatalf("schema bootstrap failed: %v", err)
		}
	} else if err := postgres.SchemaReady(ctx, pool); err != nil {
		log.Fatalf("schema not ready: %v", err)
	}

	store := repository.NewInstanceRepository(pool, logger)
	cat := catalog.Default()

	executor := activity.NewExecutor(activity.Deps{
		Logger:      logger,
		MaxAttempts: cfg.ActivityMaxAttempts,
		Timeout:     cfg.ActivityTimeout,
	})
	activity.RegisterAll(executor, logger, cat)

	agents := agent.NewAdapter(agent.Deps{
		Client:      agent.NewLocalClient(),
		Logger:      logger,
		Tools:       agent.NewToolset(cat),
		CallTimeout: cfg.AgentTimeout,
	})
	agent.RegisterDefaults(agents)

	rt := engine.New(engine.Deps{
		Store:      store,
		Activities: executor,
		Agents:     agents,
		Logger:     logger,
	})
	workflow.Register(rt)

	// NATS is optional for the API: without it feedback is orchestrated
	// in-process instead of being handed to the worker.
	var queue *natstransport.Queue
	subjects := []string{cfg.FeedbackSubject, cfg.WakeSubject}
	queue, err = natstransport.Connect(ctx, cfg.NatsURL, subjects, logger)
	if err != nil {
		logger.Warn("nats unavailable, running without queue", "error", err)
		queue = nil
	} else {
		defer queue.Close()
	}

	orch := &apiOrchestrator{
		rt:          rt,
		store:       store,
		queue:       queue,
		wakeSubject: cfg.WakeSubject,
	}

	deps := httptransport.Deps{
		Orchestrator:    orch,
		Instances:       store,
		Catalog:         cat,
		Health:          pool,
		Readiness:       postgres.NewSchemaHealthChecker(pool),
		FeedbackSubject: cfg.FeedbackSubject,
		SubmitLimitMin:  cfg.SubmitLimitPerMin,
		Logger:          logger,
		Version:         Version,
		Commit:          Commit,
		BuildDate:       BuildDate,
	}
	if queue != nil {
		deps.Queue = queue
	}
	handler := httptransport.NewRouter(deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}

// apiOrchestrator adapts the runtime for the API process. With a queue
// attached, event delivery only records the resolution and wakes a worker;
// the replay pass itself runs in the worker process.
type apiOrchestrator struct {
	rt          *engine.Runtime
	store       engine.InstanceStore
	queue       *natstransport.Queue
	wakeSubject string
}

func (o *apiOrchestrator) Start(ctx context.Context, workflowName, instanceID string, input domain.FeedbackItem) (string, error) {
	return o.rt.Start(ctx, workflowName, instanceID, input)
}

func (o *apiOrchestrator) RaiseEvent(ctx context.Context, instanceID, eventName string, payload json.RawMessage) error {
	if o.queue == nil {
		return o.rt.RaiseEvent(ctx, instanceID, eventName, payload)
	}

	if err := o.store.ResolveWait(ctx, instanceID, eventName, payload); err != nil {
		return err
	}
	data, err := natstransport.EncodeWake(instanceID)
	if err != nil {
		return err
	}
	return o.queue.Publish(ctx, o.wakeSubject, data)
}

func (o *apiOrchestrator) GetStatus(ctx context.Context, instanceID string) (domain.InstanceSummary, error) {
	return o.rt.GetStatus(ctx, instanceID)
}

func (o *apiOrchestrator) Terminate(ctx context.Context, instanceID, reason string) error {
	return o.rt.Terminate(ctx, instanceID, reason)
}

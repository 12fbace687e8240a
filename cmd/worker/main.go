// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"log"
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
	natstransport "github.com/adiadia/feedback-orchestrator/internal/transport/nats"
	"github.com/adiadia/feedback-orchestrator/internal/workflow"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.Component(logging.NewLogger(cfg.Env), "worker")

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

	subjects := []string{cfg.FeedbackSubject, cfg.WakeSubject}
	queue, err := natstransport.Connect(ctx, cfg.NatsURL, subjects, logger)
	if err != nil {
		log.Fatalf("nats connect failed: %v", err)
	}
	defer queue.Close()

	stopFeedback, err := queue.Subscribe(ctx, "feedback-worker", cfg.FeedbackSubject,
		func(ctx context.Context, _ string, data []byte) error {
			var item domain.FeedbackItem
			if err := json.Unmarshal(data, &item); err != nil {
				// Malformed payloads never become valid; drop with an ack.
				logger.Error("discarding malformed feedback", "error", err)
				return nil
			}
			instanceID := domain.InstanceIDForFeedback(item.FeedbackID)
			_, err := rt.Start(ctx, workflow.FeedbackWorkflow, instanceID, item)
			return err
		})
	if err != nil {
		log.Fatalf("subscribe feedback failed: %v", err)
	}
	defer stopFeedback()

	stopWake, err := queue.Subscribe(ctx, "wake-worker", cfg.WakeSubject,
		func(ctx context.Context, _ string, data []byte) error {
			msg, err := natstransport.DecodeWake(data)
			if err != nil {
				logger.Error("discarding malformed wake message", "error", err)
				return nil
			}
			return rt.RunPass(ctx, msg.InstanceID)
		})
	if err != nil {
		log.Fatalf("subscribe wake failed: %v", err)
	}
	defer stopWake()

	logger.Info("worker started",
		"feedback_subject", cfg.FeedbackSubject,
		"wake_subject", cfg.WakeSubject,
		"timer_poll", cfg.TimerPollInterval.String(),
	)

	ticker := time.NewTicker(cfg.TimerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			return
		case now := <-ticker.C:
			if err := rt.WakeDue(ctx, now.UTC(), 50); err != nil {
				logger.Error("timer sweep failed", "error", err)
			}
		}
	}
}

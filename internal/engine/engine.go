// SPDX-License-Identifier: Apache-2.0

// Package engine implements the feedback orchestration core: a
// history-indexed replay interpreter over durable instances. A workflow body
// re-executes from the top on every pass; completed steps are consumed from
// history so side effects never run twice, and suspension points persist a
// wake condition instead of parking a goroutine.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adiadia/feedback-orchestrator/internal/domain"
	"github.com/adiadia/feedback-orchestrator/internal/metrics"
)

// ActivityExecutor runs side-effecting steps with bounded retries. The
// returned attempt count is recorded for audit.
type ActivityExecutor interface {
	Execute(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, int, error)
}

// AgentRunner performs one atomic agent call, internal tool round-trips
// included.
type AgentRunner interface {
	Run(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, int, error)
}

// WorkflowFn is a deterministic workflow body. All non-deterministic
// operations must go through the Context.
type WorkflowFn func(c *Context) (string, error)

type Deps struct {
	Store      InstanceStore
	Activities ActivityExecutor
	Agents     AgentRunner
	Logger     *slog.Logger
}

// Runtime owns orchestration instances: it creates them, serializes their
// replay passes and applies terminal status transitions.
type Runtime struct {
	store      InstanceStore
	activities ActivityExecutor
	agents     AgentRunner
	logger     *slog.Logger

	mu        sync.Mutex
	workflows map[string]WorkflowFn
	running   map[string]*instanceLock
}

// instanceLock serializes passes for one instance id. The refcount lets the
// runtime drop map entries once no pass holds or awaits them, so the map
// stays bounded by in-flight work rather than by instances ever seen.
type instanceLock struct {
	mu   sync.Mutex
	refs int
}

func New(deps Deps) *Runtime {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Runtime{
		store:      deps.Store,
		activities: deps.Activities,
		agents:     deps.Agents,
		logger:     l,
		workflows:  make(map[string]WorkflowFn),
		running:    make(map[string]*instanceLock),
	}
}

// RegisterWorkflow registers a workflow definition under a name.
func (r *Runtime) RegisterWorkflow(name string, fn WorkflowFn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[name] = fn
}

// Start admits a feedback item under the given instance id and runs the
// first pass. Starting an existing instance (same id, or another id for the
// same feedback id) never creates a second instance; when the existing
// instance is still live a replay pass runs instead, so a redelivered start
// resumes an instance whose first pass was cut short.
func (r *Runtime) Start(ctx context.Context, workflowName, instanceID string, input domain.FeedbackItem) (string, error) {
	now := time.Now().UTC()
	existingID, created, err := r.store.CreateInstance(ctx, &domain.OrchestrationInstance{
		ID:        instanceID,
		Workflow:  workflowName,
		Input:     input,
		Status:    domain.InstanceRunning,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return "", err
	}
	if !created {
		r.logger.Info("duplicate start resumed",
			"instance_id", existingID,
			"feedback_id", input.FeedbackID,
		)
		// RunPass is a no-op on terminal or suspended instances; on an
		// instance whose first pass was interrupted it picks up where
		// the history left off.
		return existingID, r.RunPass(ctx, existingID)
	}

	metrics.IncInstanceStatus(string(domain.InstanceRunning))
	r.logger.Info("instance started",
		"instance_id", instanceID,
		"workflow", workflowName,
		"feedback_id", input.FeedbackID,
	)

	return instanceID, r.RunPass(ctx, instanceID)
}

// RaiseEvent delivers an external event to a suspended instance and runs a
// resumption pass. Events against an instance that is not awaiting that
// event name are a no-op surfaced as domain.ErrNotAwaitingEvent.
func (r *Runtime) RaiseEvent(ctx context.Context, instanceID, eventName string, payload json.RawMessage) error {
	if err := r.store.ResolveWait(ctx, instanceID, eventName, payload); err != nil {
		return err
	}
	r.logger.Info("external event accepted",
		"instance_id", instanceID,
		"event", eventName,
	)
	return r.RunPass(ctx, instanceID)
}

// GetStatus reports the externally visible state of an instance.
func (r *Runtime) GetStatus(ctx context.Context, instanceID string) (domain.InstanceSummary, error) {
	inst, err := r.store.GetInstance(ctx, instanceID)
	if err != nil {
		return domain.InstanceSummary{}, err
	}
	return domain.InstanceSummary{
		ID:      inst.ID,
		Status:  inst.Status,
		Output:  inst.Output,
		Failure: inst.Failure,
	}, nil
}

// Terminate force-moves a non-terminal instance to TERMINATED.
func (r *Runtime) Terminate(ctx context.Context, instanceID, reason string) error {
	unlock := r.lock(instanceID)
	defer unlock()

	inst, err := r.store.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return nil
	}
	failure := &domain.StepFailure{Kind: domain.ErrorPermanent, Message: "terminated: " + reason}
	if err := r.store.UpdateStatus(ctx, instanceID, domain.InstanceTerminated, "", failure); err != nil {
		return err
	}
	metrics.IncInstanceStatus(string(domain.InstanceTerminated))
	r.logger.Info("instance terminated", "instance_id", instanceID, "reason", reason)
	return nil
}

// WakeDue runs a pass for every running instance whose timer is due.
func (r *Runtime) WakeDue(ctx context.Context, now time.Time, limit int) error {
	ids, err := r.store.DueTimers(ctx, now, limit)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := r.RunPass(ctx, id); err != nil {
			r.logger.Error("timer pass failed", "instance_id", id, "error", err)
		}
	}
	return nil
}

// RunPass executes one replay pass for an instance. Passes for the same
// instance id are serialized; AppendStep idempotence covers passes racing
// across processes. Every pass ends in more work done, a persisted
// suspension, or a terminal status - a workflow error never escapes raw.
func (r *Runtime) RunPass(ctx context.Context, instanceID string) error {
	unlock := r.lock(instanceID)
	defer unlock()

	inst, err := r.store.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return nil
	}

	r.mu.Lock()
	fn, ok := r.workflows[inst.Workflow]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no workflow registered under %q", inst.Workflow)
	}

	metrics.IncReplayPass()
	wc := &Context{ctx: ctx, rt: r, inst: inst}

	output, runErr := r.runBody(fn, wc)

	switch {
	case runErr == nil:
		if err := r.store.UpdateStatus(ctx, instanceID, domain.InstanceCompleted, output, nil); err != nil {
			return err
		}
		metrics.IncInstanceStatus(string(domain.InstanceCompleted))
		r.logger.Info("instance completed", "instance_id", instanceID, "output", output)
		return nil

	case errors.Is(runErr, errSuspended):
		r.logger.Info("instance suspended", "instance_id", instanceID, "steps", len(inst.History))
		return nil

	case isInfraErr(runErr):
		// Store trouble: leave the instance as-is so the pass can be
		// retried by redelivery.
		return runErr

	default:
		failure := domain.FailureFrom(runErr)
		if errors.Is(runErr, domain.ErrNonDeterministic) {
			failure.Kind = domain.ErrorPermanent
		}
		if err := r.store.UpdateStatus(ctx, instanceID, domain.InstanceFailed, "", failure); err != nil {
			return err
		}
		metrics.IncInstanceStatus(string(domain.InstanceFailed))
		r.logger.Error("instance failed",
			"instance_id", instanceID,
			"kind", failure.Kind,
			"error", failure.Message,
		)
		return nil
	}
}

// runBody shields the pass from panicking workflow code.
func (r *Runtime) runBody(fn WorkflowFn, wc *Context) (output string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = domain.Permanent(fmt.Errorf("workflow panic: %v", rec))
		}
	}()
	return fn(wc)
}

// lock serializes execution per instance id within this process. The
// returned release also drops the map entry once no other pass is waiting
// on it.
func (r *Runtime) lock(instanceID string) func() {
	r.mu.Lock()
	l, ok := r.running[instanceID]
	if !ok {
		l = &instanceLock{}
		r.running[instanceID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.running, instanceID)
		}
		r.mu.Unlock()
	}
}

func isInfraErr(err error) bool {
	var ie *infraError
	return errors.As(err, &ie)
}

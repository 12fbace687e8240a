// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/adiadia/feedback-orchestrator/internal/domain"
	"github.com/adiadia/feedback-orchestrator/internal/metrics"
)

// errSuspended ends a replay pass at a suspension point. The pass is not an
// error from the runtime's point of view: the wake condition has been
// persisted and the instance will resume on a later pass.
var errSuspended = errors.New("instance suspended awaiting wake condition")

// infraError marks store failures during a pass. These abort the pass
// without touching instance state so the triggering message can be
// redelivered.
type infraError struct{ err error }

func (e *infraError) Error() string { return e.err.Error() }
func (e *infraError) Unwrap() error { return e.err }

// Context is the workflow body's only window onto the outside world. Every
// operation it exposes is recorded in history, which is what keeps the body
// deterministic: identical history prefixes always produce identical
// subsequent decisions.
type Context struct {
	ctx    context.Context
	rt     *Runtime
	inst   *domain.OrchestrationInstance
	cursor int
}

// Input returns the feedback item this instance was started with.
func (c *Context) Input() domain.FeedbackItem { return c.inst.Input }

// InstanceID returns the id of the running instance.
func (c *Context) InstanceID() string { return c.inst.ID }

// Replaying reports whether the next step position is already recorded.
func (c *Context) Replaying() bool { return c.cursor < len(c.inst.History) }

// Logger returns a replay-safe logger: during replay it discards records so
// that resumed passes do not duplicate log lines.
func (c *Context) Logger() *slog.Logger {
	if c.Replaying() {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.rt.logger.With("instance_id", c.inst.ID)
}

// CallActivity runs a named activity through the executor, recording the
// outcome. On replay the recorded outcome is consumed instead.
func (c *Context) CallActivity(name string, input any) (json.RawMessage, error) {
	return c.step(domain.StepActivity, name, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, int, error) {
		return c.rt.activities.Execute(ctx, name, raw)
	}, input)
}

// CallAgent runs a named agent call. Tool round-trips inside the call are
// not separate steps; the whole call is one atomic history record.
func (c *Context) CallAgent(name string, input any) (json.RawMessage, error) {
	return c.step(domain.StepAgentCall, name, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, int, error) {
		return c.rt.agents.Run(ctx, name, raw)
	}, input)
}

// Now returns the current UTC time, captured as a history record so replay
// observes the same value. The workflow body must use this instead of the
// real clock.
func (c *Context) Now() (time.Time, error) {
	raw, err := c.step(domain.StepTimer, "CurrentUtcDateTime", func(context.Context, json.RawMessage) (json.RawMessage, int, error) {
		out, merr := json.Marshal(time.Now().UTC())
		return out, 1, merr
	}, nil)
	if err != nil {
		return time.Time{}, err
	}
	var t time.Time
	if err := json.Unmarshal(raw, &t); err != nil {
		return time.Time{}, &infraError{err: err}
	}
	return t, nil
}

// WaitForEvent suspends the instance until the named external event is
// raised. The event payload becomes the step result. The event may never
// arrive; this ends the pass, it does not block a goroutine.
func (c *Context) WaitForEvent(name string) (json.RawMessage, error) {
	seq := c.cursor
	if seq < len(c.inst.History) {
		rec := c.inst.History[seq]
		if rec.Kind != domain.StepExternalEvent || rec.Name != name {
			return nil, c.diverged(seq, domain.StepExternalEvent, name, rec)
		}
		c.cursor++
		metrics.IncStepReplayed(string(rec.Kind))
		return rec.Result, nil
	}

	wait := c.inst.PendingWait
	if wait == nil || wait.EventName != name {
		// First arrival at this suspension point: persist the wake
		// condition and end the pass.
		if err := c.rt.store.RegisterWait(c.ctx, c.inst.ID, &domain.PendingWait{EventName: name}); err != nil {
			return nil, &infraError{err: err}
		}
		return nil, errSuspended
	}
	if !wait.Resolved {
		return nil, errSuspended
	}

	rec, err := c.append(domain.StepRecord{
		Seq:         seq,
		Kind:        domain.StepExternalEvent,
		Name:        name,
		Result:      wait.Payload,
		Attempt:     1,
		CompletedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if err := c.rt.store.RegisterWait(c.ctx, c.inst.ID, nil); err != nil {
		return nil, &infraError{err: err}
	}
	c.inst.PendingWait = nil
	return rec.Result, nil
}

// Sleep suspends the instance for at least d. The wake time is persisted;
// a timer pass appends the record once the wake time has passed.
func (c *Context) Sleep(d time.Duration) error {
	seq := c.cursor
	if seq < len(c.inst.History) {
		rec := c.inst.History[seq]
		if rec.Kind != domain.StepTimer || rec.Name != "Sleep" {
			return c.diverged(seq, domain.StepTimer, "Sleep", rec)
		}
		c.cursor++
		metrics.IncStepReplayed(string(rec.Kind))
		return nil
	}

	wait := c.inst.PendingWait
	if wait == nil || wait.WakeAt == nil {
		wakeAt := time.Now().UTC().Add(d)
		if err := c.rt.store.RegisterWait(c.ctx, c.inst.ID, &domain.PendingWait{WakeAt: &wakeAt}); err != nil {
			return &infraError{err: err}
		}
		return errSuspended
	}
	if time.Now().Before(*wait.WakeAt) {
		return errSuspended
	}

	fired, merr := json.Marshal(time.Now().UTC())
	if merr != nil {
		return &infraError{err: merr}
	}
	if _, err := c.append(domain.StepRecord{
		Seq:         seq,
		Kind:        domain.StepTimer,
		Name:        "Sleep",
		Result:      fired,
		Attempt:     1,
		CompletedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	if err := c.rt.store.RegisterWait(c.ctx, c.inst.ID, nil); err != nil {
		return &infraError{err: err}
	}
	c.inst.PendingWait = nil
	return nil
}

type invokeFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, int, error)

// step is the replay interpreter for one history position: consume the
// recorded outcome when present, otherwise perform the real call and
// checkpoint it before continuing.
func (c *Context) step(kind domain.StepKind, name string, invoke invokeFunc, input any) (json.RawMessage, error) {
	seq := c.cursor
	if seq < len(c.inst.History) {
		rec := c.inst.History[seq]
		if rec.Kind != kind || rec.Name != name {
			return nil, c.diverged(seq, kind, name, rec)
		}
		c.cursor++
		metrics.IncStepReplayed(string(rec.Kind))
		if rec.Failure != nil {
			return nil, rec.Failure.AsError()
		}
		return rec.Result, nil
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return nil, &infraError{err: fmt.Errorf("marshal %s input: %w", name, err)}
	}

	started := time.Now()
	out, attempt, callErr := invoke(c.ctx, raw)
	metrics.ObserveStepDuration(string(kind), time.Since(started))

	// Cancellation of the pass's own context (shutdown, lost deadline) is
	// not a step outcome: checkpointing it would make a platform event a
	// recorded failure. Abort the pass so redelivery re-runs the step.
	if callErr != nil && c.ctx.Err() != nil &&
		(errors.Is(callErr, context.Canceled) || errors.Is(callErr, context.DeadlineExceeded)) {
		return nil, &infraError{err: fmt.Errorf("pass interrupted during %s %q: %w", kind, name, callErr)}
	}

	rec := domain.StepRecord{
		Seq:         seq,
		Kind:        kind,
		Name:        name,
		Attempt:     attempt,
		CompletedAt: time.Now().UTC(),
	}
	if callErr != nil {
		rec.Failure = domain.FailureFrom(callErr)
	} else {
		rec.Result = out
	}

	stored, err := c.append(rec)
	if err != nil {
		return nil, err
	}
	if stored.Failure != nil {
		return nil, stored.Failure.AsError()
	}
	return stored.Result, nil
}

// append checkpoints a record and advances the cursor. The stored record is
// authoritative: a concurrent pass may have filled the position first.
func (c *Context) append(rec domain.StepRecord) (domain.StepRecord, error) {
	stored, err := c.rt.store.AppendStep(c.ctx, c.inst.ID, rec)
	if err != nil {
		return domain.StepRecord{}, &infraError{err: err}
	}
	c.inst.History = append(c.inst.History, stored)
	c.cursor++
	metrics.IncStepRecorded(string(stored.Kind))
	return stored, nil
}

func (c *Context) diverged(seq int, wantKind domain.StepKind, wantName string, got domain.StepRecord) error {
	return fmt.Errorf("%w: position %d expects %s %q, history has %s %q",
		domain.ErrNonDeterministic, seq, wantKind, wantName, got.Kind, got.Name)
}

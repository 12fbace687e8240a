// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/adiadia/feedback-orchestrator/internal/domain"
)

// fakeExecutor records how many times each activity actually ran.
type fakeExecutor struct {
	calls   map[string]int
	results map[string]json.RawMessage
	errs    map[string]error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		calls:   make(map[string]int),
		results: make(map[string]json.RawMessage),
		errs:    make(map[string]error),
	}
}

func (f *fakeExecutor) Execute(_ context.Context, name string, _ json.RawMessage) (json.RawMessage, int, error) {
	f.calls[name]++
	if err, ok := f.errs[name]; ok {
		return nil, 1, err
	}
	if out, ok := f.results[name]; ok {
		return out, 1, nil
	}
	return json.RawMessage(`"done"`), 1, nil
}

type fakeAgent struct {
	calls   map[string]int
	results map[string]json.RawMessage
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{calls: make(map[string]int), results: make(map[string]json.RawMessage)}
}

func (f *fakeAgent) Run(_ context.Context, name string, _ json.RawMessage) (json.RawMessage, int, error) {
	f.calls[name]++
	if out, ok := f.results[name]; ok {
		return out, 1, nil
	}
	return json.RawMessage(`{}`), 1, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFeedback(id string) domain.FeedbackItem {
	return domain.FeedbackItem{
		FeedbackID: id,
		StoreID:    "store-001",
		OrderID:    "ord-1",
		Channel:    "web",
		Rating:     4,
		Comment:    "pretty good",
		Customer: domain.CustomerInfo{
			PreferredName:          "Jamie",
			Email:                  "jamie@example.com",
			PreferredContactMethod: domain.ContactEmail,
		},
	}
}

func testRuntime(t *testing.T, fn WorkflowFn) (*Runtime, *MemoryStore, *fakeExecutor, *fakeAgent) {
	t.Helper()
	store := NewMemoryStore()
	exec := newFakeExecutor()
	agent := newFakeAgent()
	rt := New(Deps{Store: store, Activities: exec, Agents: agent, Logger: discardLogger()})
	rt.RegisterWorkflow("test", fn)
	return rt, store, exec, agent
}

func TestStartRunsToCompletion(t *testing.T) {
	body := func(c *Context) (string, error) {
		if _, err := c.CallActivity("First", nil); err != nil {
			return "", err
		}
		raw, err := c.CallActivity("Second", nil)
		if err != nil {
			return "", err
		}
		var out string
		if err := json.Unmarshal(raw, &out); err != nil {
			return "", err
		}
		return out, nil
	}
	rt, _, exec, _ := testRuntime(t, body)

	id, err := rt.Start(context.Background(), "test", "inst-1", testFeedback("fbk-1"))
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if id != "inst-1" {
		t.Fatalf("expected instance id inst-1, got %s", id)
	}

	summary, err := rt.GetStatus(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("GetStatus returned error: %v", err)
	}
	if summary.Status != domain.InstanceCompleted {
		t.Fatalf("expected COMPLETED, got %s", summary.Status)
	}
	if summary.Output != "done" {
		t.Fatalf("expected output done, got %q", summary.Output)
	}
	if exec.calls["First"] != 1 || exec.calls["Second"] != 1 {
		t.Fatalf("expected each activity once, got %v", exec.calls)
	}
}

func TestStartDuplicateIsNoOp(t *testing.T) {
	body := func(c *Context) (string, error) {
		_, err := c.CallActivity("Only", nil)
		return "ok", err
	}
	rt, _, exec, _ := testRuntime(t, body)

	if _, err := rt.Start(context.Background(), "test", "inst-1", testFeedback("fbk-1")); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	id, err := rt.Start(context.Background(), "test", "inst-1", testFeedback("fbk-1"))
	if err != nil {
		t.Fatalf("duplicate start failed: %v", err)
	}
	if id != "inst-1" {
		t.Fatalf("expected existing id inst-1, got %s", id)
	}

	// Same feedback under a different instance id maps to the original.
	id, err = rt.Start(context.Background(), "test", "inst-other", testFeedback("fbk-1"))
	if err != nil {
		t.Fatalf("feedback-dedupe start failed: %v", err)
	}
	if id != "inst-1" {
		t.Fatalf("expected dedupe onto inst-1, got %s", id)
	}
	if exec.calls["Only"] != 1 {
		t.Fatalf("expected activity to run once, ran %d times", exec.calls["Only"])
	}
}

func TestWaitForEventSuspendsAndResumes(t *testing.T) {
	body := func(c *Context) (string, error) {
		if _, err := c.CallActivity("BeforeWait", nil); err != nil {
			return "", err
		}
		payload, err := c.WaitForEvent("Approved")
		if err != nil {
			return "", err
		}
		var approved bool
		if err := json.Unmarshal(payload, &approved); err != nil {
			return "", err
		}
		return fmt.Sprintf("approved=%t", approved), nil
	}
	rt, store, exec, _ := testRuntime(t, body)

	if _, err := rt.Start(context.Background(), "test", "inst-1", testFeedback("fbk-1")); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	inst, err := store.GetInstance(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("GetInstance returned error: %v", err)
	}
	if inst.Status != domain.InstanceRunning {
		t.Fatalf("expected RUNNING while suspended, got %s", inst.Status)
	}
	if inst.PendingWait == nil || inst.PendingWait.EventName != "Approved" {
		t.Fatalf("expected pending wait on Approved, got %+v", inst.PendingWait)
	}

	if err := rt.RaiseEvent(context.Background(), "inst-1", "Approved", json.RawMessage(`true`)); err != nil {
		t.Fatalf("RaiseEvent returned error: %v", err)
	}

	summary, err := rt.GetStatus(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("GetStatus returned error: %v", err)
	}
	if summary.Status != domain.InstanceCompleted {
		t.Fatalf("expected COMPLETED after resume, got %s", summary.Status)
	}
	if summary.Output != "approved=true" {
		t.Fatalf("unexpected output %q", summary.Output)
	}
	if exec.calls["BeforeWait"] != 1 {
		t.Fatalf("expected BeforeWait once across passes, ran %d times", exec.calls["BeforeWait"])
	}

	inst, _ = store.GetInstance(context.Background(), "inst-1")
	if inst.PendingWait != nil {
		t.Fatalf("expected pending wait cleared after resume, got %+v", inst.PendingWait)
	}
}

func TestRaiseEventWrongName(t *testing.T) {
	body := func(c *Context) (string, error) {
		_, err := c.WaitForEvent("Approved")
		return "", err
	}
	rt, _, _, _ := testRuntime(t, body)

	if _, err := rt.Start(context.Background(), "test", "inst-1", testFeedback("fbk-1")); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	err := rt.RaiseEvent(context.Background(), "inst-1", "SomethingElse", nil)
	if !errors.Is(err, domain.ErrNotAwaitingEvent) {
		t.Fatalf("expected ErrNotAwaitingEvent, got %v", err)
	}
}

func TestRaiseEventUnknownInstance(t *testing.T) {
	rt, _, _, _ := testRuntime(t, func(c *Context) (string, error) { return "", nil })
	err := rt.RaiseEvent(context.Background(), "missing", "Approved", nil)
	if !errors.Is(err, domain.ErrUnknownInstance) {
		t.Fatalf("expected ErrUnknownInstance, got %v", err)
	}
}

func TestSleepSuspendsUntilDue(t *testing.T) {
	body := func(c *Context) (string, error) {
		if err := c.Sleep(time.Millisecond); err != nil {
			return "", err
		}
		return "woke", nil
	}
	rt, store, _, _ := testRuntime(t, body)

	if _, err := rt.Start(context.Background(), "test", "inst-1", testFeedback("fbk-1")); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	inst, _ := store.GetInstance(context.Background(), "inst-1")
	if inst.PendingWait == nil || inst.PendingWait.WakeAt == nil {
		t.Fatalf("expected a persisted wake time, got %+v", inst.PendingWait)
	}

	// Before the wake time nothing is due.
	if err := rt.WakeDue(context.Background(), inst.PendingWait.WakeAt.Add(-time.Hour), 0); err != nil {
		t.Fatalf("WakeDue returned error: %v", err)
	}
	summary, _ := rt.GetStatus(context.Background(), "inst-1")
	if summary.Status != domain.InstanceRunning {
		t.Fatalf("expected still RUNNING before wake time, got %s", summary.Status)
	}

	time.Sleep(5 * time.Millisecond)
	if err := rt.WakeDue(context.Background(), time.Now().UTC(), 0); err != nil {
		t.Fatalf("WakeDue returned error: %v", err)
	}
	summary, _ = rt.GetStatus(context.Background(), "inst-1")
	if summary.Status != domain.InstanceCompleted {
		t.Fatalf("expected COMPLETED after wake, got %s", summary.Status)
	}
	if summary.Output != "woke" {
		t.Fatalf("unexpected output %q", summary.Output)
	}
}

func TestNowIsStableAcrossReplay(t *testing.T) {
	var observed []time.Time
	body := func(c *Context) (string, error) {
		now, err := c.Now()
		if err != nil {
			return "", err
		}
		observed = append(observed, now)
		if _, err := c.WaitForEvent("Go"); err != nil {
			return "", err
		}
		return now.Format(time.RFC3339Nano), nil
	}
	rt, _, _, _ := testRuntime(t, body)

	if _, err := rt.Start(context.Background(), "test", "inst-1", testFeedback("fbk-1")); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := rt.RaiseEvent(context.Background(), "inst-1", "Go", nil); err != nil {
		t.Fatalf("RaiseEvent returned error: %v", err)
	}

	if len(observed) != 2 {
		t.Fatalf("expected two passes through the body, got %d", len(observed))
	}
	if !observed[0].Equal(observed[1]) {
		t.Fatalf("expected the replayed pass to observe the recorded time, got %v then %v", observed[0], observed[1])
	}
}

func TestWorkflowFailureRecordsKind(t *testing.T) {
	body := func(c *Context) (string, error) {
		_, err := c.CallActivity("Broken", nil)
		return "", err
	}
	rt, _, exec, _ := testRuntime(t, body)
	exec.errs["Broken"] = domain.Permanent(errors.New("invalid input"))

	if _, err := rt.Start(context.Background(), "test", "inst-1", testFeedback("fbk-1")); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	summary, err := rt.GetStatus(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("GetStatus returned error: %v", err)
	}
	if summary.Status != domain.InstanceFailed {
		t.Fatalf("expected FAILED, got %s", summary.Status)
	}
	if summary.Failure == nil || summary.Failure.Kind != domain.ErrorPermanent {
		t.Fatalf("expected permanent failure, got %+v", summary.Failure)
	}
}

func TestRecordedFailureReplays(t *testing.T) {
	passes := 0
	body := func(c *Context) (string, error) {
		passes++
		if _, err := c.CallActivity("Flaky", nil); err != nil {
			return "", err
		}
		_, err := c.WaitForEvent("Never")
		return "", err
	}
	rt, store, exec, _ := testRuntime(t, body)
	exec.errs["Flaky"] = domain.Transient(errors.New("dependency down"))

	if _, err := rt.Start(context.Background(), "test", "inst-1", testFeedback("fbk-1")); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	summary, _ := rt.GetStatus(context.Background(), "inst-1")
	if summary.Status != domain.InstanceFailed {
		t.Fatalf("expected FAILED, got %s", summary.Status)
	}

	// The record is final: a forced extra pass replays the failure without
	// rerunning the activity. Reset the status to RUNNING to let it pass.
	if err := store.UpdateStatus(context.Background(), "inst-1", domain.InstanceRunning, "", nil); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if err := rt.RunPass(context.Background(), "inst-1"); err != nil {
		t.Fatalf("RunPass returned error: %v", err)
	}
	if exec.calls["Flaky"] != 1 {
		t.Fatalf("expected activity once, ran %d times", exec.calls["Flaky"])
	}
	if passes != 2 {
		t.Fatalf("expected two passes, got %d", passes)
	}
}

func TestNonDeterministicDivergenceFailsPermanently(t *testing.T) {
	first := func(c *Context) (string, error) {
		if _, err := c.CallActivity("Original", nil); err != nil {
			return "", err
		}
		_, err := c.WaitForEvent("Go")
		return "", err
	}
	rt, _, _, _ := testRuntime(t, first)

	if _, err := rt.Start(context.Background(), "test", "inst-1", testFeedback("fbk-1")); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	// Deploying a changed body against existing history must surface as a
	// permanent non-determinism failure, never silent divergence.
	rt.RegisterWorkflow("test", func(c *Context) (string, error) {
		if _, err := c.CallActivity("Changed", nil); err != nil {
			return "", err
		}
		_, err := c.WaitForEvent("Go")
		return "", err
	})

	if err := rt.RaiseEvent(context.Background(), "inst-1", "Go", nil); err != nil {
		t.Fatalf("RaiseEvent returned error: %v", err)
	}
	summary, _ := rt.GetStatus(context.Background(), "inst-1")
	if summary.Status != domain.InstanceFailed {
		t.Fatalf("expected FAILED, got %s", summary.Status)
	}
	if summary.Failure == nil || summary.Failure.Kind != domain.ErrorPermanent {
		t.Fatalf("expected permanent failure, got %+v", summary.Failure)
	}
}

func TestWorkflowPanicFailsInstance(t *testing.T) {
	rt, _, _, _ := testRuntime(t, func(c *Context) (string, error) {
		panic("boom")
	})

	if _, err := rt.Start(context.Background(), "test", "inst-1", testFeedback("fbk-1")); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	summary, _ := rt.GetStatus(context.Background(), "inst-1")
	if summary.Status != domain.InstanceFailed {
		t.Fatalf("expected FAILED after panic, got %s", summary.Status)
	}
	if summary.Failure == nil || summary.Failure.Kind != domain.ErrorPermanent {
		t.Fatalf("expected permanent failure, got %+v", summary.Failure)
	}
}

func TestTerminate(t *testing.T) {
	body := func(c *Context) (string, error) {
		_, err := c.WaitForEvent("Never")
		return "", err
	}
	rt, _, _, _ := testRuntime(t, body)

	if _, err := rt.Start(context.Background(), "test", "inst-1", testFeedback("fbk-1")); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := rt.Terminate(context.Background(), "inst-1", "stuck"); err != nil {
		t.Fatalf("Terminate returned error: %v", err)
	}

	summary, _ := rt.GetStatus(context.Background(), "inst-1")
	if summary.Status != domain.InstanceTerminated {
		t.Fatalf("expected TERMINATED, got %s", summary.Status)
	}

	// Terminating again is a no-op, and events no longer land.
	if err := rt.Terminate(context.Background(), "inst-1", "again"); err != nil {
		t.Fatalf("repeat Terminate returned error: %v", err)
	}
	err := rt.RaiseEvent(context.Background(), "inst-1", "Never", nil)
	if !errors.Is(err, domain.ErrNotAwaitingEvent) {
		t.Fatalf("expected ErrNotAwaitingEvent after termination, got %v", err)
	}
}

func TestRunPassUnknownInstance(t *testing.T) {
	rt, _, _, _ := testRuntime(t, func(c *Context) (string, error) { return "", nil })
	err := rt.RunPass(context.Background(), "missing")
	if !errors.Is(err, domain.ErrUnknownInstance) {
		t.Fatalf("expected ErrUnknownInstance, got %v", err)
	}
}

func TestAgentCallRecorded(t *testing.T) {
	body := func(c *Context) (string, error) {
		raw, err := c.CallAgent("Analyze", c.Input())
		if err != nil {
			return "", err
		}
		if _, err := c.WaitForEvent("Go"); err != nil {
			return "", err
		}
		return string(raw), nil
	}
	rt, _, _, agent := testRuntime(t, body)
	agent.results["Analyze"] = json.RawMessage(`{"sentiment":"neutral"}`)

	if _, err := rt.Start(context.Background(), "test", "inst-1", testFeedback("fbk-1")); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := rt.RaiseEvent(context.Background(), "inst-1", "Go", nil); err != nil {
		t.Fatalf("RaiseEvent returned error: %v", err)
	}

	summary, _ := rt.GetStatus(context.Background(), "inst-1")
	if summary.Status != domain.InstanceCompleted {
		t.Fatalf("expected COMPLETED, got %s", summary.Status)
	}
	if summary.Output != `{"sentiment":"neutral"}` {
		t.Fatalf("unexpected output %q", summary.Output)
	}
	if agent.calls["Analyze"] != 1 {
		t.Fatalf("expected one agent call across passes, got %d", agent.calls["Analyze"])
	}
}

// flakyStore fails a number of step appends before behaving normally,
// standing in for a store connection dropping mid-pass.
type flakyStore struct {
	*MemoryStore
	failAppends int
}

func (s *flakyStore) AppendStep(ctx context.Context, id string, rec domain.StepRecord) (domain.StepRecord, error) {
	if s.failAppends > 0 {
		s.failAppends--
		return domain.StepRecord{}, errors.New("store connection reset")
	}
	return s.MemoryStore.AppendStep(ctx, id, rec)
}

func TestStartRedeliveryResumesInterruptedPass(t *testing.T) {
	body := func(c *Context) (string, error) {
		_, err := c.CallActivity("Only", nil)
		return "ok", err
	}
	store := &flakyStore{MemoryStore: NewMemoryStore(), failAppends: 1}
	exec := newFakeExecutor()
	rt := New(Deps{Store: store, Activities: exec, Agents: newFakeAgent(), Logger: discardLogger()})
	rt.RegisterWorkflow("test", body)

	// First delivery: the checkpoint append fails, the pass aborts with no
	// record and the instance stays RUNNING.
	if _, err := rt.Start(context.Background(), "test", "inst-1", testFeedback("fbk-1")); err == nil {
		t.Fatal("expected first start to surface the store failure")
	}
	inst, err := store.GetInstance(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("GetInstance returned error: %v", err)
	}
	if inst.Status != domain.InstanceRunning {
		t.Fatalf("expected RUNNING after interrupted pass, got %s", inst.Status)
	}
	if len(inst.History) != 0 {
		t.Fatalf("expected no records after interrupted pass, got %d", len(inst.History))
	}

	// Redelivered start must not strand the instance: it runs a fresh pass.
	id, err := rt.Start(context.Background(), "test", "inst-1", testFeedback("fbk-1"))
	if err != nil {
		t.Fatalf("redelivered start failed: %v", err)
	}
	if id != "inst-1" {
		t.Fatalf("expected existing id inst-1, got %s", id)
	}
	summary, _ := rt.GetStatus(context.Background(), "inst-1")
	if summary.Status != domain.InstanceCompleted {
		t.Fatalf("expected COMPLETED after redelivery, got %s", summary.Status)
	}
}

// cancelExecutor surfaces the pass context's cancellation, the way a real
// activity does when shutdown interrupts it.
type cancelExecutor struct {
	calls int
}

func (f *cancelExecutor) Execute(ctx context.Context, _ string, _ json.RawMessage) (json.RawMessage, int, error) {
	f.calls++
	if err := ctx.Err(); err != nil {
		return nil, 1, err
	}
	return json.RawMessage(`"done"`), 1, nil
}

func TestShutdownMidStepLeavesNoFailureRecord(t *testing.T) {
	body := func(c *Context) (string, error) {
		_, err := c.CallActivity("Only", nil)
		return "ok", err
	}
	store := NewMemoryStore()
	exec := &cancelExecutor{}
	rt := New(Deps{Store: store, Activities: exec, Agents: newFakeAgent(), Logger: discardLogger()})
	rt.RegisterWorkflow("test", body)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := rt.Start(ctx, "test", "inst-1", testFeedback("fbk-1")); err == nil {
		t.Fatal("expected interrupted pass to surface an error")
	}

	inst, err := store.GetInstance(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("GetInstance returned error: %v", err)
	}
	if inst.Status != domain.InstanceRunning {
		t.Fatalf("expected instance to stay RUNNING through shutdown, got %s", inst.Status)
	}
	if len(inst.History) != 0 {
		t.Fatalf("expected no checkpoint for the interrupted step, got %d records", len(inst.History))
	}
	if inst.Failure != nil {
		t.Fatalf("expected no recorded failure, got %+v", inst.Failure)
	}

	// Redelivery with a live context re-runs the step and completes.
	if err := rt.RunPass(context.Background(), "inst-1"); err != nil {
		t.Fatalf("resumption pass failed: %v", err)
	}
	summary, _ := rt.GetStatus(context.Background(), "inst-1")
	if summary.Status != domain.InstanceCompleted {
		t.Fatalf("expected COMPLETED after resumption, got %s", summary.Status)
	}
	if exec.calls != 2 {
		t.Fatalf("expected the activity to run on both passes, ran %d times", exec.calls)
	}
}

func TestInstanceLockMapIsBounded(t *testing.T) {
	body := func(c *Context) (string, error) {
		_, err := c.CallActivity("Only", nil)
		return "ok", err
	}
	rt, _, _, _ := testRuntime(t, body)

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("inst-%d", i)
		if _, err := rt.Start(context.Background(), "test", id, testFeedback(fmt.Sprintf("fbk-%d", i))); err != nil {
			t.Fatalf("start %s failed: %v", id, err)
		}
	}

	rt.mu.Lock()
	held := len(rt.running)
	rt.mu.Unlock()
	if held != 0 {
		t.Fatalf("expected no retained instance locks, got %d", held)
	}
}

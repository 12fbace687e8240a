// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"time"
)

type InstanceStatus string

const (
	InstanceRunning    InstanceStatus = "RUNNING"
	InstanceCompleted  InstanceStatus = "COMPLETED"
	InstanceFailed     InstanceStatus = "FAILED"
	InstanceTerminated InstanceStatus = "TERMINATED"
)

// Terminal reports whether the status is final.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceCompleted || s == InstanceFailed || s == InstanceTerminated
}

type StepKind string

const (
	StepActivity      StepKind = "ACTIVITY"
	StepAgentCall     StepKind = "AGENT_CALL"
	StepTimer         StepKind = "TIMER"
	StepExternalEvent StepKind = "EXTERNAL_EVENT"
)

// StepFailure is the persisted form of a failed step outcome. Replaying a
// recorded failure must reproduce the same error category and message.
type StepFailure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// AsError reconstructs the step error from its persisted form.
func (f *StepFailure) AsError() error {
	if f == nil {
		return nil
	}
	return &StepError{Kind: f.Kind, Message: f.Message}
}

// FailureFrom captures an error as a persistable step failure.
func FailureFrom(err error) *StepFailure {
	if err == nil {
		return nil
	}
	return &StepFailure{Kind: KindOf(err), Message: err.Error()}
}

// StepRecord is one checkpoint in an instance history. Seq is zero-based and
// strictly monotonic per instance; exactly one of Result and Failure is set.
type StepRecord struct {
	Seq         int             `json:"seq"`
	Kind        StepKind        `json:"kind"`
	Name        string          `json:"name"`
	Result      json.RawMessage `json:"result,omitempty"`
	Failure     *StepFailure    `json:"failure,omitempty"`
	Attempt     int             `json:"attempt"`
	CompletedAt time.Time       `json:"completed_at"`
}

// PendingWait is the persisted wake condition of a suspended instance.
// Exactly one of EventName and WakeAt is set. When an awaited event is
// delivered, Resolved flips to true and Payload carries the event body; the
// next replay pass consumes it.
type PendingWait struct {
	EventName string          `json:"event_name,omitempty"`
	WakeAt    *time.Time      `json:"wake_at,omitempty"`
	Resolved  bool            `json:"resolved,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// OrchestrationInstance is one durable execution of the feedback workflow.
// It is exclusively owned and mutated by the orchestration engine; stores
// only persist and retrieve it.
type OrchestrationInstance struct {
	ID          string         `json:"id"`
	Workflow    string         `json:"workflow"`
	Input       FeedbackItem   `json:"input"`
	History     []StepRecord   `json:"history"`
	Status      InstanceStatus `json:"status"`
	PendingWait *PendingWait   `json:"pending_wait,omitempty"`
	Output      string         `json:"output,omitempty"`
	Failure     *StepFailure   `json:"failure,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// InstanceSummary is the externally visible status of an instance.
type InstanceSummary struct {
	ID      string         `json:"id"`
	Status  InstanceStatus `json:"status"`
	Output  string         `json:"output,omitempty"`
	Failure *StepFailure   `json:"failure,omitempty"`
}

// InstanceIDForFeedback derives the orchestration instance id for a feedback
// submission. Deriving it from the feedback id is what makes instance
// creation idempotent under at-least-once message delivery.
func InstanceIDForFeedback(feedbackID string) string {
	return "fbo-" + feedbackID
}

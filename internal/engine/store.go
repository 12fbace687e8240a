// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/adiadia/feedback-orchestrator/internal/domain"
)

// InstanceStore durably persists orchestration instances. Implementations
// must make AppendStep atomic per (instance id, seq) and must support
// concurrent access across distinct instance ids without contention.
type InstanceStore interface {
	// CreateInstance persists a new instance. When an instance already
	// exists for the same id or the same feedback id, it returns the
	// existing instance id and created=false; duplicate creation is not an
	// error.
	CreateInstance(ctx context.Context, inst *domain.OrchestrationInstance) (existingID string, created bool, err error)

	// GetInstance loads an instance with its full history, ordered by seq.
	// Returns domain.ErrUnknownInstance when the id does not exist.
	GetInstance(ctx context.Context, id string) (*domain.OrchestrationInstance, error)

	// AppendStep records a completed step at rec.Seq. A concurrent
	// duplicate append for a position already filled is a no-op that
	// returns the previously recorded step.
	AppendStep(ctx context.Context, id string, rec domain.StepRecord) (domain.StepRecord, error)

	// UpdateStatus transitions the instance status and records the output
	// or failure for terminal states.
	UpdateStatus(ctx context.Context, id string, status domain.InstanceStatus, output string, failure *domain.StepFailure) error

	// RegisterWait persists the wake condition of a suspended instance.
	// A nil wait clears any pending wait.
	RegisterWait(ctx context.Context, id string, wait *domain.PendingWait) error

	// ResolveWait delivers an external event. It records the payload on the
	// pending wait when the instance is currently awaiting eventName and
	// returns domain.ErrNotAwaitingEvent otherwise; unknown ids return
	// domain.ErrUnknownInstance.
	ResolveWait(ctx context.Context, id, eventName string, payload json.RawMessage) error

	// DueTimers lists ids of running instances whose timer wake time is at
	// or before now.
	DueTimers(ctx context.Context, now time.Time, limit int) ([]string, error)
}

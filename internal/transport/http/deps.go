// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"encoding/json"

	"github.com/adiadia/feedback-orchestrator/internal/catalog"
	"github.com/adiadia/feedback-orchestrator/internal/domain"
)

// Orchestrator is the engine surface the API exposes.
type Orchestrator interface {
	Start(ctx context.Context, workflowName, instanceID string, input domain.FeedbackItem) (string, error)
	RaiseEvent(ctx context.Context, instanceID, eventName string, payload json.RawMessage) error
	GetStatus(ctx context.Context, instanceID string) (domain.InstanceSummary, error)
	Terminate(ctx context.Context, instanceID, reason string) error
}

// InstanceReader loads full instances for history inspection.
type InstanceReader interface {
	GetInstance(ctx context.Context, id string) (*domain.OrchestrationInstance, error)
}

// FeedbackPublisher hands accepted feedback to the message queue. When nil,
// the API starts instances in-process instead.
type FeedbackPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// CatalogReader serves store and flavor lookups.
type CatalogReader interface {
	Stores() []catalog.Store
	Flavors() []catalog.Flavor
	StoreByID(id string) (catalog.Store, bool)
	FlavorByID(id string) (catalog.Flavor, bool)
}

// HealthChecker reports whether the backing store is reachable. A pgx pool
// satisfies it directly.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// ReadinessChecker reports whether the service can take traffic, including
// that the database schema is in place.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

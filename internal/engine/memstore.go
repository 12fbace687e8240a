// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/adiadia/feedback-orchestrator/internal/domain"
)

// MemoryStore is an in-memory InstanceStore. It backs unit tests and local
// single-process runs; production uses the Postgres store in
// internal/repository.
type MemoryStore struct {
	mu         sync.RWMutex
	instances  map[string]*domain.OrchestrationInstance
	byFeedback map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances:  make(map[string]*domain.OrchestrationInstance),
		byFeedback: make(map[string]string),
	}
}

func (s *MemoryStore) CreateInstance(_ context.Context, inst *domain.OrchestrationInstance) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.instances[inst.ID]; ok {
		return existing.ID, false, nil
	}
	if id, ok := s.byFeedback[inst.Input.FeedbackID]; ok {
		return id, false, nil
	}

	cp := cloneInstance(inst)
	s.instances[inst.ID] = cp
	s.byFeedback[inst.Input.FeedbackID] = inst.ID
	return inst.ID, true, nil
}

func (s *MemoryStore) GetInstance(_ context.Context, id string) (*domain.OrchestrationInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, domain.ErrUnknownInstance
	}
	return cloneInstance(inst), nil
}

func (s *MemoryStore) AppendStep(_ context.Context, id string, rec domain.StepRecord) (domain.StepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return domain.StepRecord{}, domain.ErrUnknownInstance
	}

	// Duplicate append for a filled position returns the existing record.
	if rec.Seq < len(inst.History) {
		return inst.History[rec.Seq], nil
	}
	inst.History = append(inst.History, rec)
	inst.UpdatedAt = time.Now().UTC()
	return rec, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status domain.InstanceStatus, output string, failure *domain.StepFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return domain.ErrUnknownInstance
	}
	inst.Status = status
	inst.Output = output
	inst.Failure = failure
	inst.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) RegisterWait(_ context.Context, id string, wait *domain.PendingWait) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return domain.ErrUnknownInstance
	}
	inst.PendingWait = wait
	inst.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ResolveWait(_ context.Context, id, eventName string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return domain.ErrUnknownInstance
	}
	if inst.Status != domain.InstanceRunning ||
		inst.PendingWait == nil ||
		inst.PendingWait.EventName != eventName {
		return domain.ErrNotAwaitingEvent
	}
	inst.PendingWait.Resolved = true
	inst.PendingWait.Payload = payload
	inst.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DueTimers(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, inst := range s.instances {
		if inst.Status != domain.InstanceRunning || inst.PendingWait == nil || inst.PendingWait.WakeAt == nil {
			continue
		}
		if !inst.PendingWait.WakeAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func cloneInstance(inst *domain.OrchestrationInstance) *domain.OrchestrationInstance {
	cp := *inst
	cp.History = append([]domain.StepRecord(nil), inst.History...)
	if inst.PendingWait != nil {
		w := *inst.PendingWait
		cp.PendingWait = &w
	}
	if inst.Failure != nil {
		f := *inst.Failure
		cp.Failure = &f
	}
	return &cp
}

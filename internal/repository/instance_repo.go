// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adiadia/feedback-orchestrator/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InstanceRepository is the Postgres-backed instance store. History appends
// rely on the (instance_id, seq) primary key so that two workers racing on
// the same step keep exactly one record.
type InstanceRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewInstanceRepository(pool *pgxpool.Pool, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *InstanceRepository) CreateInstance(ctx context.Context, inst *domain.OrchestrationInstance) (string, bool, error) {
	input, err := json.Marshal(inst.Input)
	if err != nil {
		return "", false, fmt.Errorf("marshal instance input: %w", err)
	}

	cmd, err := r.pool.Exec(ctx, `
		INSERT INTO instances (id, workflow, feedback_id, input, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`, inst.ID, inst.Workflow, inst.Input.FeedbackID, input, inst.Status)
	if err != nil {
		r.logger.Error("insert instance failed", "instance_id", inst.ID, "error", err)
		return "", false, err
	}

	if cmd.RowsAffected() > 0 {
		r.logger.Info("instance created", "instance_id", inst.ID, "feedback_id", inst.Input.FeedbackID)
		return inst.ID, true, nil
	}

	var existingID string
	err = r.pool.QueryRow(ctx, `
		SELECT id FROM instances
		WHERE id = $1 OR feedback_id = $2
	`, inst.ID, inst.Input.FeedbackID).Scan(&existingID)
	if err != nil {
		r.logger.Error("lookup existing instance failed", "instance_id", inst.ID, "error", err)
		return "", false, err
	}

	return existingID, false, nil
}

func (r *InstanceRepository) GetInstance(ctx context.Context, id string) (*domain.OrchestrationInstance, error) {
	var (
		inst         domain.OrchestrationInstance
		input        []byte
		output       *string
		failureKind  *string
		failureMsg   *string
		pendingEvent *string
		wakeAt       *time.Time
		waitResolved bool
		waitPayload  []byte
	)

	err := r.pool.QueryRow(ctx, `
		SELECT id, workflow, input, status, output,
		       failure_kind, failure_msg,
		       pending_event, wake_at, wait_resolved, wait_payload,
		       created_at, updated_at
		FROM instances
		WHERE id = $1
	`, id).Scan(
		&inst.ID, &inst.Workflow, &input, &inst.Status, &output,
		&failureKind, &failureMsg,
		&pendingEvent, &wakeAt, &waitResolved, &waitPayload,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUnknownInstance
	}
	if err != nil {
		r.logger.Error("get instance failed", "instance_id", id, "error", err)
		return nil, err
	}

	if err := json.Unmarshal(input, &inst.Input); err != nil {
		return nil, fmt.Errorf("unmarshal instance input: %w", err)
	}
	if output != nil {
		inst.Output = *output
	}
	if failureKind != nil {
		inst.Failure = &domain.StepFailure{
			Kind:    domain.ErrorKind(*failureKind),
			Message: deref(failureMsg),
		}
	}
	if pendingEvent != nil || wakeAt != nil {
		inst.PendingWait = &domain.PendingWait{
			EventName: deref(pendingEvent),
			WakeAt:    wakeAt,
			Resolved:  waitResolved,
			Payload:   waitPayload,
		}
	}

	history, err := r.loadHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	inst.History = history

	return &inst, nil
}

func (r *InstanceRepository) loadHistory(ctx context.Context, id string) ([]domain.StepRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT seq, kind, name, result, failure_kind, failure_msg, attempt, completed_at
		FROM instance_steps
		WHERE instance_id = $1
		ORDER BY seq
	`, id)
	if err != nil {
		r.logger.Error("load history failed", "instance_id", id, "error", err)
		return nil, err
	}
	defer rows.Close()

	var history []domain.StepRecord
	for rows.Next() {
		var (
			rec         domain.StepRecord
			failureKind *string
			failureMsg  *string
		)
		if err := rows.Scan(
			&rec.Seq, &rec.Kind, &rec.Name, &rec.Result,
			&failureKind, &failureMsg, &rec.Attempt, &rec.CompletedAt,
		); err != nil {
			return nil, err
		}
		if failureKind != nil {
			rec.Failure = &domain.StepFailure{
				Kind:    domain.ErrorKind(*failureKind),
				Message: deref(failureMsg),
			}
		}
		history = append(history, rec)
	}
	return history, rows.Err()
}

func (r *InstanceRepository) AppendStep(ctx context.Context, id string, rec domain.StepRecord) (domain.StepRecord, error) {
	var failureKind, failureMsg *string
	if rec.Failure != nil {
		kind := string(rec.Failure.Kind)
		failureKind = &kind
		failureMsg = &rec.Failure.Message
	}

	cmd, err := r.pool.Exec(ctx, `
		INSERT INTO instance_steps (instance_id, seq, kind, name, result, failure_kind, failure_msg, attempt, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (instance_id, seq) DO NOTHING
	`, id, rec.Seq, rec.Kind, rec.Name, []byte(rec.Result), failureKind, failureMsg, rec.Attempt, rec.CompletedAt)
	if err != nil {
		r.logger.Error("append step failed", "instance_id", id, "seq", rec.Seq, "error", err)
		return domain.StepRecord{}, err
	}

	if cmd.RowsAffected() > 0 {
		if _, err := r.pool.Exec(ctx,
			`UPDATE instances SET updated_at = NOW() WHERE id = $1`,
			id,
		); err != nil {
			r.logger.Error("touch instance failed", "instance_id", id, "error", err)
		}
		return rec, nil
	}

	// Lost the race: another worker already filled this position.
	existing, err := r.stepAt(ctx, id, rec.Seq)
	if err != nil {
		return domain.StepRecord{}, err
	}
	r.logger.Info("duplicate step append ignored", "instance_id", id, "seq", rec.Seq)
	return existing, nil
}

func (r *InstanceRepository) stepAt(ctx context.Context, id string, seq int) (domain.StepRecord, error) {
	var (
		rec         domain.StepRecord
		failureKind *string
		failureMsg  *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT seq, kind, name, result, failure_kind, failure_msg, attempt, completed_at
		FROM instance_steps
		WHERE instance_id = $1 AND seq = $2
	`, id, seq).Scan(
		&rec.Seq, &rec.Kind, &rec.Name, &rec.Result,
		&failureKind, &failureMsg, &rec.Attempt, &rec.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StepRecord{}, domain.ErrUnknownInstance
	}
	if err != nil {
		return domain.StepRecord{}, err
	}
	if failureKind != nil {
		rec.Failure = &domain.StepFailure{
			Kind:    domain.ErrorKind(*failureKind),
			Message: deref(failureMsg),
		}
	}
	return rec, nil
}

func (r *InstanceRepository) UpdateStatus(ctx context.Context, id string, status domain.InstanceStatus, output string, failure *domain.StepFailure) error {
	var failureKind, failureMsg *string
	if failure != nil {
		kind := string(failure.Kind)
		failureKind = &kind
		failureMsg = &failure.Message
	}
	var out *string
	if output != "" {
		out = &output
	}

	cmd, err := r.pool.Exec(ctx, `
		UPDATE instances
		SET status = $2, output = $3, failure_kind = $4, failure_msg = $5, updated_at = NOW()
		WHERE id = $1
	`, id, status, out, failureKind, failureMsg)
	if err != nil {
		r.logger.Error("update instance status failed", "instance_id", id, "error", err)
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrUnknownInstance
	}

	r.logger.Info("instance status updated", "instance_id", id, "status", status)
	return nil
}

func (r *InstanceRepository) RegisterWait(ctx context.Context, id string, wait *domain.PendingWait) error {
	var (
		event    *string
		wakeAt   *time.Time
		resolved bool
		payload  []byte
	)
	if wait != nil {
		if wait.EventName != "" {
			event = &wait.EventName
		}
		wakeAt = wait.WakeAt
		resolved = wait.Resolved
		payload = wait.Payload
	}

	cmd, err := r.pool.Exec(ctx, `
		UPDATE instances
		SET pending_event = $2, wake_at = $3, wait_resolved = $4, wait_payload = $5, updated_at = NOW()
		WHERE id = $1
	`, id, event, wakeAt, resolved, payload)
	if err != nil {
		r.logger.Error("register wait failed", "instance_id", id, "error", err)
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrUnknownInstance
	}
	return nil
}

func (r *InstanceRepository) ResolveWait(ctx context.Context, id, eventName string, payload json.RawMessage) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return err
	}
	defer tx.Rollback(ctx)

	var (
		status       domain.InstanceStatus
		pendingEvent *string
	)
	err = tx.QueryRow(ctx, `
		SELECT status, pending_event
		FROM instances
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&status, &pendingEvent)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrUnknownInstance
	}
	if err != nil {
		r.logger.Error("read instance wait failed", "instance_id", id, "error", err)
		return err
	}

	if status != domain.InstanceRunning || pendingEvent == nil || *pendingEvent != eventName {
		return domain.ErrNotAwaitingEvent
	}

	if _, err := tx.Exec(ctx, `
		UPDATE instances
		SET wait_resolved = TRUE, wait_payload = $2, updated_at = NOW()
		WHERE id = $1
	`, id, []byte(payload)); err != nil {
		r.logger.Error("resolve wait failed", "instance_id", id, "error", err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit resolve wait failed", "instance_id", id, "error", err)
		return err
	}

	r.logger.Info("external event delivered", "instance_id", id, "event", eventName)
	return nil
}

func (r *InstanceRepository) DueTimers(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `
		SELECT id FROM instances
		WHERE status = $1 AND wake_at IS NOT NULL AND wake_at <= $2
		ORDER BY wake_at
	`
	args := []any{domain.InstanceRunning, now}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("due timers query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

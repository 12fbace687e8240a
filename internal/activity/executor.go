// SPDX-License-Identifier: Apache-2.0

// Package activity provides the activity executor and the side-effecting
// activities it runs. Activities are single-input/single-output and never
// touch workflow state; the executor isolates the engine from transient
// dependency failures with a bounded exponential backoff.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adiadia/feedback-orchestrator/internal/domain"
	"github.com/adiadia/feedback-orchestrator/internal/metrics"
)

// Func is one registered activity.
type Func func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

type Deps struct {
	Logger *slog.Logger
	// MaxAttempts bounds retries of transient failures. Default 3.
	MaxAttempts int
	// BaseDelay is the first backoff interval. Default 500ms.
	BaseDelay time.Duration
	// MaxDelay caps the backoff. Default 10s.
	MaxDelay time.Duration
	// Timeout bounds a single attempt; exceeding it counts as a transient
	// failure. Default 30s.
	Timeout time.Duration
}

type Executor struct {
	logger      *slog.Logger
	registry    map[string]Func
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	timeout     time.Duration
}

func NewExecutor(deps Deps) *Executor {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}
	maxAtt := deps.MaxAttempts
	if maxAtt <= 0 {
		maxAtt = 3
	}
	base := deps.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	ceil := deps.MaxDelay
	if ceil <= 0 {
		ceil = 10 * time.Second
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Executor{
		logger:      l,
		registry:    make(map[string]Func),
		maxAttempts: maxAtt,
		baseDelay:   base,
		maxDelay:    ceil,
		timeout:     timeout,
	}
}

// Register adds a named activity. Registering twice overwrites.
func (e *Executor) Register(name string, fn Func) {
	e.registry[name] = fn
}

// Execute runs the named activity under the retry policy and reports the
// final outcome plus the attempt count that produced it. Transient failures
// are retried up to MaxAttempts; permanent failures surface on the first
// attempt with no retry.
func (e *Executor) Execute(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, int, error) {
	fn, ok := e.registry[name]
	if !ok {
		return nil, 1, domain.Permanent(fmt.Errorf("no activity registered under %q", name))
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		metrics.IncActivityAttempt(name)

		actx, cancel := context.WithTimeout(ctx, e.timeout)
		out, err := fn(actx, input)
		cancel()

		if err == nil {
			return out, attempt, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.Transient(fmt.Errorf("activity %s timed out after %s", name, e.timeout))
		}

		lastErr = err
		if domain.KindOf(err) != domain.ErrorTransient {
			e.logger.Error("activity permanently failed",
				"activity", name,
				"attempt", attempt,
				"error", err,
			)
			return nil, attempt, err
		}

		if attempt == e.maxAttempts {
			break
		}

		metrics.IncActivityRetry(name)
		e.logger.Warn("activity failed - retrying",
			"activity", name,
			"attempt", attempt,
			"max_attempts", e.maxAttempts,
			"error", err,
		)
		if err := e.backoff(ctx, attempt); err != nil {
			return nil, attempt, domain.Transient(err)
		}
	}

	e.logger.Error("activity retries exhausted",
		"activity", name,
		"attempts", e.maxAttempts,
		"error", lastErr,
	)
	return nil, e.maxAttempts, domain.Transient(fmt.Errorf("activity %s failed after %d attempts: %w", name, e.maxAttempts, lastErr))
}

func (e *Executor) backoff(ctx context.Context, attempt int) error {
	wait := e.baseDelay * time.Duration(1<<(attempt-1))
	if wait > e.maxDelay {
		wait = e.maxDelay
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SPDX-License-Identifier: Apache-2.0

package activity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/adiadia/feedback-orchestrator/internal/domain"
)

func testExecutor(maxAttempts int) *Executor {
	return NewExecutor(Deps{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Timeout:     time.Second,
	})
}

func TestExecuteUnknownActivity(t *testing.T) {
	e := testExecutor(3)
	_, attempt, err := e.Execute(context.Background(), "Nope", nil)
	if err == nil {
		t.Fatal("expected an error for an unregistered activity")
	}
	if domain.KindOf(err) != domain.ErrorPermanent {
		t.Fatalf("expected permanent kind, got %s", domain.KindOf(err))
	}
	if attempt != 1 {
		t.Fatalf("expected attempt 1, got %d", attempt)
	}
}

func TestExecuteRetriesTransient(t *testing.T) {
	e := testExecutor(3)
	calls := 0
	e.Register("Flaky", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		calls++
		if calls < 3 {
			return nil, domain.Transient(errors.New("dependency down"))
		}
		return json.RawMessage(`"ok"`), nil
	})

	out, attempt, err := e.Execute(context.Background(), "Flaky", nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if string(out) != `"ok"` {
		t.Fatalf("unexpected output %s", out)
	}
	if attempt != 3 || calls != 3 {
		t.Fatalf("expected success on attempt 3, got attempt=%d calls=%d", attempt, calls)
	}
}

func TestExecutePermanentDoesNotRetry(t *testing.T) {
	e := testExecutor(3)
	calls := 0
	e.Register("Broken", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		calls++
		return nil, domain.Permanent(errors.New("bad input"))
	})

	_, attempt, err := e.Execute(context.Background(), "Broken", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if domain.KindOf(err) != domain.ErrorPermanent {
		t.Fatalf("expected permanent kind, got %s", domain.KindOf(err))
	}
	if attempt != 1 || calls != 1 {
		t.Fatalf("expected exactly one attempt, got attempt=%d calls=%d", attempt, calls)
	}
}

func TestExecuteExhaustsRetries(t *testing.T) {
	e := testExecutor(2)
	calls := 0
	e.Register("AlwaysDown", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		calls++
		return nil, domain.Transient(errors.New("still down"))
	})

	_, attempt, err := e.Execute(context.Background(), "AlwaysDown", nil)
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if domain.KindOf(err) != domain.ErrorTransient {
		t.Fatalf("expected transient kind, got %s", domain.KindOf(err))
	}
	if attempt != 2 || calls != 2 {
		t.Fatalf("expected two attempts, got attempt=%d calls=%d", attempt, calls)
	}
}

func TestExecuteTimeoutIsTransient(t *testing.T) {
	e := NewExecutor(Deps{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
		Timeout:     10 * time.Millisecond,
	})
	e.Register("Slow", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, _, err := e.Execute(context.Background(), "Slow", nil)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if domain.KindOf(err) != domain.ErrorTransient {
		t.Fatalf("expected timeout to count as transient, got %s", domain.KindOf(err))
	}
}

func TestExecuteUntypedErrorIsRetried(t *testing.T) {
	e := testExecutor(3)
	calls := 0
	e.Register("Plain", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("unclassified hiccup")
		}
		return json.RawMessage(`"ok"`), nil
	})

	// Unclassified errors count as transient so infrastructure hiccups stay
	// retryable.
	_, attempt, err := e.Execute(context.Background(), "Plain", nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if attempt != 2 || calls != 2 {
		t.Fatalf("expected retry after unclassified error, got attempt=%d calls=%d", attempt, calls)
	}
}

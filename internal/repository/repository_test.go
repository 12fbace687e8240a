// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestNewInstanceRepository(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var pool *pgxpool.Pool

	repo := NewInstanceRepository(pool, logger)
	if repo == nil {
		t.Fatal("expected instance repository instance")
	}
	if repo.pool != pool {
		t.Fatal("expected pool reference to be preserved")
	}
	if repo.logger != logger {
		t.Fatal("expected logger reference to be preserved")
	}
}

func TestDeref(t *testing.T) {
	if got := deref(nil); got != "" {
		t.Fatalf("expected empty string for nil, got %q", got)
	}
	s := "value"
	if got := deref(&s); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/adiadia/feedback-orchestrator/internal/domain"
	"github.com/adiadia/feedback-orchestrator/internal/metrics"
	"github.com/adiadia/feedback-orchestrator/internal/transport/middleware"
	"github.com/adiadia/feedback-orchestrator/internal/workflow"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Orchestrator    Orchestrator
	Instances       InstanceReader
	Queue           FeedbackPublisher
	Catalog         CatalogReader
	Health          HealthChecker
	Readiness       ReadinessChecker
	FeedbackSubject string
	SubmitLimitMin  int
	Logger          *slog.Logger
	Version         string
	Commit          string
	BuildDate       string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health check hit")
		if deps.Health != nil {
			if err := deps.Health.Ping(r.Context()); err != nil {
				logger.Error("health check failed", "error", err)
				http.Error(w, "store unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness != nil {
			if err := deps.Readiness.Check(r.Context()); err != nil {
				logger.Error("readiness check failed", "error", err)
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- CATALOG ----------------

	r.Get("/stores", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"stores": deps.Catalog.Stores(),
		})
	})

	r.Get("/stores/{id}", func(w http.ResponseWriter, r *http.Request) {
		store, ok := deps.Catalog.StoreByID(chi.URLParam(r, "id"))
		if !ok {
			http.Error(w, "store not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, store)
	})

	r.Get("/flavors", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"flavors": deps.Catalog.Flavors(),
		})
	})

	// ---------------- SUBMIT FEEDBACK ----------------

	submitLimit := middleware.SubmitRateLimit(deps.SubmitLimitMin, logger)

	r.With(submitLimit).Post("/feedback", func(w http.ResponseWriter, r *http.Request) {
		item, err := decodeFeedback(r)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if item.FeedbackID == "" {
			item.FeedbackID = "fbk-" + uuid.NewString()[:8]
		}
		if item.SubmittedAt.IsZero() {
			item.SubmittedAt = time.Now().UTC()
		}

		if problems := item.Validate(); len(problems) > 0 {
			msgs := make([]string, 0, len(problems))
			for _, p := range problems {
				msgs = append(msgs, p.Error())
			}
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"errors": msgs,
			})
			return
		}

		instanceID := domain.InstanceIDForFeedback(item.FeedbackID)

		if deps.Queue != nil {
			data, err := json.Marshal(item)
			if err != nil {
				logger.Error("marshal feedback failed", "feedback_id", item.FeedbackID, "error", err)
				http.Error(w, "failed to accept feedback", http.StatusInternalServerError)
				return
			}
			if err := deps.Queue.Publish(r.Context(), deps.FeedbackSubject, data); err != nil {
				logger.Error("enqueue feedback failed", "feedback_id", item.FeedbackID, "error", err)
				http.Error(w, "failed to accept feedback", http.StatusInternalServerError)
				return
			}
		} else {
			id, err := deps.Orchestrator.Start(r.Context(), workflow.FeedbackWorkflow, instanceID, item)
			if err != nil {
				logger.Error("start instance failed", "feedback_id", item.FeedbackID, "error", err)
				http.Error(w, "failed to accept feedback", http.StatusInternalServerError)
				return
			}
			instanceID = id
		}

		logger.Info("feedback accepted",
			"feedback_id", item.FeedbackID,
			"instance_id", instanceID,
		)

		writeJSON(w, http.StatusAccepted, map[string]string{
			"feedback_id": item.FeedbackID,
			"instance_id": instanceID,
		})
	})

	// ---------------- GET INSTANCE ----------------

	r.Get("/instances/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		summary, err := deps.Orchestrator.GetStatus(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownInstance) {
				logger.Warn("instance not found", "instance_id", id)
				http.Error(w, "instance not found", http.StatusNotFound)
				return
			}
			logger.Error("get instance failed", "instance_id", id, "error", err)
			http.Error(w, "failed to get instance", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, summary)
	})

	// ---------------- LIST INSTANCE STEPS ----------------

	r.Get("/instances/{id}/steps", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		inst, err := deps.Instances.GetInstance(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownInstance) {
				logger.Warn("instance not found", "instance_id", id)
				http.Error(w, "instance not found", http.StatusNotFound)
				return
			}
			logger.Error("list steps failed", "instance_id", id, "error", err)
			http.Error(w, "failed to list steps", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, struct {
			InstanceID string              `json:"instance_id"`
			Steps      []domain.StepRecord `json:"steps"`
		}{
			InstanceID: inst.ID,
			Steps:      inst.History,
		})
	})

	// ---------------- RAISE EXTERNAL EVENT ----------------

	r.Post("/instances/{id}/events/{name}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		eventName := chi.URLParam(r, "name")

		payload, err := readEventPayload(r)
		if err != nil {
			http.Error(w, "invalid event payload", http.StatusBadRequest)
			return
		}

		if err := deps.Orchestrator.RaiseEvent(r.Context(), id, eventName, payload); err != nil {
			if errors.Is(err, domain.ErrUnknownInstance) {
				logger.Warn("instance not found", "instance_id", id)
				http.Error(w, "instance not found", http.StatusNotFound)
				return
			}
			if errors.Is(err, domain.ErrNotAwaitingEvent) {
				logger.Warn("instance not awaiting event",
					"instance_id", id,
					"event", eventName,
				)
				http.Error(w, "instance is not awaiting this event", http.StatusConflict)
				return
			}
			logger.Error("raise event failed",
				"instance_id", id,
				"event", eventName,
				"error", err,
			)
			http.Error(w, "failed to raise event", http.StatusInternalServerError)
			return
		}

		logger.Info("event raised via API", "instance_id", id, "event", eventName)

		writeJSON(w, http.StatusAccepted, map[string]string{
			"instance_id": id,
			"event":       eventName,
		})
	})

	// ---------------- TERMINATE INSTANCE ----------------

	r.Post("/instances/{id}/terminate", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		reason := strings.TrimSpace(r.URL.Query().Get("reason"))
		if reason == "" {
			reason = "operator request"
		}

		if err := deps.Orchestrator.Terminate(r.Context(), id, reason); err != nil {
			if errors.Is(err, domain.ErrUnknownInstance) {
				logger.Warn("instance not found", "instance_id", id)
				http.Error(w, "instance not found", http.StatusNotFound)
				return
			}
			logger.Error("terminate failed", "instance_id", id, "error", err)
			http.Error(w, "failed to terminate instance", http.StatusInternalServerError)
			return
		}

		logger.Info("instance terminated via API", "instance_id", id)

		writeJSON(w, http.StatusOK, map[string]string{
			"id":     id,
			"status": string(domain.InstanceTerminated),
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeFeedback(r *http.Request) (domain.FeedbackItem, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return domain.FeedbackItem{}, errors.New("empty request body")
	}

	var item domain.FeedbackItem
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&item); err != nil {
		return domain.FeedbackItem{}, err
	}

	// Ensure there is only one JSON object.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return domain.FeedbackItem{}, errors.New("request body must contain exactly one JSON object")
	}

	return item, nil
}

// readEventPayload accepts any single JSON value; an empty body becomes null.
func readEventPayload(r *http.Request) (json.RawMessage, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return json.RawMessage(`null`), nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return json.RawMessage(`null`), nil
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, errors.New("payload is not valid JSON")
	}
	return json.RawMessage(trimmed), nil
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}

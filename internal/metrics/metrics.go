// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/adiadia/feedback-orchestrator/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	instancesTotalCounter  *prometheus.CounterVec
	stepsRecordedCounter   *prometheus.CounterVec
	stepsReplayedCounter   *prometheus.CounterVec
	stepDurationMetric     *prometheus.HistogramVec
	replayPassesCounter    prometheus.Counter
	activityAttemptCounter *prometheus.CounterVec
	activityRetryCounter   *prometheus.CounterVec
	agentToolCallCounter   *prometheus.CounterVec
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		instancesTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestration_instances_total",
				Help: "Total number of instance status transitions by status.",
			},
			[]string{"status"},
		)

		stepsRecordedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestration_steps_recorded_total",
				Help: "Total number of steps checkpointed into history by kind.",
			},
			[]string{"kind"},
		)

		stepsReplayedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestration_steps_replayed_total",
				Help: "Total number of history records consumed during replay by kind.",
			},
			[]string{"kind"},
		)

		stepDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestration_step_duration_seconds",
				Help:    "Duration of live (non-replayed) step executions in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)

		replayPassesCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orchestration_replay_passes_total",
				Help: "Total number of replay passes executed.",
			},
		)

		activityAttemptCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_attempts_total",
				Help: "Total number of activity attempts by activity name.",
			},
			[]string{"activity"},
		)

		activityRetryCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_retries_total",
				Help: "Total number of retried activity attempts by activity name.",
			},
			[]string{"activity"},
		)

		agentToolCallCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_tool_calls_total",
				Help: "Total number of tool invocations inside agent calls by tool name.",
			},
			[]string{"tool"},
		)

		prometheus.MustRegister(
			instancesTotalCounter,
			stepsRecordedCounter,
			stepsReplayedCounter,
			stepDurationMetric,
			replayPassesCounter,
			activityAttemptCounter,
			activityRetryCounter,
			agentToolCallCounter,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, status := range []domain.InstanceStatus{
			domain.InstanceRunning,
			domain.InstanceCompleted,
			domain.InstanceFailed,
			domain.InstanceTerminated,
		} {
			instancesTotalCounter.WithLabelValues(string(status))
		}

		for _, kind := range []domain.StepKind{
			domain.StepActivity,
			domain.StepAgentCall,
			domain.StepTimer,
			domain.StepExternalEvent,
		} {
			stepsRecordedCounter.WithLabelValues(string(kind))
			stepsReplayedCounter.WithLabelValues(string(kind))
		}
	})
}

func IncInstanceStatus(status string) {
	Init()
	instancesTotalCounter.WithLabelValues(status).Inc()
}

func IncStepRecorded(kind string) {
	Init()
	stepsRecordedCounter.WithLabelValues(kind).Inc()
}

func IncStepReplayed(kind string) {
	Init()
	stepsReplayedCounter.WithLabelValues(kind).Inc()
}

func ObserveStepDuration(kind string, d time.Duration) {
	Init()
	stepDurationMetric.WithLabelValues(kind).Observe(d.Seconds())
}

func IncReplayPass() {
	Init()
	replayPassesCounter.Inc()
}

func IncActivityAttempt(activity string) {
	Init()
	activityAttemptCounter.WithLabelValues(activity).Inc()
}

func IncActivityRetry(activity string) {
	Init()
	activityRetryCounter.WithLabelValues(activity).Inc()
}

func IncAgentToolCall(tool string) {
	Init()
	agentToolCallCounter.WithLabelValues(tool).Inc()
}

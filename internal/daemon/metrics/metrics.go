// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes the daemon's Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// runsStarted tracks dispatched workflow runs by channel kind and workflow
	runsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antkeeper_runs_started_total",
			Help: "Total workflow runs dispatched by channel kind and workflow name",
		},
		[]string{"channel", "workflow"},
	)

	// runsCompleted tracks successful workflow runs
	runsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antkeeper_runs_completed_total",
			Help: "Total workflow runs completed successfully",
		},
		[]string{"channel", "workflow"},
	)

	// runsFailed tracks failed workflow runs by failure kind
	runsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antkeeper_runs_failed_total",
			Help: "Total workflow runs failed, by failure kind (workflow_failed, unexpected, panic)",
		},
		[]string{"channel", "workflow", "reason"},
	)

	// runDuration tracks wall-clock run duration
	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "antkeeper_run_duration_seconds",
			Help:    "Workflow run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"channel"},
	)

	// activeRuns tracks runs currently executing
	activeRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "antkeeper_active_runs",
			Help: "Number of workflow runs currently executing",
		},
	)

	// pendingMessages tracks chat messages waiting out their cooldown
	pendingMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "antkeeper_pending_messages",
			Help: "Number of chat messages accumulating in the debounce window",
		},
	)

	// chatEvents tracks chat events by the routing clause that handled them
	chatEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antkeeper_chat_events_total",
			Help: "Total chat events received, by handling outcome",
		},
		[]string{"outcome"},
	)
)

// RecordRunStarted increments the started-run counter.
func RecordRunStarted(channel, workflow string) {
	runsStarted.WithLabelValues(channel, workflow).Inc()
}

// RecordRunCompleted increments the completed-run counter.
func RecordRunCompleted(channel, workflow string) {
	runsCompleted.WithLabelValues(channel, workflow).Inc()
}

// RecordRunFailed increments the failed-run counter.
func RecordRunFailed(channel, workflow, reason string) {
	runsFailed.WithLabelValues(channel, workflow, reason).Inc()
}

// ObserveRunDuration records a run's wall-clock duration.
func ObserveRunDuration(channel string, seconds float64) {
	runDuration.WithLabelValues(channel).Observe(seconds)
}

// IncActiveRuns increments the active-run gauge.
func IncActiveRuns() {
	activeRuns.Inc()
}

// DecActiveRuns decrements the active-run gauge.
func DecActiveRuns() {
	activeRuns.Dec()
}

// SetPendingMessages sets the pending-message gauge.
func SetPendingMessages(n int) {
	pendingMessages.Set(float64(n))
}

// RecordChatEvent increments the chat-event counter for an outcome.
func RecordChatEvent(outcome string) {
	chatEvents.WithLabelValues(outcome).Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

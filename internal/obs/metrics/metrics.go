/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Build information
	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "virtrigaud_gcp_build_info",
			Help: "Build information for the GCP provider adapter",
		},
		[]string{"version", "git_sha", "go_version", "component"},
	)

	// Public operation metrics
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "virtrigaud_gcp_operations_total",
			Help: "Total number of adapter operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "virtrigaud_gcp_operation_duration_seconds",
			Help:    "Duration of adapter operations by operation",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 18), // 1ms to ~2m
		},
		[]string{"operation"},
	)

	// Long-running backend operation metrics
	backendWaitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "virtrigaud_gcp_backend_waits_total",
			Help: "Total number of backend operation waits by locality and outcome",
		},
		[]string{"locality", "outcome"},
	)

	backendWaitPolls = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "virtrigaud_gcp_backend_wait_polls",
			Help:    "Number of polls needed for a backend operation to finish",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"locality"},
	)

	// Eventual-consistency poll loop metrics
	pollLoopsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "virtrigaud_gcp_poll_loops_total",
			Help: "Total number of bounded poll loops by loop and outcome",
		},
		[]string{"loop", "outcome"},
	)

	// Backend call metrics
	backendCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "virtrigaud_gcp_backend_calls_total",
			Help: "Total number of backend calls by service, method and code",
		},
		[]string{"service", "method", "code"},
	)

	backendCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "virtrigaud_gcp_backend_call_latency_seconds",
			Help:    "Latency of backend calls by service and method",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"service", "method"},
	)

	// Error metrics
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "virtrigaud_gcp_errors_total",
			Help: "Total number of errors by kind and component",
		},
		[]string{"kind", "component"},
	)

	// Event publishing metrics
	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "virtrigaud_gcp_events_published_total",
			Help: "Total number of lifecycle events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "virtrigaud_gcp_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"service"},
	)

	circuitBreakerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "virtrigaud_gcp_circuit_breaker_failures_total",
			Help: "Total number of circuit breaker failures",
		},
		[]string{"service"},
	)
)

// Outcomes
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeError    = "error"
	OutcomeTimedOut = "timed_out"
	OutcomeDone     = "done"
)

// Components
const (
	ComponentProvider = "provider"
	ComponentWaiter   = "waiter"
	ComponentEvents   = "events"
	ComponentCLI      = "cli"
)

// Circuit breaker states
const (
	CircuitBreakerClosed   = 0
	CircuitBreakerHalfOpen = 1
	CircuitBreakerOpen     = 2
)

// SetupMetrics initializes metrics with build information
func SetupMetrics(version, gitSHA, component string) {
	buildInfo.WithLabelValues(version, gitSHA, runtime.Version(), component).Set(1)
}

// RecordOperation records a public operation with its outcome and duration
func RecordOperation(operation, outcome string, duration time.Duration) {
	operationsTotal.WithLabelValues(operation, outcome).Inc()
	operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordWait records the outcome of a backend operation wait
func RecordWait(locality, outcome string, polls int) {
	backendWaitsTotal.WithLabelValues(locality, outcome).Inc()
	backendWaitPolls.WithLabelValues(locality).Observe(float64(polls))
}

// RecordPollLoop records the outcome of a bounded poll loop
func RecordPollLoop(loop, outcome string) {
	pollLoopsTotal.WithLabelValues(loop, outcome).Inc()
}

// RecordError records an error with its kind and component
func RecordError(kind, component string) {
	errorsTotal.WithLabelValues(kind, component).Inc()
}

// RecordEvent records a published lifecycle event
func RecordEvent(eventType, outcome string) {
	eventsPublishedTotal.WithLabelValues(eventType, outcome).Inc()
}

// BackendCallMetrics provides metrics for calls against one backend service
type BackendCallMetrics struct {
	service string
}

// NewBackendCallMetrics creates metrics for a backend service
func NewBackendCallMetrics(service string) *BackendCallMetrics {
	return &BackendCallMetrics{service: service}
}

// RecordCall records a backend call with its method, status code, and duration
func (m *BackendCallMetrics) RecordCall(method, code string, duration time.Duration) {
	backendCallsTotal.WithLabelValues(m.service, method, code).Inc()
	backendCallLatency.WithLabelValues(m.service, method).Observe(duration.Seconds())
}

// CircuitBreakerMetrics provides metrics for circuit breakers
type CircuitBreakerMetrics struct {
	service string
}

// NewCircuitBreakerMetrics creates metrics for circuit breakers
func NewCircuitBreakerMetrics(service string) *CircuitBreakerMetrics {
	return &CircuitBreakerMetrics{service: service}
}

// SetState sets the circuit breaker state
func (m *CircuitBreakerMetrics) SetState(state int) {
	circuitBreakerState.WithLabelValues(m.service).Set(float64(state))
}

// RecordFailure records a circuit breaker failure
func (m *CircuitBreakerMetrics) RecordFailure() {
	circuitBreakerFailures.WithLabelValues(m.service).Inc()
}

// Timer is a helper for measuring operation duration
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// OperationTimer measures a public operation
type OperationTimer struct {
	operation string
	timer     *Timer
}

// NewOperationTimer creates a timer for a public operation
func NewOperationTimer(operation string) *OperationTimer {
	return &OperationTimer{operation: operation, timer: NewTimer()}
}

// Finish records the operation with the given outcome
func (ot *OperationTimer) Finish(outcome string) {
	RecordOperation(ot.operation, outcome, ot.timer.Duration())
}

// GetRegistry returns the Prometheus gatherer the metrics are registered with
func GetRegistry() prometheus.Gatherer {
	return prometheus.DefaultGatherer
}

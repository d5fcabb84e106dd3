// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the orchestrator.
//
// # Description
//
// This package implements Prometheus metrics for monitoring conversational
// turns, tool execution, triage classification, and retrieval quality.
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "afyaflow"

// Subsystem for orchestrator metrics
const orchestratorSubsystem = "orchestrator"

// Metrics holds all Prometheus metrics for the orchestrator.
//
// # Description
//
// Provides counters and histograms for monitoring assistant turns, tool
// execution, triage outcomes, and retrieval quality. Initialize once at
// startup via InitMetrics().
//
// # Fields
//
//   - TurnsTotal: Counter of chat turns by status
//   - ToolExecutionsTotal: Counter of tool executions by tool and status
//   - TriageTotal: Counter of triage classifications by risk and method
//   - RetrievalResultsTotal: Counter of retrieval results by disposition
//   - TurnDurationSeconds: Histogram of full turn duration
//   - LLMCallDurationSeconds: Histogram of individual model call duration
//
// # Thread Safety
//
// All operations are thread-safe.
type Metrics struct {
	// TurnsTotal counts completed chat turns.
	// Labels: status (success, error)
	TurnsTotal *prometheus.CounterVec

	// ToolExecutionsTotal counts tool executions.
	// Labels: tool (search_knowledge, triage_assess, etc.), status (success, error)
	ToolExecutionsTotal *prometheus.CounterVec

	// TriageTotal counts triage classifications.
	// Labels: risk (red, yellow, green, unknown), method (verified, fallback)
	TriageTotal *prometheus.CounterVec

	// RetrievalResultsTotal counts retrieved documents by gate disposition.
	// Labels: disposition (kept, dropped)
	RetrievalResultsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures end-to-end turn duration.
	// Labels: status (success, error)
	TurnDurationSeconds *prometheus.HistogramVec

	// LLMCallDurationSeconds measures individual model call duration.
	// Labels: none
	LLMCallDurationSeconds prometheus.Histogram
}

// DefaultMetrics is the singleton instance of Metrics.
// Initialized by InitMetrics().
var DefaultMetrics *Metrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once at
// application startup, after the Prometheus registry is available.
//
// # Outputs
//
//   - *Metrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *Metrics {
	DefaultMetrics = &Metrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "turns_total",
				Help:      "Total number of chat turns by status",
			},
			[]string{"status"},
		),

		ToolExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "tool_executions_total",
				Help:      "Total tool executions by tool name and status",
			},
			[]string{"tool", "status"},
		),

		TriageTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "triage_total",
				Help:      "Total triage classifications by risk level and method",
			},
			[]string{"risk", "method"},
		),

		RetrievalResultsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "retrieval_results_total",
				Help:      "Total retrieved documents by quality gate disposition",
			},
			[]string{"disposition"},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end chat turn duration in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),

		LLMCallDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "llm_call_duration_seconds",
				Help:      "Individual model call duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordTurn records a completed chat turn with its duration.
//
// # Inputs
//
//   - seconds: End-to-end turn duration in seconds.
//   - success: Whether the turn completed successfully.
func (m *Metrics) RecordTurn(seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.TurnsTotal.WithLabelValues(status).Inc()
	m.TurnDurationSeconds.WithLabelValues(status).Observe(seconds)
}

// RecordToolExecution records a tool execution outcome.
//
// # Inputs
//
//   - tool: The tool name.
//   - success: Whether the execution succeeded.
func (m *Metrics) RecordToolExecution(tool string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ToolExecutionsTotal.WithLabelValues(tool, status).Inc()
}

// RecordTriage records a triage classification.
//
// # Inputs
//
//   - risk: The assigned risk level.
//   - method: The verification method used.
func (m *Metrics) RecordTriage(risk, method string) {
	m.TriageTotal.WithLabelValues(risk, method).Inc()
}

// RecordRetrieval records quality gate dispositions for one search.
//
// # Inputs
//
//   - kept: Documents that passed the similarity floor.
//   - dropped: Documents discarded by the floor.
func (m *Metrics) RecordRetrieval(kept, dropped int) {
	m.RetrievalResultsTotal.WithLabelValues("kept").Add(float64(kept))
	m.RetrievalResultsTotal.WithLabelValues("dropped").Add(float64(dropped))
}

// RecordLLMCall records the duration of one model call.
//
// # Inputs
//
//   - seconds: Model call duration in seconds.
func (m *Metrics) RecordLLMCall(seconds float64) {
	m.LLMCallDurationSeconds.Observe(seconds)
}

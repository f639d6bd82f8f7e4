// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and instrumentation for the chatbot.
//
// # Description
//
// This package implements Prometheus metrics for monitoring turn
// processing. Metrics include:
//   - Turn counters (by retrieval source and status)
//   - Cache hit counters
//   - Turn latency histograms
//   - Error counters by kind
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus + Grafana
// for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "chatbot"

// Subsystem for turn metrics
const turnsSubsystem = "turns"

// TurnMetrics holds all Prometheus metrics for turn processing.
//
// # Fields
//
//   - TurnsTotal: Counter of turns by retrieval source and status
//   - CacheHitsTotal: Counter of exact-cache hits
//   - TurnDurationSeconds: Histogram of end-to-end turn latency
//   - ErrorsTotal: Counter of recovered errors by kind
//
// # Thread Safety
//
// All operations are thread-safe.
type TurnMetrics struct {
	// TurnsTotal counts processed turns.
	// Labels: source (exact_cache, augmented, cold, degraded), status (success, error)
	TurnsTotal *prometheus.CounterVec

	// CacheHitsTotal counts turns answered straight from the exact cache.
	CacheHitsTotal prometheus.Counter

	// TurnDurationSeconds measures end-to-end turn latency.
	// Labels: source
	TurnDurationSeconds *prometheus.HistogramVec

	// ErrorsTotal counts recovered errors by kind.
	// Labels: error_kind (generation_failure, store_unavailable, checkpoint_failure, invalid_preference)
	ErrorsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of TurnMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *TurnMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once
// at application startup.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *TurnMetrics {
	DefaultMetrics = &TurnMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "processed_total",
				Help:      "Total number of turns by retrieval source and status",
			},
			[]string{"source", "status"},
		),

		CacheHitsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "cache_hits_total",
				Help:      "Total turns answered directly from the exact cache",
			},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "duration_seconds",
				Help:      "End-to-end turn latency in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"source"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "errors_total",
				Help:      "Total recovered errors by kind",
			},
			[]string{"error_kind"},
		),
	}

	return DefaultMetrics
}

// ErrorKind categorizes recovered errors for metrics and response metadata.
type ErrorKind string

const (
	// ErrorKindGeneration indicates the backing model failed.
	ErrorKindGeneration ErrorKind = "generation_failure"

	// ErrorKindStoreUnavailable indicates the interaction store rejected
	// an operation.
	ErrorKindStoreUnavailable ErrorKind = "store_unavailable"

	// ErrorKindCheckpoint indicates thread continuity is broken.
	ErrorKindCheckpoint ErrorKind = "checkpoint_failure"

	// ErrorKindInvalidPreference indicates rejected preference values.
	ErrorKindInvalidPreference ErrorKind = "invalid_preference"
)

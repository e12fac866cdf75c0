/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nwpcycle"

// Fetch results used as label values.
const (
	ResultOK      = "ok"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

var (
	// FetchJobsTotal counts retrieval jobs by source and result.
	FetchJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_jobs_total",
			Help:      "Retrieval jobs by source and result",
		},
		[]string{"source", "result"},
	)

	// FetchBytesTotal counts bytes written to disk by source.
	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_bytes_total",
			Help:      "Bytes downloaded by source",
		},
		[]string{"source"},
	)

	// FetchDuration observes wall time per retrieval job.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Retrieval job duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 60, 300, 900, 3600, 4 * 3600},
		},
		[]string{"source"},
	)

	// FetchInFlight tracks jobs currently running.
	FetchInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_in_flight",
			Help:      "Retrieval jobs currently running",
		},
		[]string{"source"},
	)

	// UpstreamRequestsTotal counts outbound HTTP calls to data archives.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Outbound archive API requests by host, method and status",
		},
		[]string{"host", "method", "status"},
	)

	// UpstreamRequestDuration observes outbound HTTP latency.
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Outbound archive API request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"host", "method"},
	)

	// RocotoInvocationsTotal counts workflow-manager command runs.
	RocotoInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rocoto_invocations_total",
			Help:      "Rocoto command invocations by tool and result",
		},
		[]string{"tool", "result"},
	)

	// RocotoTasks is the latest task count per workflow and state.
	RocotoTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rocoto_tasks",
			Help:      "Tasks per workflow and state from the last rocotostat",
		},
		[]string{"workflow", "state"},
	)

	// LedgerQueryDuration observes ledger database operations.
	LedgerQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_query_duration_seconds",
			Help:      "Download ledger query latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	// LedgerErrorsTotal counts failed ledger operations.
	LedgerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_errors_total",
			Help:      "Download ledger errors by operation",
		},
		[]string{"operation"},
	)
)

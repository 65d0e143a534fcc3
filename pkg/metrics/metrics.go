// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package metrics provides Prometheus metrics for the backup daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "protectbackup"

// Component constants for ErrorsTotal label.
const (
	ComponentIngestor = "ingestor"
	ComponentPipeline = "pipeline"
	ComponentArchiver = "archiver"
	ComponentCatalog  = "catalog"
	ComponentTarget   = "target"
	ComponentProtect  = "protectclient"
)

// RecordError increments the errors_total counter for the given component, action and error kind.
func RecordError(component, action, kind string) {
	ErrorsTotal.WithLabelValues(component, action, kind).Inc()
}

var (
	// EventsObservedTotal counts motion/person/vehicle events observed from
	// the controller, by source (push or pull) and event type.
	EventsObservedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_observed_total",
			Help:      "Total number of events observed from the controller by source and event type.",
		},
		[]string{"source", "event_type"},
	)

	// EventsReadyTotal counts events that transitioned to the READY state and
	// were handed to the backup pipeline.
	EventsReadyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ready_total",
			Help:      "Total number of events that became ready for backup.",
		},
		[]string{"event_type"},
	)

	// ClipFetchDurationSeconds measures clip download latency from the controller.
	ClipFetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clip_fetch_duration_seconds",
			Help:      "Clip download latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// ClipFetchBytesTotal counts bytes downloaded from the controller.
	ClipFetchBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clip_fetch_bytes_total",
			Help:      "Total bytes of clip data downloaded from the controller.",
		},
	)

	// BackupWritesTotal counts per-target backup write attempts by target and status.
	BackupWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_writes_total",
			Help:      "Total number of backup writes by target and status.",
		},
		[]string{"target", "status"},
	)

	BackupWriteDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_write_duration_seconds",
			Help:      "Backup write latency in seconds by target.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"target"},
	)

	// TargetQuarantinedGauge reports whether a target is currently quarantined (1) or not (0).
	TargetQuarantinedGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_quarantined",
			Help:      "Whether a backup target is currently quarantined (1) or healthy (0).",
		},
		[]string{"target"},
	)

	// RetentionPrunedTotal counts clips removed from a target by retention enforcement.
	RetentionPrunedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_pruned_total",
			Help:      "Total number of backed-up clips pruned by retention enforcement, by target.",
		},
		[]string{"target"},
	)

	// ArchiveRunsTotal counts archive scheduler ticks by target and outcome.
	ArchiveRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_runs_total",
			Help:      "Total number of archive runs by target and outcome.",
		},
		[]string{"target", "outcome"},
	)

	ArchiveRunDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "archive_run_duration_seconds",
			Help:      "Archive run latency in seconds by target.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"target"},
	)

	// ArchiveInputBytesTotal counts bytes staged into an archive run.
	ArchiveInputBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_input_bytes_total",
			Help:      "Total bytes staged into archive runs, by target.",
		},
		[]string{"target"},
	)

	// CatalogEventsGauge reports the current count of events in the catalog by state.
	CatalogEventsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_events",
			Help:      "Current number of events tracked in the catalog, by state.",
		},
		[]string{"state"},
	)

	// DataIntegrityTotal counts surfaced data-integrity findings by target and kind.
	DataIntegrityTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_integrity_total",
			Help:      "Total number of data integrity findings surfaced, by target and kind.",
		},
		[]string{"target", "kind"},
	)

	// ErrorsTotal counts errors by component, action and error kind (spec §7 taxonomy).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by component, action and error kind.",
		},
		[]string{"component", "action", "kind"},
	)
)

// Package metrics provides Prometheus metrics definitions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crisisroom"

var (
	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status_code"},
	)

	// DBPoolConnections tracks database connection pool state.
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Number of database connections by state",
		},
		[]string{"state"},
	)

	// DBConnectAttempts counts database connection attempts by result.
	DBConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "connect_attempts_total",
			Help:      "Database connection attempts by result",
		},
		[]string{"result"},
	)

	// RoomsCreated counts crisis rooms opened, by severity.
	RoomsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "created_total",
			Help:      "Crisis rooms created by severity",
		},
		[]string{"severity"},
	)

	// RoomStatusChanges counts lifecycle transitions.
	RoomStatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "status_changes_total",
			Help:      "Room status transitions by target status",
		},
		[]string{"status"},
	)

	// Escalations counts triggered escalations by source and level.
	Escalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "escalations_total",
			Help:      "Escalations triggered by source and level",
		},
		[]string{"source", "level"},
	)

	// ResponsesRecorded counts stakeholder responses by type and correlation outcome.
	ResponsesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "responses_total",
			Help:      "Stakeholder responses by type and whether they matched a communication",
		},
		[]string{"type", "correlated"},
	)

	// VersionConflicts counts optimistic-lock retries on room saves.
	VersionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "version_conflicts_total",
			Help:      "Room saves retried after a concurrent modification",
		},
	)

	// TimelinePublished counts timeline entries written to the audit stream.
	TimelinePublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "timeline_entries_total",
			Help:      "Timeline entries published to the audit stream by result",
		},
		[]string{"result"},
	)
)

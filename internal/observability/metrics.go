// Package observability holds the process-wide prometheus collectors and the
// otel tracer shared by hierarchy builds, indexing and the watcher.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	HierarchyBuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_hierarchy_builds_total",
		Help: "Total number of hierarchy builds by result.",
	}, []string{"result"})

	HierarchyBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lineage_hierarchy_build_seconds",
		Help:    "Time spent in each phase of a hierarchy build.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	DiscoveryQueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lineage_discovery_queries_total",
		Help: "Total number of supertype queries issued against the index.",
	})

	IndexUnitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_index_units_total",
		Help: "Total number of units written to the index by document kind.",
	}, []string{"kind"})

	InvalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_invalidations_total",
		Help: "Total number of deltas that invalidated a hierarchy, by element kind.",
	}, []string{"element"})

	WatchEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lineage_watch_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	GraphTypes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lineage_graph_types",
		Help: "Number of types in the most recently built hierarchy.",
	})
)

// Build results.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultCanceled = "canceled"
)

// Build phases.
const (
	PhaseDiscovery  = "discovery"
	PhaseResolution = "resolution"
)

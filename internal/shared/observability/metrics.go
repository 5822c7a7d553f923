package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	NodesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poitree_nodes_total",
		Help: "Total number of dependency tree nodes built across all inspections.",
	})

	LastTreeNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poitree_last_tree_nodes",
		Help: "Number of nodes in the most recent inspection's tree.",
	})

	POIsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poitree_pois_total",
		Help: "Total number of points of interest found, by kind.",
	}, []string{"kind"})

	NodeIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poitree_node_issues_total",
		Help: "Total number of node-local annotations, by error code.",
	}, []string{"code"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "poitree_stage_seconds",
		Help:    "Time spent in each pipeline stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	FSOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poitree_fs_ops_total",
		Help: "Total number of filesystem operations issued, by operation.",
	}, []string{"op"})

	ScanCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poitree_scan_cache_hits_total",
		Help: "Number of node scans served from the per-path scan cache.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poitree_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})
)

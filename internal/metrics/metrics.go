package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Счетчики отдаются Prometheus через /metrics
var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskflow_cache_hits_total",
		Help: "Cache reads served without touching the store.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskflow_cache_misses_total",
		Help: "Cache reads that fell through to the store.",
	})
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskflow_sweep_runs_total",
		Help: "Sweep executions by result.",
	}, []string{"result"})
	SweepSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskflow_sweep_skips_total",
		Help: "Candidates or whole runs skipped during sweeping.",
	}, []string{"reason"})
	TasksSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskflow_tasks_swept_total",
		Help: "Tasks transitioned to overdue by the sweeper.",
	})
	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskflow_notify_failures_total",
		Help: "Status change publications that failed.",
	})
)

// Package metrics registers Prometheus collectors and keeps lightweight
// counters feeding the aggregate health report.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	IngestJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studykb",
			Name:      "ingest_jobs_total",
			Help:      "Total ingestion jobs by terminal status",
		},
		[]string{"status"},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "studykb",
			Name:      "ingest_duration_seconds",
			Help:      "End-to-end ingestion job duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studykb",
			Name:      "queries_total",
			Help:      "Total queries by outcome and cache result",
		},
		[]string{"outcome", "cache"},
	)

	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "studykb",
			Name:      "query_duration_seconds",
			Help:      "Query latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	CacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studykb",
			Name:      "cache_ops_total",
			Help:      "Cache lookups by class and result",
		},
		[]string{"class", "result"},
	)
)

// Register adds all collectors to the registry; call once per process.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(IngestJobsTotal, IngestDuration, QueriesTotal, QueryDuration, CacheOpsTotal)
}

// Tracker accumulates counters for the 0-100 health score. Prometheus
// counters cannot be read back cheaply, so the report keeps its own.
type Tracker struct {
	jobsCompleted atomic.Int64
	jobsFailed    atomic.Int64
	queries       atomic.Int64
	queryFailures atomic.Int64
	queryCacheHit atomic.Int64
	queryLatency  atomic.Int64 // cumulative milliseconds
}

func (t *Tracker) JobCompleted(d time.Duration) {
	t.jobsCompleted.Add(1)
	IngestJobsTotal.WithLabelValues("completed").Inc()
	IngestDuration.Observe(d.Seconds())
}

func (t *Tracker) JobFailed() {
	t.jobsFailed.Add(1)
	IngestJobsTotal.WithLabelValues("failed").Inc()
}

func (t *Tracker) Query(d time.Duration, cached, failed bool) {
	t.queries.Add(1)
	t.queryLatency.Add(d.Milliseconds())
	outcome := "ok"
	if failed {
		t.queryFailures.Add(1)
		outcome = "error"
	}
	cacheLabel := "miss"
	if cached {
		t.queryCacheHit.Add(1)
		cacheLabel = "hit"
	}
	QueriesTotal.WithLabelValues(outcome, cacheLabel).Inc()
	QueryDuration.Observe(d.Seconds())
}

// Report is the aggregate performance/health snapshot.
type Report struct {
	JobsCompleted int64   `json:"jobs_completed"`
	JobsFailed    int64   `json:"jobs_failed"`
	Queries       int64   `json:"queries"`
	QueryFailures int64   `json:"query_failures"`
	SuccessRate   float64 `json:"success_rate"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`
	CacheHitRatio float64 `json:"cache_hit_ratio"`
	HealthScore   int     `json:"health_score"`
}

// Snapshot derives the health report. The score blends success rate
// (60%), latency headroom (25%), and cache effectiveness (15%).
func (t *Tracker) Snapshot() Report {
	r := Report{
		JobsCompleted: t.jobsCompleted.Load(),
		JobsFailed:    t.jobsFailed.Load(),
		Queries:       t.queries.Load(),
		QueryFailures: t.queryFailures.Load(),
	}
	ops := r.JobsCompleted + r.JobsFailed + r.Queries
	failures := r.JobsFailed + r.QueryFailures
	if ops > 0 {
		r.SuccessRate = float64(ops-failures) / float64(ops)
	} else {
		r.SuccessRate = 1
	}
	if r.Queries > 0 {
		r.AvgLatencyMS = float64(t.queryLatency.Load()) / float64(r.Queries)
		r.CacheHitRatio = float64(t.queryCacheHit.Load()) / float64(r.Queries)
	}

	latencyScore := 1.0
	if r.AvgLatencyMS > 500 {
		latencyScore = 500 / r.AvgLatencyMS
	}
	score := 100 * (0.60*r.SuccessRate + 0.25*latencyScore + 0.15*r.CacheHitRatio)
	if r.Queries == 0 && failures == 0 {
		// A cold system is healthy, not 85% healthy.
		score = 100
	}
	r.HealthScore = int(score + 0.5)
	return r
}

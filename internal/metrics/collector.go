package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector owns the process's Prometheus vectors: HTTP request shape,
// the DB-query recorder primitive, and the commit pipeline's CAS outcome
// counters.
type Collector struct {
	registry prometheus.Registerer

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	dbConnections prometheus.Gauge

	// DB metrics
	dbQueries       *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec
	dbErrors        *prometheus.CounterVec

	// Commit pipeline metrics
	commitAttempts *prometheus.CounterVec
	casConflicts   prometheus.Counter
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.DefaultRegisterer,
	}

	c.httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icebergcat_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	c.httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "icebergcat_http_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	c.dbConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "icebergcat_db_connections",
		Help: "Number of active database connections",
	})

	c.dbQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icebergcat_db_queries_total",
		Help: "Total number of database queries",
	}, []string{"operation", "status"})

	c.dbQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "icebergcat_db_query_duration_seconds",
		Help:    "Database query duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
	}, []string{"operation", "status"})

	c.dbErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icebergcat_db_errors_total",
		Help: "Total number of database errors",
	}, []string{"operation"})

	c.commitAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icebergcat_commit_attempts_total",
		Help: "Total number of table commit attempts by outcome",
	}, []string{"outcome"})

	c.casConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "icebergcat_cas_conflicts_total",
		Help: "Total number of compare-and-swap conflicts on the metadata pointer",
	})

	return c
}

func (c *Collector) RecordHTTPRequest(method, path, status string) {
	c.httpRequests.WithLabelValues(method, path, status).Inc()
}

func (c *Collector) RecordHTTPDuration(method, path string, duration time.Duration) {
	c.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (c *Collector) RecordDBQuery(operation string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
		c.dbErrors.WithLabelValues(operation).Inc()
	}

	c.dbQueryDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
	c.dbQueries.WithLabelValues(operation, status).Inc()
}

func (c *Collector) SetDBConnections(count int) {
	c.dbConnections.Set(float64(count))
}

// RecordCommitAttempt tags one commitTable call with its final outcome:
// "success", "cas_conflict", or "rejected" (a failed requirement check).
func (c *Collector) RecordCommitAttempt(outcome string) {
	c.commitAttempts.WithLabelValues(outcome).Inc()
	if outcome == "cas_conflict" {
		c.casConflicts.Inc()
	}
}

// Package metrics holds the Prometheus collectors of a reconciliation run.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/config"
)

const namespace = "recond"

// Collector owns the collectors and the private registry they live on.
type Collector struct {
	registry *prometheus.Registry

	Queries       *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	StageTables   *prometheus.CounterVec
	HashRows      *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
}

// NewCollector creates and registers every collector.
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}
	c.Queries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries executed against a backend, by outcome",
		},
		[]string{"dialect", "outcome"},
	)
	c.QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Backend query latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"dialect"},
	)
	c.StageTables = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_tables_total",
			Help:      "Tables consolidated by a stage, by outcome",
		},
		[]string{"stage", "outcome"},
	)
	c.HashRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hash_rows_total",
			Help:      "Rows classified by the hash comparison",
		},
		[]string{"outcome"},
	)
	c.StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of a stage run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"stage"},
	)
	c.registry.MustRegister(c.Queries, c.QueryDuration, c.StageTables, c.HashRows, c.StageDuration)
	return c
}

// Default is the process-wide collector.
var Default = NewCollector()

// Registry exposes the private registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the Prometheus exposition of the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordQuery counts one query and its latency.
func (c *Collector) RecordQuery(d config.Dialect, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.Queries.WithLabelValues(string(d), outcome).Inc()
	c.QueryDuration.WithLabelValues(string(d)).Observe(elapsed.Seconds())
}

// RecordTable counts one table outcome of a stage: validated or excluded.
func (c *Collector) RecordTable(stage, outcome string) {
	c.StageTables.WithLabelValues(stage, outcome).Inc()
}

// RecordHashRows adds row classification counts.
func (c *Collector) RecordHashRows(matched, mismatched, leftOnly, rightOnly int) {
	c.HashRows.WithLabelValues("matched").Add(float64(matched))
	c.HashRows.WithLabelValues("mismatched").Add(float64(mismatched))
	c.HashRows.WithLabelValues("left_only").Add(float64(leftOnly))
	c.HashRows.WithLabelValues("right_only").Add(float64(rightOnly))
}

// RecordStage observes the duration of a stage run.
func (c *Collector) RecordStage(stage string, elapsed time.Duration) {
	c.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

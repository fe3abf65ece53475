// Package metrics exposes Prometheus collectors for render, cache, and
// boundary activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RendersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regionmap_renders_total",
		Help: "Render passes by level and outcome",
	}, []string{"level", "outcome"})
	RenderDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "regionmap_render_duration_ms",
		Help:    "Render pass duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"level"})
	BoundaryBuildDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "regionmap_boundary_build_duration_ms",
		Help:    "Boundary aggregation duration in milliseconds",
		Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"level"})
	UnionFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regionmap_union_failures_total",
		Help: "Regions omitted because their union produced no polygon",
	}, []string{"level"})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regionmap_cache_hits_total",
		Help: "Memo cache hits by cache name",
	}, []string{"cache"})
	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regionmap_cache_misses_total",
		Help: "Memo cache misses by cache name",
	}, []string{"cache"})
	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regionmap_uploads_total",
		Help: "Uploads by outcome (ok or upload error kind)",
	}, []string{"outcome"})
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "regionmap_active_sessions",
		Help: "Sessions currently held in memory",
	})
)

func init() {
	prometheus.MustRegister(RendersTotal)
	prometheus.MustRegister(RenderDurationMs)
	prometheus.MustRegister(BoundaryBuildDurationMs)
	prometheus.MustRegister(UnionFailuresTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(UploadsTotal)
	prometheus.MustRegister(ActiveSessions)
}

// Handler serves the registered collectors for scraping at /metrics.
func Handler() http.Handler { return promhttp.Handler() }

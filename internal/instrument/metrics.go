// Package instrument holds the Prometheus collectors shared by the importer,
// the rebuild orchestrator, the artifact cache and the HTTP API.
package instrument

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ImportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridemetrics_imports_total",
		Help: "Total number of imported sample files by outcome",
	}, []string{"outcome"})

	RebuildModulesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridemetrics_rebuild_modules_total",
		Help: "Total number of rebuild module runs by module and status",
	}, []string{"module", "status"})

	RebuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ridemetrics_rebuild_duration_seconds",
		Help:    "Duration of rebuild module runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"module"})

	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridemetrics_cache_requests_total",
		Help: "Artifact cache lookups by result",
	}, []string{"result"})

	StravaRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridemetrics_strava_requests_total",
		Help: "Strava API requests by endpoint and status code",
	}, []string{"endpoint", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridemetrics_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ridemetrics_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// ObserveModule records the outcome and duration of one rebuild module run
func ObserveModule(module, status string, d time.Duration) {
	RebuildModulesTotal.WithLabelValues(module, status).Inc()
	RebuildDuration.WithLabelValues(module).Observe(d.Seconds())
}

// CacheHit and CacheMiss count artifact cache lookups
func CacheHit()  { CacheRequestsTotal.WithLabelValues("hit").Inc() }
func CacheMiss() { CacheRequestsTotal.WithLabelValues("miss").Inc() }

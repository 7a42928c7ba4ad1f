// Package metrics holds the Prometheus instruments of guidevault.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RefreshesTotal counts EPG source refreshes by outcome (ok, error).
	RefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guidevault_epg_refreshes_total",
		Help: "EPG source refreshes by outcome.",
	}, []string{"result"})

	// RefreshDuration observes the wall time of a single source refresh.
	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "guidevault_epg_refresh_duration_seconds",
		Help:    "Duration of a single EPG source refresh.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// ProgramsIngested counts programme rows written by refreshes.
	ProgramsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guidevault_epg_programs_ingested_total",
		Help: "Programme rows written by EPG refreshes.",
	})

	// ScansTotal counts catalog scans by outcome.
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guidevault_catalog_scans_total",
		Help: "Stream catalog scans by outcome.",
	}, []string{"result"})

	// CatalogChanges counts reconciled streams by change kind (new, updated, removed).
	CatalogChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guidevault_catalog_stream_changes_total",
		Help: "Catalog streams reconciled by change kind.",
	}, []string{"change"})

	// ScheduledRuns counts scheduler-triggered refresh-all runs by trigger (tick, catchup).
	ScheduledRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guidevault_scheduled_runs_total",
		Help: "Scheduler-triggered refresh-all runs by trigger.",
	}, []string{"trigger"})

	// JobsProcessed counts background jobs by kind and outcome.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guidevault_jobs_processed_total",
		Help: "Background jobs processed by kind and outcome.",
	}, []string{"kind", "result"})

	// HTTPRequestDuration observes API latency by route pattern and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guidevault_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Result returns the outcome label for err.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

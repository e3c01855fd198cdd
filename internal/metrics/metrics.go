// Package metrics exposes Prometheus instruments for the asset map engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MarkerOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platassets_marker_ops_total",
		Help: "Marker operations sent to map surfaces, by op and result",
	}, []string{"op", "result"})
	ReconcilePassesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "platassets_reconcile_passes_total",
		Help: "Completed marker reconciliation passes",
	})
	UnrenderedMarkersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "platassets_unrendered_markers_total",
		Help: "Assets left unrendered after a retried marker operation failed",
	})
	CommitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platassets_commits_total",
		Help: "Asset form commits, by kind (create, update) and result",
	}, []string{"kind", "result"})
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "platassets_sessions_active",
		Help: "Mounted GIS page sessions",
	})
	BackendRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platassets_backend_requests_total",
		Help: "Requests to a remote asset backend, by op and result",
	}, []string{"op", "result"})
	BackendDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "platassets_backend_duration_ms",
		Help:    "Remote asset backend request latency in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})
)

func init() {
	prometheus.MustRegister(MarkerOpsTotal)
	prometheus.MustRegister(ReconcilePassesTotal)
	prometheus.MustRegister(UnrenderedMarkersTotal)
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(BackendRequestsTotal)
	prometheus.MustRegister(BackendDurationMs)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()

	// RemoteCalls counts outbound ERP calls by method and HTTP status
	RemoteCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bling_remote_calls_total", Help: "Outbound Bling API calls."},
		[]string{"method", "status"},
	)
	// RemoteCallRetries counts rate-limited attempts that were retried
	RemoteCallRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "bling_remote_call_retries_total", Help: "Rate-limited Bling calls retried."},
	)
	// SyncRuns counts sync runs by account and result
	SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sync_runs_total", Help: "Sync runs by account and result."},
		[]string{"account", "result"},
	)
	// SyncDuration records full run durations in seconds
	SyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "sync_run_duration_seconds", Help: "Sync run duration in seconds.", Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600}},
		[]string{"account"},
	)
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(RemoteCalls)
		Registry.MustRegister(RemoteCallRetries)
		Registry.MustRegister(SyncRuns)
		Registry.MustRegister(SyncDuration)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "mcpd_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "mcpd"},
		},
		[]string{"date", "sha", "version"},
	)

	rpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpd_rpc_requests_total",
			Help: "Number of JSON-RPC requests handled, by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcpd_rpc_duration_seconds",
			Help:    "JSON-RPC request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	processUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcpd_process_up",
			Help: "Whether the wrapped MCP server process is running",
		},
	)

	processRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mcpd_process_restarts_total",
			Help: "Number of times the wrapped process was respawned after death",
		},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcpd_sessions_active",
			Help: "Number of tracked client sessions",
		},
	)

	streamDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpd_stream_deliveries_total",
			Help: "Responses delivered through a session stream queue",
		},
		[]string{"transport"},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, rpcRequests, rpcDuration, processUp, processRestarts, sessionsActive, streamDeliveries)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// RecordRPC increments the request counter for a method.
func RecordRPC(method string, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	rpcRequests.WithLabelValues(method, outcome).Inc()
}

// ObserveRPCDuration records how long a request took.
func ObserveRPCDuration(method string, d time.Duration) {
	rpcDuration.WithLabelValues(method).Observe(d.Seconds())
}

// SetProcessUp flips the subprocess liveness gauge.
func SetProcessUp(up bool) {
	if up {
		processUp.Set(1)
	} else {
		processUp.Set(0)
	}
}

// IncProcessRestart counts one subprocess respawn.
func IncProcessRestart() {
	processRestarts.Inc()
}

// SetActiveSessions tracks the session table size.
func SetActiveSessions(n int) {
	sessionsActive.Set(float64(n))
}

// RecordStreamDelivery counts one queued response handed to a stream.
func RecordStreamDelivery(transport string) {
	streamDeliveries.WithLabelValues(transport).Inc()
}

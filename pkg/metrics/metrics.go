package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Update journal metrics
	UpdatesStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komodo_updates_started_total",
			Help: "Total number of updates opened by operation",
		},
		[]string{"operation"},
	)

	UpdatesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komodo_updates_completed_total",
			Help: "Total number of updates finalized by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	OperationsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "komodo_operations_in_flight",
			Help: "Number of updates currently in progress",
		},
	)

	// Pull dedup cache metrics
	PullCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "komodo_pull_cache_hits_total",
			Help: "Image pulls answered from the dedup cache window",
		},
	)

	PullCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "komodo_pull_cache_misses_total",
			Help: "Image pulls that reached the periphery",
		},
	)

	// Builder lifecycle metrics
	BuilderProvisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "komodo_builder_provision_duration_seconds",
			Help:    "Time from instance create to reachable periphery agent",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		},
		[]string{"provider"},
	)

	BuilderTeardownFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komodo_builder_teardown_failures_total",
			Help: "Builder instances that could not be terminated after retries",
		},
		[]string{"provider"},
	)

	// Sync metrics
	SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komodo_sync_runs_total",
			Help: "Total sync executions by outcome",
		},
		[]string{"outcome"},
	)

	SyncDiffs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komodo_sync_diffs_total",
			Help: "Resources created, updated and deleted by sync runs",
		},
		[]string{"kind", "action"},
	)

	// Webhook listener metrics
	WebhookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komodo_webhook_requests_total",
			Help: "Webhook deliveries by provider and status",
		},
		[]string{"provider", "status"},
	)

	// State monitor metrics
	ServerPollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "komodo_server_poll_duration_seconds",
			Help:    "Time to refresh one server's container state",
			Buckets: prometheus.DefBuckets,
		},
	)

	ServersUnreachable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "komodo_servers_unreachable",
			Help: "Enabled servers currently failing health checks",
		},
	)

	// Inventory metrics
	ResourcesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "komodo_resources_total",
			Help: "Managed resources by kind",
		},
		[]string{"kind"},
	)

	AlertsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "komodo_alerts_open",
			Help: "Alerts currently unresolved",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(UpdatesStarted)
	prometheus.MustRegister(UpdatesCompleted)
	prometheus.MustRegister(OperationsInFlight)
	prometheus.MustRegister(PullCacheHits)
	prometheus.MustRegister(PullCacheMisses)
	prometheus.MustRegister(BuilderProvisionDuration)
	prometheus.MustRegister(BuilderTeardownFailures)
	prometheus.MustRegister(SyncRuns)
	prometheus.MustRegister(SyncDiffs)
	prometheus.MustRegister(WebhookRequests)
	prometheus.MustRegister(ServerPollDuration)
	prometheus.MustRegister(ServersUnreachable)
	prometheus.MustRegister(ResourcesTotal)
	prometheus.MustRegister(AlertsOpen)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Scan metrics
	ScansTotal       *prometheus.CounterVec
	ScanDuration     *prometheus.HistogramVec
	ItemsDiscovered  *prometheus.CounterVec
	ScanRetriesTotal prometheus.Counter

	// Resolver metrics
	GatewayFetchesTotal *prometheus.CounterVec
	GatewayFetchLatency *prometheus.HistogramVec

	// Enrichment metrics
	EnrichmentsTotal *prometheus.CounterVec

	// Cache metrics
	CacheWritesTotal        prometheus.Counter
	CacheWriteErrors        prometheus.Counter
	CacheNotificationsTotal prometheus.Counter
	CachedAddresses         prometheus.Gauge

	// Chain RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	EndpointWins   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "nftwatch"
	}

	return &Metrics{
		// Scan metrics
		ScansTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "scans_total",
			Help:      "Total number of per-chain scans by outcome",
		}, []string{"chain", "outcome"}),
		ScanDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Duration of per-chain scans",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"chain"}),
		ItemsDiscovered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "items_discovered_total",
			Help:      "Total number of on-chain records discovered by chain",
		}, []string{"chain"}),
		ScanRetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "retries_total",
			Help:      "Total number of scan retry attempts",
		}),

		// Resolver metrics
		GatewayFetchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "gateway_fetches_total",
			Help:      "Total number of gateway fetches by gateway and outcome",
		}, []string{"gateway", "outcome"}),
		GatewayFetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "gateway_fetch_duration_seconds",
			Help:      "Duration of gateway fetches",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"gateway"}),

		// Enrichment metrics
		EnrichmentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "enrichments_total",
			Help:      "Total number of enrichment runs by outcome",
		}, []string{"outcome"}),

		// Cache metrics
		CacheWritesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Total number of persisted cache snapshots",
		}),
		CacheWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "write_errors_total",
			Help:      "Total number of failed cache snapshot writes",
		}),
		CacheNotificationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "notifications_total",
			Help:      "Total number of subscriber notifications delivered",
		}),
		CachedAddresses: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "addresses",
			Help:      "Current number of addresses held in the cache",
		}),

		// Chain RPC metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Duration of chain RPC calls by method",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"method"}),
		EndpointWins: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "endpoint_wins_total",
			Help:      "Times each endpoint won the connection race",
		}, []string{"endpoint"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Default is the process-wide metrics instance.
var Default = NewMetrics("")

// RecordScan records one per-chain scan attempt.
func RecordScan(chain string, seconds float64, itemsFound int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	Default.ScansTotal.WithLabelValues(chain, outcome).Inc()
	Default.ScanDuration.WithLabelValues(chain).Observe(seconds)
	if itemsFound > 0 {
		Default.ItemsDiscovered.WithLabelValues(chain).Add(float64(itemsFound))
	}
}

// RecordScanRetry records one scan retry attempt.
func RecordScanRetry() {
	Default.ScanRetriesTotal.Inc()
}

// RecordGatewayFetch records one gateway fetch.
func RecordGatewayFetch(gateway string, seconds float64, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	Default.GatewayFetchesTotal.WithLabelValues(gateway, outcome).Inc()
	Default.GatewayFetchLatency.WithLabelValues(gateway).Observe(seconds)
}

// RecordEnrichment records one enrichment run. Outcome is one of
// "enriched", "no_data".
func RecordEnrichment(outcome string) {
	Default.EnrichmentsTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheWrite records one snapshot persistence attempt.
func RecordCacheWrite(err error) {
	Default.CacheWritesTotal.Inc()
	if err != nil {
		Default.CacheWriteErrors.Inc()
	}
}

// RecordCacheNotification records one delivered subscriber callback.
func RecordCacheNotification() {
	Default.CacheNotificationsTotal.Inc()
}

// UpdateCachedAddresses records the current cache population.
func UpdateCachedAddresses(n int) {
	Default.CachedAddresses.Set(float64(n))
}

// RecordRPCLatency records the latency of a chain RPC call.
func RecordRPCLatency(method string, seconds float64) {
	Default.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordEndpointWin records which endpoint won a connection race.
func RecordEndpointWin(endpoint string) {
	Default.EndpointWins.WithLabelValues(endpoint).Inc()
}

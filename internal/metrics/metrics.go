// Package metrics exposes Prometheus collectors for the archiver.
package metrics

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/publicsuffix"
)

var (
	archiverRunsTotal          *prometheus.CounterVec
	archiverRunDurationSeconds *prometheus.HistogramVec
	archiverAssetsTotal        *prometheus.CounterVec
	archiverBytesTotal         *prometheus.CounterVec
	archiverStorageOpsTotal    *prometheus.CounterVec
	archiverHeadlessPromoted   prometheus.Counter
	archiverActiveRuns         prometheus.Gauge
	archiverRateLimitDelay     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		archiverRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_runs_total",
				Help: "Total number of archive runs, labeled by outcome.",
			},
			[]string{"status"},
		)

		archiverRateLimitDelay = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_rate_limit_delay_seconds",
				Help:    "Time fetches spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"site"},
		)

		archiverRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_run_duration_seconds",
				Help:    "Histogram of archive run latencies, labeled by outcome.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"status"},
		)

		archiverAssetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_assets_total",
				Help: "Total number of assets processed, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		archiverBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_bytes_total",
				Help: "Total number of bytes downloaded, labeled by site.",
			},
			[]string{"site"},
		)

		archiverStorageOpsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_storage_operations_total",
				Help: "Total number of backend writes, labeled by result.",
			},
			[]string{"result"},
		)

		archiverHeadlessPromoted = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_headless_promotions_total",
				Help: "Total page fetches promoted to the headless renderer.",
			},
		)

		archiverActiveRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archiver_active_runs",
				Help: "Number of run workers currently archiving a page.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite reduces a URL or host to its registrable domain so CDN
// subdomains share one label. IPs and hosts without a public suffix are
// returned as lowercase hostnames; invalid input yields "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	host := strings.ToLower(u.Hostname())
	if net.ParseIP(host) != nil {
		return host
	}
	if site, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return site
	}
	return host
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records a finished run.
func ObserveRun(status string, duration time.Duration) {
	archiverRunsTotal.WithLabelValues(status).Inc()
	archiverRunDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveAsset records one asset outcome ("stored" or "skipped") and the
// bytes downloaded for it.
func ObserveAsset(site, outcome string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	archiverAssetsTotal.WithLabelValues(sanitizedSite, outcome).Inc()
	if bytesFetched > 0 {
		archiverBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveStorageWrite records the result of a backend Store call.
func ObserveStorageWrite(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	archiverStorageOpsTotal.WithLabelValues(result).Inc()
}

// ObserveHeadlessPromotion counts a probe promoted to headless rendering.
func ObserveHeadlessPromotion() {
	archiverHeadlessPromoted.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records how long a fetch waited for a token.
func ObserveRateLimitDelay(host string, d time.Duration) {
	archiverRateLimitDelay.WithLabelValues(SanitizeSite(host)).Observe(d.Seconds())
}

// IncActiveRuns increments the active runs gauge.
func IncActiveRuns() {
	archiverActiveRuns.Inc()
}

// DecActiveRuns decrements the active runs gauge.
func DecActiveRuns() {
	archiverActiveRuns.Dec()
}

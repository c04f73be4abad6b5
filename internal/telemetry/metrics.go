package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	ForensicsRequests = prometheus.NewCounter(prometheus.CounterOpts{Name: "forensics_requests_total", Help: "Forensics reports requested"})
	ForensicsNotFound = prometheus.NewCounter(prometheus.CounterOpts{Name: "forensics_not_found_total", Help: "Requests for jobs absent from both stores"})
	PartialReports    = prometheus.NewCounter(prometheus.CounterOpts{Name: "forensics_partial_reports_total", Help: "Reports returned with one or more degraded facets"})
	FacetDegraded     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "forensics_facet_degraded_total", Help: "Facet degradations by facet name"}, []string{"facet"})
	KeysScanned       = prometheus.NewCounter(prometheus.CounterOpts{Name: "forensics_attestation_keys_scanned_total", Help: "Attestation keys examined by pattern scans"})
	ScanCapHits       = prometheus.NewCounter(prometheus.CounterOpts{Name: "forensics_scan_cap_hits_total", Help: "Pattern scans truncated by the per-request key cap"})
	RateLimitRejects  = prometheus.NewCounter(prometheus.CounterOpts{Name: "forensics_rate_limit_rejects_total", Help: "Requests rejected by the rate limiter"})
	RequestDuration   = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "forensics_request_duration_seconds",
		Help:    "End-to-end forensics report build time",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			ForensicsRequests,
			ForensicsNotFound,
			PartialReports,
			FacetDegraded,
			KeysScanned,
			ScanCapHits,
			RateLimitRejects,
			RequestDuration,
		)
	})
	return promhttp.Handler()
}

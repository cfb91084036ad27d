package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	PagesTotal       prometheus.Counter
	RecordsTotal     *prometheus.CounterVec
	DetailsCacheHits prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total API requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "API request latency by phase.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_listing_pages_total",
			Help: "Total listing pages read through the browser.",
		},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Offer records produced, by completeness.",
		},
		[]string{"kind"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_details_cache_hits_total",
			Help: "Product details served from the in-memory cache.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, pages, records, cacheHits, errorsTotal)

	return &Metrics{
		Registry:         registry,
		RequestsTotal:    requests,
		RequestDuration:  requestDuration,
		PagesTotal:       pages,
		RecordsTotal:     records,
		DetailsCacheHits: cacheHits,
		ErrorsTotal:      errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an API request duration.
func (m *Metrics) ObserveDuration(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// IncPages increments the listing pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// IncRecord counts a produced record; partial records lack availability
// because their offer lookup failed.
func (m *Metrics) IncRecord(partial bool) {
	if m == nil {
		return
	}
	kind := "complete"
	if partial {
		kind = "partial"
	}
	m.RecordsTotal.WithLabelValues(kind).Inc()
}

// IncCacheHit increments the details cache hit counter.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.DetailsCacheHits.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

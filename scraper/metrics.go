package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry           *prometheus.Registry
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    prometheus.Histogram
	ProbesTotal        *prometheus.CounterVec
	PagesResolved      prometheus.Histogram
	ProductsTotal      *prometheus.CounterVec
	RetriesTotal       prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
	CategoriesInFlight prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	probes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_page_probes_total",
			Help: "Forward pagination probes by outcome.",
		},
		[]string{"outcome"},
	)
	pages := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_category_pages",
			Help:    "Resolved page count per category.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		},
	)
	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_products_total",
			Help: "Products handled by the scraper by result.",
		},
		[]string{"result"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_categories_in_flight",
			Help: "Categories currently being traversed.",
		},
	)

	registry.MustRegister(requests, requestDuration, probes, pages, products, retries, errorsTotal, inFlight)

	return &Metrics{
		Registry:           registry,
		RequestsTotal:      requests,
		RequestDuration:    requestDuration,
		ProbesTotal:        probes,
		PagesResolved:      pages,
		ProductsTotal:      products,
		RetriesTotal:       retries,
		ErrorsTotal:        errorsTotal,
		CategoriesInFlight: inFlight,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncProbe counts a pagination probe.
func (m *Metrics) IncProbe(outcome string) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(outcome).Inc()
}

// ObservePages records a resolved page count.
func (m *Metrics) ObservePages(n int) {
	if m == nil {
		return
	}
	m.PagesResolved.Observe(float64(n))
}

// IncProduct counts a product outcome ("normalized" or a failure reason).
func (m *Metrics) IncProduct(result string) {
	if m == nil {
		return
	}
	m.ProductsTotal.WithLabelValues(result).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// CategoryStarted and CategoryDone track traversal concurrency.
func (m *Metrics) CategoryStarted() {
	if m == nil {
		return
	}
	m.CategoriesInFlight.Inc()
}

func (m *Metrics) CategoryDone() {
	if m == nil {
		return
	}
	m.CategoriesInFlight.Dec()
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/taji-labs/signing-service/pkg/types"
)

// Metrics contains all Prometheus metrics for the signing service
type Metrics struct {
	// Signing pipeline metrics
	SigningRequests   *prometheus.CounterVec
	SignedByChain     *prometheus.CounterVec
	SigningDuration   prometheus.Histogram
	EnvelopeSizeBytes prometheus.Histogram

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	RateLimited  prometheus.Counter
	AuthFailures prometheus.Counter

	// Receipt journal metrics
	JournalWrites *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics initializes and registers metrics on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry initializes and registers metrics with a custom registry
func NewMetricsWithRegistry(registry *prometheus.Registry) *Metrics {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if registry != nil {
		registerer = registry
		gatherer = registry
	}
	factory := promauto.With(registerer)

	return &Metrics{
		SigningRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signer_signing_requests_total",
			Help: "Signing requests by terminal stage and error kind",
		}, []string{"stage", "error_kind"}),
		SignedByChain: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signer_signed_transactions_total",
			Help: "Successfully signed transactions by chain",
		}, []string{"chain"}),
		SigningDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "signer_signing_duration_seconds",
			Help:    "Time spent validating and signing a request",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		EnvelopeSizeBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "signer_envelope_size_bytes",
			Help:    "Size of signed transaction envelopes",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10),
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signer_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "signer_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "signer_auth_failures_total",
			Help: "Requests rejected for a missing or invalid bearer token",
		}),
		JournalWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signer_journal_writes_total",
			Help: "Receipt journal writes by result",
		}, []string{"result"}),
		gatherer: gatherer,
	}
}

// ObserveSigning records the outcome of one pipeline run.
func (m *Metrics) ObserveSigning(event *types.SigningEvent, chain string, elapsed time.Duration) {
	m.SigningRequests.WithLabelValues(string(event.Stage), string(event.ErrorKind)).Inc()
	m.SigningDuration.Observe(elapsed.Seconds())
	if event.Stage == types.StageSigned {
		m.SignedByChain.WithLabelValues(chain).Inc()
		m.EnvelopeSizeBytes.Observe(float64(event.EnvelopeBytes))
	}
}

func (m *Metrics) ObserveJournalWrite(err error) {
	if err != nil {
		m.JournalWrites.WithLabelValues("error").Inc()
		return
	}
	m.JournalWrites.WithLabelValues("ok").Inc()
}

// Handler serves the registry these metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the stream segmenter.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	streamsStartedTotal  prometheus.Counter
	streamsStoppedTotal  prometheus.Counter
	activeStreams        prometheus.Gauge
	segmentsUploaded     *prometheus.CounterVec
	uploadFailures       *prometheus.CounterVec
	adsInsertedTotal     prometheus.Counter
	schedulerClaimsTotal prometheus.Counter
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "segmenter_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "segmenter_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	streamsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "segmenter_streams_started_total",
		Help: "Total number of streams started",
	})
	streamsStoppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "segmenter_streams_stopped_total",
		Help: "Total number of streams stopped",
	})
	activeStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "segmenter_active_streams",
		Help: "Number of streams currently live",
	})
	segmentsUploaded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "segmenter_segments_uploaded_total",
		Help: "Total number of segments uploaded, per storage backend",
	}, []string{"backend"})
	uploadFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "segmenter_upload_failures_total",
		Help: "Total number of failed segment uploads, per storage backend",
	}, []string{"backend"})
	adsInsertedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "segmenter_advertisements_inserted_total",
		Help: "Total number of advertisements spliced into playlists",
	})
	schedulerClaimsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "segmenter_scheduler_claims_total",
		Help: "Total number of scheduled stream records claimed by this instance",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		streamsStartedTotal,
		streamsStoppedTotal,
		activeStreams,
		segmentsUploaded,
		uploadFailures,
		adsInsertedTotal,
		schedulerClaimsTotal,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		errorsTotal:          errorsTotal,
		streamsStartedTotal:  streamsStartedTotal,
		streamsStoppedTotal:  streamsStoppedTotal,
		activeStreams:        activeStreams,
		segmentsUploaded:     segmentsUploaded,
		uploadFailures:       uploadFailures,
		adsInsertedTotal:     adsInsertedTotal,
		schedulerClaimsTotal: schedulerClaimsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncStreamsStarted increments the streams started counter.
func (m *Metrics) IncStreamsStarted() {
	m.streamsStartedTotal.Inc()
}

// IncStreamsStopped increments the streams stopped counter.
func (m *Metrics) IncStreamsStopped() {
	m.streamsStoppedTotal.Inc()
}

// SetActiveStreams sets the active streams gauge.
func (m *Metrics) SetActiveStreams(n int) {
	m.activeStreams.Set(float64(n))
}

// IncSegmentsUploaded increments the per-backend upload counter.
func (m *Metrics) IncSegmentsUploaded(backend string) {
	m.segmentsUploaded.WithLabelValues(backend).Inc()
}

// IncUploadFailures increments the per-backend upload failure counter.
func (m *Metrics) IncUploadFailures(backend string) {
	m.uploadFailures.WithLabelValues(backend).Inc()
}

// IncAdsInserted increments the advertisements inserted counter.
func (m *Metrics) IncAdsInserted() {
	m.adsInsertedTotal.Inc()
}

// IncSchedulerClaims increments the scheduler claims counter.
func (m *Metrics) IncSchedulerClaims() {
	m.schedulerClaimsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active streams).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the sleep-stage service.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	errorsTotal            prometheus.Counter
	nightsCreatedTotal     prometheus.Counter
	samplesIngestedTotal   prometheus.Counter
	nightsStagedTotal      prometheus.Counter
	segmentsProducedTotal  prometheus.Counter
	mqttMessagesTotal      *prometheus.CounterVec
	storedNights           prometheus.Gauge
	stagingDurationSeconds prometheus.Histogram
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sleepstage_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sleepstage_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		nightsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sleepstage_nights_created_total",
			Help: "Total number of nights created",
		}),
		samplesIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sleepstage_samples_ingested_total",
			Help: "Total number of samples and annotations accepted",
		}),
		nightsStagedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sleepstage_nights_staged_total",
			Help: "Total number of staging runs",
		}),
		segmentsProducedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sleepstage_segments_produced_total",
			Help: "Total number of segments produced by staging runs",
		}),
		mqttMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sleepstage_mqtt_messages_total",
			Help: "MQTT sample messages by outcome",
		}, []string{"outcome"}),
		storedNights: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sleepstage_stored_nights",
			Help: "Number of nights held by the configured store",
		}),
		stagingDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sleepstage_staging_duration_seconds",
			Help:    "Wall time of staging runs",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.nightsCreatedTotal,
		m.samplesIngestedTotal,
		m.nightsStagedTotal,
		m.segmentsProducedTotal,
		m.mqttMessagesTotal,
		m.storedNights,
		m.stagingDurationSeconds,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncNightsCreated increments the nights created counter.
func (m *Metrics) IncNightsCreated() {
	m.nightsCreatedTotal.Inc()
}

// AddSamplesIngested adds n to the ingested samples counter.
func (m *Metrics) AddSamplesIngested(n int) {
	m.samplesIngestedTotal.Add(float64(n))
}

// IncNightsStaged increments the staging runs counter.
func (m *Metrics) IncNightsStaged() {
	m.nightsStagedTotal.Inc()
}

// AddSegmentsProduced adds n to the produced segments counter.
func (m *Metrics) AddSegmentsProduced(n int) {
	m.segmentsProducedTotal.Add(float64(n))
}

// ObserveStagingDuration records the wall time of one staging run.
func (m *Metrics) ObserveStagingDuration(d time.Duration) {
	m.stagingDurationSeconds.Observe(d.Seconds())
}

// IncMQTTMessages counts one MQTT message with the given outcome
// ("accepted", "rejected" or "failed").
func (m *Metrics) IncMQTTMessages(outcome string) {
	m.mqttMessagesTotal.WithLabelValues(outcome).Inc()
}

// SetStoredNights sets the stored nights gauge.
func (m *Metrics) SetStoredNights(n int) {
	m.storedNights.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. stored nights).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RetrievalMetrics records pipeline stages, outcomes, corpus reloads and
// breaker transitions for one service.
type RetrievalMetrics struct {
	service string

	stageDuration     *prometheus.HistogramVec
	requestsTotal     *prometheus.CounterVec
	returnedChunks    prometheus.Histogram
	danglingTotal     prometheus.Counter
	gateTotal         *prometheus.CounterVec
	reloadTotal       *prometheus.CounterVec
	reloadDuration    prometheus.Histogram
	corpusChunks      prometheus.Gauge
	breakerTransition *prometheus.CounterVec
}

func NewRetrievalMetrics(service string, registerer prometheus.Registerer) *RetrievalMetrics {
	constLabels := prometheus.Labels{"service": service}

	m := &RetrievalMetrics{
		service: service,
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "retrieval",
				Name:        "stage_duration_seconds",
				Help:        "Duration of each retrieval stage in seconds.",
				Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
				ConstLabels: constLabels,
			},
			[]string{"stage"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "retrieval",
				Name:        "requests_total",
				Help:        "Retrieval requests by outcome.",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		returnedChunks: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "retrieval",
				Name:        "returned_chunks",
				Help:        "Chunks returned per successful retrieval.",
				Buckets:     []float64{0, 1, 2, 3, 5, 8, 13, 21},
				ConstLabels: constLabels,
			},
		),
		danglingTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "retrieval",
				Name:        "dangling_candidates_total",
				Help:        "Fused candidate ids missing from the corpus.",
				ConstLabels: constLabels,
			},
		),
		gateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "retrieval",
				Name:        "gate_total",
				Help:        "Relevance gate decisions by outcome.",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		reloadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "corpus",
				Name:        "reload_total",
				Help:        "Corpus snapshot reloads by outcome.",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		reloadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "corpus",
				Name:        "reload_duration_seconds",
				Help:        "Time to load and index the corpus.",
				Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
				ConstLabels: constLabels,
			},
		),
		corpusChunks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "corpus",
				Name:        "chunks",
				Help:        "Chunks in the published corpus snapshot.",
				ConstLabels: constLabels,
			},
		),
		breakerTransition: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "resilience",
				Name:        "breaker_transitions_total",
				Help:        "Circuit breaker state transitions.",
				ConstLabels: constLabels,
			},
			[]string{"operation", "to"},
		),
	}

	registerer.MustRegister(
		m.stageDuration,
		m.requestsTotal,
		m.returnedChunks,
		m.danglingTotal,
		m.gateTotal,
		m.reloadTotal,
		m.reloadDuration,
		m.corpusChunks,
		m.breakerTransition,
	)
	return m
}

func (m *RetrievalMetrics) ObserveStage(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func (m *RetrievalMetrics) ObserveResult(outcome string, chunks int) {
	m.requestsTotal.WithLabelValues(outcome).Inc()
	if outcome == "results" || outcome == "empty" {
		m.returnedChunks.Observe(float64(chunks))
	}
}

func (m *RetrievalMetrics) ObserveDangling() {
	m.danglingTotal.Inc()
}

func (m *RetrievalMetrics) ObserveGate(outcome string) {
	m.gateTotal.WithLabelValues(outcome).Inc()
}

func (m *RetrievalMetrics) ObserveReload(outcome string, chunks int, duration time.Duration) {
	m.reloadTotal.WithLabelValues(outcome).Inc()
	m.reloadDuration.Observe(duration.Seconds())
	if outcome == "ok" {
		m.corpusChunks.Set(float64(chunks))
	}
}

func (m *RetrievalMetrics) ObserveBreakerTransition(operation, _ string, to string) {
	m.breakerTransition.WithLabelValues(operation, to).Inc()
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IngestionMetrics records ingestion run outcomes.
type IngestionMetrics struct {
	runDuration *prometheus.HistogramVec
	failures    *prometheus.CounterVec
	pages       prometheus.Counter
	inFlight    prometheus.Gauge
}

// NewIngestionMetrics registers the pipeline metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewIngestionMetrics(reg prometheus.Registerer) *IngestionMetrics {
	if reg == nil {
		return &IngestionMetrics{}
	}
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "magazine_ingestion_duration_seconds",
		Help:    "Duration of magazine ingestion runs in seconds.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"outcome"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "magazine_ingestion_failures_total",
		Help: "Failed ingestion runs by stage.",
	}, []string{"stage"})
	pages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "magazine_pages_published_total",
		Help: "Pages transcoded and uploaded by successful runs.",
	})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "magazine_ingestion_in_flight",
		Help: "Ingestion runs currently executing.",
	})
	reg.MustRegister(runDuration, failures, pages, inFlight)
	return &IngestionMetrics{
		runDuration: runDuration,
		failures:    failures,
		pages:       pages,
		inFlight:    inFlight,
	}
}

// ObserveRun records the duration of a finished run under its outcome.
func (m *IngestionMetrics) ObserveRun(outcome string, duration time.Duration) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncFailure counts a failed run against the stage that failed.
func (m *IngestionMetrics) IncFailure(stage string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(stage)).Inc()
}

// AddPages counts pages published by a successful run.
func (m *IngestionMetrics) AddPages(n int) {
	if m == nil || m.pages == nil || n <= 0 {
		return
	}
	m.pages.Add(float64(n))
}

// RunStarted and RunFinished track the in-flight gauge.
func (m *IngestionMetrics) RunStarted() {
	if m == nil || m.inFlight == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *IngestionMetrics) RunFinished() {
	if m == nil || m.inFlight == nil {
		return
	}
	m.inFlight.Dec()
}

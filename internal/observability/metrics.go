package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// dispatch task service.
type Metrics struct {
	AddressResolutions *prometheus.CounterVec // labels: source={input_cache,canonical_cache,geocoder}
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error}
	GeocodeAPIDuration prometheus.Histogram

	// Verified coordinate ledger metrics.
	CoordinateWrites *prometheus.CounterVec // labels: result={recorded,unchanged}

	// Write buffer metrics.
	BufferRows          *prometheus.GaugeVec   // labels: table
	BufferFlushes       *prometheus.CounterVec // labels: table, outcome={success,error}
	BufferFlushDuration prometheus.Histogram

	// Dispatch API metrics.
	TasksSubmitted      *prometheus.CounterVec   // labels: mode={single,bulk}
	DispatchAPIDuration *prometheus.HistogramVec // labels: op={submit,fetch}

	// Reconciliation metrics.
	ReconcileRuns        prometheus.Counter
	ReconcileCoordinates *prometheus.CounterVec // labels: result={updated,unchanged,failed}

	// Document extraction metrics.
	ExtractionRequests *prometheus.CounterVec // labels: outcome={success,error}

	// Event stream metrics.
	EventsPublished *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.AddressResolutions,
		m.GeocodeRequests,
		m.GeocodeAPIDuration,
		m.CoordinateWrites,
		m.BufferRows,
		m.BufferFlushes,
		m.BufferFlushDuration,
		m.TasksSubmitted,
		m.DispatchAPIDuration,
		m.ReconcileRuns,
		m.ReconcileCoordinates,
		m.ExtractionRequests,
		m.EventsPublished,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		AddressResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "address_resolutions_total",
			Help:      "Address resolutions by source (input cache, canonical cache, or fresh geocode).",
		}, []string{"source"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "geocode_requests_total",
			Help:      "Address validation API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dispatch",
			Name:      "geocode_api_duration_seconds",
			Help:      "Address validation API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CoordinateWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "verified_coordinate_writes_total",
			Help:      "Verified coordinate recordings by result (recorded or suppressed as unchanged).",
		}, []string{"result"}),
		BufferRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dispatch",
			Name:      "buffer_rows",
			Help:      "Rows currently queued per table awaiting a bulk load.",
		}, []string{"table"}),
		BufferFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "buffer_flushes_total",
			Help:      "Bulk load attempts per table by outcome.",
		}, []string{"table", "outcome"}),
		BufferFlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dispatch",
			Name:      "buffer_flush_duration_seconds",
			Help:      "Duration of one bulk load job.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		TasksSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "tasks_submitted_total",
			Help:      "Tasks submitted to the dispatch API by mode.",
		}, []string{"mode"}),
		DispatchAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dispatch",
			Name:      "dispatch_api_duration_seconds",
			Help:      "Dispatch API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		ReconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "reconcile_runs_total",
			Help:      "Completed coordinate reconciliation passes.",
		}),
		ReconcileCoordinates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "reconcile_coordinates_total",
			Help:      "Addresses examined during reconciliation by result.",
		}, []string{"result"}),
		ExtractionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "extraction_requests_total",
			Help:      "Document extraction requests by outcome.",
		}, []string{"outcome"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "events_published_total",
			Help:      "Change events published to the event stream by outcome.",
		}, []string{"outcome"}),
	}
}

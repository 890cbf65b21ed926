package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flood_extent"

// Metrics holds the Prometheus counters, histograms, and gauges for the engine.
type Metrics struct {
	// Discovery metrics.
	ProbesTotal       *prometheus.CounterVec // labels: outcome={found,unavailable,malformed,error}
	DiscoveryRuns     prometheus.Counter
	DiscoveryDuration prometheus.Histogram
	IndexDatasets     prometheus.Gauge

	// Source metrics.
	SourceRequests *prometheus.CounterVec // labels: outcome={ok,not_found,error}
	SourceDuration prometheus.Histogram
	SourceCache    *prometheus.CounterVec // labels: result={hit,miss}

	// Summary table metrics.
	SummaryRows          *prometheus.CounterVec // labels: result={parsed,skipped}
	SummaryUnknownFields prometheus.Counter

	// Session metrics.
	StateMutations   *prometheus.CounterVec // labels: kind, result={applied,rejected}
	Transitions      *prometheus.CounterVec // labels: result={applied,superseded,failed}
	TransitionActive prometheus.Gauge
	CommandBatches   *prometheus.CounterVec // labels: reason
	CommandsEmitted  prometheus.Counter
	SinkErrors       *prometheus.CounterVec // labels: sink
	EngineReady      prometheus.Gauge
	NoData           prometheus.Gauge
}

// NewMetrics creates and registers all engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they need without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

// NewUnregisteredMetrics creates Metrics that no registry collects, for
// one-shot commands that never serve /metrics.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics(true)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		ProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      help("Discovery probes by outcome."),
		}, []string{"outcome"}),
		DiscoveryRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_runs_total",
			Help:      help("Completed discovery runs."),
		}),
		DiscoveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discovery_duration_seconds",
			Help:      help("Wall time of a discovery run; bounded by the slowest probe."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		IndexDatasets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_datasets",
			Help:      help("Datasets in the current availability index."),
		}),
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      help("Source fetches by outcome."),
		}, []string{"outcome"}),
		SourceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      help("Source fetch duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		SourceCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_cache_total",
			Help:      help("Geometry cache lookups by result."),
		}, []string{"result"}),
		SummaryRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_rows_total",
			Help:      help("Summary table rows by parse result."),
		}, []string{"result"}),
		SummaryUnknownFields: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_unknown_fields_total",
			Help:      help("Summary fields that were missing or unparsable."),
		}),
		StateMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_mutations_total",
			Help:      help("View state mutations by kind and result."),
		}, []string{"kind", "result"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      help("Dataset transitions by result."),
		}, []string{"result"}),
		TransitionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transition_active",
			Help:      help("1 while a dataset transition is in flight."),
		}),
		CommandBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_batches_total",
			Help:      help("Published command batches by reason."),
		}, []string{"reason"}),
		CommandsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_emitted_total",
			Help:      help("Individual renderer commands published."),
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      help("Command sink publish failures by sink."),
		}, []string{"sink"}),
		EngineReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_ready",
			Help:      help("1 once discovery produced a usable index."),
		}),
		NoData: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "no_data",
			Help:      help("1 when the session is in the terminal no-data state."),
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ProbesTotal,
		m.DiscoveryRuns,
		m.DiscoveryDuration,
		m.IndexDatasets,
		m.SourceRequests,
		m.SourceDuration,
		m.SourceCache,
		m.SummaryRows,
		m.SummaryUnknownFields,
		m.StateMutations,
		m.Transitions,
		m.TransitionActive,
		m.CommandBatches,
		m.CommandsEmitted,
		m.SinkErrors,
		m.EngineReady,
		m.NoData,
	}
}

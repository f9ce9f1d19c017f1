package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager holds the solver, dispatch and HTTP metrics.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Clearing
	rounds        prometheus.Counter
	years         *prometheus.CounterVec
	roundsToClear prometheus.Histogram
	lastResidual  prometheus.Gauge
	unmetDemand   *prometheus.GaugeVec

	// Dispatch
	dispatchDuration *prometheus.HistogramVec

	// Planner
	capacityAdded   *prometheus.CounterVec
	capacityRetired *prometheus.CounterVec

	// Runs and HTTP
	simulations         *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry served on /metrics

var defaultManager = NewManager(WithPrometheusRegistry(customRegistry)) //nolint:gochecknoglobals // process-wide metrics

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "mca",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.rounds = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rounds_total",
		Help:      "Total number of clearing rounds executed",
	})
	m.years = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "years_total",
		Help:      "Simulation years cleared, by final status",
	}, []string{"status"})
	m.roundsToClear = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rounds_per_year",
		Help:      "Rounds needed to reach a terminal status",
		Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
	})
	m.lastResidual = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "last_residual",
		Help:      "Residual of the most recent clearing round",
	})
	m.unmetDemand = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "unmet_demand",
		Help:      "Unmet demand of the last cleared year, by commodity",
	}, []string{"commodity"})
	m.dispatchDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dispatch_duration_seconds",
		Help:      "Sector dispatch latency",
		Buckets:   m.histogramBuckets,
	}, []string{"sector"})
	m.capacityAdded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "capacity_added_total",
		Help:      "Capacity installed by the planner, by sector",
	}, []string{"sector"})
	m.capacityRetired = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "capacity_retired_total",
		Help:      "Capacity retired at end of life, by sector",
	}, []string{"sector"})
	m.simulations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "simulations_total",
		Help:      "Simulation runs by outcome",
	}, []string{"outcome"})
	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// Default returns the process-wide manager registered on GetRegistry.
func Default() *Manager { return defaultManager }

// RecordRound counts one clearing round and its residual.
func (m *Manager) RecordRound(residual float64) {
	if m == nil || !m.enabled {
		return
	}
	m.rounds.Inc()
	m.lastResidual.Set(residual)
}

// RecordYear counts a cleared year by status.
func (m *Manager) RecordYear(status string, rounds int) {
	if m == nil || !m.enabled {
		return
	}
	m.years.WithLabelValues(status).Inc()
	m.roundsToClear.Observe(float64(rounds))
}

// SetUnmetDemand publishes the unmet demand of one commodity.
func (m *Manager) SetUnmetDemand(commodity string, quantity float64) {
	if m == nil || !m.enabled {
		return
	}
	m.unmetDemand.WithLabelValues(commodity).Set(quantity)
}

// ObserveDispatch records how long one sector dispatch took.
func (m *Manager) ObserveDispatch(sector string, d time.Duration) {
	if m == nil || !m.enabled {
		return
	}
	m.dispatchDuration.WithLabelValues(sector).Observe(d.Seconds())
}

// RecordCapacityChange records planner additions and retirements.
func (m *Manager) RecordCapacityChange(sector string, added, retired float64) {
	if m == nil || !m.enabled {
		return
	}
	if added > 0 {
		m.capacityAdded.WithLabelValues(sector).Add(added)
	}
	if retired > 0 {
		m.capacityRetired.WithLabelValues(sector).Add(retired)
	}
}

// RecordSimulation counts a finished run.
func (m *Manager) RecordSimulation(outcome string) {
	if m == nil || !m.enabled {
		return
	}
	m.simulations.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records one served request.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, d time.Duration) {
	if m == nil || !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(d.Seconds())
}

// GetRegistry returns the custom Prometheus registry used by the default manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

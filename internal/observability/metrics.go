package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks SDK behavior: resolution outcomes and latency, cache
// effectiveness, telemetry delivery, and realtime channel health.
//
// Construct with NewMetrics and register against a caller-supplied registry,
// or use NewRegisteredMetrics for a self-contained registry. All methods are
// nil-safe so instrumented code paths never have to check whether metrics
// were configured.
type Metrics struct {
	// Resolutions counts resolution attempts.
	// Labels: kind (prompt|experiment), outcome (success|not_found|backend_error).
	Resolutions *prometheus.CounterVec

	// ResolutionDuration measures resolution wall time in seconds.
	// Labels: kind (prompt|experiment).
	ResolutionDuration *prometheus.HistogramVec

	// CacheLookups counts cache reads. Labels: result (hit|miss).
	CacheLookups *prometheus.CounterVec

	// TelemetryEvents counts background event sends.
	// Labels: kind (usage|experiment_result), outcome (ok|error).
	TelemetryEvents *prometheus.CounterVec

	// RealtimeEvents counts received change notifications. Labels: kind.
	RealtimeEvents *prometheus.CounterVec
}

// NewMetrics creates the metric vectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptwire",
			Name:      "resolutions_total",
			Help:      "Resolution attempts by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ResolutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "promptwire",
			Name:      "resolution_duration_seconds",
			Help:      "Resolution wall time in seconds.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"kind"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptwire",
			Name:      "cache_lookups_total",
			Help:      "Entity cache lookups by result.",
		}, []string{"result"}),
		TelemetryEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptwire",
			Name:      "telemetry_events_total",
			Help:      "Background telemetry sends by kind and outcome.",
		}, []string{"kind", "outcome"}),
		RealtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptwire",
			Name:      "realtime_events_total",
			Help:      "Received entity change notifications by kind.",
		}, []string{"kind"}),
	}
}

// Register attaches all vectors to the registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.Resolutions, m.ResolutionDuration, m.CacheLookups, m.TelemetryEvents, m.RealtimeEvents,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// NewRegisteredMetrics creates metrics bound to a fresh registry, returning both.
func NewRegisteredMetrics() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	// Registration on a fresh registry cannot collide.
	_ = m.Register(reg)
	return m, reg
}

// ObserveResolution records one resolution attempt.
func (m *Metrics) ObserveResolution(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(kind, outcome).Inc()
	m.ResolutionDuration.WithLabelValues(kind).Observe(seconds)
}

// ObserveCacheLookup records one cache read.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveTelemetry records one background send.
func (m *Metrics) ObserveTelemetry(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.TelemetryEvents.WithLabelValues(kind, outcome).Inc()
}

// ObserveRealtimeEvent records one received change notification.
func (m *Metrics) ObserveRealtimeEvent(kind string) {
	if m == nil {
		return
	}
	m.RealtimeEvents.WithLabelValues(kind).Inc()
}

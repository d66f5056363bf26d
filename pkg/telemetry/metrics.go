package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for generation runs.
type Metrics struct {
	config MetricsConfig

	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec

	targetsExpanded *prometheus.CounterVec
	artifacts       *prometheus.CounterVec
	errors          *prometheus.CounterVec
	policyFindings  *prometheus.CounterVec
	regenerations   *prometheus.CounterVec

	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector. A disabled collector accepts
// every call and records nothing.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of generation runs by final status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of generation runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of solution pipeline stages in seconds",
				Buckets:   buckets,
			},
			[]string{"stage", "status"},
		),
		targetsExpanded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "targets_expanded_total",
				Help:      "Total number of targets expanded from declared target specs",
			},
			[]string{"kind"},
		),
		artifacts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_total",
				Help:      "Total number of artifacts processed",
			},
			[]string{"emitter", "kind", "status"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of generation errors by kind",
			},
			[]string{"kind"},
		),
		policyFindings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_findings_total",
				Help:      "Total number of policy findings by severity",
			},
			[]string{"severity"},
		),
		regenerations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "watch_regenerations_total",
				Help:      "Total number of regenerations triggered by file changes",
			},
			[]string{"status"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of generation runs in progress",
			},
		),
	}

	registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.stageDuration,
		m.targetsExpanded,
		m.artifacts,
		m.errors,
		m.policyFindings,
		m.regenerations,
		m.activeRuns,
	)

	return m, nil
}

// Registry returns the private registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRunStarted marks a run in progress.
func (m *Metrics) RecordRunStarted() {
	if m.activeRuns == nil {
		return
	}
	m.activeRuns.Inc()
}

// RecordRunCompleted records a finished run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsTotal == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// RecordStage records the duration of one solution stage.
func (m *Metrics) RecordStage(stage, status string, duration time.Duration) {
	if m.stageDuration == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// RecordTargetsExpanded adds count expanded targets for an entity kind.
func (m *Metrics) RecordTargetsExpanded(kind string, count int) {
	if m.targetsExpanded == nil {
		return
	}
	m.targetsExpanded.WithLabelValues(kind).Add(float64(count))
}

// RecordArtifact records one artifact outcome.
func (m *Metrics) RecordArtifact(emitter, kind, status string) {
	if m.artifacts == nil {
		return
	}
	m.artifacts.WithLabelValues(emitter, kind, status).Inc()
}

// RecordError records an error by kind.
func (m *Metrics) RecordError(kind string) {
	if m.errors == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

// RecordPolicyFinding records a policy finding by severity.
func (m *Metrics) RecordPolicyFinding(severity string) {
	if m.policyFindings == nil {
		return
	}
	m.policyFindings.WithLabelValues(severity).Inc()
}

// RecordRegeneration records a watch-triggered regeneration.
func (m *Metrics) RecordRegeneration(status string) {
	if m.regenerations == nil {
		return
	}
	m.regenerations.WithLabelValues(status).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer serves the metrics endpoint until ctx is cancelled.
// Serve errors other than shutdown are sent to errc when it is non-nil.
func (m *Metrics) StartMetricsServer(ctx context.Context, errc chan<- error) error {
	if !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && errc != nil {
			errc <- err
		}
	}()

	return nil
}

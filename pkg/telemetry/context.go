package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"

	"github.com/slngen/slngen/pkg/engine"
)

// Telemetry combines logging, tracing, metrics and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.ResourceAttributes)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Observer returns the engine observer backed by this instance.
func (t *Telemetry) Observer() engine.Observer {
	return NewObserver(t)
}

// RunSpan tracks one generation run.
type RunSpan struct {
	tel   *Telemetry
	span  trace.Span
	timer *Timer
}

// StartRun opens the run span and marks a run active. The returned context
// carries the span so stage spans nest under it.
func (t *Telemetry) StartRun(ctx context.Context, solutions []string) (context.Context, *RunSpan) {
	ctx, span := t.Tracer.StartRunSpan(ctx, solutions)
	t.Metrics.RecordRunStarted()
	if err := t.Events.PublishRunStarted(solutions); err != nil {
		t.Logger.WithError(err).Debug("Run event dropped")
	}
	return ctx, &RunSpan{tel: t, span: span, timer: NewTimer()}
}

// End closes the run with the generator's outcome. result may be nil when
// the generator failed before producing one.
func (r *RunSpan) End(result *engine.GenerationResult, err error) {
	status := string(engine.RunStatusFailed)
	runID := ""
	errorCount := 0
	if result != nil {
		status = string(result.Status)
		runID = result.RunID
		errorCount = len(result.Errors)
		for _, f := range result.Findings {
			r.tel.Metrics.RecordPolicyFinding(string(f.Severity))
			_ = r.tel.Events.PublishPolicyFinding("", f.Policy, string(f.Severity), f.Message)
		}
	}

	r.span.SetAttributes(AttrRunStatus.String(status))
	if runID != "" {
		r.span.SetAttributes(AttrRunID.String(runID))
	}
	if err == nil && result != nil {
		err = result.Errors.Err()
	}
	if err != nil {
		RecordError(r.span, err)
	} else {
		RecordSuccess(r.span)
	}
	r.span.End()

	r.tel.Metrics.RecordRunCompleted(status, r.timer.Duration())
	if perr := r.tel.Events.PublishRunCompleted(runID, status, errorCount, r.timer.Duration()); perr != nil {
		r.tel.Logger.WithError(perr).Debug("Run event dropped")
	}
}

// Flush forces all pending spans to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// Shutdown stops event delivery and the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Events.Shutdown(ctx),
		t.Tracer.Shutdown(ctx),
	)
}

// StartMetricsServer serves metrics until ctx is cancelled.
func (t *Telemetry) StartMetricsServer(ctx context.Context) error {
	errc := make(chan error, 1)
	if err := t.Metrics.StartMetricsServer(ctx, errc); err != nil {
		return err
	}
	go func() {
		select {
		case err := <-errc:
			t.Logger.WithError(err).Error("Metrics server stopped")
		case <-ctx.Done():
		}
	}()
	return nil
}

package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"

	"github.com/slngen/slngen/pkg/engine"
)

// Observer reports generator events to spans, metrics, events and the log.
type Observer struct {
	tel    *Telemetry
	logger *Logger
}

var _ engine.Observer = (*Observer)(nil)

// NewObserver creates an observer for tel.
func NewObserver(tel *Telemetry) *Observer {
	return &Observer{
		tel:    tel,
		logger: tel.Logger.NewComponentLogger("observer"),
	}
}

// StageStarted implements engine.Observer.
func (o *Observer) StageStarted(ctx context.Context, solution string, stage engine.Stage) (context.Context, func(error)) {
	ctx, span := o.tel.Tracer.StartStageSpan(ctx, solution, string(stage))
	timer := NewTimer()
	log := o.logger.WithSolution(solution).WithStage(stage)
	log.Trace("Stage started")

	return ctx, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
			RecordError(span, err)
			log.WithError(err).Debug("Stage failed")
		} else {
			RecordSuccess(span)
		}
		span.End()

		o.tel.Metrics.RecordStage(string(stage), status, timer.Duration())
		o.publish(o.tel.Events.PublishStage(solution, string(stage), err, timer.Duration()))
	}
}

// TargetsExpanded implements engine.Observer.
func (o *Observer) TargetsExpanded(ctx context.Context, entity string, kind engine.EntityKind, count int) {
	trace.SpanFromContext(ctx).AddEvent("targets.expanded", trace.WithAttributes(
		AttrEntity.String(entity),
		AttrEntityKind.String(string(kind)),
		AttrCount.Int(count),
	))
	o.tel.Metrics.RecordTargetsExpanded(string(kind), count)
	o.publish(o.tel.Events.Publish(Event{
		Type:    EventTypeTargetsExpanded,
		Entity:  entity,
		Message: "Targets expanded",
		Data: map[string]interface{}{
			"kind":  string(kind),
			"count": count,
		},
	}))
}

// ArtifactProcessed implements engine.Observer.
func (o *Observer) ArtifactProcessed(ctx context.Context, a engine.ArtifactResult) {
	attrs := []trace.EventOption{trace.WithAttributes(
		AttrArtifactPath.String(a.Path),
		AttrArtifactStatus.String(string(a.Status)),
		AttrEmitter.String(a.Emitter),
	)}
	if a.Target != nil {
		attrs = append(attrs, trace.WithAttributes(AttrTarget.String(a.Target.Slug())))
	}
	trace.SpanFromContext(ctx).AddEvent("artifact", attrs...)

	o.tel.Metrics.RecordArtifact(a.Emitter, string(a.Kind), string(a.Status))
	o.publish(o.tel.Events.PublishArtifact(a.Entity, a.Path, a.Emitter, string(a.Status)))
}

// ErrorRecorded implements engine.Observer.
func (o *Observer) ErrorRecorded(ctx context.Context, err error) {
	kind := string(engine.KindOf(err))
	if kind == "" {
		kind = "unclassified"
	}
	trace.SpanFromContext(ctx).AddEvent("error", trace.WithAttributes(AttrErrorKind.String(kind)))
	o.tel.Metrics.RecordError(kind)

	entity := ""
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		entity = ee.Entity
	}
	o.publish(o.tel.Events.PublishError(entity, kind, err))
}

func (o *Observer) publish(err error) {
	if err != nil {
		o.logger.WithError(err).Debug("Event dropped")
	}
}

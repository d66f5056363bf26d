// Package telemetry provides observability for slngen generation runs.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry),
// metrics (Prometheus) and an in-process event stream, and exposes them to
// the generator through an engine.Observer.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx, run := tel.StartRun(ctx, []string{"BirdGame"})
//	result, err := gen.Generate(ctx, registry, "BirdGame")
//	run.End(result, err)
//
// The generator receives tel.Observer() in its options. Every solution stage
// becomes a span under the run span, and stage durations, expanded target
// counts, artifact outcomes and error kinds are counted.
//
// # Logging
//
// Child loggers carry a component field, and helpers add generation
// fields such as run_id, solution, entity, target and stage:
//
//	log := tel.Logger.NewComponentLogger("generator").WithSolution("BirdGame")
//	log.WithTarget(t).Debug("Resolved target")
//
// # Tracing
//
// The exporter is one of otlp (gRPC), stdout or none. With tracing disabled
// spans are non-recording and cost nothing.
//
// # Metrics
//
// Metrics live in a private registry under the "slngen" namespace:
//
//   - slngen_runs_total{status}
//   - slngen_run_duration_seconds{status}
//   - slngen_stage_duration_seconds{stage,status}
//   - slngen_targets_expanded_total{kind}
//   - slngen_artifacts_total{emitter,kind,status}
//   - slngen_errors_total{kind}
//   - slngen_policy_findings_total{severity}
//   - slngen_watch_regenerations_total{status}
//   - slngen_active_runs
//
// Watch mode serves them over HTTP with StartMetricsServer.
//
// # Events
//
// EventPublisher delivers run, stage, artifact, policy and error events to
// subscribers. Watch mode subscribes to print a summary of each
// regeneration.
package telemetry

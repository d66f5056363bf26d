package engine

import (
	"context"
	"time"
)

// Observer receives pipeline events for tracing and metrics.
type Observer interface {
	// StageStarted is called when a solution enters a stage. The returned
	// context is used for the stage's work; end is called with the stage
	// outcome.
	StageStarted(ctx context.Context, solution string, stage Stage) (context.Context, func(error))

	// TargetsExpanded reports the expanded matrix size of an entity.
	TargetsExpanded(ctx context.Context, entity string, kind EntityKind, count int)

	// ArtifactProcessed reports the outcome of one artifact.
	ArtifactProcessed(ctx context.Context, a ArtifactResult)

	// ErrorRecorded reports one aggregated error.
	ErrorRecorded(ctx context.Context, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

// StageStarted implements Observer.
func (NopObserver) StageStarted(ctx context.Context, _ string, _ Stage) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// TargetsExpanded implements Observer.
func (NopObserver) TargetsExpanded(context.Context, string, EntityKind, int) {}

// ArtifactProcessed implements Observer.
func (NopObserver) ArtifactProcessed(context.Context, ArtifactResult) {}

// ErrorRecorded implements Observer.
func (NopObserver) ErrorRecorded(context.Context, error) {}

// RunInfo describes a generation run when it starts.
type RunInfo struct {
	Solutions  []string
	OutputRoot string
	DryRun     bool
	StartedAt  time.Time
}

// ArtifactRecord is the persisted form of one artifact outcome.
type ArtifactRecord struct {
	Path    string
	Entity  string
	Kind    ArtifactKind
	Target  string
	Emitter string
	SHA256  string
	Status  ArtifactStatus
}

// HistoryStore persists generation runs. Run metadata never reaches artifacts.
type HistoryStore interface {
	// BeginRun records a new run and returns its ID.
	BeginRun(ctx context.Context, info RunInfo) (string, error)

	// RecordArtifact records one artifact outcome of a run.
	RecordArtifact(ctx context.Context, runID string, rec ArtifactRecord) error

	// CompleteRun marks a run finished.
	CompleteRun(ctx context.Context, runID string, status RunStatus, errorCount int) error

	// PreviousArtifacts returns the artifact paths of the latest successful
	// run under outputRoot, excluding runID.
	PreviousArtifacts(ctx context.Context, outputRoot, excludeRunID string) ([]string, error)
}

// PolicySeverity grades a policy finding.
type PolicySeverity string

const (
	// PolicySeverityError rejects the configuration.
	PolicySeverityError PolicySeverity = "error"

	// PolicySeverityWarning is logged only.
	PolicySeverityWarning PolicySeverity = "warning"
)

// PolicyInput is the document a policy evaluates.
type PolicyInput struct {
	Entity string                 `json:"entity"`
	Kind   EntityKind             `json:"kind"`
	Target map[string]string      `json:"target"`
	Config map[string]interface{} `json:"config"`
}

// NewPolicyInput builds the policy document of a resolved configuration.
func NewPolicyInput(kind EntityKind, conf *Configuration) PolicyInput {
	t := conf.Target()
	return PolicyInput{
		Entity: conf.Entity(),
		Kind:   kind,
		Target: map[string]string{
			"platform":     string(t.Platform),
			"devenv":       string(t.DevEnv),
			"optimization": t.Optimization.String(),
			"slug":         t.Slug(),
		},
		Config: conf.Values(),
	}
}

// PolicyFinding is one policy result.
type PolicyFinding struct {
	Policy   string         `json:"policy"`
	Message  string         `json:"message"`
	Severity PolicySeverity `json:"severity"`
}

// PolicyChecker evaluates resolved configurations.
type PolicyChecker interface {
	Check(ctx context.Context, input PolicyInput) ([]PolicyFinding, error)
}

package stores

import (
	"context"
	"time"

	"github.com/slngen/slngen/pkg/engine"
)

// Run is one recorded generation run.
type Run struct {
	ID          string           `json:"id"`
	Solutions   []string         `json:"solutions"`
	OutputRoot  string           `json:"output_root"`
	Status      engine.RunStatus `json:"status"`
	ErrorCount  int              `json:"error_count"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Artifact is one recorded artifact outcome.
type Artifact struct {
	ID         int64                 `json:"id"`
	RunID      string                `json:"run_id"`
	Path       string                `json:"path"`
	Entity     string                `json:"entity,omitempty"`
	Kind       engine.ArtifactKind   `json:"kind,omitempty"`
	Target     string                `json:"target,omitempty"`
	Emitter    string                `json:"emitter,omitempty"`
	SHA256     string                `json:"sha256,omitempty"`
	Status     engine.ArtifactStatus `json:"status"`
	RecordedAt time.Time             `json:"recorded_at"`
}

// Store is the generation history persistence layer.
type Store interface {
	engine.HistoryStore

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Queries
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	ListArtifacts(ctx context.Context, runID string) ([]*Artifact, error)

	// PruneRuns deletes all but the newest keep runs and returns how many were removed.
	PruneRuns(ctx context.Context, keep int) (int64, error)

	HealthCheck(ctx context.Context) error
}

package engine

import (
	"encoding/json"
	"fmt"
)

// Stage is a step of one solution's generation pipeline. Stages advance
// strictly forward.
type Stage string

const (
	// StageLoaded indicates the solution declaration was found.
	StageLoaded Stage = "loaded"

	// StageExpanded indicates the solution's target matrix was expanded and configured.
	StageExpanded Stage = "expanded"

	// StageGraphBuilt indicates the referenced project graphs were collected.
	StageGraphBuilt Stage = "graph_built"

	// StageResolved indicates every target graph was ordered and propagated.
	StageResolved Stage = "resolved"

	// StageEmitted indicates every artifact was rendered.
	StageEmitted Stage = "emitted"

	// StageWritten indicates every artifact was written to disk.
	StageWritten Stage = "written"
)

var stageOrder = map[Stage]int{
	StageLoaded:     0,
	StageExpanded:   1,
	StageGraphBuilt: 2,
	StageResolved:   3,
	StageEmitted:    4,
	StageWritten:    5,
}

// Stages lists every stage in pipeline order.
var Stages = []Stage{StageLoaded, StageExpanded, StageGraphBuilt, StageResolved, StageEmitted, StageWritten}

// Validate checks if the stage is valid.
func (s Stage) Validate() error {
	if _, ok := stageOrder[s]; !ok {
		return fmt.Errorf("invalid stage: %s", s)
	}
	return nil
}

// Before returns true if s comes strictly before other.
func (s Stage) Before(other Stage) bool {
	return stageOrder[s] < stageOrder[other]
}

// Next returns the following stage, or "" after StageWritten.
func (s Stage) Next() Stage {
	i, ok := stageOrder[s]
	if !ok || i+1 >= len(Stages) {
		return ""
	}
	return Stages[i+1]
}

// IsTerminal returns true for the final stage.
func (s Stage) IsTerminal() bool {
	return s == StageWritten
}

// RunStatus represents the overall outcome of a generation run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is in progress.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every requested solution was written.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates no artifact was written.
	RunStatusFailed RunStatus = "failed"

	// RunStatusPartial indicates some artifacts were written and some errors occurred.
	RunStatusPartial RunStatus = "partial"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusPartial
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed, RunStatusPartial:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements json.Marshaler for RunStatus.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler for RunStatus.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	status := RunStatus(str)
	if err := status.Validate(); err != nil {
		return err
	}
	*s = status
	return nil
}

// ArtifactStatus is the write outcome of one artifact.
type ArtifactStatus string

const (
	// ArtifactWritten indicates new content was written.
	ArtifactWritten ArtifactStatus = "written"

	// ArtifactUnchanged indicates the file already held identical content.
	ArtifactUnchanged ArtifactStatus = "unchanged"

	// ArtifactPlanned indicates a dry run rendered but did not write.
	ArtifactPlanned ArtifactStatus = "planned"

	// ArtifactFailed indicates the write failed.
	ArtifactFailed ArtifactStatus = "failed"

	// ArtifactRemoved indicates a stale artifact was deleted.
	ArtifactRemoved ArtifactStatus = "removed"
)

// Validate checks if the artifact status is valid.
func (s ArtifactStatus) Validate() error {
	switch s {
	case ArtifactWritten, ArtifactUnchanged, ArtifactPlanned, ArtifactFailed, ArtifactRemoved:
		return nil
	default:
		return fmt.Errorf("invalid artifact status: %s", s)
	}
}

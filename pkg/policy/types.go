package policy

import (
	"fmt"

	"github.com/slngen/slngen/pkg/engine"
)

// Severity represents the severity level of a policy finding.
type Severity string

const (
	// SeverityWarning findings are logged only.
	SeverityWarning Severity = "warning"

	// SeverityError findings reject the (entity, target) configuration.
	SeverityError Severity = "error"
)

// ParseSeverity validates a severity name.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityWarning, SeverityError:
		return Severity(s), nil
	default:
		return "", fmt.Errorf("invalid severity %q (must be warning or error)", s)
	}
}

func (s Severity) engine() engine.PolicySeverity {
	if s == SeverityError {
		return engine.PolicySeverityError
	}
	return engine.PolicySeverityWarning
}

// Policy is one Rego module. Its deny rule yields findings with the policy's
// severity unless an entry sets its own; its warn rule always yields warnings.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity of deny entries.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies a generation failure and determines its blast radius.
type ErrorKind string

const (
	// ErrorKindConfigConflict indicates two explicit writes disagree on a scalar option.
	// Scope: one (entity, target) configuration.
	ErrorKindConfigConflict ErrorKind = "config_conflict"

	// ErrorKindCyclicDependency indicates the project graph of one target contains a cycle.
	// Scope: one target.
	ErrorKindCyclicDependency ErrorKind = "cyclic_dependency"

	// ErrorKindUnresolvedDependency indicates an edge points at an entity that
	// does not exist or does not declare the target.
	// Scope: the target of the edge.
	ErrorKindUnresolvedDependency ErrorKind = "unresolved_dependency"

	// ErrorKindEmissionIO indicates an artifact could not be rendered or written.
	// Scope: one artifact.
	ErrorKindEmissionIO ErrorKind = "emission_io"

	// ErrorKindDeclaration indicates invalid declaration input (duplicate names,
	// unknown solutions, malformed files).
	ErrorKindDeclaration ErrorKind = "declaration"

	// ErrorKindPolicyViolation indicates a resolved configuration was rejected by policy.
	// Scope: one (entity, target) configuration.
	ErrorKindPolicyViolation ErrorKind = "policy_violation"
)

// Common error codes.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeAlreadyExists  = "ALREADY_EXISTS"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeCycle          = "CYCLE"
	ErrCodeMissingTarget  = "MISSING_TARGET"
	ErrCodeCallbackPanic  = "CALLBACK_PANIC"
	ErrCodeNoEmitter      = "NO_EMITTER"
	ErrCodeWriteFailed    = "WRITE_FAILED"
	ErrCodeRenderFailed   = "RENDER_FAILED"
	ErrCodePolicyDenied   = "POLICY_DENIED"
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeFrozen         = "FROZEN"
	ErrCodeDuplicatePath  = "DUPLICATE_ARTIFACT"
	ErrCodeStaleCleanup   = "STALE_CLEANUP"
	ErrCodeHistoryFailure = "HISTORY_FAILURE"
)

// ErrFrozen is raised when a frozen Configuration is written to.
var ErrFrozen = errors.New("configuration is frozen")

// EngineError represents a classified generation error with its entity and target context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Entity is the project or solution name the error is attributed to.
	Entity string `json:"entity,omitempty"`

	// Target is the target tuple the error is scoped to, if any.
	Target *Target `json:"target,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(string(e.Kind))
	sb.WriteString("] ")
	sb.WriteString(e.Message)

	var scope []string
	if e.Entity != "" {
		scope = append(scope, "entity="+e.Entity)
	}
	if e.Target != nil {
		scope = append(scope, "target="+e.Target.String())
	}
	if len(scope) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(scope, ", "))
		sb.WriteString(")")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

func newError(kind ErrorKind, message string, err error) *EngineError {
	return &EngineError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// NewDeclarationError creates an error for invalid declaration input.
func NewDeclarationError(message string, err error) *EngineError {
	return newError(ErrorKindDeclaration, message, err)
}

// NewEmissionError creates an error for a failed artifact render or write.
func NewEmissionError(message string, err error) *EngineError {
	return newError(ErrorKindEmissionIO, message, err)
}

// WithEntity adds entity context to an error.
func (e *EngineError) WithEntity(name string) *EngineError {
	e.Entity = name
	return e
}

// WithTarget adds target context to an error.
func (e *EngineError) WithTarget(t Target) *EngineError {
	e.Target = &t
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ConfigConflictError reports two explicit, same-precedence writes that
// disagree on a scalar category.
type ConfigConflictError struct {
	Entity   string
	Target   Target
	Category Category
	First    string
	Second   string
}

func (e *ConfigConflictError) Error() string {
	return fmt.Sprintf("[%s] conflicting explicit values for %s: %q vs %q (entity=%s, target=%s)",
		ErrorKindConfigConflict, e.Category, e.First, e.Second, e.Entity, e.Target)
}

// Kind returns ErrorKindConfigConflict.
func (e *ConfigConflictError) Kind() ErrorKind { return ErrorKindConfigConflict }

// CyclicDependencyError reports a dependency cycle within one target's graph.
type CyclicDependencyError struct {
	Target Target
	Cycle  []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("[%s] circular dependency detected: %s (target=%s)",
		ErrorKindCyclicDependency, formatCycle(e.Cycle), e.Target)
}

// Kind returns ErrorKindCyclicDependency.
func (e *CyclicDependencyError) Kind() ErrorKind { return ErrorKindCyclicDependency }

// UnresolvedDependencyError reports an edge whose other endpoint has no matching target.
type UnresolvedDependencyError struct {
	Entity     string
	Dependency string
	Target     Target
	Reason     string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("[%s] %s depends on %s: %s (entity=%s, target=%s)",
		ErrorKindUnresolvedDependency, e.Entity, e.Dependency, e.Reason, e.Entity, e.Target)
}

// Kind returns ErrorKindUnresolvedDependency.
func (e *UnresolvedDependencyError) Kind() ErrorKind { return ErrorKindUnresolvedDependency }

// EmissionIOError reports a failure to write one artifact.
type EmissionIOError struct {
	Entity string
	Target *Target
	Path   string
	Err    error
}

func (e *EmissionIOError) Error() string {
	target := "-"
	if e.Target != nil {
		target = e.Target.String()
	}
	return fmt.Sprintf("[%s] failed to write %s (entity=%s, target=%s): %v",
		ErrorKindEmissionIO, e.Path, e.Entity, target, e.Err)
}

// Unwrap returns the underlying I/O error.
func (e *EmissionIOError) Unwrap() error { return e.Err }

// Kind returns ErrorKindEmissionIO.
func (e *EmissionIOError) Kind() ErrorKind { return ErrorKindEmissionIO }

// PolicyViolationError reports a resolved configuration rejected by an error-severity policy.
type PolicyViolationError struct {
	Entity  string
	Target  Target
	Policy  string
	Message string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("[%s] policy %s: %s (entity=%s, target=%s)",
		ErrorKindPolicyViolation, e.Policy, e.Message, e.Entity, e.Target)
}

// Kind returns ErrorKindPolicyViolation.
func (e *PolicyViolationError) Kind() ErrorKind { return ErrorKindPolicyViolation }

// KindOf returns the classification of err, or "" if it carries none.
func KindOf(err error) ErrorKind {
	var k interface{ Kind() ErrorKind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsConfigConflict returns true if err is a ConfigConflictError.
func IsConfigConflict(err error) bool {
	var e *ConfigConflictError
	return errors.As(err, &e)
}

// IsCyclicDependency returns true if err is a CyclicDependencyError.
func IsCyclicDependency(err error) bool {
	var e *CyclicDependencyError
	return errors.As(err, &e)
}

// IsUnresolvedDependency returns true if err is an UnresolvedDependencyError.
func IsUnresolvedDependency(err error) bool {
	var e *UnresolvedDependencyError
	return errors.As(err, &e)
}

// IsEmissionIO returns true if err is an EmissionIOError or an emission-classified EngineError.
func IsEmissionIO(err error) bool {
	var e *EmissionIOError
	if errors.As(err, &e) {
		return true
	}
	var ee *EngineError
	return errors.As(err, &ee) && ee.Kind == ErrorKindEmissionIO
}

// IsDeclaration returns true if err is a declaration error.
func IsDeclaration(err error) bool {
	var e *EngineError
	return errors.As(err, &e) && e.Kind == ErrorKindDeclaration
}

// ErrorList aggregates independent generation errors. The driver completes all
// unaffected work and reports every error at the end.
type ErrorList []error

// Error joins all messages, one per line.
func (l ErrorList) Error() string {
	msgs := make([]string, len(l))
	for i, err := range l {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n")
}

// Unwrap exposes the aggregated errors to errors.Is and errors.As.
func (l ErrorList) Unwrap() []error {
	return l
}

// Err returns nil for an empty list and the list itself otherwise.
func (l ErrorList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// Sorted returns a copy ordered by message, for stable reporting.
func (l ErrorList) Sorted() ErrorList {
	out := make(ErrorList, len(l))
	copy(out, l)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Error() < out[j].Error()
	})
	return out
}

// appendErr flattens nested ErrorLists while appending.
func (l *ErrorList) appendErr(err error) {
	if err == nil {
		return
	}
	if nested, ok := err.(ErrorList); ok {
		for _, e := range nested {
			l.appendErr(e)
		}
		return
	}
	*l = append(*l, err)
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(cycle, " -> ")
}

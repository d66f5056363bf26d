package engine

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ArtifactKind distinguishes project-level from solution-level artifacts.
type ArtifactKind string

const (
	// ArtifactProject is a per-(project, target) file such as a .vcxproj.
	ArtifactProject ArtifactKind = "project"

	// ArtifactSolution is a per-solution-file artifact such as a .sln.
	ArtifactSolution ArtifactKind = "solution"
)

// Artifact is one rendered output file.
type Artifact struct {
	// Path is the absolute destination path.
	Path string `json:"path"`

	// Content is the rendered file content.
	Content []byte `json:"-"`

	// Entity is the project or solution name.
	Entity string `json:"entity"`

	// Target is set for project artifacts.
	Target *Target `json:"target,omitempty"`

	// Kind is project or solution.
	Kind ArtifactKind `json:"kind"`

	// Emitter is the backend that rendered the artifact.
	Emitter string `json:"emitter"`
}

// ProjectArtifactRef points at another project's artifact.
type ProjectArtifactRef struct {
	Name   string
	Path   string
	Target Target
}

// ProjectInput is everything a backend needs to render one project target.
type ProjectInput struct {
	Name           string
	SourceRootPath string
	Target         Target

	// Path is the artifact path chosen with the backend's ProjectArtifactPath.
	Path string

	// Config is the frozen, resolved configuration.
	Config *Configuration

	// Dependencies are the direct dependencies' artifacts, sorted by name.
	Dependencies []ProjectArtifactRef

	// Closure lists every transitive dependency in topological order.
	Closure []string
}

// SolutionProject is one project artifact referenced by a solution file.
type SolutionProject struct {
	Name   string
	Path   string
	Target Target

	// Dependencies are project names this entry builds after.
	Dependencies []string
}

// SolutionConfiguration is one solution target and the projects it builds.
type SolutionConfiguration struct {
	Target   Target
	Projects []SolutionProject
}

// SolutionInput is everything a backend needs to render one solution file.
type SolutionInput struct {
	Name string
	Path string

	// Configurations are in the solution's matrix order. Projects inside a
	// configuration are in dependency order.
	Configurations []SolutionConfiguration
}

// Emitter renders resolved configurations into toolchain-native files.
// Implementations must be pure: identical inputs produce identical bytes.
type Emitter interface {
	// Name is the registry key, e.g. "vs".
	Name() string

	// DevEnvs lists the devEnvs this backend serves.
	DevEnvs() []DevEnv

	// ProjectArtifactPath returns the artifact path of a project target
	// given its directory and base file name.
	ProjectArtifactPath(dir, fileName string, t Target) string

	// SolutionArtifactPath returns the solution artifact path.
	SolutionArtifactPath(dir, fileName string) string

	// EmitProject renders one project target.
	EmitProject(in ProjectInput) ([]Artifact, error)

	// EmitSolution renders one solution file.
	EmitSolution(in SolutionInput) ([]Artifact, error)
}

// EmitterRegistry maps backend names and devEnvs to emitters.
type EmitterRegistry struct {
	mu       sync.RWMutex
	byName   map[string]Emitter
	byDevEnv map[DevEnv]Emitter
}

// NewEmitterRegistry creates an empty registry.
func NewEmitterRegistry() *EmitterRegistry {
	return &EmitterRegistry{
		byName:   make(map[string]Emitter),
		byDevEnv: make(map[DevEnv]Emitter),
	}
}

// Register adds a backend. A name or devEnv may only be claimed once.
func (r *EmitterRegistry) Register(e Emitter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[e.Name()]; exists {
		return fmt.Errorf("emitter %q already registered", e.Name())
	}
	for _, d := range e.DevEnvs() {
		if other, exists := r.byDevEnv[d]; exists {
			return fmt.Errorf("devenv %s already served by emitter %q", d, other.Name())
		}
	}
	r.byName[e.Name()] = e
	for _, d := range e.DevEnvs() {
		r.byDevEnv[d] = e
	}
	return nil
}

// Get returns a backend by name.
func (r *EmitterRegistry) Get(name string) (Emitter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return e, ok
}

// ForDevEnv returns the backend serving d.
func (r *EmitterRegistry) ForDevEnv(d DevEnv) (Emitter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byDevEnv[d]
	return e, ok
}

// Names returns the registered backend names sorted.
func (r *EmitterRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Restrict returns a registry holding only the named backends.
func (r *EmitterRegistry) Restrict(names ...string) (*EmitterRegistry, error) {
	out := NewEmitterRegistry()
	for _, name := range names {
		e, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown emitter: %s", name)
		}
		if err := out.Register(e); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// pathCategories hold filesystem paths that are rewritten relative to the
// artifact directory.
var pathCategories = map[Category]bool{
	IncludePaths: true,
	LibraryPaths: true,
	SourceFiles:  true,
	OutputPath:   true,
}

// IsPathCategory reports whether cat holds filesystem paths.
func IsPathCategory(cat Category) bool {
	return pathCategories[cat]
}

// RelativeTo renders p relative to dir using forward slashes. Relative
// inputs are returned unchanged. Paths on another volume are returned
// cleaned, with forward slashes.
func RelativeTo(dir, p string) string {
	if p == "" || !filepath.IsAbs(p) {
		return filepath.ToSlash(p)
	}
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p))
	}
	return filepath.ToSlash(rel)
}

// RelativeList applies RelativeTo to every value.
func RelativeList(dir string, values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = RelativeTo(dir, v)
	}
	return out
}

// Backslashes converts forward slashes to Windows separators.
func Backslashes(p string) string {
	return strings.ReplaceAll(p, "/", `\`)
}

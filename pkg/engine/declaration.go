package engine

import (
	"fmt"
	"sort"
	"sync"
)

// ConfigureContext is the immutable snapshot handed to a configure callback.
// It carries declaration-time inputs only; callbacks never see other entities.
type ConfigureContext struct {
	// Target is the matrix point being configured.
	Target Target

	// Name is the entity name.
	Name string

	// Kind is project or solution.
	Kind EntityKind

	// SourceRootPath is the project's source root (empty for solutions).
	SourceRootPath string

	targets []Target
}

// Targets returns a copy of every target the entity declares, in matrix order.
func (c ConfigureContext) Targets() []Target {
	return append([]Target(nil), c.targets...)
}

// ConfigureFunc populates one target's configuration. It is invoked exactly
// once per expanded target with a fresh Configuration.
type ConfigureFunc func(conf *Configuration, ctx ConfigureContext)

// Project is a named build unit with a source root and a target matrix.
type Project struct {
	Name           string
	SourceRootPath string
	Configure      ConfigureFunc

	specs []TargetSpec
}

// NewProject creates a project declaration.
func NewProject(name, sourceRoot string, configure ConfigureFunc) *Project {
	return &Project{Name: name, SourceRootPath: sourceRoot, Configure: configure}
}

// AddTargets appends one target matrix declaration.
func (p *Project) AddTargets(platforms []Platform, devEnvs []DevEnv, opt Optimization) *Project {
	p.specs = append(p.specs, TargetSpec{Platforms: platforms, DevEnvs: devEnvs, Optimization: opt})
	return p
}

// AddTargetSpec appends a prebuilt target spec.
func (p *Project) AddTargetSpec(spec TargetSpec) *Project {
	p.specs = append(p.specs, spec)
	return p
}

// TargetSpecs returns the declared target specs.
func (p *Project) TargetSpecs() []TargetSpec {
	return append([]TargetSpec(nil), p.specs...)
}

// Targets returns the expanded target matrix.
func (p *Project) Targets() []Target {
	return ExpandTargets(p.specs...)
}

// Solution groups project targets into solution files.
type Solution struct {
	Name      string
	Configure ConfigureFunc

	specs []TargetSpec
}

// NewSolution creates a solution declaration.
func NewSolution(name string, configure ConfigureFunc) *Solution {
	return &Solution{Name: name, Configure: configure}
}

// AddTargets appends one target matrix declaration.
func (s *Solution) AddTargets(platforms []Platform, devEnvs []DevEnv, opt Optimization) *Solution {
	s.specs = append(s.specs, TargetSpec{Platforms: platforms, DevEnvs: devEnvs, Optimization: opt})
	return s
}

// AddTargetSpec appends a prebuilt target spec.
func (s *Solution) AddTargetSpec(spec TargetSpec) *Solution {
	s.specs = append(s.specs, spec)
	return s
}

// TargetSpecs returns the declared target specs.
func (s *Solution) TargetSpecs() []TargetSpec {
	return append([]TargetSpec(nil), s.specs...)
}

// Targets returns the expanded target matrix.
func (s *Solution) Targets() []Target {
	return ExpandTargets(s.specs...)
}

// Registry holds the project and solution declarations of one generation.
// Each generation owns its own Registry; there is no process-wide state.
type Registry struct {
	mu        sync.RWMutex
	projects  map[string]*Project
	solutions map[string]*Solution
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		projects:  make(map[string]*Project),
		solutions: make(map[string]*Solution),
	}
}

// AddProject registers a project. Names are unique per registry.
func (r *Registry) AddProject(p *Project) error {
	if err := validateDeclaration(p.Name, p.Configure, p.specs); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.projects[p.Name]; exists {
		return NewDeclarationError(fmt.Sprintf("duplicate project: %s", p.Name), nil).
			WithEntity(p.Name).WithCode(ErrCodeAlreadyExists)
	}
	r.projects[p.Name] = p
	return nil
}

// AddSolution registers a solution. Names are unique per registry.
func (r *Registry) AddSolution(s *Solution) error {
	if err := validateDeclaration(s.Name, s.Configure, s.specs); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.solutions[s.Name]; exists {
		return NewDeclarationError(fmt.Sprintf("duplicate solution: %s", s.Name), nil).
			WithEntity(s.Name).WithCode(ErrCodeAlreadyExists)
	}
	r.solutions[s.Name] = s
	return nil
}

// Project returns a project by name.
func (r *Registry) Project(name string) (*Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[name]
	return p, ok
}

// Solution returns a solution by name.
func (r *Registry) Solution(name string) (*Solution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.solutions[name]
	return s, ok
}

// Projects returns every project sorted by name.
func (r *Registry) Projects() []*Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Solutions returns every solution sorted by name.
func (r *Registry) Solutions() []*Solution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Solution, 0, len(r.solutions))
	for _, s := range r.solutions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SolutionNames returns every solution name sorted.
func (r *Registry) SolutionNames() []string {
	sols := r.Solutions()
	out := make([]string, len(sols))
	for i, s := range sols {
		out[i] = s.Name
	}
	return out
}

func validateDeclaration(name string, fn ConfigureFunc, specs []TargetSpec) error {
	if name == "" {
		return NewDeclarationError("entity has empty name", nil).WithCode(ErrCodeValidation)
	}
	if fn == nil {
		return NewDeclarationError("entity has no configure callback", nil).
			WithEntity(name).WithCode(ErrCodeValidation)
	}
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return NewDeclarationError("invalid target declaration", err).
				WithEntity(name).WithCode(ErrCodeValidation)
		}
	}
	return nil
}

package engine

import (
	"fmt"
	"sort"
)

type scalarEntry struct {
	value string
	prec  Precedence
}

// ProjectRef is a solution's reference to one project target.
type ProjectRef struct {
	Name   string `json:"name"`
	Target Target `json:"target"`
}

// Configuration is the option bag of one (entity, target) pair. It is
// written by exactly one configure pass, then frozen; a frozen Configuration
// is immutable and safe for concurrent reads.
//
// Writes never panic. Writes to a frozen Configuration are dropped and return
// ErrFrozen.
type Configuration struct {
	entity string
	target Target

	scalars  map[Category]scalarEntry
	lists    map[Category][]string
	defaults map[Category][]string
	exports  map[Category][]string
	deps     []Dependency
	projects []ProjectRef

	diagnostics []Diagnostic
	conflicts   []error
	invalid     []error
	frozen      bool
}

// NewConfiguration creates an empty configuration owned by (entity, target).
func NewConfiguration(entity string, target Target) *Configuration {
	return &Configuration{
		entity:   entity,
		target:   target,
		scalars:  make(map[Category]scalarEntry),
		lists:    make(map[Category][]string),
		defaults: make(map[Category][]string),
		exports:  make(map[Category][]string),
	}
}

// Entity returns the owning entity name.
func (c *Configuration) Entity() string { return c.entity }

// Target returns the owning target.
func (c *Configuration) Target() Target { return c.target }

// Frozen reports whether Freeze has been called.
func (c *Configuration) Frozen() bool { return c.frozen }

// Set writes an explicit scalar value.
func (c *Configuration) Set(cat Category, value string) error {
	return c.setScalar(cat, value, PrecedenceExplicit)
}

// SetInherited writes a scalar value inherited from a shared base.
func (c *Configuration) SetInherited(cat Category, value string) error {
	return c.setScalar(cat, value, PrecedenceInherited)
}

// SetDefault writes a fallback scalar value.
func (c *Configuration) SetDefault(cat Category, value string) error {
	return c.setScalar(cat, value, PrecedenceDefault)
}

// Apply writes each preset as an explicit value and returns the first error.
func (c *Configuration) Apply(opts ...Option) error {
	var first error
	for _, o := range opts {
		if err := c.Set(o.Category, o.Value); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *Configuration) setScalar(cat Category, value string, prec Precedence) error {
	if c.frozen {
		return ErrFrozen
	}
	if err := c.requireKind(cat, true); err != nil {
		return c.reject(err)
	}

	cur, ok := c.scalars[cat]
	switch {
	case !ok:
		c.scalars[cat] = scalarEntry{value: value, prec: prec}

	case prec > cur.prec:
		if cur.value != value {
			c.diagnose(cat, fmt.Sprintf("%s value %q overrides %s value %q", prec, value, cur.prec, cur.value))
		}
		c.scalars[cat] = scalarEntry{value: value, prec: prec}

	case prec < cur.prec:
		// A lower precedence write never replaces a higher one.

	case cur.value == value:

	case prec == PrecedenceExplicit:
		conflict := &ConfigConflictError{
			Entity:   c.entity,
			Target:   c.target,
			Category: cat,
			First:    cur.value,
			Second:   value,
		}
		c.conflicts = append(c.conflicts, conflict)
		return conflict

	default:
		c.diagnose(cat, fmt.Sprintf("%s value %q replaces %q", prec, value, cur.value))
		c.scalars[cat] = scalarEntry{value: value, prec: prec}
	}
	return nil
}

// Add appends values to a list or set category in declaration order.
func (c *Configuration) Add(cat Category, values ...string) error {
	if c.frozen {
		return ErrFrozen
	}
	if err := c.requireKind(cat, false); err != nil {
		return c.reject(err)
	}
	c.lists[cat] = mergeValues(cat, c.lists[cat], values)
	return nil
}

// AddDefault records collection values used only when the category receives
// no Add during the configure pass.
func (c *Configuration) AddDefault(cat Category, values ...string) error {
	if c.frozen {
		return ErrFrozen
	}
	if err := c.requireKind(cat, false); err != nil {
		return c.reject(err)
	}
	c.defaults[cat] = mergeValues(cat, c.defaults[cat], values)
	return nil
}

// Export adds values to an exportable category of the owner and marks them
// for propagation to dependents.
func (c *Configuration) Export(cat Category, values ...string) error {
	if c.frozen {
		return ErrFrozen
	}
	if !cat.Exportable() {
		return c.reject(NewDeclarationError(fmt.Sprintf("category %s cannot be exported", cat), nil).
			WithEntity(c.entity).WithTarget(c.target).WithCode(ErrCodeValidation))
	}
	c.lists[cat] = mergeValues(cat, c.lists[cat], values)
	c.exports[cat] = mergeValues(cat, c.exports[cat], values)
	return nil
}

// AddDependency declares an edge to another project for this target. A
// repeated dependency keeps its first position; public mode wins over link.
func (c *Configuration) AddDependency(name string, mode DependencyMode) error {
	if c.frozen {
		return ErrFrozen
	}
	if mode == "" {
		mode = DependencyPublic
	}
	if err := mode.Validate(); err != nil {
		return c.reject(NewDeclarationError(err.Error(), nil).
			WithEntity(c.entity).WithTarget(c.target).WithCode(ErrCodeValidation))
	}
	if name == c.entity {
		return c.reject(NewDeclarationError("project cannot depend on itself", nil).
			WithEntity(c.entity).WithTarget(c.target).WithCode(ErrCodeValidation))
	}
	for i, d := range c.deps {
		if d.Name == name {
			if d.Mode != mode {
				c.deps[i].Mode = DependencyPublic
			}
			return nil
		}
	}
	c.deps = append(c.deps, Dependency{Name: name, Mode: mode})
	return nil
}

// AddProject adds a project target reference to a solution configuration.
func (c *Configuration) AddProject(name string, target Target) error {
	if c.frozen {
		return ErrFrozen
	}
	ref := ProjectRef{Name: name, Target: target}
	for _, p := range c.projects {
		if p == ref {
			return nil
		}
	}
	c.projects = append(c.projects, ref)
	return nil
}

// Freeze ends the configure pass. It returns the recorded conflicts and
// rejected writes, if any. Freezing twice is a no-op.
func (c *Configuration) Freeze() error {
	if !c.frozen {
		for cat, vals := range c.defaults {
			if len(c.lists[cat]) == 0 {
				c.lists[cat] = vals
			}
		}
		c.frozen = true
	}
	var errs ErrorList
	errs = append(errs, c.conflicts...)
	errs = append(errs, c.invalid...)
	return errs.Err()
}

// Scalar returns the value of a scalar category.
func (c *Configuration) Scalar(cat Category) (string, bool) {
	e, ok := c.scalars[cat]
	return e.value, ok
}

// ScalarOr returns the value of a scalar category or fallback when unset.
func (c *Configuration) ScalarOr(cat Category, fallback string) string {
	if v, ok := c.Scalar(cat); ok {
		return v
	}
	return fallback
}

// List returns a copy of a collection category's values in merge order.
func (c *Configuration) List(cat Category) []string {
	vals := c.lists[cat]
	if len(vals) == 0 && !c.frozen {
		vals = c.defaults[cat]
	}
	return append([]string(nil), vals...)
}

// Exports returns a copy of a category's exported values.
func (c *Configuration) Exports(cat Category) []string {
	return append([]string(nil), c.exports[cat]...)
}

// Dependencies returns a copy of the declared edges in declaration order.
func (c *Configuration) Dependencies() []Dependency {
	return append([]Dependency(nil), c.deps...)
}

// ProjectRefs returns a copy of the solution's project references.
func (c *Configuration) ProjectRefs() []ProjectRef {
	return append([]ProjectRef(nil), c.projects...)
}

// Diagnostics returns the warnings recorded while configuring.
func (c *Configuration) Diagnostics() []Diagnostic {
	return append([]Diagnostic(nil), c.diagnostics...)
}

// Conflicts returns the ConfigConflictErrors recorded while configuring.
func (c *Configuration) Conflicts() []error {
	return append([]error(nil), c.conflicts...)
}

// Values returns a plain map view of every set category, keyed by category
// name, for policy input and debugging.
func (c *Configuration) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(c.scalars)+len(c.lists))
	for cat, e := range c.scalars {
		out[string(cat)] = e.value
	}
	for cat := range c.lists {
		out[string(cat)] = c.List(cat)
	}
	exports := make(map[string]interface{}, len(c.exports))
	for cat, vals := range c.exports {
		exports[string(cat)] = append([]string(nil), vals...)
	}
	out["exports"] = exports

	deps := make([]interface{}, 0, len(c.deps))
	for _, d := range c.deps {
		deps = append(deps, map[string]interface{}{"name": d.Name, "mode": string(d.Mode)})
	}
	out["dependencies"] = deps
	return out
}

// SetCategories returns every category holding a value, in lexical order.
func (c *Configuration) SetCategories() []Category {
	out := make([]Category, 0, len(c.scalars)+len(c.lists))
	for cat := range c.scalars {
		out = append(out, cat)
	}
	for cat, vals := range c.lists {
		if len(vals) > 0 {
			out = append(out, cat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an unfrozen deep copy owned by the same (entity, target).
// Recorded diagnostics and conflicts are not copied.
func (c *Configuration) Clone() *Configuration {
	out := NewConfiguration(c.entity, c.target)
	for k, v := range c.scalars {
		out.scalars[k] = v
	}
	for k, v := range c.lists {
		out.lists[k] = append([]string(nil), v...)
	}
	for k, v := range c.defaults {
		out.defaults[k] = append([]string(nil), v...)
	}
	for k, v := range c.exports {
		out.exports[k] = append([]string(nil), v...)
	}
	out.deps = append(out.deps, c.deps...)
	out.projects = append(out.projects, c.projects...)
	return out
}

// merge unions values into a collection, optionally also exporting them.
// Used by the resolver on unfrozen clones.
func (c *Configuration) merge(cat Category, values []string, export bool) {
	c.lists[cat] = mergeValues(cat, c.lists[cat], values)
	if export {
		c.exports[cat] = mergeValues(cat, c.exports[cat], values)
	}
}

func (c *Configuration) requireKind(cat Category, scalar bool) error {
	kind, err := cat.Kind()
	if err != nil {
		return NewDeclarationError(err.Error(), nil).
			WithEntity(c.entity).WithTarget(c.target).WithCode(ErrCodeValidation)
	}
	if scalar && kind != KindScalar {
		return NewDeclarationError(fmt.Sprintf("category %s is a %s, use Add", cat, kind), nil).
			WithEntity(c.entity).WithTarget(c.target).WithCode(ErrCodeValidation)
	}
	if !scalar && kind == KindScalar {
		return NewDeclarationError(fmt.Sprintf("category %s is a scalar, use Set", cat), nil).
			WithEntity(c.entity).WithTarget(c.target).WithCode(ErrCodeValidation)
	}
	return nil
}

// Fail records an error raised by a configure callback itself, such as a
// malformed declaration value. Freeze reports it with the rejected writes.
func (c *Configuration) Fail(err error) {
	if err == nil || c.frozen {
		return
	}
	if KindOf(err) == "" {
		err = NewDeclarationError("configure failed", err).WithEntity(c.entity).WithTarget(c.target)
	}
	c.invalid = append(c.invalid, err)
}

// reject records an invalid write so Freeze reports it even when the
// callback ignores the returned error.
func (c *Configuration) reject(err error) error {
	c.invalid = append(c.invalid, err)
	return err
}

func (c *Configuration) diagnose(cat Category, msg string) {
	c.diagnostics = append(c.diagnostics, Diagnostic{
		Entity:   c.entity,
		Target:   c.target,
		Category: cat,
		Message:  msg,
	})
}

// mergeValues appends values to dst. Set categories skip values already present.
func mergeValues(cat Category, dst, values []string) []string {
	kind, _ := cat.Kind()
	if kind != KindSet {
		return append(dst, values...)
	}
	seen := make(map[string]struct{}, len(dst)+len(values))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}

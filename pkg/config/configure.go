package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/slngen/slngen/pkg/engine"
)

// pathScalars are scalar categories holding directories.
var pathScalars = map[engine.Category]bool{
	engine.ProjectPath:  true,
	engine.SolutionPath: true,
	engine.OutputPath:   true,
}

// ParseCategory accepts "character_set" or "character-set".
func ParseCategory(name string) (engine.Category, error) {
	cat := engine.Category(strings.ReplaceAll(strings.TrimSpace(name), "_", "-"))
	if _, err := cat.Kind(); err != nil {
		return "", err
	}
	return cat, nil
}

// confWriter applies declaration values to one configuration, expanding
// placeholders and resolving relative paths against the workspace root.
// Failures are recorded on the configuration and reported by Freeze.
type confWriter struct {
	conf *engine.Configuration
	ph   Placeholders
	root string

	// prec is the precedence of scalar writes.
	prec engine.Precedence
}

func newConfWriter(conf *engine.Configuration, ctx engine.ConfigureContext, root string) *confWriter {
	return &confWriter{conf: conf, ph: NewPlaceholders(root, ctx), root: root, prec: engine.PrecedenceExplicit}
}

func (w *confWriter) expand(cat engine.Category, values []string) ([]string, bool) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		var (
			expanded string
			err      error
		)
		if engine.IsPathCategory(cat) || pathScalars[cat] {
			expanded, err = w.ph.ExpandPath(w.root, v)
		} else {
			expanded, err = w.ph.Expand(v)
		}
		if err != nil {
			w.conf.Fail(fmt.Errorf("%s: %w", cat, err))
			return nil, false
		}
		out = append(out, expanded)
	}
	return out, true
}

func (w *confWriter) set(cat engine.Category, value string) {
	vals, ok := w.expand(cat, []string{value})
	if !ok {
		return
	}
	if w.prec == engine.PrecedenceInherited {
		_ = w.conf.SetInherited(cat, vals[0])
		return
	}
	_ = w.conf.Set(cat, vals[0])
}

func (w *confWriter) setDefault(cat engine.Category, values ...string) {
	vals, ok := w.expand(cat, values)
	if !ok || len(vals) == 0 {
		return
	}
	if cat.IsScalar() {
		_ = w.conf.SetDefault(cat, vals[0])
		return
	}
	_ = w.conf.AddDefault(cat, vals...)
}

func (w *confWriter) add(cat engine.Category, values ...string) {
	if len(values) == 0 {
		return
	}
	if vals, ok := w.expand(cat, values); ok {
		_ = w.conf.Add(cat, vals...)
	}
}

func (w *confWriter) export(cat engine.Category, values ...string) {
	if len(values) == 0 {
		return
	}
	if vals, ok := w.expand(cat, values); ok {
		_ = w.conf.Export(cat, vals...)
	}
}

func (w *confWriter) dependsOn(name, mode string) {
	_ = w.conf.AddDependency(name, engine.DependencyMode(mode))
}

func (w *confWriter) addProject(name string) {
	_ = w.conf.AddProject(name, w.conf.Target())
}

// named applies a map keyed by category name in sorted key order.
func (w *confWriter) named(values map[string]string, fn func(engine.Category, string)) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cat, err := ParseCategory(k)
		if err != nil {
			w.conf.Fail(err)
			continue
		}
		fn(cat, values[k])
	}
}

// apply writes one declarative configure block.
func (w *confWriter) apply(d ConfigureDecl) {
	scalars := []struct {
		cat   engine.Category
		value string
	}{
		{engine.ProjectFileName, d.ProjectFileName},
		{engine.ProjectPath, d.ProjectPath},
		{engine.SolutionFileName, d.SolutionFileName},
		{engine.SolutionPath, d.SolutionPath},
		{engine.OutputFileName, d.OutputFileName},
		{engine.OutputPath, d.OutputPath},
		{engine.OutputType, d.OutputType},
	}
	for _, s := range scalars {
		if s.value != "" {
			w.set(s.cat, s.value)
		}
	}
	w.named(d.Options, w.set)
	w.named(d.Defaults, func(cat engine.Category, v string) { w.setDefault(cat, v) })

	w.add(engine.IncludePaths, d.IncludePaths...)
	w.add(engine.LibraryFiles, d.LibraryFiles...)
	w.add(engine.LibraryPaths, d.LibraryPaths...)
	w.add(engine.Defines, d.Defines...)
	w.add(engine.SourceFiles, d.SourceFiles...)
	w.add(engine.CompilerOptions, d.CompilerOptions...)
	w.add(engine.LinkerOptions, d.LinkerOptions...)

	w.export(engine.IncludePaths, d.Exports.IncludePaths...)
	w.export(engine.Defines, d.Exports.Defines...)
	w.export(engine.LibraryFiles, d.Exports.LibraryFiles...)
	w.export(engine.LibraryPaths, d.Exports.LibraryPaths...)

	for _, dep := range d.Dependencies {
		w.dependsOn(dep.Name, dep.Mode)
	}
	for _, p := range d.Projects {
		w.addProject(p)
	}
}

// Matches reports whether t satisfies m.
func (m MatchDecl) Matches(t engine.Target) (bool, error) {
	if m.Platform != "" && engine.Platform(m.Platform) != t.Platform {
		return false, nil
	}
	if m.DevEnv != "" && engine.DevEnv(m.DevEnv) != t.DevEnv {
		return false, nil
	}
	if m.Optimization != "" {
		opt, err := engine.ParseOptimization(m.Optimization)
		if err != nil {
			return false, err
		}
		if opt&t.Optimization == 0 {
			return false, nil
		}
	}
	return true, nil
}

// configureFunc composes the declarative block, its matching when blocks,
// injected default sources and an optional script into one callback.
// Scalars of the unconditional block are inherited by every target, so a
// matching when block or the script may override them.
func configureFunc(root string, decl ConfigureDecl, sources []string, script *Script) engine.ConfigureFunc {
	return func(conf *engine.Configuration, ctx engine.ConfigureContext) {
		w := newConfWriter(conf, ctx, root)
		if len(sources) > 0 {
			_ = conf.AddDefault(engine.SourceFiles, sources...)
		}
		w.prec = engine.PrecedenceInherited
		w.apply(decl)
		w.prec = engine.PrecedenceExplicit
		for i, when := range decl.When {
			ok, err := when.Match.Matches(ctx.Target)
			if err != nil {
				conf.Fail(fmt.Errorf("when[%d]: %w", i, err))
				continue
			}
			if ok {
				w.apply(when.ConfigureDecl)
			}
		}
		if script != nil {
			if err := script.run(w, ctx); err != nil {
				conf.Fail(err)
			}
		}
	}
}

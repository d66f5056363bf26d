package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/slngen/slngen/pkg/engine"
)

var placeholderPattern = regexp.MustCompile(`\[([A-Za-z]+(?:\.[A-Za-z]+)?)\]`)

// Placeholders holds the values declaration strings may reference.
type Placeholders map[string]string

// NewPlaceholders builds the placeholder set of one configure invocation.
// The entity name is exposed as project.Name or solution.Name.
func NewPlaceholders(workspaceRoot string, ctx engine.ConfigureContext) Placeholders {
	p := Placeholders{
		"workspace":           workspaceRoot,
		"target.Platform":     string(ctx.Target.Platform),
		"target.DevEnv":       string(ctx.Target.DevEnv),
		"target.Optimization": ctx.Target.Optimization.String(),
		"target.Name":         ctx.Target.Name(),
		"target.Slug":         ctx.Target.Slug(),
	}
	if ctx.Kind == engine.EntitySolution {
		p["solution.Name"] = ctx.Name
	} else {
		p["project.Name"] = ctx.Name
		p["project.SourceRoot"] = ctx.SourceRootPath
	}
	return p
}

// Expand replaces every known placeholder in s. Unknown placeholders are an
// error so typos do not leak into generated files.
func (p Placeholders) Expand(s string) (string, error) {
	if !strings.Contains(s, "[") {
		return s, nil
	}
	var unknown []string
	out := placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := p[key]
		if !ok {
			unknown = append(unknown, m)
			return m
		}
		return v
	})
	if len(unknown) > 0 {
		return "", fmt.Errorf("unknown placeholder %s in %q", strings.Join(unknown, ", "), s)
	}
	return out, nil
}

// ExpandPath expands s and resolves a relative result against base.
func (p Placeholders) ExpandPath(base, s string) (string, error) {
	out, err := p.Expand(s)
	if err != nil || out == "" {
		return out, err
	}
	out = filepath.FromSlash(strings.ReplaceAll(out, `\`, "/"))
	if !filepath.IsAbs(out) {
		out = filepath.Join(base, out)
	}
	return filepath.Clean(out), nil
}

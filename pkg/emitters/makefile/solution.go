package makefile

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/slngen/slngen/pkg/emitters/internal/textfile"
	"github.com/slngen/slngen/pkg/engine"
)

// EmitSolution implements engine.Emitter. The solution makefile includes
// every project fragment in dependency order and adds one phony goal per
// solution target.
func (e *Emitter) EmitSolution(in engine.SolutionInput) ([]engine.Artifact, error) {
	if len(in.Configurations) == 0 {
		return nil, fmt.Errorf("solution %s has no configurations", in.Name)
	}
	return []engine.Artifact{{
		Path:    in.Path,
		Content: renderSolution(in),
		Entity:  in.Name,
		Kind:    engine.ArtifactSolution,
		Emitter: Name,
	}}, nil
}

func renderSolution(in engine.SolutionInput) []byte {
	dir := filepath.Dir(in.Path)
	root := identifier(in.Name) + "_SOLUTION_ROOT"

	var includes []string
	included := make(map[string]bool)
	var goals []string
	outputs := make(map[string][]string)
	var cleanup []string

	for _, sc := range in.Configurations {
		goal := sc.Target.Slug()
		if _, ok := outputs[goal]; !ok {
			goals = append(goals, goal)
			outputs[goal] = nil
		}
		for _, p := range sc.Projects {
			prefix := VarPrefix(p.Name, p.Target)
			outputs[goal] = append(outputs[goal], "$("+prefix+"_OUTPUT)")
			if included[p.Path] {
				continue
			}
			included[p.Path] = true
			includes = append(includes, "$("+root+")/"+engine.RelativeTo(dir, p.Path))
			cleanup = append(cleanup, "$("+prefix+"_OBJDIR)", "$("+prefix+"_OUTPUT)")
		}
	}

	w := textfile.New("\t", "\n")
	w.Line(header)
	w.Linef("# Solution: %s", in.Name)
	w.Blank()
	w.Linef("%s := $(patsubst %%/,%%,$(dir $(lastword $(MAKEFILE_LIST))))", root)
	w.Blank()
	w.Line(".DEFAULT_GOAL := all")
	w.Line("AR ?= ar")
	w.Blank()
	for _, inc := range includes {
		w.Linef("include %s", inc)
	}
	w.Blank()
	w.Linef(".PHONY: all clean %s", strings.Join(goals, " "))
	w.Linef("all: %s", goals[0])
	for _, goal := range goals {
		w.Linef("%s: %s", goal, strings.Join(outputs[goal], " "))
	}
	w.Blank()
	w.Line("clean:")
	w.ScopeIndent(func() {
		w.Linef("rm -rf %s", strings.Join(cleanup, " "))
	})
	return w.Bytes()
}

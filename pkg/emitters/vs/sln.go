package vs

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/slngen/slngen/pkg/emitters/internal/textfile"
	"github.com/slngen/slngen/pkg/engine"
)

type slnProject struct {
	name   string
	path   string
	guid   string
	config string
	deps   []string
}

type slnConfig struct {
	name  string
	build map[string]bool
}

// EmitSolution implements engine.Emitter.
func (e *Emitter) EmitSolution(in engine.SolutionInput) ([]engine.Artifact, error) {
	content, err := renderSolution(in)
	if err != nil {
		return nil, err
	}
	return []engine.Artifact{{
		Path:    in.Path,
		Content: content,
		Entity:  in.Name,
		Kind:    engine.ArtifactSolution,
		Emitter: Name,
	}}, nil
}

func renderSolution(in engine.SolutionInput) ([]byte, error) {
	if len(in.Configurations) == 0 {
		return nil, fmt.Errorf("solution %s has no configurations", in.Name)
	}
	tc, err := toolchainFor(in.Configurations[0].Target.DevEnv)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(in.Path)
	var projects []*slnProject
	byPath := make(map[string]*slnProject)
	var configs []*slnConfig
	byConfig := make(map[string]*slnConfig)

	for _, sc := range in.Configurations {
		name, err := configName(sc.Target)
		if err != nil {
			return nil, err
		}
		cfg, ok := byConfig[name]
		if !ok {
			cfg = &slnConfig{name: name, build: make(map[string]bool)}
			byConfig[name] = cfg
			configs = append(configs, cfg)
		}

		for _, p := range sc.Projects {
			entry, ok := byPath[p.Path]
			if !ok {
				projectConfig, err := configName(p.Target)
				if err != nil {
					return nil, err
				}
				entry = &slnProject{
					name:   strings.TrimSuffix(filepath.Base(p.Path), filepath.Ext(p.Path)),
					path:   relPath(dir, p.Path),
					guid:   ProjectGUID(p.Name, p.Target),
					config: projectConfig,
				}
				for _, dep := range p.Dependencies {
					entry.deps = append(entry.deps, ProjectGUID(dep, p.Target))
				}
				byPath[p.Path] = entry
				projects = append(projects, entry)
			}
			cfg.build[entry.guid] = true
		}
	}

	w := textfile.New("\t", "\r\n")
	w.Line("Microsoft Visual Studio Solution File, Format Version 12.00")
	w.Linef("# Visual Studio Version %s", tc.shortVersion)
	w.Linef("VisualStudioVersion = %s", tc.fullVersion)
	w.Linef("MinimumVisualStudioVersion = %s", tc.minimumVersion)

	for _, p := range projects {
		w.Linef("Project(\"%s\") = \"%s\", \"%s\", \"%s\"", cppProjectType, p.name, p.path, p.guid)
		if len(p.deps) > 0 {
			w.ScopeIndent(func() {
				w.Block("ProjectSection(ProjectDependencies) = postProject", "EndProjectSection", func() {
					for _, guid := range p.deps {
						w.Linef("%s = %s", guid, guid)
					}
				})
			})
		}
		w.Line("EndProject")
	}

	w.Block("Global", "EndGlobal", func() {
		w.Block("GlobalSection(SolutionConfigurationPlatforms) = preSolution", "EndGlobalSection", func() {
			for _, cfg := range configs {
				w.Linef("%s = %s", cfg.name, cfg.name)
			}
		})
		w.Block("GlobalSection(ProjectConfigurationPlatforms) = postSolution", "EndGlobalSection", func() {
			for _, p := range projects {
				for _, cfg := range configs {
					w.Linef("%s.%s.ActiveCfg = %s", p.guid, cfg.name, p.config)
					if cfg.build[p.guid] && cfg.name == p.config {
						w.Linef("%s.%s.Build.0 = %s", p.guid, cfg.name, p.config)
					}
				}
			}
		})
		w.Block("GlobalSection(SolutionProperties) = preSolution", "EndGlobalSection", func() {
			w.Line("HideSolutionNode = FALSE")
		})
	})
	return w.Bytes(), nil
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slngen/slngen/pkg/engine"
	"github.com/slngen/slngen/pkg/telemetry"
)

type validateReport struct {
	Workspace string   `json:"workspace,omitempty"`
	Files     int      `json:"files"`
	Projects  int      `json:"projects"`
	Solutions int      `json:"solutions"`
	Targets   int      `json:"targets,omitempty"`
	Valid     bool     `json:"valid"`
	Problems  []string `json:"problems,omitempty"`
}

func newValidateCommand() *cobra.Command {
	var resolve bool

	cmd := &cobra.Command{
		Use:   "validate [paths...]",
		Short: "Validate declaration files",
		Long: `Validate declaration files without generating anything.

This command checks:
  - YAML, HCL and CUE syntax
  - Schema and field constraints
  - Duplicate entities and unknown references
  - Starlark configure scripts compile

With --resolve it also runs every configure pass and resolves the
dependency graph of every target, reporting conflicts and cycles.`,
		Example: `  # Validate declarations in the current directory
  slngen validate

  # Validate a specific directory
  slngen validate ./game

  # Also detect conflicts and dependency cycles
  slngen validate --resolve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadToolConfig()
			if err != nil {
				return err
			}
			s, err := newSession(cfg, telemetry.DefaultConfig())
			if err != nil {
				return err
			}
			defer s.close()

			ctx := s.tel.WithContext(cmd.Context())
			report := validateReport{Valid: true}

			ws, reg, err := s.loadRegistry(ctx, args)
			if err != nil {
				report.Valid = false
				for _, p := range declarationProblems(err) {
					report.Problems = append(report.Problems, p.Error())
				}
			} else {
				report.Workspace = ws.Name
				report.Files = len(ws.SourceFiles)
				report.Projects = len(ws.Projects)
				report.Solutions = len(ws.Solutions)
			}

			if report.Valid && resolve {
				problems, targets, err := resolveAll(cmd, s, reg)
				if err != nil {
					return err
				}
				report.Targets = targets
				for _, p := range problems.Sorted() {
					report.Valid = false
					report.Problems = append(report.Problems, p.Error())
				}
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := printJSON(out, report); err != nil {
					return err
				}
			} else if report.Valid {
				fmt.Fprintf(out, "Workspace %s is valid: %d project(s), %d solution(s) in %d file(s)\n",
					report.Workspace, report.Projects, report.Solutions, report.Files)
				if resolve {
					fmt.Fprintf(out, "Resolved %d target(s)\n", report.Targets)
				}
			} else {
				fmt.Fprintln(out, "Validation failed:")
				for _, p := range report.Problems {
					fmt.Fprintf(out, "  %s\n", p)
				}
			}

			if !report.Valid {
				return fmt.Errorf("validation failed with %d problem(s)", len(report.Problems))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&resolve, "resolve", false, "run configure passes and resolve every target")

	return cmd
}

// resolveAll builds the project graph and resolves every declared target.
func resolveAll(cmd *cobra.Command, s *session, reg *engine.Registry) (engine.ErrorList, int, error) {
	graph, err := engine.NewGraphBuilder(s.cfg.Workers, s.logger).Build(cmd.Context(), reg)
	if err != nil {
		return nil, 0, err
	}
	problems := graph.Errors()

	resolver := engine.NewResolver(graph, s.logger)
	targets := graphTargets(graph)
	for _, t := range targets {
		if _, err := resolver.Resolve(t, nil); err != nil {
			problems = append(problems, err)
		}
	}
	return problems, len(targets), nil
}

// graphTargets returns every target any project declares, first seen first.
func graphTargets(graph *engine.ProjectGraph) []engine.Target {
	seen := make(map[engine.Target]bool)
	var out []engine.Target
	for _, name := range graph.Names() {
		for _, t := range graph.Nodes[name].Targets {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

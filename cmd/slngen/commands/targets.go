package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slngen/slngen/pkg/engine"
	"github.com/slngen/slngen/pkg/telemetry"
)

type entityTargets struct {
	Name    string            `json:"name"`
	Kind    engine.EntityKind `json:"kind"`
	Targets []engine.Target   `json:"targets"`
}

func newTargetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets [paths...]",
		Short: "List the expanded target matrix of every entity",
		Long: `List the targets each project and solution expands to.

Every AddTargets declaration crosses its platforms, devenvs and
optimization flags. Targets repeated by a later declaration are listed
once, at their first position.`,
		Example: `  # Show the matrix of every entity
  slngen targets

  # Machine-readable output
  slngen targets --json ./game`,
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
			_, reg, err := s.loadRegistry(ctx, args)
			if err != nil {
				return err
			}

			var entities []entityTargets
			for _, p := range reg.Projects() {
				entities = append(entities, entityTargets{Name: p.Name, Kind: engine.EntityProject, Targets: p.Targets()})
			}
			for _, sol := range reg.Solutions() {
				entities = append(entities, entityTargets{Name: sol.Name, Kind: engine.EntitySolution, Targets: sol.Targets()})
			}
			for _, e := range entities {
				s.tel.Metrics.RecordTargetsExpanded(string(e.Kind), len(e.Targets))
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, entities)
			}
			for i, e := range entities {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "%s %s (%d targets)\n", e.Kind, e.Name, len(e.Targets))
				tw := newTable(out)
				for _, t := range e.Targets {
					fmt.Fprintf(tw, "  %s\t%s\n", t.Slug(), t)
				}
				tw.Flush()
			}
			return nil
		},
	}

	return cmd
}

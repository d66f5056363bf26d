package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slngen/slngen/pkg/engine"
	"github.com/slngen/slngen/pkg/telemetry"
)

type resolvedJSON struct {
	Target engine.Target `json:"target"`
	Order  []string      `json:"order"`
	Levels [][]string    `json:"levels"`
	Edges  []engine.Edge `json:"edges"`
}

func newGraphCommand() *cobra.Command {
	var (
		target  string
		roots   []string
		dotFile string
	)

	cmd := &cobra.Command{
		Use:   "graph [paths...]",
		Short: "Show the resolved dependency graph of a target",
		Long: `Resolve the project dependency graph for one target, or for every
declared target when --target is omitted.

Projects are listed by level: level 0 has no dependencies and every other
project depends only on lower levels. With --dot the graph is written in
Graphviz DOT format, one digraph per target.`,
		Example: `  # Print build order for one target
  slngen graph --target win64_vs2022_debug

  # Only the projects BirdGame needs
  slngen graph --target win64,vs2022,Release --project BirdGame

  # Render with Graphviz
  slngen graph --target win64_vs2022_debug --dot - | dot -Tsvg > graph.svg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var selected []engine.Target
			if target != "" {
				t, err := engine.ParseTarget(target)
				if err != nil {
					return err
				}
				selected = []engine.Target{t}
			}

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

			graph, err := engine.NewGraphBuilder(cfg.Workers, s.logger).Build(ctx, reg)
			if err != nil {
				return err
			}
			if selected == nil {
				selected = graphTargets(graph)
			}

			resolver := engine.NewResolver(graph, s.logger)
			var resolved []*engine.ResolvedTarget
			var problems engine.ErrorList
			for _, t := range selected {
				r, err := resolver.Resolve(t, roots)
				if err != nil {
					problems = append(problems, err)
					continue
				}
				resolved = append(resolved, r)
			}

			if dotFile != "" {
				if err := writeDOT(cmd.OutOrStdout(), dotFile, resolved); err != nil {
					return err
				}
			}
			if dotFile != "-" {
				if err := printGraphs(cmd.OutOrStdout(), resolved); err != nil {
					return err
				}
			}

			if len(problems) > 0 {
				for _, p := range problems {
					s.logger.Error().Err(p).Msg("Target did not resolve")
				}
				return fmt.Errorf("%d target(s) did not resolve: %w", len(problems), problems)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "", "target as slug (win64_vs2022_debug) or tuple (win64,vs2022,Debug)")
	cmd.Flags().StringArrayVarP(&roots, "project", "p", nil, "root project (repeatable, default all)")
	cmd.Flags().StringVar(&dotFile, "dot", "", "write Graphviz DOT to file (- for stdout)")

	return cmd
}

func printGraphs(w io.Writer, resolved []*engine.ResolvedTarget) error {
	if jsonOutput {
		out := make([]resolvedJSON, len(resolved))
		for i, r := range resolved {
			out[i] = resolvedJSON{Target: r.Target, Order: r.Order, Levels: r.Levels, Edges: r.Edges}
		}
		return printJSON(w, out)
	}

	for i, r := range resolved {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Target %s: %d project(s), %d level(s)\n", r.Target, len(r.Order), len(r.Levels))
		for level, names := range r.Levels {
			fmt.Fprintf(w, "  level %d: %s\n", level, strings.Join(names, ", "))
		}
		for _, e := range r.Edges {
			fmt.Fprintf(w, "  %s -> %s (%s)\n", e.From, e.To, e.Mode)
		}
	}
	return nil
}

func writeDOT(stdout io.Writer, path string, resolved []*engine.ResolvedTarget) error {
	var sb strings.Builder
	for _, r := range resolved {
		sb.WriteString(r.ToDOT())
	}
	if path == "-" {
		_, err := io.WriteString(stdout, sb.String())
		return err
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write DOT file: %w", err)
	}
	return nil
}

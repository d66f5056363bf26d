package commands

import (
	"github.com/spf13/cobra"

	"github.com/slngen/slngen/pkg/telemetry"
)

func newGenerateCommand() *cobra.Command {
	var (
		flags  runFlags
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "generate [paths...]",
		Short: "Generate project and solution files",
		Long: `Generate project and solution files for every target of the selected
solutions.

The pipeline:
  - Loads declaration files (YAML, HCL, CUE) from the given paths
  - Expands each entity's target matrix and runs its configure pass
  - Resolves dependencies per target and checks policies
  - Renders artifacts with every selected backend
  - Writes changed files and records the run in the history store

Failures are scoped to the entity and target they affect. Every artifact
that does not depend on a failure is still written, and the command exits
non-zero with the first error.`,
		Example: `  # Generate every solution declared under the current directory
  slngen generate

  # Generate one solution into a separate tree
  slngen generate --solution BirdGame --out ./build ./game

  # Preview without writing
  slngen generate --dry-run --json

  # Remove files the previous run produced but this run did not
  slngen generate --clean-stale`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadToolConfig()
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)

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

			gen, err := s.newGenerator(ctx, dryRun)
			if err != nil {
				return err
			}

			res, err := s.generate(ctx, gen, reg, flags.solutions)
			if res != nil {
				if perr := printResult(cmd.OutOrStdout(), res); perr != nil {
					return perr
				}
			}
			if err != nil {
				return generationError(res, err)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "render artifacts without writing them")

	return cmd
}

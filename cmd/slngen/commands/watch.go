package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/slngen/slngen/pkg/config"
	"github.com/slngen/slngen/pkg/engine"
	"github.com/slngen/slngen/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var (
		flags    runFlags
		metrics  bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch [paths...]",
		Short: "Regenerate whenever declarations change",
		Long: `Generate once, then watch the declaration files, Starlark scripts and
policy files and regenerate after every change.

Changes are debounced so saving several files triggers one run. Each run
is recorded in the history store like generate. With --metrics the
Prometheus endpoint stays up for the lifetime of the watch.`,
		Example: `  # Watch the current directory
  slngen watch

  # Expose metrics on :9090/metrics
  slngen watch --metrics ./game`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadToolConfig()
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if debounce > 0 {
				cfg.Watch.Debounce = debounce
			}
			if metrics {
				cfg.Metrics.Enabled = true
			}

			s, err := newSession(cfg, telemetry.WatchConfig())
			if err != nil {
				return err
			}
			defer s.close()

			ctx := s.tel.WithContext(cmd.Context())
			if cfg.Metrics.Enabled {
				if err := s.tel.StartMetricsServer(ctx); err != nil {
					return err
				}
			}

			watcher, err := config.NewWatcher(s.logger, cfg.Watch.Debounce)
			if err != nil {
				return err
			}
			paths := args
			if len(paths) == 0 {
				paths = []string{"."}
			}
			if err := watcher.Add(append(append([]string{}, paths...), cfg.PolicyPaths...)...); err != nil {
				_ = watcher.Close()
				return err
			}

			regenerate := func(ctx context.Context) {
				status := string(engine.RunStatusFailed)
				defer func() { s.tel.Metrics.RecordRegeneration(status) }()

				_, reg, err := s.loadRegistry(ctx, args)
				if err != nil {
					s.logger.Error().Err(err).Msg("Failed to load declarations")
					return
				}
				gen, err := s.newGenerator(ctx, false)
				if err != nil {
					s.logger.Error().Err(err).Msg("Failed to create generator")
					return
				}
				res, err := s.generate(ctx, gen, reg, flags.solutions)
				if res != nil {
					status = string(res.Status)
					_ = printResult(cmd.OutOrStdout(), res)
				}
				if err != nil {
					s.logger.Error().Err(generationError(res, err)).Msg("Generation failed")
				}
			}

			regenerate(ctx)
			s.logger.Info().Strs("paths", paths).Msg("Watching for changes")

			return watcher.Run(ctx, func(ctx context.Context, changed []string) {
				if err := s.tel.Events.PublishWatchTriggered(changed); err != nil {
					s.logger.Debug().Err(err).Msg("Watch event dropped")
				}
				s.logger.Info().Strs("files", changed).Msg("Changes detected, regenerating")
				regenerate(ctx)
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&metrics, "metrics", false, "serve Prometheus metrics while watching")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "time to wait for changes to settle")

	return cmd
}

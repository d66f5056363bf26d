package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/slngen/slngen/pkg/config"
	"github.com/slngen/slngen/pkg/emitters"
	"github.com/slngen/slngen/pkg/engine"
	"github.com/slngen/slngen/pkg/policy"
	"github.com/slngen/slngen/pkg/stores"
	"github.com/slngen/slngen/pkg/telemetry"
)

const shutdownTimeout = 5 * time.Second

// runFlags are the generation flags shared by generate and watch.
type runFlags struct {
	solutions  []string
	outputRoot string
	workers    int
	emitters   []string
	policies   []string
	cleanStale bool
	noHistory  bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.solutions, "solution", "s", nil, "solution to generate (repeatable, default all)")
	cmd.Flags().StringVarP(&f.outputRoot, "out", "o", "", "output root directory")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "number of configure workers")
	cmd.Flags().StringSliceVar(&f.emitters, "emitter", nil, "backends to run (vs, make)")
	cmd.Flags().StringArrayVar(&f.policies, "policy", nil, "additional .rego policy file or directory (repeatable)")
	cmd.Flags().BoolVar(&f.cleanStale, "clean-stale", false, "remove artifacts the previous run wrote but this run did not")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "do not record the run in the history store")
}

// apply overrides cfg with the flags the user set.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.ToolConfig) {
	if f.outputRoot != "" {
		cfg.OutputRoot = f.outputRoot
	}
	if f.workers > 0 {
		cfg.Workers = f.workers
	}
	if len(f.emitters) > 0 {
		cfg.Emitters = f.emitters
	}
	cfg.PolicyPaths = append(cfg.PolicyPaths, f.policies...)
	if cmd.Flags().Changed("clean-stale") {
		cfg.CleanStale = f.cleanStale
	}
	if f.noHistory {
		cfg.StatePath = ""
	}
}

// loadToolConfig reads the tool config and applies the global flags.
func loadToolConfig() (*config.ToolConfig, error) {
	cfg, err := config.LoadToolConfig(configPath)
	if err != nil {
		return nil, err
	}

	switch {
	case logLevel != "":
		cfg.Logging.Level = logLevel
	case verbose:
		cfg.Logging.Level = "debug"
	case os.Getenv("SLNGEN_LOG_LEVEL") != "":
		cfg.Logging.Level = os.Getenv("SLNGEN_LOG_LEVEL")
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// telemetryConfig maps the tool config onto base.
func telemetryConfig(cfg *config.ToolConfig, base *telemetry.Config) *telemetry.Config {
	base.ServiceVersion = buildVersion
	base.Logging.Level = cfg.Logging.Level
	base.Logging.Format = cfg.Logging.Format

	base.Tracing.Enabled = cfg.Tracing.Enabled
	base.Tracing.Exporter = cfg.Tracing.Exporter
	base.Tracing.Endpoint = cfg.Tracing.Endpoint
	base.Tracing.Insecure = cfg.Tracing.Insecure
	base.Tracing.SamplingRate = cfg.Tracing.Sampling

	base.Metrics.Enabled = base.Metrics.Enabled || cfg.Metrics.Enabled
	if cfg.Metrics.ListenAddress != "" {
		base.Metrics.ListenAddress = cfg.Metrics.ListenAddress
	}
	if cfg.Metrics.Path != "" {
		base.Metrics.Path = cfg.Metrics.Path
	}
	return base
}

// session holds what one command invocation wires together.
type session struct {
	cfg    *config.ToolConfig
	tel    *telemetry.Telemetry
	logger zerolog.Logger
	store  *stores.SQLiteStore
}

func newSession(cfg *config.ToolConfig, base *telemetry.Config) (*session, error) {
	tel, err := telemetry.NewTelemetry(telemetryConfig(cfg, base))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	return &session{
		cfg:    cfg,
		tel:    tel,
		logger: tel.Logger.Zerolog(),
	}, nil
}

// close flushes telemetry and closes the history store.
func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.tel.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close history store")
		}
	}
}

// loadRegistry loads the declaration files under paths into a registry.
func (s *session) loadRegistry(ctx context.Context, paths []string) (*config.Workspace, *engine.Registry, error) {
	ws, err := config.NewLoader(s.logger).Load(ctx, paths...)
	if err != nil {
		return nil, nil, err
	}
	reg, err := ws.Registry()
	if err != nil {
		return nil, nil, err
	}
	return ws, reg, nil
}

// history opens the store once. A store that cannot be opened is logged
// and generation continues without history.
func (s *session) history(ctx context.Context) engine.HistoryStore {
	if s.store != nil {
		return s.store
	}
	if s.cfg.StatePath == "" {
		return nil
	}
	store, err := stores.Open(ctx, s.cfg.StatePath)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.cfg.StatePath).Msg("History store unavailable")
		return nil
	}
	s.store = store
	return store
}

// newGenerator builds a generator from the tool config. Policies are
// reloaded on every call so watch mode picks up edited .rego files.
func (s *session) newGenerator(ctx context.Context, dryRun bool) (*engine.Generator, error) {
	backends, err := emitters.New(s.cfg.Emitters...)
	if err != nil {
		return nil, err
	}

	checker, err := policy.NewEngine(s.logger)
	if err != nil {
		return nil, err
	}
	if err := checker.LoadPolicies(ctx, s.cfg.PolicyPaths); err != nil {
		return nil, err
	}

	opts := engine.GeneratorOptions{
		Workers:    s.cfg.Workers,
		OutputRoot: s.cfg.OutputRoot,
		DryRun:     dryRun,
		CleanStale: s.cfg.CleanStale,
		Emitters:   backends,
		Logger:     s.logger,
		Observer:   s.tel.Observer(),
		Policy:     checker,
	}
	if !dryRun {
		if h := s.history(ctx); h != nil {
			opts.History = h
		}
	}
	return engine.NewGenerator(opts)
}

// generate runs one generation inside a run span.
func (s *session) generate(ctx context.Context, gen *engine.Generator, reg *engine.Registry, solutions []string) (*engine.GenerationResult, error) {
	names := solutions
	if len(names) == 0 {
		names = reg.SolutionNames()
	}
	ctx, run := s.tel.StartRun(ctx, names)
	res, err := gen.Generate(ctx, reg, solutions...)
	run.End(res, err)
	return res, err
}

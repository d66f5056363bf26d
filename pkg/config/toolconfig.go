package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ToolConfigFileName is the tool configuration file looked up in the
// working directory. The loader never treats it as a declaration.
const ToolConfigFileName = "slngen.config.yaml"

// ToolConfig holds generator settings. CLI flags override file values.
type ToolConfig struct {
	// Workers bounds configure and emission parallelism.
	Workers int `yaml:"workers" validate:"min=1,max=256"`

	// OutputRoot is the directory relative artifact paths resolve against.
	OutputRoot string `yaml:"output_root" validate:"required"`

	// Emitters restricts the emitters in use. Empty means all built-ins.
	Emitters []string `yaml:"emitters,omitempty" validate:"dive,oneof=vs make"`

	// CleanStale removes artifacts the previous run wrote and this one did not.
	CleanStale bool `yaml:"clean_stale"`

	// StatePath is the SQLite generation history database.
	StatePath string `yaml:"state_path"`

	// PolicyPaths are extra .rego files or directories.
	PolicyPaths []string `yaml:"policy_paths,omitempty"`

	Logging ToolLogging `yaml:"logging"`
	Tracing ToolTracing `yaml:"tracing"`
	Metrics ToolMetrics `yaml:"metrics"`
	Watch   ToolWatch   `yaml:"watch"`
}

// ToolLogging configures the CLI logger.
type ToolLogging struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// ToolTracing configures span export.
type ToolTracing struct {
	Enabled  bool    `yaml:"enabled"`
	Exporter string  `yaml:"exporter" validate:"oneof=stdout otlp none"`
	Endpoint string  `yaml:"endpoint,omitempty"`
	Insecure bool    `yaml:"insecure"`
	Sampling float64 `yaml:"sampling_rate" validate:"min=0,max=1"`
}

// ToolMetrics configures the Prometheus endpoint used by watch mode.
type ToolMetrics struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address,omitempty" validate:"required_if=Enabled true"`
	Path          string `yaml:"path" validate:"startswith=/"`
}

// ToolWatch configures watch mode.
type ToolWatch struct {
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultToolConfig returns the settings used when no file is present.
func DefaultToolConfig() *ToolConfig {
	return &ToolConfig{
		Workers:    runtime.NumCPU(),
		OutputRoot: ".",
		StatePath:  filepath.Join(".slngen", "history.db"),
		Logging: ToolLogging{
			Level:  "info",
			Format: "console",
		},
		Tracing: ToolTracing{
			Enabled:  false,
			Exporter: "none",
			Insecure: true,
			Sampling: 1.0,
		},
		Metrics: ToolMetrics{
			Enabled:       false,
			ListenAddress: ":9090",
			Path:          "/metrics",
		},
		Watch: ToolWatch{
			Debounce: DefaultDebounce,
		},
	}
}

// LoadToolConfig reads path over the defaults. A missing file is not an
// error.
func LoadToolConfig(path string) (*ToolConfig, error) {
	cfg := DefaultToolConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *ToolConfig) Validate() error {
	return validator.New().Struct(c)
}

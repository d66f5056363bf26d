package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadToolConfig(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantErr   bool
		checkFunc func(*testing.T, *ToolConfig)
	}{
		{
			name: "overrides defaults",
			content: `workers: 3
output_root: build
emitters: [vs]
clean_stale: true
logging:
  level: debug
  format: json
watch:
  debounce: 250ms
`,
			checkFunc: func(t *testing.T, c *ToolConfig) {
				if c.Workers != 3 {
					t.Errorf("Expected 3 workers, got %d", c.Workers)
				}
				if c.OutputRoot != "build" {
					t.Errorf("Expected output root build, got %s", c.OutputRoot)
				}
				if len(c.Emitters) != 1 || c.Emitters[0] != "vs" {
					t.Errorf("Expected emitters [vs], got %v", c.Emitters)
				}
				if !c.CleanStale {
					t.Error("Expected clean_stale true")
				}
				if c.Logging.Level != "debug" || c.Logging.Format != "json" {
					t.Errorf("Expected debug/json logging, got %+v", c.Logging)
				}
				if c.Watch.Debounce != 250*time.Millisecond {
					t.Errorf("Expected 250ms debounce, got %v", c.Watch.Debounce)
				}
				if c.Metrics.Path != "/metrics" {
					t.Errorf("Expected default metrics path to survive, got %s", c.Metrics.Path)
				}
			},
		},
		{
			name:    "invalid emitter",
			content: "emitters: [xcode]\n",
			wantErr: true,
		},
		{
			name:    "invalid level",
			content: "logging:\n  level: loud\n",
			wantErr: true,
		},
		{
			name:    "zero workers",
			content: "workers: 0\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			content: "workers: [\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ToolConfigFileName)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			cfg, err := LoadToolConfig(path)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			tt.checkFunc(t, cfg)
		})
	}
}

func TestLoadToolConfig_Missing(t *testing.T) {
	cfg, err := LoadToolConfig(filepath.Join(t.TempDir(), ToolConfigFileName))
	if err != nil {
		t.Fatalf("Expected no error for missing file, got %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
	if cfg.Watch.Debounce != DefaultDebounce {
		t.Errorf("Expected default debounce, got %v", cfg.Watch.Debounce)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Chain.Particles != DefaultParticles {
		t.Errorf("particles = %d", cfg.Chain.Particles)
	}
	if cfg.Chain.Dt != DefaultDt {
		t.Errorf("dt = %g", cfg.Chain.Dt)
	}
	if cfg.Steps != DefaultSteps {
		t.Errorf("steps = %d", cfg.Steps)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	data := `
output_dir: /tmp/run1
steps: 500
rmsd: 2.5
thermo:
  interval: 50
trajectory:
  calls: 10
checkpoint:
  interval: 100
chain:
  particles: 16
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputDir != "/tmp/run1" {
		t.Errorf("output_dir = %q", cfg.OutputDir)
	}
	if cfg.Steps != 500 || cfg.RMSD != 2.5 {
		t.Errorf("steps=%d rmsd=%g", cfg.Steps, cfg.RMSD)
	}
	if cfg.Thermo.Interval != 50 || cfg.Trajectory.Calls != 10 || cfg.Checkpoint.Interval != 100 {
		t.Errorf("triggers = %+v %+v %+v", cfg.Thermo, cfg.Trajectory, cfg.Checkpoint)
	}
	if cfg.Chain.Particles != 16 {
		t.Errorf("particles = %d", cfg.Chain.Particles)
	}
	// Unset values keep the defaults.
	if cfg.Chain.Dt != DefaultDt {
		t.Errorf("dt = %g, want default", cfg.Chain.Dt)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing output dir", func(c *Config) { c.OutputDir = "" }},
		{"negative steps", func(c *Config) { c.Steps = -1 }},
		{"zero particles", func(c *Config) { c.Chain.Particles = 0 }},
		{"zero dt", func(c *Config) { c.Chain.Dt = 0 }},
		{"negative rmsd", func(c *Config) { c.RMSD = -1 }},
		{"negative wall time", func(c *Config) { c.WallTime = -5 }},
		{"negative interval", func(c *Config) { c.Thermo.Interval = -10 }},
		{"negative calls", func(c *Config) { c.Checkpoint.Calls = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.OutputDir = "/tmp/out"
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	cfg := Default()
	cfg.OutputDir = "/tmp/out"
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestLoadWithoutOutputDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	data := `
steps: 500
thermo:
  interval: 50
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	// Load leaves validation to the caller so a command-line output dir can
	// back a YAML file that omits output_dir.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load rejected config without output_dir: %v", err)
	}
	if cfg.OutputDir != "" {
		t.Errorf("output_dir = %q, want empty", cfg.OutputDir)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should still reject the missing output_dir")
	}
	cfg.OutputDir = "/tmp/out"
	if err := cfg.Validate(); err != nil {
		t.Errorf("config with filled-in output_dir rejected: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultParticles    = 8
	DefaultDt           = 0.005
	DefaultDisplacement = 0.5
	DefaultSteps        = 10000
)

// Trigger is the raw schedule input of one observer: an explicit interval, or
// a call count resolved against the steps target. Both zero disables it.
type Trigger struct {
	Interval int64 `yaml:"interval"`
	Calls    int   `yaml:"calls"`
}

type Chain struct {
	Particles    int     `yaml:"particles"`
	Dt           float64 `yaml:"dt"`
	Displacement float64 `yaml:"displacement"`
}

type Config struct {
	OutputDir  string  `yaml:"output_dir"`
	Steps      int64   `yaml:"steps"`
	RMSD       float64 `yaml:"rmsd"`
	WallTime   float64 `yaml:"wall_time"` // seconds
	Thermo     Trigger `yaml:"thermo"`
	Trajectory Trigger `yaml:"trajectory"`
	Checkpoint Trigger `yaml:"checkpoint"`
	Restart    bool    `yaml:"restart"`
	LogLevel   string  `yaml:"log_level"`
	Chain      Chain   `yaml:"chain"`
}

func Default() Config {
	return Config{
		Steps:    DefaultSteps,
		LogLevel: "info",
		Chain: Chain{
			Particles:    DefaultParticles,
			Dt:           DefaultDt,
			Displacement: DefaultDisplacement,
		},
	}
}

// Load reads a YAML config on top of the defaults. It does not validate:
// callers fill in command-line fallbacks (the output dir argument) first and
// then call Validate.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if c.Steps < 0 {
		return fmt.Errorf("steps must be >= 0, got %d", c.Steps)
	}
	if c.Chain.Particles < 1 {
		return fmt.Errorf("chain.particles must be >= 1, got %d", c.Chain.Particles)
	}
	if c.Chain.Dt <= 0 {
		return fmt.Errorf("chain.dt must be positive, got %g", c.Chain.Dt)
	}
	if c.RMSD < 0 {
		return fmt.Errorf("rmsd must be >= 0, got %g", c.RMSD)
	}
	if c.WallTime < 0 {
		return fmt.Errorf("wall_time must be >= 0, got %g", c.WallTime)
	}
	for name, tr := range map[string]Trigger{
		"thermo": c.Thermo, "trajectory": c.Trajectory, "checkpoint": c.Checkpoint,
	} {
		if tr.Interval < 0 {
			return fmt.Errorf("%s.interval must be >= 0, got %d", name, tr.Interval)
		}
		if tr.Calls < 0 {
			return fmt.Errorf("%s.calls must be >= 0, got %d", name, tr.Calls)
		}
	}
	return nil
}

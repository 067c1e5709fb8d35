package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"simdrive/internal/backend"
	"simdrive/internal/config"
	"simdrive/internal/engine"
	"simdrive/internal/logx"
	"simdrive/internal/observer"
	"simdrive/internal/sched"
	"simdrive/internal/traj"
)

// Targets without their own cadence (rmsd, wall time, user stop) are polled
// on this interval.
const pollInterval = 1000

var (
	steps              int64
	rmsd               float64
	wallTime           float64
	thermoInterval     int64
	thermoCalls        int
	trajInterval       int64
	trajCalls          int
	checkpointInterval int64
	checkpointCalls    int
	restart            bool
	particles          int
	dt                 float64
	displacement       float64
	configFile         string
	verbose            bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "simdrive",
		Short: "driver for long-running, time-stepped simulations",
	}

	runCmd := &cobra.Command{
		Use:   "run [output-dir]",
		Short: "run a simulation",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulation,
	}
	runCmd.Flags().Int64VarP(&steps, "steps", "n", config.DefaultSteps, "number of steps")
	runCmd.Flags().Float64Var(&rmsd, "rmsd", 0, "stop when rmsd from the initial state reaches this value")
	runCmd.Flags().Float64Var(&wallTime, "wall-time", 0, "stop after this many wall-clock seconds")
	runCmd.Flags().Int64VarP(&thermoInterval, "thermo-interval", "t", 0, "thermo output interval")
	runCmd.Flags().IntVar(&thermoCalls, "thermo-calls", 0, "number of thermo samples over the run")
	runCmd.Flags().Int64VarP(&trajInterval, "config-interval", "c", 0, "trajectory output interval")
	runCmd.Flags().IntVar(&trajCalls, "config-calls", 0, "number of trajectory samples over the run")
	runCmd.Flags().Int64Var(&checkpointInterval, "checkpoint-interval", 0, "checkpoint interval")
	runCmd.Flags().IntVar(&checkpointCalls, "checkpoint-calls", 0, "number of checkpoints over the run")
	runCmd.Flags().BoolVarP(&restart, "restart", "r", false, "resume from the checkpoint in the output dir")
	runCmd.Flags().IntVar(&particles, "particles", config.DefaultParticles, "chain size")
	runCmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "integration timestep")
	runCmd.Flags().Float64Var(&displacement, "displacement", config.DefaultDisplacement, "initial displacement of the first mass")
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	resumeCmd := &cobra.Command{
		Use:   "resume [output-dir]",
		Short: "resume a stopped run with a larger step target",
		Args:  cobra.ExactArgs(1),
		RunE:  resumeSimulation,
	}
	resumeCmd.Flags().Int64VarP(&steps, "steps", "n", 0, "new step target (must exceed the previous one)")
	resumeCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	plotCmd := &cobra.Command{
		Use:   "plot [output-dir]",
		Short: "plot the thermo series of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	statusCmd := &cobra.Command{
		Use:   "status [output-dir]",
		Short: "show run metadata and checkpoint state",
		Args:  cobra.ExactArgs(1),
		RunE:  showStatus,
	}

	watchCmd := &cobra.Command{
		Use:   "watch [output-dir]",
		Short: "live monitor of a running simulation",
		Args:  cobra.ExactArgs(1),
		RunE:  watchRun,
	}

	rootCmd.AddCommand(runCmd, resumeCmd, plotCmd, statusCmd, watchCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func buildConfig(dir string) (config.Config, error) {
	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return cfg, err
		}
		// The positional argument backs a YAML file that omits output_dir.
		if cfg.OutputDir == "" {
			cfg.OutputDir = dir
		}
		return cfg, cfg.Validate()
	}
	cfg := config.Default()
	cfg.OutputDir = dir
	cfg.Steps = steps
	cfg.RMSD = rmsd
	cfg.WallTime = wallTime
	cfg.Thermo = config.Trigger{Interval: thermoInterval, Calls: thermoCalls}
	cfg.Trajectory = config.Trigger{Interval: trajInterval, Calls: trajCalls}
	cfg.Checkpoint = config.Trigger{Interval: checkpointInterval, Calls: checkpointCalls}
	cfg.Restart = restart
	cfg.Chain = config.Chain{Particles: particles, Dt: dt, Displacement: displacement}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(args[0])
	if err != nil {
		return err
	}
	return drive(cfg)
}

func resumeSimulation(cmd *cobra.Command, args []string) error {
	if steps <= 0 {
		return fmt.Errorf("resume needs --steps")
	}
	cfg, err := resumeConfig(args[0], steps)
	if err != nil {
		return err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return drive(cfg)
}

// resumeConfig rebuilds the run configuration from the metadata the original
// run recorded, so the chain geometry and writer cadences match the
// checkpoint instead of the defaults.
func resumeConfig(dir string, target int64) (config.Config, error) {
	if !traj.HasCheckpoint(dir) {
		return config.Config{}, fmt.Errorf("no checkpoint in %s", dir)
	}
	meta, err := traj.LoadMeta(dir)
	if err != nil {
		return config.Config{}, fmt.Errorf("resume needs the run metadata: %w", err)
	}

	cfg := config.Default()
	cfg.OutputDir = dir
	cfg.Steps = target
	cfg.RMSD = meta.RMSDTarget
	cfg.WallTime = meta.WallTime
	cfg.Thermo = config.Trigger(meta.Thermo)
	cfg.Trajectory = config.Trigger(meta.Trajectory)
	cfg.Checkpoint = config.Trigger(meta.Checkpoint)
	cfg.Chain = config.Chain{
		Particles:    meta.Particles,
		Dt:           meta.Dt,
		Displacement: meta.Displacement,
	}
	cfg.Restart = true
	return cfg, cfg.Validate()
}

// drive wires the backend, engine, writers and targets, and runs to
// completion. SIGINT/SIGTERM cancel between synchronization points.
func drive(cfg config.Config) error {
	log := logx.New(os.Stderr, cfg.LogLevel, 0)
	dir := cfg.OutputDir

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	chain, err := backend.NewChain(log, dir, cfg.Chain.Particles, cfg.Chain.Dt, cfg.Chain.Displacement)
	if err != nil {
		return err
	}

	eng := engine.New(chain, log, engine.Options{
		TargetSteps: cfg.Steps,
		Restart:     cfg.Restart,
	})

	if err := addWriter(eng, traj.NewThermo(dir).Write, cfg.Thermo, cfg.Steps); err != nil {
		return fmt.Errorf("thermo: %w", err)
	}
	if err := addWriter(eng, traj.NewConfig(dir).Write, cfg.Trajectory, cfg.Steps); err != nil {
		return fmt.Errorf("trajectory: %w", err)
	}

	poll, err := sched.Every(pollInterval)
	if err != nil {
		return err
	}
	if cfg.RMSD > 0 {
		eng.Add(observer.DeviationTarget(log, cfg.RMSD), poll, observer.Target)
	}
	if cfg.WallTime > 0 {
		deadline := time.Duration(cfg.WallTime * float64(time.Second))
		eng.Add(observer.NewWallClock(log, deadline), poll, observer.Target)
	}
	eng.Add(&observer.UserStop{Poll: func() bool { return traj.StopRequested(dir) }},
		poll, observer.Target)

	// The checkpoint is always registered: even with no periodic cadence it
	// must flush on exit.
	cpSched, err := sched.Resolve(cfg.Checkpoint.Interval, cfg.Checkpoint.Calls, cfg.Steps)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	eng.AddCheckpoint(observer.Func(traj.NewCheckpoint(dir).Write), cpSched)

	meta := traj.Meta{
		OutputDir:    dir,
		Started:      time.Now().UTC(),
		Steps:        cfg.Steps,
		Dt:           cfg.Chain.Dt,
		Particles:    cfg.Chain.Particles,
		Displacement: cfg.Chain.Displacement,
		RMSDTarget:   cfg.RMSD,
		WallTime:     cfg.WallTime,
		Thermo:       traj.Cadence(cfg.Thermo),
		Trajectory:   traj.Cadence(cfg.Trajectory),
		Checkpoint:   traj.Cadence(cfg.Checkpoint),
		Restart:      cfg.Restart,
	}
	if err := traj.WriteMeta(dir, meta); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return eng.Run(ctx, 0)
}

func addWriter(eng *engine.Engine, write func(observer.Env) error, tr config.Trigger, target int64) error {
	s, err := sched.Resolve(tr.Interval, tr.Calls, target)
	if err != nil {
		return err
	}
	if s.Kind() == sched.Disabled {
		return nil
	}
	eng.Add(observer.Func(write), s, observer.Writer)
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	dir := args[0]
	samples, err := traj.LoadThermo(dir)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no thermo data in %s", dir)
	}

	energy := make([]float64, len(samples))
	temp := make([]float64, len(samples))
	for i, s := range samples {
		energy[i] = s.Energy
		temp[i] = s.Temperature
	}

	fmt.Printf("samples: %d  steps: %d..%d\n\n",
		len(samples), samples[0].Step, samples[len(samples)-1].Step)

	fmt.Println(asciigraph.Plot(energy,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("total energy"),
	))
	fmt.Println()
	fmt.Println(asciigraph.Plot(temp,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("temperature"),
	))
	return nil
}

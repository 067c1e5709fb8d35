// Package traj holds the output collaborators of a run: the thermo and
// trajectory writers, the checkpoint, run metadata, and the user STOP marker.
// Layouts are plain CSV and JSON inside a single output directory; binary
// trajectory containers are out of scope.
package traj

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"simdrive/internal/observer"
)

const (
	thermoFile     = "thermo.csv"
	trajectoryFile = "trajectory.csv"
	checkpointFile = "checkpoint.json"
	metaFile       = "run.json"
	stopMarker     = "STOP"
)

// Thermo appends one step,energy,temperature row per sample to thermo.csv.
type Thermo struct {
	dir string
}

func NewThermo(dir string) *Thermo {
	return &Thermo{dir: dir}
}

func (t *Thermo) Write(env observer.Env) error {
	path := filepath.Join(t.dir, thermoFile)
	fresh := !exists(path)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("thermo writer: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if fresh {
		if err := w.Write([]string{"step", "energy", "temperature"}); err != nil {
			return fmt.Errorf("thermo writer: %w", err)
		}
	}

	energy, err := env.Value("energy")
	if err != nil {
		return fmt.Errorf("thermo writer: %w", err)
	}
	temp, err := env.Value("temperature")
	if err != nil {
		return fmt.Errorf("thermo writer: %w", err)
	}

	row := []string{
		strconv.FormatInt(env.Steps(), 10),
		strconv.FormatFloat(energy, 'g', -1, 64),
		strconv.FormatFloat(temp, 'g', -1, 64),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("thermo writer: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("thermo writer: %w", err)
	}
	return nil
}

// Config appends one state-vector row per sample to trajectory.csv. The first
// column is the step.
type Config struct {
	dir string
}

func NewConfig(dir string) *Config {
	return &Config{dir: dir}
}

func (c *Config) Write(env observer.Env) error {
	path := filepath.Join(c.dir, trajectoryFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("config writer: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	state := env.State()
	row := make([]string, 0, len(state)+1)
	row = append(row, strconv.FormatInt(env.Steps(), 10))
	for _, v := range state {
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("config writer: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("config writer: %w", err)
	}
	return nil
}

// CheckpointData is the persisted restart state.
type CheckpointData struct {
	Step  int64     `json:"step"`
	State []float64 `json:"state"`
}

// Checkpoint persists the step counter and state vector to checkpoint.json.
// It writes through a temp file and rename, so a crash mid-write never
// corrupts the previous checkpoint and repeat writes for the same step are
// harmless.
type Checkpoint struct {
	dir string
}

func NewCheckpoint(dir string) *Checkpoint {
	return &Checkpoint{dir: dir}
}

func (c *Checkpoint) Write(env observer.Env) error {
	data := CheckpointData{Step: env.Steps(), State: env.State()}

	tmp, err := os.CreateTemp(c.dir, checkpointFile+".tmp*")
	if err != nil {
		return fmt.Errorf("checkpoint writer: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(c.dir, checkpointFile))
}

// RestoreCheckpoint reads back a persisted checkpoint.
func RestoreCheckpoint(dir string) (CheckpointData, error) {
	var data CheckpointData
	raw, err := os.ReadFile(filepath.Join(dir, checkpointFile))
	if err != nil {
		return data, err
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("checkpoint restore: %w", err)
	}
	return data, nil
}

// HasCheckpoint reports whether a checkpoint exists in dir.
func HasCheckpoint(dir string) bool {
	return exists(filepath.Join(dir, checkpointFile))
}

// StopRequested reports whether the user touched the STOP marker in the
// output directory. The marker is left in place so cooperating processes all
// see it.
func StopRequested(dir string) bool {
	return exists(filepath.Join(dir, stopMarker))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

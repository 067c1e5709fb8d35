package traj

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Cadence is the recorded schedule input of one writer.
type Cadence struct {
	Interval int64 `json:"interval,omitempty"`
	Calls    int   `json:"calls,omitempty"`
}

// Meta describes a run for operators, the status/watch commands, and resume.
// It records everything needed to rebuild the backend so a resumed run
// matches the checkpointed chain geometry. It has no control-flow effect on
// the engine.
type Meta struct {
	OutputDir    string    `json:"output_dir"`
	Started      time.Time `json:"started"`
	Steps        int64     `json:"steps"`
	Dt           float64   `json:"dt"`
	Particles    int       `json:"particles"`
	Displacement float64   `json:"displacement,omitempty"`
	RMSDTarget   float64   `json:"rmsd_target,omitempty"`
	WallTime     float64   `json:"wall_time,omitempty"`
	Thermo       Cadence   `json:"thermo"`
	Trajectory   Cadence   `json:"trajectory"`
	Checkpoint   Cadence   `json:"checkpoint"`
	Restart      bool      `json:"restart"`
}

func WriteMeta(dir string, m Meta) error {
	f, err := os.Create(filepath.Join(dir, metaFile))
	if err != nil {
		return fmt.Errorf("run metadata: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func LoadMeta(dir string) (Meta, error) {
	var m Meta
	raw, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("run metadata: %w", err)
	}
	return m, nil
}

// ThermoSample is one row of thermo.csv.
type ThermoSample struct {
	Step        int64
	Energy      float64
	Temperature float64
}

// LoadThermo reads the thermo series back for plotting and monitoring.
func LoadThermo(dir string) ([]ThermoSample, error) {
	f, err := os.Open(filepath.Join(dir, thermoFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := readCSV(f)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}

	return parseThermo(records[1:]), nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return cr.ReadAll()
}

func parseThermo(records [][]string) []ThermoSample {
	samples := make([]ThermoSample, 0, len(records))
	for _, rec := range records {
		if len(rec) < 3 {
			continue
		}
		step, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			continue
		}
		energy, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			continue
		}
		temp, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			continue
		}
		samples = append(samples, ThermoSample{Step: step, Energy: energy, Temperature: temp})
	}
	return samples
}

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tranreloc/tranreloc/sim"
)

// SolverConfigFile is the structure of a --solver-config file. Omitted fields
// keep their defaults.
// All sections must be listed to satisfy KnownFields(true) strict parsing.
type SolverConfigFile struct {
	Tolerance     *float64           `yaml:"tolerance"`
	SegmentLength *float64           `yaml:"segment_length"`
	Migration     *MigrationFileSpec `yaml:"migration"`
}

// MigrationFileSpec selects the migration between segments.
type MigrationFileSpec struct {
	Method    string   `yaml:"method"` // auto, fast or accurate
	Threshold *float64 `yaml:"threshold"`
}

// loadSolverConfig reads path and applies it on top of sim.DefaultSolverConfig.
// Uses strict field checking: typos must cause errors.
func loadSolverConfig(path string) (sim.SolverConfig, error) {
	cfg := sim.DefaultSolverConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading solver config: %w", err)
	}
	var file SolverConfigFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("%w: parsing solver config %s: %v", sim.ErrInvalidConfig, path, err)
	}

	if file.Tolerance != nil {
		cfg.Tolerance = *file.Tolerance
	}
	if file.SegmentLength != nil {
		cfg.SegmentLength = *file.SegmentLength
	}
	if m := file.Migration; m != nil {
		if cfg.Migration.Method, err = sim.ParseMigrationMethod(m.Method); err != nil {
			return cfg, err
		}
		if m.Threshold != nil {
			cfg.Migration.Threshold = *m.Threshold
		}
	}
	return cfg, cfg.Validate()
}

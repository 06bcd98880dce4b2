package sim

import (
	"fmt"
	"strings"
)

// MigrationMethod selects how a distribution moves between state spaces.
type MigrationMethod int

const (
	MigrationAuto     MigrationMethod = iota // fast above the size threshold, accurate below
	MigrationFast                            // marginal product with uniform spread per level
	MigrationAccurate                        // state-by-state with uniform occupant removal
)

func (m MigrationMethod) String() string {
	switch m {
	case MigrationAuto:
		return "auto"
	case MigrationFast:
		return "fast"
	case MigrationAccurate:
		return "accurate"
	}
	return fmt.Sprintf("MigrationMethod(%d)", int(m))
}

// ParseMigrationMethod parses "auto", "fast" or "accurate".
func ParseMigrationMethod(s string) (MigrationMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return MigrationAuto, nil
	case "fast":
		return MigrationFast, nil
	case "accurate":
		return MigrationAccurate, nil
	}
	return MigrationAuto, fmt.Errorf("%w: unknown migration method %q", ErrInvalidConfig, s)
}

// MigrationPolicy groups state-space migration parameters.
type MigrationPolicy struct {
	Method    MigrationMethod // forced method, or auto
	Threshold float64         // auto picks fast when oldSize*newSize is at least this (default 1e8)
}

func (p MigrationPolicy) choose(oldSize, newSize int) MigrationMethod {
	if p.Method != MigrationAuto {
		return p.Method
	}
	if float64(oldSize)*float64(newSize) >= p.Threshold {
		return MigrationFast
	}
	return MigrationAccurate
}

// SolverConfig groups the numerical parameters of a segment evaluation.
type SolverConfig struct {
	Tolerance     float64 // Poisson truncation tolerance ε, in (0,1) (default 1e-6)
	SegmentLength float64 // time horizon of one segment (default 1.0)
	Migration     MigrationPolicy
}

// DefaultSolverConfig returns the default solver parameters.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		Tolerance:     1e-6,
		SegmentLength: 1.0,
		Migration:     MigrationPolicy{Method: MigrationAuto, Threshold: 1e8},
	}
}

// Validate checks parameter ranges.
func (c SolverConfig) Validate() error {
	if !(c.Tolerance > 0 && c.Tolerance < 1) {
		return fmt.Errorf("%w: tolerance %v not in (0,1)", ErrInvalidConfig, c.Tolerance)
	}
	if !finite(c.SegmentLength) || c.SegmentLength < 0 {
		return fmt.Errorf("%w: segment length %v", ErrInvalidConfig, c.SegmentLength)
	}
	if c.Migration.Method < MigrationAuto || c.Migration.Method > MigrationAccurate {
		return fmt.Errorf("%w: migration method %v", ErrInvalidConfig, c.Migration.Method)
	}
	if !(c.Migration.Threshold > 0) {
		return fmt.Errorf("%w: migration threshold %v must be positive", ErrInvalidConfig, c.Migration.Threshold)
	}
	return nil
}

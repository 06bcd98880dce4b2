// Package params loads system parameters from a parameter directory or a YAML
// scenario file and builds the engine's System from them.
package params

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tranreloc/tranreloc/sim"
)

// ErrMalformed is returned (wrapped) for unparsable parameter input.
var ErrMalformed = errors.New("params: malformed input")

// Scenario is the raw parameter set of a system, as read from disk.
// All sections must be listed to satisfy KnownFields(true) strict parsing.
type Scenario struct {
	Occupied   []int          `yaml:"occupied"`
	Segments   []SegmentSpec  `yaml:"segments"`
	Relocation RelocationSpec `yaml:"relocation"`
}

// SegmentSpec holds the parameters of one time segment.
type SegmentSpec struct {
	Capacity      []int         `yaml:"capacity"`
	ArrivalRates  []float64     `yaml:"arrival_rates"`
	Distributions [][]PhaseSpec `yaml:"distributions"` // per asset; index 0 is the primary distribution
}

// PhaseSpec is a phase-type distribution.
type PhaseSpec struct {
	Initial   []float64   `yaml:"initial"`
	Generator [][]float64 `yaml:"generator"`
}

// RelocationSpec lists the relocation routes and probabilities.
type RelocationSpec struct {
	Routes []RouteSpec `yaml:"routes,omitempty"`
	Rules  []RuleSpec  `yaml:"rules,omitempty"`
}

// RouteSpec is a toDistsInAsset rule.
type RouteSpec struct {
	From  int       `yaml:"from"`
	To    int       `yaml:"to"`
	Dists []int     `yaml:"dists"`
	Probs []float64 `yaml:"probs"`
}

// RuleSpec is a betweenAssets rule.
type RuleSpec struct {
	Probability float64 `yaml:"probability"`
	From        int     `yaml:"from"`
	To          int     `yaml:"to"`
	Blocked     []int   `yaml:"blocked"`
}

// ParseScenario decodes a YAML scenario, rejecting unknown fields.
func ParseScenario(r io.Reader) (*Scenario, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var sc Scenario
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("%w: scenario YAML: %v", ErrMalformed, err)
	}
	return &sc, nil
}

// ReadScenarioFile parses the YAML scenario at path.
func ReadScenarioFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return ParseScenario(bytes.NewReader(data))
}

// Read loads a scenario from a parameter directory or a YAML file.
func Read(path string) (*Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameters: %w", err)
	}
	if info.IsDir() {
		return ReadDirectory(path)
	}
	return ReadScenarioFile(path)
}

// Load reads the parameters at path and builds the System.
func Load(path string) (*sim.System, error) {
	sc, err := Read(path)
	if err != nil {
		return nil, err
	}
	return sc.System()
}

// DistCounts returns the number of distributions per asset, taken from the first segment.
func (sc *Scenario) DistCounts() []int {
	if len(sc.Segments) == 0 {
		return nil
	}
	counts := make([]int, len(sc.Segments[0].Distributions))
	for i, d := range sc.Segments[0].Distributions {
		counts[i] = len(d)
	}
	return counts
}

// Marshal encodes the scenario as YAML.
func (sc *Scenario) Marshal() ([]byte, error) {
	return yaml.Marshal(sc)
}

// System validates the scenario and builds the engine input.
func (sc *Scenario) System() (*sim.System, error) {
	if len(sc.Segments) == 0 {
		return nil, fmt.Errorf("%w: no segments", ErrMalformed)
	}
	rm, err := sim.NewRelocationMap(sc.DistCounts())
	if err != nil {
		return nil, err
	}
	for _, r := range sc.Relocation.Routes {
		if err := rm.AddRoute(r.From, r.To, r.Dists, r.Probs); err != nil {
			return nil, err
		}
	}
	for _, r := range sc.Relocation.Rules {
		if err := rm.SetProbability(r.Probability, r.From, r.To, r.Blocked); err != nil {
			return nil, err
		}
	}

	sys := &sim.System{
		Segments:   make([]sim.Segment, len(sc.Segments)),
		Relocation: rm,
		Occupied:   append([]int(nil), sc.Occupied...),
	}
	for t, seg := range sc.Segments {
		s := sim.Segment{
			Capacity:      append([]int(nil), seg.Capacity...),
			ArrivalRates:  append([]float64(nil), seg.ArrivalRates...),
			Distributions: make([][]*sim.PhaseType, len(seg.Distributions)),
		}
		for i, dists := range seg.Distributions {
			for d, ps := range dists {
				pt, err := sim.NewPhaseType(ps.Initial, ps.Generator)
				if err != nil {
					return nil, fmt.Errorf("segment %d asset %d distribution %d: %w", t, i, d, err)
				}
				s.Distributions[i] = append(s.Distributions[i], pt)
			}
		}
		sys.Segments[t] = s
	}
	if err := sys.Validate(); err != nil {
		return nil, err
	}
	return sys, nil
}

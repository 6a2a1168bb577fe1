package cmd

import (
	"fmt"

	"github.com/neuron-sim/neuron-sim/sim"
	"github.com/neuron-sim/neuron-sim/sim/cable"
)

// RingConfig describes the demo network: a ring of excitable cells where
// cell k connects to cell k+1 mod N, kicked once at t=0.
type RingConfig struct {
	Cells    int     `yaml:"cells"`
	Kind     string  `yaml:"kind"` // "lif" or "cable"
	Weight   float64 `yaml:"weight"`
	Delay    float64 `yaml:"delay"`
	Seed     int64   `yaml:"seed"`
	Duration float64 `yaml:"duration"`
	DT       float64 `yaml:"dt"`
}

// DefaultRingConfig returns a 20-cell LIF ring with 1 ms delays.
func DefaultRingConfig() RingConfig {
	return RingConfig{
		Cells:    20,
		Kind:     "lif",
		Weight:   200,
		Delay:    1,
		Duration: 100,
		DT:       0.025,
	}
}

// Validate checks the demo parameters.
func (c RingConfig) Validate() error {
	if c.Cells < 2 {
		return fmt.Errorf("ring needs at least 2 cells, got %d", c.Cells)
	}
	if c.Kind != "lif" && c.Kind != "cable" {
		return fmt.Errorf("unknown cell kind %q", c.Kind)
	}
	if c.Delay <= 0 {
		return fmt.Errorf("delay must be positive, got %g", c.Delay)
	}
	if c.Duration <= 0 || c.DT <= 0 {
		return fmt.Errorf("duration and dt must be positive")
	}
	return nil
}

// RingRecipe implements sim.Recipe for the demo ring.
type RingRecipe struct {
	cfg RingConfig
}

// NewRingRecipe wraps a validated config.
func NewRingRecipe(cfg RingConfig) *RingRecipe {
	return &RingRecipe{cfg: cfg}
}

func (r *RingRecipe) NumCells() int { return r.cfg.Cells }

func (r *RingRecipe) Kind(sim.GID) sim.CellKind {
	if r.cfg.Kind == "cable" {
		return sim.CableCell
	}
	return sim.LIFCell
}

func (r *RingRecipe) Description(gid sim.GID) (sim.CellDescription, error) {
	if r.cfg.Kind == "cable" {
		desc := &cable.Description{Morph: cable.SomaMorphology(6.3, 12.6)}
		desc.Paint(cable.Painting{
			Region:  desc.Morph.WholeCell(),
			Density: &cable.MechanismDesc{Name: "hh"},
		})
		desc.Place(cable.Placing{
			Label:   "synapse",
			Locset:  desc.Morph.Root(),
			Kind:    cable.PlaceSynapse,
			Synapse: &cable.MechanismDesc{Name: "expsyn"},
		})
		desc.Place(cable.Placing{
			Label:     "detector",
			Locset:    desc.Morph.Root(),
			Kind:      cable.PlaceDetector,
			Threshold: -10,
		})
		return desc, nil
	}
	// weight/CM must clear the 10 mV gap between EL and VTh for the ring
	// wave to propagate
	return sim.LIFCellDescription{
		TauM:   10,
		VTh:    -55,
		CM:     10,
		EL:     -65,
		ER:     -65,
		V0:     -65,
		TRef:   2,
		Source: "detector",
		Target: "synapse",
	}, nil
}

func (r *RingRecipe) ConnectionsOn(gid sim.GID) []sim.ConnectionDescription {
	// cell (gid-1+N) mod N feeds this cell
	src := (gid + sim.GID(r.cfg.Cells) - 1) % sim.GID(r.cfg.Cells)
	return []sim.ConnectionDescription{{
		Source: sim.SourceDescription{GID: src, Label: "detector"},
		Target: "synapse",
		Weight: sim.Weight(r.cfg.Weight),
		Delay:  r.cfg.Delay,
	}}
}

func (r *RingRecipe) GapJunctionsOn(sim.GID) []sim.GapJunctionDescription { return nil }

func (r *RingRecipe) ProbesOn(gid sim.GID) []sim.ProbeInfo {
	if r.cfg.Kind != "cable" {
		return nil
	}
	return []sim.ProbeInfo{{
		GID:     gid,
		Tag:     "soma-voltage",
		Address: cable.ProbeVoltage{Site: cable.Site{Branch: 0, Pos: 0.5}},
	}}
}

func (r *RingRecipe) EventGeneratorsOn(gid sim.GID) []sim.EventGenerator {
	if gid != 0 {
		return nil
	}
	// one kick to start the wave
	return []sim.EventGenerator{&sim.ScheduleGenerator{
		Site:     "synapse",
		Weight:   sim.Weight(2 * r.cfg.Weight),
		Schedule: sim.ExplicitSchedule([]sim.Time{0}),
	}}
}

func (r *RingRecipe) GlobalProperties(kind sim.CellKind) sim.GlobalProperties {
	if kind == sim.CableCell {
		return sim.NeuronDefaults()
	}
	return sim.GlobalProperties{}
}

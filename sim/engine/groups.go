// Package engine drives a simulation: it owns the epoch loop, the spike
// exchange, the delivery queues, and the non-cable cell groups.
package engine

import (
	"fmt"
	"math"

	"github.com/neuron-sim/neuron-sim/sim"
)

// LIFGroup integrates leaky integrate-and-fire cells exactly between
// events: the membrane decays to EL with time constant TauM, and each
// delivered event jumps the voltage by weight/CM.
type LIFGroup struct {
	gids  []sim.GID
	cells []sim.LIFCellDescription

	v         []float64
	lastT     []sim.Time // time v was last valid
	refrUntil []sim.Time
	spikes    []sim.Spike
	labels    sim.CellLabelsAndGIDs
}

// NewLIFGroup builds a LIF group from the recipe.
func NewLIFGroup(gids []sim.GID, rec sim.Recipe) (*LIFGroup, error) {
	g := &LIFGroup{gids: gids}
	for _, gid := range gids {
		cd, err := rec.Description(gid)
		if err != nil {
			return nil, err
		}
		desc, ok := cd.(sim.LIFCellDescription)
		if !ok {
			return nil, &sim.BadCellDescriptionError{GID: gid, Kind: sim.LIFCell}
		}
		if desc.CM <= 0 || desc.TauM <= 0 {
			return nil, fmt.Errorf("lif cell %d: capacitance and time constant must be positive", gid)
		}
		g.cells = append(g.cells, desc)
		g.v = append(g.v, desc.V0)
		g.lastT = append(g.lastT, 0)
		g.refrUntil = append(g.refrUntil, 0)
		g.labels.Ranges = append(g.labels.Ranges,
			sim.LabelRange{GID: gid, Label: desc.Source, Lo: 0, Hi: 1},
			sim.LabelRange{GID: gid, Label: desc.Target, Lo: 0, Hi: 1},
		)
	}
	return g, nil
}

func (g *LIFGroup) Kind() sim.CellKind { return sim.LIFCell }
func (g *LIFGroup) GIDs() []sim.GID { return g.gids }
func (g *LIFGroup) Labels() sim.CellLabelsAndGIDs { return g.labels }
func (g *LIFGroup) Spikes() []sim.Spike { return g.spikes }
func (g *LIFGroup) ClearSpikes() { g.spikes = g.spikes[:0] }
func (g *LIFGroup) AddSampler(sim.SamplerAssociation) {}
func (g *LIFGroup) RemoveSampler(sim.SamplerHandle) {}

func (g *LIFGroup) Reset() {
	for i, c := range g.cells {
		g.v[i] = c.V0
		g.lastT[i] = 0
		g.refrUntil[i] = 0
	}
	g.spikes = nil
}

// Advance applies each cell's events in time order; the membrane state
// needs no sub-stepping because the decay between events is exact.
func (g *LIFGroup) Advance(ep sim.Epoch, _ sim.Time, lanes sim.EventLanes) error {
	for ci, c := range g.cells {
		for _, ev := range lanes.Lane(ci) {
			g.advanceTo(ci, ev.Time)
			if ev.Time < g.refrUntil[ci] {
				continue // events inside the refractory period are lost
			}
			g.v[ci] += float64(ev.Weight) / c.CM
			if g.v[ci] >= c.VTh {
				g.spikes = append(g.spikes, sim.Spike{
					Source: sim.CellMember{GID: g.gids[ci], LID: 0},
					Time:   ev.Time,
				})
				g.v[ci] = c.ER
				g.refrUntil[ci] = ev.Time + c.TRef
			}
		}
		g.advanceTo(ci, ep.T1)
	}
	return nil
}

func (g *LIFGroup) advanceTo(ci int, t sim.Time) {
	if t <= g.lastT[ci] {
		return
	}
	c := g.cells[ci]
	dt := t - g.lastT[ci]
	g.v[ci] = c.EL + (g.v[ci]-c.EL)*math.Exp(-dt/c.TauM)
	g.lastT[ci] = t
}

// Voltage exposes the membrane state for tests.
func (g *LIFGroup) Voltage(ci int) float64 { return g.v[ci] }

// SpikeSourceGroup replays per-cell schedules as spikes.
type SpikeSourceGroup struct {
	gids      []sim.GID
	schedules [][]sim.Schedule
	spikes    []sim.Spike
	labels    sim.CellLabelsAndGIDs
}

// NewSpikeSourceGroup builds a spike-source group from the recipe.
func NewSpikeSourceGroup(gids []sim.GID, rec sim.Recipe) (*SpikeSourceGroup, error) {
	g := &SpikeSourceGroup{gids: gids}
	for _, gid := range gids {
		cd, err := rec.Description(gid)
		if err != nil {
			return nil, err
		}
		desc, ok := cd.(sim.SpikeSourceCellDescription)
		if !ok {
			return nil, &sim.BadCellDescriptionError{GID: gid, Kind: sim.SpikeSourceCell}
		}
		g.schedules = append(g.schedules, desc.Schedules)
		g.labels.Ranges = append(g.labels.Ranges, sim.LabelRange{
			GID: gid, Label: desc.Source, Lo: 0, Hi: sim.LID(len(desc.Schedules)),
		})
	}
	return g, nil
}

func (g *SpikeSourceGroup) Kind() sim.CellKind { return sim.SpikeSourceCell }
func (g *SpikeSourceGroup) GIDs() []sim.GID { return g.gids }
func (g *SpikeSourceGroup) Labels() sim.CellLabelsAndGIDs { return g.labels }
func (g *SpikeSourceGroup) Spikes() []sim.Spike { return g.spikes }
func (g *SpikeSourceGroup) ClearSpikes() { g.spikes = g.spikes[:0] }
func (g *SpikeSourceGroup) AddSampler(sim.SamplerAssociation) {}
func (g *SpikeSourceGroup) RemoveSampler(sim.SamplerHandle) {}

func (g *SpikeSourceGroup) Reset() {
	for _, scheds := range g.schedules {
		for _, s := range scheds {
			s.Reset()
		}
	}
	g.spikes = nil
}

func (g *SpikeSourceGroup) Advance(ep sim.Epoch, _ sim.Time, _ sim.EventLanes) error {
	for ci, scheds := range g.schedules {
		for li, s := range scheds {
			for _, t := range s.EventsBetween(ep.T0, ep.T1) {
				g.spikes = append(g.spikes, sim.Spike{
					Source: sim.CellMember{GID: g.gids[ci], LID: sim.LID(li)},
					Time:   t,
				})
			}
		}
	}
	return nil
}

// BenchmarkGroup replays a schedule like a spike source but accounts a
// configurable amount of work per advance, for load and scaling studies.
type BenchmarkGroup struct {
	gids   []sim.GID
	cells  []sim.BenchmarkCellDescription
	spikes []sim.Spike
	labels sim.CellLabelsAndGIDs

	// SimulatedWork accumulates RealtimeRatio·advance-span per cell, in
	// ms of modelled wall time.
	SimulatedWork float64
}

// NewBenchmarkGroup builds a benchmark group from the recipe.
func NewBenchmarkGroup(gids []sim.GID, rec sim.Recipe) (*BenchmarkGroup, error) {
	g := &BenchmarkGroup{gids: gids}
	for _, gid := range gids {
		cd, err := rec.Description(gid)
		if err != nil {
			return nil, err
		}
		desc, ok := cd.(sim.BenchmarkCellDescription)
		if !ok {
			return nil, &sim.BadCellDescriptionError{GID: gid, Kind: sim.BenchmarkCell}
		}
		g.cells = append(g.cells, desc)
		g.labels.Ranges = append(g.labels.Ranges,
			sim.LabelRange{GID: gid, Label: desc.Source, Lo: 0, Hi: 1},
			sim.LabelRange{GID: gid, Label: desc.Target, Lo: 0, Hi: 1},
		)
	}
	return g, nil
}

func (g *BenchmarkGroup) Kind() sim.CellKind { return sim.BenchmarkCell }
func (g *BenchmarkGroup) GIDs() []sim.GID { return g.gids }
func (g *BenchmarkGroup) Labels() sim.CellLabelsAndGIDs { return g.labels }
func (g *BenchmarkGroup) Spikes() []sim.Spike { return g.spikes }
func (g *BenchmarkGroup) ClearSpikes() { g.spikes = g.spikes[:0] }
func (g *BenchmarkGroup) AddSampler(sim.SamplerAssociation) {}
func (g *BenchmarkGroup) RemoveSampler(sim.SamplerHandle) {}

func (g *BenchmarkGroup) Reset() {
	for _, c := range g.cells {
		c.Schedule.Reset()
	}
	g.spikes = nil
	g.SimulatedWork = 0
}

func (g *BenchmarkGroup) Advance(ep sim.Epoch, _ sim.Time, _ sim.EventLanes) error {
	for ci, c := range g.cells {
		for _, t := range c.Schedule.EventsBetween(ep.T0, ep.T1) {
			g.spikes = append(g.spikes, sim.Spike{
				Source: sim.CellMember{GID: g.gids[ci], LID: 0},
				Time:   t,
			})
		}
		g.SimulatedWork += c.RealtimeRatio * ep.Duration()
	}
	return nil
}

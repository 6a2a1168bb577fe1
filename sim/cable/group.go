package cable

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/neuron-sim/neuron-sim/sim"
)

// ProbeVoltage addresses the membrane voltage at a site.
type ProbeVoltage struct {
	Site Site
}

// ProbeTotalIonCurrent addresses the cell-wide sum of mechanism membrane
// currents, in nA, as of the last completed sub-step.
type ProbeTotalIonCurrent struct{}

// Group integrates a set of cable cells as one packed FVM system.
type Group struct {
	layout  *GroupLayout
	backend Backend
	matrix  MatrixState

	voltage     ArrayView
	current     ArrayView
	conductance ArrayView
	dtCell      []sim.Time

	// per-mechanism scratch views indexed by site
	mechs   []mechView
	targets [][]TargetHandle

	detectorPrev []float64
	spikes       []sim.Spike

	probes   []sim.ProbeInfo
	samplers map[sim.SamplerHandle]*samplerState

	now sim.Time
}

type mechView struct {
	mech Mechanism
	v    []float64
	g    []float64
	i    []float64
}

type samplerState struct {
	assoc   sim.SamplerAssociation
	matched []sim.ProbeInfo
	buffers [][]sim.Sample
}

// NewGroup builds the FVM state of one cable cell group.
func NewGroup(gids []sim.GID, rec sim.Recipe, backendKind sim.BackendKind, policy CVPolicy) (*Group, error) {
	cat := DefaultCatalogue()
	layout, err := BuildGroupLayout(gids, rec, cat, policy)
	if err != nil {
		return nil, err
	}
	backend, err := NewBackend(backendKind)
	if err != nil {
		return nil, err
	}
	matrix, err := backend.NewMatrixState(layout.CVParent, layout.CellCVDivs, layout.CVCapacitance, layout.FaceConductance)
	if err != nil {
		return nil, err
	}

	n := layout.NumCV()
	g := &Group{
		layout:      layout,
		backend:     backend,
		matrix:      matrix,
		voltage:     backend.NewArray(n),
		current:     backend.NewArray(n),
		conductance: backend.NewArray(n),
		dtCell:      make([]sim.Time, len(gids)),
		targets:     layout.Targets,
		samplers:    make(map[sim.SamplerHandle]*samplerState),
	}
	for _, m := range layout.Density {
		g.mechs = append(g.mechs, newMechView(m))
	}
	for _, m := range layout.Points {
		g.mechs = append(g.mechs, newMechView(m))
	}
	if layout.Junction != nil {
		g.mechs = append(g.mechs, newMechView(layout.Junction))
	}
	g.detectorPrev = make([]float64, len(layout.Detectors))

	for _, gid := range gids {
		g.probes = append(g.probes, rec.ProbesOn(gid)...)
	}

	g.initState()
	logrus.Debugf("cable group: %d cells, %d CVs, %d mechanisms, %d detectors",
		len(gids), n, len(g.mechs), len(layout.Detectors))
	return g, nil
}

func newMechView(m Mechanism) mechView {
	n := len(m.Node())
	return mechView{
		mech: m,
		v:    make([]float64, n),
		g:    make([]float64, n),
		i:    make([]float64, n),
	}
}

func (g *Group) initState() {
	copy(g.voltage, g.layout.InitPotential)
	for _, mv := range g.mechs {
		g.gather(mv.mech.Node(), mv.v)
		mv.mech.InitState(mv.v)
	}
	for di, det := range g.layout.Detectors {
		g.detectorPrev[di] = g.voltage[det.CV]
	}
	g.now = 0
}

// Kind implements sim.CellGroup.
func (g *Group) Kind() sim.CellKind { return sim.CableCell }

// GIDs implements sim.CellGroup.
func (g *Group) GIDs() []sim.GID { return g.layout.GIDs }

// Labels returns the label ranges of the group's cells for the label-map
// gather.
func (g *Group) Labels() sim.CellLabelsAndGIDs { return g.layout.Labels }

// Spikes implements sim.CellGroup.
func (g *Group) Spikes() []sim.Spike { return g.spikes }

// ClearSpikes implements sim.CellGroup.
func (g *Group) ClearSpikes() { g.spikes = g.spikes[:0] }

// Reset restores the initial state: voltages, mechanism state, detector
// levels, clock and sampler schedules.
func (g *Group) Reset() {
	g.initState()
	g.spikes = nil
	for _, st := range g.samplers {
		if st.assoc.Schedule != nil {
			st.assoc.Schedule.Reset()
		}
	}
}

// AddSampler implements sim.CellGroup.
func (g *Group) AddSampler(assoc sim.SamplerAssociation) {
	st := &samplerState{assoc: assoc}
	for _, p := range g.probes {
		if assoc.Probes == nil || assoc.Probes(p) {
			st.matched = append(st.matched, p)
			st.buffers = append(st.buffers, nil)
		}
	}
	g.samplers[assoc.Handle] = st
}

// RemoveSampler implements sim.CellGroup.
func (g *Group) RemoveSampler(h sim.SamplerHandle) {
	delete(g.samplers, h)
}

func (g *Group) gather(nodes []int32, out []float64) {
	for k, n := range nodes {
		out[k] = g.voltage[n]
	}
}

// Advance implements sim.CellGroup: sub-steps of at most dt until ep.T1.
func (g *Group) Advance(ep sim.Epoch, dt sim.Time, lanes sim.EventLanes) error {
	if dt <= 0 {
		return fmt.Errorf("cable group: non-positive dt %g", dt)
	}
	if g.now < ep.T0 {
		g.now = ep.T0
	}
	cursors := make([]int, len(g.layout.GIDs))

	for g.now < ep.T1 {
		step := dt
		if g.now+step > ep.T1 {
			step = ep.T1 - g.now
		}
		tNext := g.now + step

		// 1. Deliver events due in this sub-step, per cell in time order.
		for ci := range g.layout.GIDs {
			lane := lanes.Lane(ci)
			for cursors[ci] < len(lane) && lane[cursors[ci]].Time <= tNext {
				ev := lane[cursors[ci]]
				cursors[ci]++
				if int(ev.Target) >= len(g.targets[ci]) {
					return fmt.Errorf("cable group: event for cell %d targets unknown lid %d", g.layout.GIDs[ci], ev.Target)
				}
				h := g.targets[ci][ev.Target]
				h.Mech.NetReceive(h.Site, ev.Weight)
			}
		}

		// 2. Accumulate currents: stimuli, then mechanisms.
		g.current.Fill(0)
		g.conductance.Fill(0)
		for _, st := range g.layout.Stimuli {
			if g.now >= st.Clamp.From && g.now < st.Clamp.From+st.Clamp.Duration {
				g.current[st.CV] -= st.Clamp.Amplitude
			}
		}
		if j := g.layout.Junction; j != nil {
			for k, peer := range g.layout.JunctionPeers {
				j.SetPeerVoltage(k, g.voltage[peer])
			}
		}
		for _, mv := range g.mechs {
			g.gather(mv.mech.Node(), mv.v)
			for k := range mv.g {
				mv.g[k], mv.i[k] = 0, 0
			}
			mv.mech.Current(mv.v, mv.g, mv.i)
			for k, n := range mv.mech.Node() {
				g.conductance[n] += mv.g[k]
				g.current[n] += mv.i[k]
			}
		}

		// 3, 4. Assemble and solve for the new voltage.
		for c := range g.dtCell {
			g.dtCell[c] = step
		}
		g.matrix.Assemble(g.dtCell, g.voltage, g.current, g.conductance)
		g.matrix.Solve(g.voltage)

		// 5. Update mechanism state with the new voltage.
		for _, mv := range g.mechs {
			g.gather(mv.mech.Node(), mv.v)
			mv.mech.Advance(step, mv.v)
		}

		// 6. Threshold detection with linear crossing interpolation.
		for di, det := range g.layout.Detectors {
			vPrev := g.detectorPrev[di]
			vNow := g.voltage[det.CV]
			if vPrev < det.Threshold && vNow >= det.Threshold {
				cross := g.now + step*(det.Threshold-vPrev)/(vNow-vPrev)
				g.spikes = append(g.spikes, sim.Spike{
					Source: sim.CellMember{GID: g.layout.GIDs[det.Cell], LID: det.LID},
					Time:   cross,
				})
			}
			g.detectorPrev[di] = vNow
		}

		// 7. Sampling.
		for _, st := range g.samplers {
			if st.assoc.Schedule == nil {
				continue
			}
			times := st.assoc.Schedule.EventsBetween(g.now, tNext)
			if len(times) == 0 {
				continue
			}
			for pi, p := range st.matched {
				for _, t := range times {
					v, err := g.probeValue(p)
					if err != nil {
						return err
					}
					st.buffers[pi] = append(st.buffers[pi], sim.Sample{Time: t, Value: v})
				}
			}
		}

		g.now = tNext
	}

	// Flush samples collected this epoch.
	for _, st := range g.samplers {
		for pi, p := range st.matched {
			if len(st.buffers[pi]) > 0 {
				st.assoc.Sampler(p, st.buffers[pi])
				st.buffers[pi] = nil
			}
		}
	}
	return nil
}

func (g *Group) probeValue(p sim.ProbeInfo) (float64, error) {
	ci := -1
	for i, gid := range g.layout.GIDs {
		if gid == p.GID {
			ci = i
			break
		}
	}
	if ci < 0 {
		return 0, fmt.Errorf("probe %q: cell %d not in group", p.Tag, p.GID)
	}
	lo, hi := g.layout.CellCVDivs[ci], g.layout.CellCVDivs[ci+1]

	switch addr := p.Address.(type) {
	case ProbeVoltage:
		return g.layout.Discs[ci].InterpolateVoltage(addr.Site, g.voltage[lo:hi]), nil
	case ProbeTotalIonCurrent:
		var total float64
		for i := lo; i < hi; i++ {
			total += g.current[i]
		}
		// g.current also holds the active clamps; take them back out.
		for _, st := range g.layout.Stimuli {
			if st.Cell == ci && g.now >= st.Clamp.From && g.now < st.Clamp.From+st.Clamp.Duration {
				total += st.Clamp.Amplitude
			}
		}
		return total, nil
	default:
		return 0, fmt.Errorf("probe %q: unsupported address type %T", p.Tag, p.Address)
	}
}

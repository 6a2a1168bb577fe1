package cable

import (
	"math"

	"github.com/neuron-sim/neuron-sim/sim"
)

// Built-in mechanisms. Density conductances are in S/cm² and scale to µS
// through the site area; point conductances are in µS directly.

// areaScale converts a density quantity in S/cm² (or mA/cm²) on area µm²
// to µS (or nA).
func areaScale(area float64) float64 { return area * 0.01 }

// --- pas: passive leak ------------------------------------------------

var pasInfo = &MechanismInfo{
	Name: "pas",
	Kind: DensityKind,
	Params: map[string]ParamSpec{
		"g": {Default: 0.001, Min: 0, Max: math.MaxFloat64},
		"e": {Default: -70, Min: -1e3, Max: 1e3},
	},
}

type pasMech struct {
	cfg instanceConfig
}

func newPas(cfg instanceConfig) (Mechanism, error) {
	return &pasMech{cfg: cfg}, nil
}

func (m *pasMech) Info() *MechanismInfo { return pasInfo }
func (m *pasMech) Node() []int32 { return m.cfg.node }
func (m *pasMech) InitState([]float64) {}

func (m *pasMech) Current(v []float64, g, i []float64) {
	gs := m.cfg.param["g"]
	es := m.cfg.param["e"]
	for k := range m.cfg.node {
		scale := areaScale(m.cfg.area[k])
		g[k] += gs[k] * scale
		i[k] += gs[k] * (v[k] - es[k]) * scale
	}
}

func (m *pasMech) Advance(sim.Time, []float64) {}

// --- hh: Hodgkin-Huxley sodium, potassium and leak --------------------

var hhInfo = &MechanismInfo{
	Name: "hh",
	Kind: DensityKind,
	Params: map[string]ParamSpec{
		"gnabar": {Default: 0.12, Min: 0, Max: math.MaxFloat64},
		"gkbar":  {Default: 0.036, Min: 0, Max: math.MaxFloat64},
		"gl":     {Default: 0.0003, Min: 0, Max: math.MaxFloat64},
		"el":     {Default: -54.3, Min: -1e3, Max: 1e3},
	},
	State: []string{"m", "h", "n"},
	Ions: map[string]IonDependency{
		"na": {Charge: 1, ReadsReversal: true},
		"k":  {Charge: 1, ReadsReversal: true},
	},
}

type hhMech struct {
	cfg     instanceConfig
	m, h, n []float64
	q10     []float64
}

func newHH(cfg instanceConfig) (Mechanism, error) {
	n := len(cfg.node)
	mech := &hhMech{
		cfg: cfg,
		m:   make([]float64, n),
		h:   make([]float64, n),
		n:   make([]float64, n),
		q10: make([]float64, n),
	}
	for k := range mech.q10 {
		tC := cfg.temp[k] - 273.15
		mech.q10[k] = math.Pow(3, (tC-6.3)/10)
	}
	return mech, nil
}

func (m *hhMech) Info() *MechanismInfo { return hhInfo }
func (m *hhMech) Node() []int32 { return m.cfg.node }

func vtrap(x, y float64) float64 {
	// x/(exp(x/y)-1) with the singularity at x=0 removed
	if math.Abs(x/y) < 1e-6 {
		return y * (1 - x/y/2)
	}
	return x / (math.Exp(x/y) - 1)
}

func hhRates(v float64) (am, bm, ah, bh, an, bn float64) {
	am = 0.1 * vtrap(-(v+40), 10)
	bm = 4 * math.Exp(-(v+65)/18)
	ah = 0.07 * math.Exp(-(v+65)/20)
	bh = 1 / (math.Exp(-(v+35)/10) + 1)
	an = 0.01 * vtrap(-(v+55), 10)
	bn = 0.125 * math.Exp(-(v+65)/80)
	return
}

func (m *hhMech) InitState(v []float64) {
	for k := range m.cfg.node {
		am, bm, ah, bh, an, bn := hhRates(v[k])
		m.m[k] = am / (am + bm)
		m.h[k] = ah / (ah + bh)
		m.n[k] = an / (an + bn)
	}
}

func (m *hhMech) Current(v []float64, g, i []float64) {
	gnabar := m.cfg.param["gnabar"]
	gkbar := m.cfg.param["gkbar"]
	gl := m.cfg.param["gl"]
	el := m.cfg.param["el"]
	ena := m.cfg.erev["na"]
	ek := m.cfg.erev["k"]
	for k := range m.cfg.node {
		scale := areaScale(m.cfg.area[k])
		gna := gnabar[k] * m.m[k] * m.m[k] * m.m[k] * m.h[k]
		gk := gkbar[k] * m.n[k] * m.n[k] * m.n[k] * m.n[k]
		g[k] += (gna + gk + gl[k]) * scale
		i[k] += (gna*(v[k]-ena[k]) + gk*(v[k]-ek[k]) + gl[k]*(v[k]-el[k])) * scale
	}
}

func (m *hhMech) Advance(dt sim.Time, v []float64) {
	// exponential Euler on each gate
	for k := range m.cfg.node {
		am, bm, ah, bh, an, bn := hhRates(v[k])
		q := m.q10[k]
		step := func(x, a, b float64) float64 {
			tau := 1 / (q * (a + b))
			inf := a / (a + b)
			return inf + (x-inf)*math.Exp(-dt/tau)
		}
		m.m[k] = step(m.m[k], am, bm)
		m.h[k] = step(m.h[k], ah, bh)
		m.n[k] = step(m.n[k], an, bn)
	}
}

// --- expsyn: single-exponential synapse -------------------------------

var expSynInfo = &MechanismInfo{
	Name: "expsyn",
	Kind: PointKind,
	Params: map[string]ParamSpec{
		"tau": {Default: 2.0, Min: 1e-9, Max: math.MaxFloat64},
		"e":   {Default: 0, Min: -1e3, Max: 1e3},
	},
	State:  []string{"g"},
	Linear: true,
}

type expSynMech struct {
	cfg instanceConfig
	g   []float64
}

func newExpSyn(cfg instanceConfig) (Mechanism, error) {
	return &expSynMech{cfg: cfg, g: make([]float64, len(cfg.node))}, nil
}

func (m *expSynMech) Info() *MechanismInfo { return expSynInfo }
func (m *expSynMech) Node() []int32 { return m.cfg.node }

func (m *expSynMech) InitState([]float64) {
	for k := range m.g {
		m.g[k] = 0
	}
}

func (m *expSynMech) Current(v []float64, g, i []float64) {
	es := m.cfg.param["e"]
	for k := range m.cfg.node {
		g[k] += m.g[k]
		i[k] += m.g[k] * (v[k] - es[k])
	}
}

func (m *expSynMech) Advance(dt sim.Time, _ []float64) {
	taus := m.cfg.param["tau"]
	for k := range m.g {
		m.g[k] *= math.Exp(-dt / taus[k])
	}
}

// NetReceive applies one event's weight. Coalesced members deliver their
// events individually, so the weight is not scaled by multiplicity.
func (m *expSynMech) NetReceive(idx int, weight sim.Weight) {
	m.g[idx] += float64(weight)
}

// --- exp2syn: double-exponential synapse ------------------------------

var exp2SynInfo = &MechanismInfo{
	Name: "exp2syn",
	Kind: PointKind,
	Params: map[string]ParamSpec{
		"tau1": {Default: 0.5, Min: 1e-9, Max: math.MaxFloat64},
		"tau2": {Default: 2.0, Min: 1e-9, Max: math.MaxFloat64},
		"e":    {Default: 0, Min: -1e3, Max: 1e3},
	},
	State:  []string{"A", "B"},
	Linear: true,
}

type exp2SynMech struct {
	cfg    instanceConfig
	a, b   []float64
	factor []float64
}

func newExp2Syn(cfg instanceConfig) (Mechanism, error) {
	n := len(cfg.node)
	m := &exp2SynMech{
		cfg:    cfg,
		a:      make([]float64, n),
		b:      make([]float64, n),
		factor: make([]float64, n),
	}
	tau1 := cfg.param["tau1"]
	tau2 := cfg.param["tau2"]
	for k := 0; k < n; k++ {
		if tau1[k] >= tau2[k] {
			return nil, &sim.InvalidParameterError{Mechanism: "exp2syn", Parameter: "tau1", Value: tau1[k]}
		}
		tp := tau1[k] * tau2[k] / (tau2[k] - tau1[k]) * math.Log(tau2[k]/tau1[k])
		m.factor[k] = 1 / (-math.Exp(-tp/tau1[k]) + math.Exp(-tp/tau2[k]))
	}
	return m, nil
}

func (m *exp2SynMech) Info() *MechanismInfo { return exp2SynInfo }
func (m *exp2SynMech) Node() []int32 { return m.cfg.node }

func (m *exp2SynMech) InitState([]float64) {
	for k := range m.a {
		m.a[k], m.b[k] = 0, 0
	}
}

func (m *exp2SynMech) Current(v []float64, g, i []float64) {
	es := m.cfg.param["e"]
	for k := range m.cfg.node {
		gk := m.b[k] - m.a[k]
		g[k] += gk
		i[k] += gk * (v[k] - es[k])
	}
}

func (m *exp2SynMech) Advance(dt sim.Time, _ []float64) {
	tau1 := m.cfg.param["tau1"]
	tau2 := m.cfg.param["tau2"]
	for k := range m.a {
		m.a[k] *= math.Exp(-dt / tau1[k])
		m.b[k] *= math.Exp(-dt / tau2[k])
	}
}

func (m *exp2SynMech) NetReceive(idx int, weight sim.Weight) {
	w := float64(weight) * m.factor[idx]
	m.a[idx] += w
	m.b[idx] += w
}

// --- gj: linear gap junction ------------------------------------------

var gjInfo = &MechanismInfo{
	Name: "gj",
	Kind: JunctionKind,
	Params: map[string]ParamSpec{
		"g": {Default: 1, Min: 0, Max: math.MaxFloat64},
	},
	Linear: true,
}

// linearGJ contributes i = g·gs·(v_local − v_peer) at each site. The peer
// voltages are scattered in by the group before each current pass.
type linearGJ struct {
	cfg   instanceConfig
	vPeer []float64
}

func newLinearGJ(cfg instanceConfig) (Mechanism, error) {
	return &linearGJ{cfg: cfg, vPeer: make([]float64, len(cfg.node))}, nil
}

func (m *linearGJ) Info() *MechanismInfo { return gjInfo }
func (m *linearGJ) Node() []int32 { return m.cfg.node }
func (m *linearGJ) InitState([]float64) {}

// SetPeerVoltage records the peer-side voltage for site idx.
func (m *linearGJ) SetPeerVoltage(idx int, v float64) { m.vPeer[idx] = v }

func (m *linearGJ) Current(v []float64, g, i []float64) {
	gs := m.cfg.param["g"]
	for k := range m.cfg.node {
		// mult carries the junction conductance in µS
		i[k] += gs[k] * m.cfg.mult[k] * (v[k] - m.vPeer[k])
	}
}

func (m *linearGJ) Advance(sim.Time, []float64) {}

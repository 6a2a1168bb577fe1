package cable

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"

	"github.com/neuron-sim/neuron-sim/sim"
)

// MechanismKind discriminates where a mechanism can live.
type MechanismKind int

const (
	// DensityKind mechanisms are painted over regions and contribute
	// current per membrane area.
	DensityKind MechanismKind = iota
	// PointKind mechanisms are placed on sites and contribute absolute
	// current; they receive network events.
	PointKind
	// JunctionKind mechanisms couple a gap-junction site pair.
	JunctionKind
)

// ParamSpec describes one settable mechanism parameter.
type ParamSpec struct {
	Default float64
	Min     float64
	Max     float64
}

// IonDependency records how a mechanism uses one ion.
type IonDependency struct {
	Charge        int
	WritesConc    bool
	ReadsReversal bool
}

// MechanismInfo is the schema of a catalogue entry.
type MechanismInfo struct {
	Name   string
	Kind   MechanismKind
	Params map[string]ParamSpec
	State  []string
	Ions   map[string]IonDependency
	// Linear point mechanisms with no per-instance random state may be
	// coalesced: instances on one CV with equal parameters merge into one
	// with a multiplicity count.
	Linear bool
}

// Fingerprint is a structural hash of the schema, used to detect mismatch
// between a stored network and the loaded catalogue.
func (mi *MechanismInfo) Fingerprint() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s/%d/", mi.Name, mi.Kind)
	names := make([]string, 0, len(mi.Params))
	for n := range mi.Params {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(h, "%s=%g;", n, mi.Params[n].Default)
	}
	for _, s := range mi.State {
		fmt.Fprintf(h, "state:%s;", s)
	}
	ions := make([]string, 0, len(mi.Ions))
	for n := range mi.Ions {
		ions = append(ions, n)
	}
	sort.Strings(ions)
	for _, n := range ions {
		dep := mi.Ions[n]
		fmt.Fprintf(h, "ion:%s/%d/%t;", n, dep.Charge, dep.WritesConc)
	}
	return h.Sum64()
}

// Mechanism is one instantiated mechanism over its support CVs. The state
// arrays are indexed by instance site, and Node maps sites to group-local
// CV indices.
type Mechanism interface {
	Info() *MechanismInfo
	// Node returns the group-local CV index of each instance site.
	Node() []int32
	// InitState resets the state to its steady values at voltage v, where
	// v is indexed by site.
	InitState(v []float64)
	// Current adds the conductance [µS] and outward current [nA]
	// contribution of each site into g and i, indexed by site.
	Current(v []float64, g, i []float64)
	// Advance integrates the mechanism state by dt with the site voltages
	// v.
	Advance(dt sim.Time, v []float64)
}

// PointMechanism additionally consumes network events.
type PointMechanism interface {
	Mechanism
	// NetReceive applies a weighted event to site idx.
	NetReceive(idx int, weight sim.Weight)
}

// instanceConfig carries the per-site configuration resolved by the FVM
// layout: CV indices, parameter values, areas and multiplicities.
type instanceConfig struct {
	node  []int32
	param map[string][]float64 // per-site values, area-averaged for density
	area  []float64            // µm², density mechanisms only
	mult  []float64            // coalescing multiplicity, point mechanisms
	erev  map[string][]float64 // per-site reversal potentials by ion
	temp  []float64            // K
}

type mechBuilder func(cfg instanceConfig) (Mechanism, error)

// Catalogue maps mechanism names to schemas and builders.
type Catalogue struct {
	infos    map[string]*MechanismInfo
	builders map[string]mechBuilder
}

// Has reports whether the catalogue holds name.
func (c *Catalogue) Has(name string) bool {
	_, ok := c.infos[name]
	return ok
}

// Info returns the schema for name.
func (c *Catalogue) Info(name string) (*MechanismInfo, error) {
	mi, ok := c.infos[name]
	if !ok {
		return nil, &sim.NoSuchMechanismError{Name: name}
	}
	return mi, nil
}

func (c *Catalogue) build(name string, cfg instanceConfig) (Mechanism, error) {
	b, ok := c.builders[name]
	if !ok {
		return nil, &sim.NoSuchMechanismError{Name: name}
	}
	return b(cfg)
}

func (c *Catalogue) register(mi *MechanismInfo, b mechBuilder) {
	c.infos[mi.Name] = mi
	c.builders[mi.Name] = b
}

// resolveParams fills one value per site for every schema parameter,
// starting from defaults and applying the description's overrides, with
// range validation.
func resolveParams(mi *MechanismInfo, desc MechanismDesc, n int) (map[string][]float64, error) {
	out := make(map[string][]float64, len(mi.Params))
	for name, spec := range mi.Params {
		v := spec.Default
		if ov, ok := desc.Params[name]; ok {
			if math.IsNaN(ov) || ov < spec.Min || ov > spec.Max {
				return nil, &sim.InvalidParameterError{Mechanism: mi.Name, Parameter: name, Value: ov}
			}
			v = ov
		}
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = v
		}
		out[name] = vals
	}
	for name := range desc.Params {
		if _, ok := mi.Params[name]; !ok {
			return nil, &sim.InvalidParameterError{Mechanism: mi.Name, Parameter: name, Value: desc.Params[name]}
		}
	}
	return out, nil
}

// DefaultCatalogue returns the built-in mechanisms: pas, hh, expsyn,
// exp2syn and the linear gap junction.
func DefaultCatalogue() *Catalogue {
	c := &Catalogue{
		infos:    make(map[string]*MechanismInfo),
		builders: make(map[string]mechBuilder),
	}
	c.register(pasInfo, newPas)
	c.register(hhInfo, newHH)
	c.register(expSynInfo, newExpSyn)
	c.register(exp2SynInfo, newExp2Syn)
	c.register(gjInfo, newLinearGJ)
	return c
}

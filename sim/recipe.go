package sim

import "math"

// Recipe is the user-supplied, cell-indexed description of the network.
// Implementations must be safe for concurrent calls on distinct gids; the
// construction phases query cells from a parallel loop.
type Recipe interface {
	// NumCells is the total number of cells across all ranks.
	NumCells() int
	// Kind returns the cell kind in constant time.
	Kind(gid GID) CellKind
	// Description returns the kind-specific cell description. May allocate.
	Description(gid GID) (CellDescription, error)
	// ConnectionsOn returns every connection whose target is gid.
	ConnectionsOn(gid GID) []ConnectionDescription
	// GapJunctionsOn returns every gap junction incident to gid. Both
	// endpoints must report the same edge.
	GapJunctionsOn(gid GID) []GapJunctionDescription
	// ProbesOn returns the sampling addresses on gid.
	ProbesOn(gid GID) []ProbeInfo
	// EventGeneratorsOn returns the injected external event streams
	// targeting gid.
	EventGeneratorsOn(gid GID) []EventGenerator
	// GlobalProperties returns kind-wide defaults.
	GlobalProperties(kind CellKind) GlobalProperties
}

// CellDescription is the tagged variant returned by Recipe.Description.
// Exactly one of the four concrete description types implements it per
// cell kind.
type CellDescription interface {
	CellKind() CellKind
}

// LIFCellDescription describes a leaky integrate-and-fire point cell.
// Voltages in mV, times in ms, capacitance in pF.
type LIFCellDescription struct {
	TauM   float64 // membrane time constant
	VTh    float64 // firing threshold
	CM     float64 // membrane capacitance
	EL     float64 // resting potential
	ER     float64 // reset potential
	V0     float64 // initial potential
	TRef   float64 // refractory period
	Source string  // label of the spike source
	Target string  // label of the synapse target
}

func (LIFCellDescription) CellKind() CellKind { return LIFCell }

// SpikeSourceCellDescription describes a stateless cell that emits spikes
// on its schedules. Each schedule is one source item, in order.
type SpikeSourceCellDescription struct {
	Source    string // label shared by all schedule items
	Schedules []Schedule
}

func (SpikeSourceCellDescription) CellKind() CellKind { return SpikeSourceCell }

// BenchmarkCellDescription describes an artificial cell that replays a
// spike schedule while charging a configurable amount of simulated work.
type BenchmarkCellDescription struct {
	Source        string
	Target        string
	Schedule      Schedule
	RealtimeRatio float64 // advance time per unit simulated time
}

func (BenchmarkCellDescription) CellKind() CellKind { return BenchmarkCell }

// ProbeInfo names a measurable quantity on a cell.
type ProbeInfo struct {
	GID     GID
	Tag     string      // user handle, unique per cell
	Address interface{} // kind-specific probe address
}

// EventGenerator produces delivery events for a labelled target site on one
// cell. Generators are pulled once per epoch window.
type EventGenerator interface {
	// Target names the site on the cell the events are delivered to.
	Target() string
	// EventsBetween returns the generator's events with times in [t0, t1).
	EventsBetween(t0, t1 Time) []DeliveryEvent
	// Reset rewinds the generator to time zero.
	Reset()
}

// ScheduleGenerator emits a fixed-weight event on every schedule time.
type ScheduleGenerator struct {
	Site     string
	Weight   Weight
	Schedule Schedule
}

func (g *ScheduleGenerator) Target() string { return g.Site }

func (g *ScheduleGenerator) EventsBetween(t0, t1 Time) []DeliveryEvent {
	times := g.Schedule.EventsBetween(t0, t1)
	events := make([]DeliveryEvent, len(times))
	for i, t := range times {
		events[i] = DeliveryEvent{Time: t, Weight: g.Weight}
	}
	return events
}

func (g *ScheduleGenerator) Reset() { g.Schedule.Reset() }

// GlobalProperties carries kind-wide defaults. Only cable cells use the
// full set; the other kinds read nothing from it today.
type GlobalProperties struct {
	TemperatureK        float64 // K
	InitPotential       float64 // mV
	AxialResistivity    float64 // Ω·cm
	MembraneCapacitance float64 // F/m²
	CoalesceSynapses    bool
	Ions                map[string]IonDefaults
}

// ReversalPotentialMethod selects how an ion's reversal potential is
// obtained.
type ReversalPotentialMethod int

const (
	// RevPotConst keeps the configured ReversalPotential.
	RevPotConst ReversalPotentialMethod = iota
	// RevPotNernst derives it from the concentrations and the local
	// temperature via the Nernst equation.
	RevPotNernst
)

// IonDefaults is the kind-wide description of one ion species.
type IonDefaults struct {
	Charge            int
	InternalConc      float64 // mM
	ExternalConc      float64 // mM
	ReversalPotential float64 // mV
	Method            ReversalPotentialMethod
	Diffusivity       float64 // m²/s; 0 means not diffusive
}

// NeuronDefaults returns the conventional cable defaults: 6.3 °C, −65 mV,
// 35.4 Ω·cm, 0.01 F/m², and the na/k/ca ions.
func NeuronDefaults() GlobalProperties {
	return GlobalProperties{
		TemperatureK:        279.45,
		InitPotential:       -65,
		AxialResistivity:    35.4,
		MembraneCapacitance: 0.01,
		CoalesceSynapses:    true,
		Ions: map[string]IonDefaults{
			"na": {Charge: 1, InternalConc: 10, ExternalConc: 140, ReversalPotential: 50},
			"k":  {Charge: 1, InternalConc: 54.4, ExternalConc: 2.5, ReversalPotential: -77},
			"ca": {Charge: 2, InternalConc: 5e-5, ExternalConc: 2, ReversalPotential: 132.4578},
		},
	}
}

// ValidateConnection checks the numeric invariants every connection must
// satisfy: finite weight, positive finite delay, in-range source gid.
func ValidateConnection(target GID, c ConnectionDescription, numCells int) error {
	if c.Source.GID > MaxGID/2 {
		return &SourceGIDExceedsLimitError{Target: target, Source: c.Source.GID}
	}
	if int(c.Source.GID) >= numCells {
		return &BadConnectionSourceError{Target: target, Source: c.Source.GID}
	}
	if math.IsNaN(float64(c.Weight)) || math.IsInf(float64(c.Weight), 0) {
		return &BadConnectionError{Target: target, Reason: "weight is not finite"}
	}
	if math.IsNaN(c.Delay) || math.IsInf(c.Delay, 0) || c.Delay <= 0 {
		return &BadConnectionError{Target: target, Reason: "delay must be positive and finite"}
	}
	return nil
}

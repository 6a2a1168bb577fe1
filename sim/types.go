// Package sim holds the shared vocabulary of the simulation core: cell and
// item identifiers, spikes, connections, epochs, the recipe and distributed
// context interfaces, and the deterministic RNG substrate.
package sim

import "fmt"

// GID is the global identifier of a cell, unique across all ranks.
// GIDs are dense in [0, NumCells).
type GID uint32

// LID is the local identifier of a placed item (detector, synapse, gap
// junction site) on a single cell.
type LID uint32

// Time is simulation time in milliseconds.
type Time = float64

// Weight is a synaptic weight. Single precision, matching the wire format
// of the spike exchange.
type Weight = float32

// MaxGID is the largest usable gid. The upper half of the gid space is
// reserved for external spike sources.
const MaxGID GID = ^GID(0)

// CellKind selects the integrator used for a group of cells.
type CellKind int

const (
	// CableCell is a multi-compartment cell with branched morphology.
	CableCell CellKind = iota
	// LIFCell is a leaky integrate-and-fire point cell.
	LIFCell
	// SpikeSourceCell emits spikes on a fixed schedule and has no state.
	SpikeSourceCell
	// BenchmarkCell emits spikes while simulating a configurable
	// advance-time ratio, for load testing.
	BenchmarkCell
)

func (k CellKind) String() string {
	switch k {
	case CableCell:
		return "cable"
	case LIFCell:
		return "lif"
	case SpikeSourceCell:
		return "spike_source"
	case BenchmarkCell:
		return "benchmark"
	}
	return fmt.Sprintf("cell_kind(%d)", int(k))
}

// BackendKind selects the numeric backend a cell group runs on.
type BackendKind int

const (
	// Multicore is the CPU backend. Always available.
	Multicore BackendKind = iota
	// GPU is the device backend. Only cable and benchmark groups can
	// run on it.
	GPU
)

func (b BackendKind) String() string {
	if b == GPU {
		return "gpu"
	}
	return "multicore"
}

// CellMember addresses one item on one cell: a spike source, a synapse
// target, or a gap-junction site.
type CellMember struct {
	GID GID
	LID LID
}

// Less orders members lexicographically by (gid, lid).
func (m CellMember) Less(o CellMember) bool {
	if m.GID != o.GID {
		return m.GID < o.GID
	}
	return m.LID < o.LID
}

func (m CellMember) String() string {
	return fmt.Sprintf("%d:%d", m.GID, m.LID)
}

// Spike is a threshold crossing on a source item at a point in time.
type Spike struct {
	Source CellMember
	Time   Time
}

// SourceDescription names a spike source item on a cell symbolically.
// Resolution against the global label map yields the numeric lid.
type SourceDescription struct {
	GID   GID
	Label string
}

// ConnectionDescription is a recipe-level connection. Source names an item
// on the source cell; Target names a label on the cell the recipe was
// asked about. Both resolve during connection-table construction.
type ConnectionDescription struct {
	Source SourceDescription
	Target string
	Weight Weight
	Delay  Time
}

// GapJunctionDescription is a recipe-level gap junction incident to the
// queried cell. Both endpoints must report the same edge.
type GapJunctionDescription struct {
	Local       string  // label of the local site
	Peer        GID     // gid of the peer cell
	PeerLabel   string  // label of the peer site
	Conductance float64 // µS
}

// DeliveryEvent is a weighted event delivered to a target item on a local
// cell at a given time.
type DeliveryEvent struct {
	Target LID
	Time   Time
	Weight Weight
}

// Before orders events by (time, target, weight). The total order keeps
// delivery reproducible when spike times tie.
func (e DeliveryEvent) Before(o DeliveryEvent) bool {
	if e.Time != o.Time {
		return e.Time < o.Time
	}
	if e.Target != o.Target {
		return e.Target < o.Target
	}
	return e.Weight < o.Weight
}

// Epoch is one half-interval of the min-delay window. Spikes produced in
// epoch k are delivered no earlier than epoch k+1.
type Epoch struct {
	ID int
	T0 Time
	T1 Time
}

// Advance returns the epoch following e with upper bound t1.
func (e Epoch) Advance(t1 Time) Epoch {
	return Epoch{ID: e.ID + 1, T0: e.T1, T1: t1}
}

// Duration is the length of the epoch interval.
func (e Epoch) Duration() Time {
	return e.T1 - e.T0
}

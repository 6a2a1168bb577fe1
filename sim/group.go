package sim

import "sort"

// CellGroup is a set of same-kind cells on one domain, integrated together.
// The driver owns the group; during Advance the group has exclusive access
// to its mutable state.
type CellGroup interface {
	// Kind reports the cell kind shared by the group.
	Kind() CellKind
	// GIDs lists the cells in the group, ascending.
	GIDs() []GID
	// Advance integrates the group to ep.T1 in sub-steps of at most dt,
	// applying the events in lanes in time order. The group never
	// integrates past ep.T1.
	Advance(ep Epoch, dt Time, lanes EventLanes) error
	// Spikes returns the spikes produced since the last ClearSpikes.
	Spikes() []Spike
	// ClearSpikes discards the local spike buffer.
	ClearSpikes()
	// Reset restores the group to its initial state.
	Reset()
	// AddSampler attaches a sampler to the probes matched by the
	// predicate; the schedule's EventsBetween times are pulled per sub-step.
	AddSampler(assoc SamplerAssociation)
	// RemoveSampler detaches a sampler by handle.
	RemoveSampler(h SamplerHandle)
}

// EventLanes is a per-cell view into the driver-owned event queues for one
// epoch. Lane i holds the events for the group's i-th cell, sorted by
// (time, target, weight).
type EventLanes interface {
	// Lane returns the sorted events for the group-local cell index i.
	Lane(i int) []DeliveryEvent
}

// SliceLanes adapts a plain slice of lanes.
type SliceLanes [][]DeliveryEvent

func (s SliceLanes) Lane(i int) []DeliveryEvent {
	if i >= len(s) {
		return nil
	}
	return s[i]
}

// SortEvents establishes the delivery order within one lane.
func SortEvents(lane []DeliveryEvent) {
	sort.Slice(lane, func(i, j int) bool { return lane[i].Before(lane[j]) })
}

// SamplerHandle identifies one sampler association.
type SamplerHandle string

// SamplerFunc receives the samples recorded for one probe since the last
// flush. Called on the advancing thread.
type SamplerFunc func(probe ProbeInfo, samples []Sample)

// Sample is one recorded measurement.
type Sample struct {
	Time  Time
	Value float64
}

// SamplerAssociation binds a schedule and callback to a set of probes.
type SamplerAssociation struct {
	Handle   SamplerHandle
	Probes   func(ProbeInfo) bool // predicate over probe addresses
	Schedule Schedule
	Sampler  SamplerFunc
}

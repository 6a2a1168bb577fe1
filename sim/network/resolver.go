// Package network builds the wiring of the simulation: the label resolution
// map, the per-domain connection table, the spike exchange, and the
// spike-to-event delivery.
package network

import (
	"sort"

	"github.com/neuron-sim/neuron-sim/sim"
)

// SelectionPolicy picks one lid out of a label's range.
type SelectionPolicy int

const (
	// RoundRobin cycles through the range, one pick per query.
	RoundRobin SelectionPolicy = iota
	// AssertUnivalent requires the range to have exactly one element.
	AssertUnivalent
)

// LabelMap resolves (gid, label) to its lid range. It is built from the
// label ranges reported by the local group constructors and the all-gather
// over ranks, so any rank can resolve any global endpoint.
type LabelMap struct {
	ranges map[labelKey]lidRange
}

type labelKey struct {
	gid   sim.GID
	label string
}

type lidRange struct {
	lo, hi sim.LID
}

// BuildLabelMap gathers every rank's label ranges and indexes them.
// Duplicate (gid, label) pairs are not merged: the last gathered range for a
// pair replaces any earlier one.
func BuildLabelMap(ctx sim.Context, local sim.CellLabelsAndGIDs) *LabelMap {
	global := ctx.GatherCellLabelsAndGIDs(local)
	m := &LabelMap{ranges: make(map[labelKey]lidRange, len(global.Ranges))}
	for _, r := range global.Ranges {
		m.ranges[labelKey{r.GID, r.Label}] = lidRange{r.Lo, r.Hi}
	}
	return m
}

// Count returns the number of items a label selects, or 0 if unknown.
func (m *LabelMap) Count(gid sim.GID, label string) int {
	r, ok := m.ranges[labelKey{gid, label}]
	if !ok {
		return 0
	}
	return int(r.hi - r.lo)
}

// Resolver resolves (gid, label) queries against a LabelMap, keeping a
// round-robin cursor per (gid, label).
type Resolver struct {
	m       *LabelMap
	cursors map[labelKey]sim.LID
}

// NewResolver wraps a label map.
func NewResolver(m *LabelMap) *Resolver {
	return &Resolver{m: m, cursors: make(map[labelKey]sim.LID)}
}

// Resolve picks a lid for (gid, label) under the given policy.
func (r *Resolver) Resolve(gid sim.GID, label string, policy SelectionPolicy) (sim.LID, error) {
	key := labelKey{gid, label}
	rng, ok := r.m.ranges[key]
	if !ok {
		return 0, &sim.BadConnectionLabelError{GID: gid, Label: label, Reason: "label not found"}
	}
	n := rng.hi - rng.lo
	if n == 0 {
		return 0, &sim.BadConnectionLabelError{GID: gid, Label: label, Reason: "label selects no items"}
	}
	switch policy {
	case AssertUnivalent:
		if n != 1 {
			return 0, &sim.BadConnectionLabelError{GID: gid, Label: label, Reason: "label must select exactly one item"}
		}
		return rng.lo, nil
	default:
		cur := r.cursors[key]
		lid := rng.lo + cur
		cur++
		if cur >= n {
			cur = 0
		}
		r.cursors[key] = cur
		return lid, nil
	}
}

// ResolveGJ is Resolve with the univalent policy and the gap-junction
// flavored error.
func (r *Resolver) ResolveGJ(gid sim.GID, label string) (sim.LID, error) {
	lid, err := r.Resolve(gid, label, AssertUnivalent)
	if err != nil {
		if _, ok := err.(*sim.BadConnectionLabelError); ok && r.m.Count(gid, label) > 1 {
			return 0, &sim.GJUnsupportedLidSelectionPolicy{GID: gid, Label: label}
		}
		return 0, err
	}
	return lid, nil
}

// SortRanges orders label ranges by (gid, label) for reproducible gathers.
func SortRanges(rs []sim.LabelRange) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].GID != rs[j].GID {
			return rs[i].GID < rs[j].GID
		}
		return rs[i].Label < rs[j].Label
	})
}

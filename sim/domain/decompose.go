// Package domain assigns cells to ranks and splits each rank's cells into
// integrable groups. Gap-junction-coupled cells are kept on one rank in one
// group; everything else is balanced round-robin.
package domain

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/neuron-sim/neuron-sim/sim"
)

// GroupDescription is one cell group of the local rank.
type GroupDescription struct {
	Kind    sim.CellKind
	GIDs    []sim.GID
	Backend sim.BackendKind
}

// Decomposition is the assignment of every cell to a domain, plus the group
// layout of the local rank. Every rank computes the same global assignment,
// so GIDDomain answers for any gid.
type Decomposition struct {
	NumDomains     int
	Domain         int
	NumLocalCells  int
	NumGlobalCells int
	Groups         []GroupDescription

	gidDomain []uint32
}

// GIDDomain returns the domain that owns gid.
func (d *Decomposition) GIDDomain(gid sim.GID) int {
	return int(d.gidDomain[gid])
}

// Resources describes what the local rank can run on.
type Resources struct {
	Threads int
	HasGPU  bool
}

// PartitionHints tunes the group layout. Zero values select the defaults:
// one cell per CPU group, 4096 cells per GPU group, no GPU preference.
type PartitionHints struct {
	CPUGroupSize int
	GPUGroupSize int
	PreferGPU    bool
}

func (h PartitionHints) cpuSize() int {
	if h.CPUGroupSize <= 0 {
		return 1
	}
	return h.CPUGroupSize
}

func (h PartitionHints) gpuSize() int {
	if h.GPUGroupSize <= 0 {
		return 4096
	}
	return h.GPUGroupSize
}

// Partition computes the decomposition for the local rank of ctx.
//
// Gap-junction connected components are found first and assigned whole,
// largest component first, round-robin over domains. The remaining cells
// are round-robin'd by gid. Within the rank, cells split into groups by
// (kind, backend); components stay single groups.
func Partition(rec sim.Recipe, ctx sim.Context, res Resources, hints PartitionHints) (*Decomposition, error) {
	numCells := rec.NumCells()
	numDomains := ctx.Size()
	rank := ctx.Rank()

	// Union gap-junction edges. Path compression keeps this near-linear.
	parent := make([]sim.GID, numCells)
	for i := range parent {
		parent[i] = sim.GID(i)
	}
	var find func(u sim.GID) sim.GID
	find = func(u sim.GID) sim.GID {
		for parent[u] != u {
			parent[u] = parent[parent[u]]
			u = parent[u]
		}
		return u
	}
	union := func(u, v sim.GID) {
		ru, rv := find(u), find(v)
		if ru != rv {
			if ru < rv {
				parent[rv] = ru
			} else {
				parent[ru] = rv
			}
		}
	}

	hasGJ := make([]bool, numCells)
	for gid := sim.GID(0); int(gid) < numCells; gid++ {
		for _, gj := range rec.GapJunctionsOn(gid) {
			if int(gj.Peer) >= numCells {
				return nil, fmt.Errorf("gap junction on cell %d: peer gid %d out of range", gid, gj.Peer)
			}
			hasGJ[gid] = true
			hasGJ[gj.Peer] = true
			union(gid, gj.Peer)
		}
	}

	// Collect components of gap-junction cells, keyed by root.
	compOf := make(map[sim.GID][]sim.GID)
	for gid := sim.GID(0); int(gid) < numCells; gid++ {
		if hasGJ[gid] {
			root := find(gid)
			compOf[root] = append(compOf[root], gid)
		}
	}
	components := make([][]sim.GID, 0, len(compOf))
	for _, c := range compOf {
		components = append(components, c)
	}
	// Largest first; ties by smallest member gid so every rank computes the
	// same order.
	sort.Slice(components, func(i, j int) bool {
		if len(components[i]) != len(components[j]) {
			return len(components[i]) > len(components[j])
		}
		return components[i][0] < components[j][0]
	})

	gidDomain := make([]uint32, numCells)
	for i := range gidDomain {
		gidDomain[i] = ^uint32(0)
	}
	for i, comp := range components {
		d := uint32(i % numDomains)
		for _, gid := range comp {
			gidDomain[gid] = d
		}
	}
	next := 0
	for gid := 0; gid < numCells; gid++ {
		if !hasGJ[gid] {
			gidDomain[gid] = uint32(next % numDomains)
			next++
		}
	}

	dec := &Decomposition{
		NumDomains:     numDomains,
		Domain:         rank,
		NumGlobalCells: numCells,
		gidDomain:      gidDomain,
	}

	// Local groups: singleton cells chunked by (kind, backend), components
	// kept whole.
	type bucket struct {
		kind    sim.CellKind
		backend sim.BackendKind
	}
	singles := make(map[bucket][]sim.GID)
	for gid := 0; gid < numCells; gid++ {
		if int(gidDomain[gid]) != rank || hasGJ[gid] {
			continue
		}
		kind := rec.Kind(sim.GID(gid))
		b := bucket{kind, pickBackend(kind, res, hints)}
		singles[b] = append(singles[b], sim.GID(gid))
	}

	var groups []GroupDescription
	for _, comp := range components {
		if int(gidDomain[comp[0]]) != rank {
			continue
		}
		kind := rec.Kind(comp[0])
		for _, gid := range comp[1:] {
			if k := rec.Kind(gid); k != kind {
				return nil, fmt.Errorf("gap junction component containing cell %d mixes cell kinds %s and %s", comp[0], kind, k)
			}
		}
		sorted := append([]sim.GID(nil), comp...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		groups = append(groups, GroupDescription{
			Kind:    kind,
			GIDs:    sorted,
			Backend: pickBackend(kind, res, hints),
		})
	}

	// Deterministic bucket order.
	buckets := make([]bucket, 0, len(singles))
	for b := range singles {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].kind != buckets[j].kind {
			return buckets[i].kind < buckets[j].kind
		}
		return buckets[i].backend < buckets[j].backend
	})
	for _, b := range buckets {
		gids := singles[b]
		size := hints.cpuSize()
		if b.backend == sim.GPU {
			size = hints.gpuSize()
		}
		for lo := 0; lo < len(gids); lo += size {
			hi := min(lo+size, len(gids))
			groups = append(groups, GroupDescription{
				Kind:    b.kind,
				GIDs:    append([]sim.GID(nil), gids[lo:hi]...),
				Backend: b.backend,
			})
		}
	}

	dec.Groups = groups
	for _, g := range groups {
		dec.NumLocalCells += len(g.GIDs)
	}

	if err := validate(dec, rec, ctx, res); err != nil {
		return nil, err
	}

	logrus.Debugf("domain %d/%d: %d cells in %d groups", rank, numDomains, dec.NumLocalCells, len(groups))
	return dec, nil
}

func pickBackend(kind sim.CellKind, res Resources, hints PartitionHints) sim.BackendKind {
	if hints.PreferGPU && res.HasGPU && gpuCapable(kind) {
		return sim.GPU
	}
	return sim.Multicore
}

func gpuCapable(kind sim.CellKind) bool {
	return kind == sim.CableCell || kind == sim.BenchmarkCell
}

// validate checks the decomposition invariants: no duplicate gids, local
// counts summing to the global cell count, and runnable backends.
func validate(dec *Decomposition, rec sim.Recipe, ctx sim.Context, res Resources) error {
	seen := make(map[sim.GID]bool, dec.NumLocalCells)
	for _, g := range dec.Groups {
		for _, gid := range g.GIDs {
			if seen[gid] {
				return &sim.DuplicateGIDError{GID: gid}
			}
			seen[gid] = true
			if int(dec.gidDomain[gid]) != dec.Domain {
				return &sim.DuplicateGIDError{GID: gid}
			}
		}
		if g.Backend == sim.GPU {
			if !res.HasGPU {
				return &sim.InvalidBackendError{Backend: g.Backend}
			}
			if !gpuCapable(g.Kind) {
				return &sim.IncompatibleBackendError{Kind: g.Kind, Backend: g.Backend}
			}
		}
	}

	total := ctx.SumInt(dec.NumLocalCells)
	if total != rec.NumCells() {
		return &sim.InvalidSumLocalCellsError{Sum: total, NumCells: rec.NumCells()}
	}

	// Cross-rank check: gather every rank's gids and verify the global
	// assignment is disjoint. Each gid must appear exactly once.
	local := make([]sim.GID, 0, dec.NumLocalCells)
	for _, g := range dec.Groups {
		local = append(local, g.GIDs...)
	}
	gathered := ctx.GatherGIDs(local)
	if len(gathered.Values) != rec.NumCells() {
		return &sim.InvalidSumLocalCellsError{Sum: len(gathered.Values), NumCells: rec.NumCells()}
	}
	global := make(map[sim.GID]bool, len(gathered.Values))
	for _, gid := range gathered.Values {
		if global[gid] {
			return &sim.DuplicateGIDError{GID: gid}
		}
		global[gid] = true
	}

	// Both ends of every local gap junction must be local.
	for _, g := range dec.Groups {
		for _, gid := range g.GIDs {
			for _, gj := range rec.GapJunctionsOn(gid) {
				if dec.GIDDomain(gj.Peer) != dec.Domain {
					return &sim.GJDomainMismatchError{A: gid, B: gj.Peer}
				}
			}
		}
	}
	return nil
}

package network

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/neuron-sim/neuron-sim/sim"
	"github.com/neuron-sim/neuron-sim/sim/domain"
)

// Connection is a fully resolved incoming edge: numeric endpoints, with the
// local index of the target cell on this domain.
type Connection struct {
	Source        sim.CellMember
	Target        sim.LID
	Weight        sim.Weight
	Delay         sim.Time
	IndexOnDomain uint32
}

// Less orders connections by source (gid, lid), then target lid. The
// delivery walk relies on this prefix; the remaining fields extend it to a
// total order so that re-sorting a shuffled table is deterministic.
func (c Connection) Less(o Connection) bool {
	if c.Source != o.Source {
		return c.Source.Less(o.Source)
	}
	if c.Target != o.Target {
		return c.Target < o.Target
	}
	if c.IndexOnDomain != o.IndexOnDomain {
		return c.IndexOnDomain < o.IndexOnDomain
	}
	if c.Delay != o.Delay {
		return c.Delay < o.Delay
	}
	return c.Weight < o.Weight
}

// Table holds every connection terminating on this domain, partitioned by
// the domain of the source cell and sorted within each partition.
type Table struct {
	// Connections is the flat, partition-sorted edge array.
	Connections []Connection
	// ConnectionPart[d]..ConnectionPart[d+1] is the slab of edges whose
	// source lives on domain d.
	ConnectionPart []uint
	// IndexDivs partitions the local cell index space by group:
	// cells IndexDivs[g]..IndexDivs[g+1] belong to group g.
	IndexDivs []uint32

	minDelay sim.Time
}

// BuildTable collects, resolves, partitions, and sorts the incoming
// connections of every local cell.
//
// Targets resolve round-robin against the target cell's labels; sources
// resolve round-robin against the global label map. The
// per-domain sorts are independent and run on the pool.
func BuildTable(rec sim.Recipe, dec *domain.Decomposition, res *Resolver, ctx sim.Context, pool *sim.ThreadPool) (*Table, error) {
	numDomains := dec.NumDomains

	// Local cells in group order; index on domain is the position here.
	type gidInfo struct {
		gid   sim.GID
		index uint32
		conns []sim.ConnectionDescription
	}
	var infos []gidInfo
	var divs []uint32
	divs = append(divs, 0)
	for _, g := range dec.Groups {
		for _, gid := range g.GIDs {
			infos = append(infos, gidInfo{gid: gid, index: uint32(len(infos))})
		}
		divs = append(divs, uint32(len(infos)))
	}

	// Recipe queries are independent per cell.
	err := pool.ParallelFor(len(infos), func(i int) error {
		infos[i].conns = rec.ConnectionsOn(infos[i].gid)
		for _, c := range infos[i].conns {
			if err := sim.ValidateConnection(infos[i].gid, c, rec.NumCells()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Count per source domain, then place each edge into its slab.
	counts := make([]uint, numDomains)
	nConns := 0
	for _, info := range infos {
		for _, c := range info.conns {
			counts[dec.GIDDomain(c.Source.GID)]++
			nConns++
		}
	}
	part := make([]uint, numDomains+1)
	for d := 0; d < numDomains; d++ {
		part[d+1] = part[d] + counts[d]
	}

	conns := make([]Connection, nConns)
	offsets := append([]uint(nil), part...)
	for _, info := range infos {
		for _, c := range info.conns {
			target, rerr := res.Resolve(info.gid, c.Target, RoundRobin)
			if rerr != nil {
				return nil, rerr
			}
			srcLID, rerr := res.Resolve(c.Source.GID, c.Source.Label, RoundRobin)
			if rerr != nil {
				return nil, rerr
			}
			d := dec.GIDDomain(c.Source.GID)
			conns[offsets[d]] = Connection{
				Source:        sim.CellMember{GID: c.Source.GID, LID: srcLID},
				Target:        target,
				Weight:        c.Weight,
				Delay:         c.Delay,
				IndexOnDomain: info.index,
			}
			offsets[d]++
		}
	}

	// Independent per-domain sorts.
	if err := pool.ParallelFor(numDomains, func(d int) error {
		slab := conns[part[d]:part[d+1]]
		sort.Slice(slab, func(i, j int) bool { return slab[i].Less(slab[j]) })
		return nil
	}); err != nil {
		return nil, err
	}

	localMin := sim.Time(math.MaxFloat64)
	for i := range conns {
		if conns[i].Delay < localMin {
			localMin = conns[i].Delay
		}
	}
	globalMin := ctx.MinTime(localMin)

	logrus.Debugf("connection table: %d connections, min delay %g ms", nConns, globalMin)
	return &Table{
		Connections:    conns,
		ConnectionPart: part,
		IndexDivs:      divs,
		minDelay:       globalMin,
	}, nil
}

// MinDelay is the global minimum connection delay. It sets the epoch
// length; the caller must ensure at least one connection exists or treat
// the returned sentinel as unbounded.
func (t *Table) MinDelay() sim.Time {
	return t.minDelay
}

// NumConnections is the local connection count.
func (t *Table) NumConnections() int {
	return len(t.Connections)
}

// GroupQueueRange returns the local cell index range [lo, hi) whose event
// queues belong to group g.
func (t *Table) GroupQueueRange(g int) (uint32, uint32) {
	return t.IndexDivs[g], t.IndexDivs[g+1]
}

// DomainSlab returns the sorted connection slab whose sources live on
// domain d.
func (t *Table) DomainSlab(d int) []Connection {
	return t.Connections[t.ConnectionPart[d]:t.ConnectionPart[d+1]]
}

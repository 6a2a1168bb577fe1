package network

import (
	"sort"

	"github.com/neuron-sim/neuron-sim/sim"
)

// MakeEventQueues merges the gathered spikes against the connection table
// and appends the resulting delivery events to the per-cell queues.
// queues[i] is the queue of the cell with local index i; events already
// present are kept.
//
// Per source domain the spike slab and the connection slab are both sorted
// by source, so we walk the smaller one and binary-search the other. The
// complexity is O(max(S log C, C log S)) per domain.
func MakeEventQueues(gathered sim.GatheredSpikes, table *Table, queues [][]sim.DeliveryEvent) {
	for d := 0; d < len(table.ConnectionPart)-1; d++ {
		conns := table.DomainSlab(d)
		spikes := gathered.Slab(d)
		if len(conns) == 0 || len(spikes) == 0 {
			continue
		}
		if len(conns) < len(spikes) {
			enqueueByConns(conns, spikes, queues)
		} else {
			enqueueBySpikes(conns, spikes, queues)
		}
	}
}

// enqueueByConns walks the connections and searches the spike slab for each
// connection's source.
func enqueueByConns(conns []Connection, spikes []sim.Spike, queues [][]sim.DeliveryEvent) {
	for i := 0; i < len(conns); {
		src := conns[i].Source
		lo := sort.Search(len(spikes), func(k int) bool { return !spikes[k].Source.Less(src) })
		hi := lo
		for hi < len(spikes) && spikes[hi].Source == src {
			hi++
		}
		if lo != hi {
			// A run of connections may share this source; deliver the
			// spike range to each of them.
			for ; i < len(conns) && conns[i].Source == src; i++ {
				q := conns[i].IndexOnDomain
				for _, s := range spikes[lo:hi] {
					queues[q] = append(queues[q], makeEvent(&conns[i], s))
				}
			}
			continue
		}
		i++
	}
}

// enqueueBySpikes walks the spikes and searches the connection slab for
// each spike's source.
func enqueueBySpikes(conns []Connection, spikes []sim.Spike, queues [][]sim.DeliveryEvent) {
	for i := 0; i < len(spikes); {
		src := spikes[i].Source
		lo := sort.Search(len(conns), func(k int) bool { return !conns[k].Source.Less(src) })
		hi := lo
		for hi < len(conns) && conns[hi].Source == src {
			hi++
		}
		for ; i < len(spikes) && spikes[i].Source == src; i++ {
			for k := lo; k < hi; k++ {
				q := conns[k].IndexOnDomain
				queues[q] = append(queues[q], makeEvent(&conns[k], spikes[i]))
			}
		}
	}
}

func makeEvent(c *Connection, s sim.Spike) sim.DeliveryEvent {
	return sim.DeliveryEvent{
		Target: c.Target,
		Time:   s.Time + c.Delay,
		Weight: c.Weight,
	}
}

package network

import (
	"sort"

	"github.com/neuron-sim/neuron-sim/sim"
)

// Exchange sorts the local spikes by source and all-gathers them. The
// result is the concatenation of every rank's slab, not a merge; per-rank
// order is preserved by the context contract.
func Exchange(ctx sim.Context, local []sim.Spike) sim.GatheredSpikes {
	sort.Slice(local, func(i, j int) bool {
		if local[i].Source != local[j].Source {
			return local[i].Source.Less(local[j].Source)
		}
		return local[i].Time < local[j].Time
	})
	return ctx.GatherSpikes(local)
}

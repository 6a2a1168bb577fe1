package network

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuron-sim/neuron-sim/sim"
)

// makeTable builds a one-domain table directly from resolved connections,
// sorted the way BuildTable leaves them.
func makeTable(conns []Connection, numCells int) *Table {
	sorted := append([]Connection(nil), conns...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Less(sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return &Table{
		Connections:    sorted,
		ConnectionPart: []uint{0, uint(len(sorted))},
		IndexDivs:      []uint32{0, uint32(numCells)},
	}
}

func gatherOneDomain(spikes []sim.Spike) sim.GatheredSpikes {
	return sim.GatheredSpikes{Values: spikes, Part: []uint{0, uint(len(spikes))}}
}

func member(gid sim.GID, lid sim.LID) sim.CellMember {
	return sim.CellMember{GID: gid, LID: lid}
}

func TestMakeEventQueues_AllToAll(t *testing.T) {
	// Cell 0 fires once; cells 1..3 each have one connection from it with
	// weight j. Each queue ends up with exactly one event at t+delay.
	var conns []Connection
	for j := 1; j <= 3; j++ {
		conns = append(conns, Connection{
			Source:        member(0, 0),
			Target:        0,
			Weight:        sim.Weight(j),
			Delay:         1,
			IndexOnDomain: uint32(j),
		})
	}
	table := makeTable(conns, 4)
	queues := make([][]sim.DeliveryEvent, 4)

	MakeEventQueues(gatherOneDomain([]sim.Spike{{Source: member(0, 0), Time: 0}}), table, queues)

	assert.Empty(t, queues[0])
	for j := 1; j <= 3; j++ {
		require.Len(t, queues[j], 1)
		assert.Equal(t, sim.DeliveryEvent{Target: 0, Time: 1, Weight: sim.Weight(j)}, queues[j][0])
	}
}

func TestMakeEventQueues_EventCountInvariant(t *testing.T) {
	// After delivery the number of events equals the sum over sources of
	// |spikes(s)| x |connections(s)|.
	conns := []Connection{
		{Source: member(0, 0), Target: 0, Delay: 1, IndexOnDomain: 0},
		{Source: member(0, 0), Target: 1, Delay: 2, IndexOnDomain: 1},
		{Source: member(1, 0), Target: 0, Delay: 1, IndexOnDomain: 2},
		{Source: member(5, 2), Target: 3, Delay: 4, IndexOnDomain: 1},
	}
	spikes := []sim.Spike{
		{Source: member(0, 0), Time: 0},
		{Source: member(0, 0), Time: 0.5},
		{Source: member(2, 0), Time: 0.1}, // no matching connection
		{Source: member(5, 2), Time: 0.2},
	}
	table := makeTable(conns, 3)
	queues := make([][]sim.DeliveryEvent, 3)
	MakeEventQueues(gatherOneDomain(spikes), table, queues)

	// source 0: 2 spikes x 2 conns; source 1: 0 x 1; source 2: 1 x 0;
	// source 5:2: 1 x 1
	want := 2*2 + 0 + 0 + 1
	got := 0
	for _, q := range queues {
		got += len(q)
	}
	assert.Equal(t, want, got)
}

func TestMakeEventQueues_BothWalkDirections(t *testing.T) {
	// The merge walks whichever side is smaller; both paths must agree.
	buildConns := func() []Connection {
		var out []Connection
		for s := 0; s < 6; s++ {
			out = append(out, Connection{
				Source:        member(sim.GID(s), 0),
				Target:        sim.LID(s),
				Weight:        1,
				Delay:         1.5,
				IndexOnDomain: 0,
			})
		}
		return out
	}

	manySpikes := func() []sim.Spike {
		var out []sim.Spike
		for s := 0; s < 6; s++ {
			for k := 0; k < 3; k++ {
				out = append(out, sim.Spike{Source: member(sim.GID(s), 0), Time: float64(k)})
			}
		}
		return out
	}

	// spikes > conns: walk connections
	table := makeTable(buildConns(), 1)
	qA := make([][]sim.DeliveryEvent, 1)
	MakeEventQueues(gatherOneDomain(manySpikes()), table, qA)

	// conns > spikes: walk spikes; replicate each connection 4 times with
	// distinct targets to flip the comparison
	var fat []Connection
	for rep := 0; rep < 4; rep++ {
		for _, c := range buildConns() {
			c.Target += sim.LID(rep * 10)
			fat = append(fat, c)
		}
	}
	oneSpikeEach := manySpikes()[:6]
	table = makeTable(fat, 1)
	qB := make([][]sim.DeliveryEvent, 1)
	MakeEventQueues(gatherOneDomain(oneSpikeEach), table, qB)

	assert.Len(t, qA[0], 18)
	assert.Len(t, qB[0], 24)
}

func TestMakeEventQueues_AppendsToExistingQueues(t *testing.T) {
	conns := []Connection{{Source: member(0, 0), Target: 0, Delay: 1, IndexOnDomain: 0}}
	table := makeTable(conns, 1)
	queues := [][]sim.DeliveryEvent{{{Target: 9, Time: 0.1, Weight: 2}}}

	MakeEventQueues(gatherOneDomain([]sim.Spike{{Source: member(0, 0), Time: 0}}), table, queues)

	require.Len(t, queues[0], 2)
	assert.Equal(t, sim.LID(9), queues[0][0].Target) // pre-existing event kept
}

func TestSortEvents_TotalOrder(t *testing.T) {
	lane := []sim.DeliveryEvent{
		{Target: 2, Time: 1, Weight: 0},
		{Target: 0, Time: 1, Weight: 5},
		{Target: 0, Time: 0.5, Weight: 9},
		{Target: 0, Time: 1, Weight: 1},
	}
	sim.SortEvents(lane)
	assert.Equal(t, sim.DeliveryEvent{Target: 0, Time: 0.5, Weight: 9}, lane[0])
	assert.Equal(t, sim.DeliveryEvent{Target: 0, Time: 1, Weight: 1}, lane[1])
	assert.Equal(t, sim.DeliveryEvent{Target: 0, Time: 1, Weight: 5}, lane[2])
	assert.Equal(t, sim.DeliveryEvent{Target: 2, Time: 1, Weight: 0}, lane[3])
}

// BenchmarkMakeEventQueues measures delivery with 10k connections and 1k
// spikes on one domain.
func BenchmarkMakeEventQueues(b *testing.B) {
	const nCells, fanIn, nSpikes = 100, 100, 1000
	var conns []Connection
	for c := 0; c < nCells; c++ {
		for f := 0; f < fanIn; f++ {
			conns = append(conns, Connection{
				Source:        member(sim.GID(f*7%nCells), 0),
				Target:        sim.LID(f),
				Weight:        1,
				Delay:         1,
				IndexOnDomain: uint32(c),
			})
		}
	}
	table := makeBenchTable(conns, nCells)
	var spikes []sim.Spike
	for s := 0; s < nSpikes; s++ {
		// ascending sources, as the exchange guarantees
		spikes = append(spikes, sim.Spike{Source: member(sim.GID(s/(nSpikes/nCells)), 0), Time: float64(s) * 0.01})
	}
	gathered := gatherOneDomain(spikes)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		queues := make([][]sim.DeliveryEvent, nCells)
		MakeEventQueues(gathered, table, queues)
	}
}

// makeBenchTable is makeTable with a sort fast enough for large inputs.
func makeBenchTable(conns []Connection, numCells int) *Table {
	sorted := append([]Connection(nil), conns...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	return &Table{
		Connections:    sorted,
		ConnectionPart: []uint{0, uint(len(sorted))},
		IndexDivs:      []uint32{0, uint32(numCells)},
	}
}

func TestMakeEventQueues_MultiDomainPartitions(t *testing.T) {
	// Two domains: sources 0..1 on domain 0, sources 2..3 on domain 1.
	table := &Table{
		Connections: []Connection{
			{Source: member(0, 0), Target: 0, Delay: 1, IndexOnDomain: 0},
			{Source: member(2, 0), Target: 1, Delay: 1, IndexOnDomain: 0},
			{Source: member(3, 0), Target: 2, Delay: 1, IndexOnDomain: 1},
		},
		ConnectionPart: []uint{0, 1, 3},
		IndexDivs:      []uint32{0, 2},
	}
	gathered := sim.GatheredSpikes{
		Values: []sim.Spike{
			{Source: member(0, 0), Time: 0},
			{Source: member(3, 0), Time: 0.25},
		},
		Part: []uint{0, 1, 2},
	}
	queues := make([][]sim.DeliveryEvent, 2)
	MakeEventQueues(gathered, table, queues)

	require.Len(t, queues[0], 1)
	require.Len(t, queues[1], 1)
	assert.Equal(t, sim.LID(0), queues[0][0].Target)
	assert.Equal(t, 1.25, queues[1][0].Time)
}

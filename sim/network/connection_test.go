package network

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuron-sim/neuron-sim/sim"
	"github.com/neuron-sim/neuron-sim/sim/domain"
)

// netRecipe wires every cell to every other cell with per-edge weights and
// delays derived from the endpoint gids.
type netRecipe struct {
	n     int
	delay func(src, tgt sim.GID) sim.Time
}

func (r *netRecipe) NumCells() int { return r.n }
func (r *netRecipe) Kind(sim.GID) sim.CellKind { return sim.LIFCell }
func (r *netRecipe) Description(sim.GID) (sim.CellDescription, error) { return nil, nil }
func (r *netRecipe) GapJunctionsOn(sim.GID) []sim.GapJunctionDescription { return nil }
func (r *netRecipe) ProbesOn(sim.GID) []sim.ProbeInfo { return nil }
func (r *netRecipe) EventGeneratorsOn(sim.GID) []sim.EventGenerator { return nil }
func (r *netRecipe) GlobalProperties(sim.CellKind) sim.GlobalProperties { return sim.GlobalProperties{} }

func (r *netRecipe) ConnectionsOn(gid sim.GID) []sim.ConnectionDescription {
	var out []sim.ConnectionDescription
	for s := 0; s < r.n; s++ {
		src := sim.GID(s)
		if src == gid {
			continue
		}
		out = append(out, sim.ConnectionDescription{
			Source: sim.SourceDescription{GID: src, Label: "det"},
			Target: "syn",
			Weight: sim.Weight(src) + sim.Weight(gid)/100,
			Delay:  r.delay(src, gid),
		})
	}
	return out
}

// rankedContext fakes rank r of a size-R group for single-process tests.
// The sum collective reports the preset global total.
type rankedContext struct {
	sim.Context
	rank, size, total int
}

func (c *rankedContext) Rank() int      { return c.rank }
func (c *rankedContext) Size() int      { return c.size }
func (c *rankedContext) SumInt(int) int { return c.total }

func (c *rankedContext) GatherGIDs([]sim.GID) sim.GatheredGIDs {
	out := sim.GatheredGIDs{Part: []uint{0, uint(c.total)}}
	for g := 0; g < c.total; g++ {
		out.Values = append(out.Values, sim.GID(g))
	}
	return out
}

func allLabels(n int) sim.CellLabelsAndGIDs {
	var out sim.CellLabelsAndGIDs
	for g := 0; g < n; g++ {
		out.Ranges = append(out.Ranges,
			sim.LabelRange{GID: sim.GID(g), Label: "det", Lo: 0, Hi: 1},
			sim.LabelRange{GID: sim.GID(g), Label: "syn", Lo: 0, Hi: 1},
		)
	}
	return out
}

func buildTestTable(t *testing.T, n, rank, size int) (*Table, *domain.Decomposition) {
	t.Helper()
	rec := &netRecipe{n: n, delay: func(src, tgt sim.GID) sim.Time {
		return 1 + float64(src)*0.25
	}}
	ctx := &rankedContext{Context: sim.NewLocalContext(), rank: rank, size: size, total: n}
	dec, err := domain.Partition(rec, ctx, domain.Resources{}, domain.PartitionHints{})
	require.NoError(t, err)
	res := NewResolver(BuildLabelMap(ctx, allLabels(n)))
	table, err := BuildTable(rec, dec, res, ctx, sim.NewThreadPool(2))
	require.NoError(t, err)
	return table, dec
}

func TestBuildTable_Invariants(t *testing.T) {
	table, dec := buildTestTable(t, 8, 1, 2)

	// partition is monotone and covers the array
	require.Len(t, table.ConnectionPart, dec.NumDomains+1)
	assert.Equal(t, uint(0), table.ConnectionPart[0])
	for d := 0; d < dec.NumDomains; d++ {
		assert.LessOrEqual(t, table.ConnectionPart[d], table.ConnectionPart[d+1])
	}
	assert.Equal(t, uint(len(table.Connections)), table.ConnectionPart[dec.NumDomains])

	for _, c := range table.Connections {
		assert.Greater(t, c.Delay, 0.0)
		assert.False(t, math.IsNaN(float64(c.Weight)))
		assert.Less(t, int(c.Source.GID), 8)
	}

	// each slab holds only sources of its domain, sorted
	for d := 0; d < dec.NumDomains; d++ {
		slab := table.DomainSlab(d)
		for i, c := range slab {
			assert.Equal(t, d, dec.GIDDomain(c.Source.GID))
			if i > 0 {
				assert.False(t, c.Less(slab[i-1]), "slab %d not sorted at %d", d, i)
			}
		}
	}
}

func TestBuildTable_MinDelay(t *testing.T) {
	table, _ := buildTestTable(t, 4, 0, 2)
	// smallest delay is from source gid 0: 1 + 0*0.25
	assert.Equal(t, 1.0, table.MinDelay())
}

func TestBuildTable_ShuffleResortRoundTrip(t *testing.T) {
	table, dec := buildTestTable(t, 10, 0, 3)
	original := append([]Connection(nil), table.Connections...)

	rng := rand.New(rand.NewSource(7))
	rng.Shuffle(len(table.Connections), func(i, j int) {
		table.Connections[i], table.Connections[j] = table.Connections[j], table.Connections[i]
	})

	// rebuild the partition order: re-bucket by source domain, re-sort
	sort.SliceStable(table.Connections, func(i, j int) bool {
		di := dec.GIDDomain(table.Connections[i].Source.GID)
		dj := dec.GIDDomain(table.Connections[j].Source.GID)
		if di != dj {
			return di < dj
		}
		return table.Connections[i].Less(table.Connections[j])
	})
	assert.Equal(t, original, table.Connections)
}

func TestBuildTable_RejectsBadConnections(t *testing.T) {
	rec := &netRecipe{n: 3, delay: func(src, tgt sim.GID) sim.Time { return 0 }}
	ctx := &rankedContext{Context: sim.NewLocalContext(), rank: 0, size: 1, total: 3}
	dec, err := domain.Partition(rec, ctx, domain.Resources{}, domain.PartitionHints{})
	require.NoError(t, err)
	res := NewResolver(BuildLabelMap(ctx, allLabels(3)))
	_, err = BuildTable(rec, dec, res, ctx, sim.NewThreadPool(1))
	var connErr *sim.BadConnectionError
	require.ErrorAs(t, err, &connErr)
}

func TestBuildTable_GroupQueueRanges(t *testing.T) {
	table, dec := buildTestTable(t, 6, 0, 1)
	var total uint32
	for g := range dec.Groups {
		lo, hi := table.GroupQueueRange(g)
		assert.Equal(t, total, lo)
		total = hi
	}
	assert.Equal(t, uint32(dec.NumLocalCells), total)
}

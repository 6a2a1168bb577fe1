package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey seeds all randomness of a run. Two runs with the same key
// and the same network produce the same spikes regardless of rank or thread
// count.
type SimulationKey int64

// NewSimulationKey wraps a user seed.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// PartitionedRNG provides isolated deterministic RNG streams, one per
// (subsystem, gid). Streams are derived from the master key by hashing, so
// the draw order of one stream never perturbs another. This is what keeps
// spike times reproducible when cells move between ranks.
type PartitionedRNG struct {
	key     SimulationKey
	streams map[streamID]*rand.Rand
}

type streamID struct {
	subsystem string
	gid       GID
}

// NewPartitionedRNG creates a partitioned RNG with the given master key.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:     key,
		streams: make(map[streamID]*rand.Rand),
	}
}

// ForCell returns the RNG stream for one cell in one subsystem. Streams are
// created lazily; repeated calls return the same stream.
func (p *PartitionedRNG) ForCell(subsystem string, gid GID) *rand.Rand {
	id := streamID{subsystem, gid}
	if r, ok := p.streams[id]; ok {
		return r
	}
	r := rand.New(rand.NewSource(DeriveSeed(p.key, subsystem, gid)))
	p.streams[id] = r
	return r
}

// DeriveSeed computes the seed of a (subsystem, gid) stream without
// materializing the stream. Hash-based so derivation is order-independent.
func DeriveSeed(key SimulationKey, subsystem string, gid GID) int64 {
	h := fnv.New64a()
	h.Write([]byte(subsystem))
	h.Write([]byte{byte(gid), byte(gid >> 8), byte(gid >> 16), byte(gid >> 24)})
	return int64(key) ^ int64(h.Sum64())
}

// Subsystem name constants for the streams the core draws from.
const (
	SubsystemSpikeSource    = "spike_source"
	SubsystemEventGenerator = "event_generator"
	SubsystemBenchmark      = "benchmark"
)

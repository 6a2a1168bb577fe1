package sim

// Context abstracts the collective operations the core needs from a process
// group. All ranks must call every collective the same number of times in
// the same order; a failed collective aborts the run.
type Context interface {
	// Name identifies the implementation in logs.
	Name() string
	// Rank is this process's index in [0, Size).
	Rank() int
	// Size is the number of ranks in the group.
	Size() int

	// MinTime, MaxTime and SumInt are scalar all-reduces.
	MinTime(x Time) Time
	MaxTime(x Time) Time
	SumInt(x int) int

	// GatherSpikes concatenates every rank's local spike vector, preserving
	// per-rank order, and reports the per-rank partition.
	GatherSpikes(local []Spike) GatheredSpikes
	// GatherGIDs concatenates every rank's local gid vector.
	GatherGIDs(local []GID) GatheredGIDs
	// GatherCellLabelsAndGIDs concatenates every rank's label ranges. Used
	// once while building the label resolution map.
	GatherCellLabelsAndGIDs(local CellLabelsAndGIDs) CellLabelsAndGIDs

	// Barrier synchronizes all ranks. For profiling and tests only;
	// correctness never depends on it.
	Barrier()
}

// GatheredSpikes is the result of a spike all-gather: the concatenation of
// all ranks' spikes plus the partition delimiting each rank's slab.
// Part has Size+1 entries with Part[0] == 0 and Part[Size] == len(Values).
type GatheredSpikes struct {
	Values []Spike
	Part   []uint
}

// Slab returns the spikes contributed by rank d.
func (g GatheredSpikes) Slab(d int) []Spike {
	return g.Values[g.Part[d]:g.Part[d+1]]
}

// GatheredGIDs is the integer counterpart of GatheredSpikes.
type GatheredGIDs struct {
	Values []GID
	Part   []uint
}

// LabelRange is one labelled span of local ids on one cell: the label
// selects the items [Lo, Hi).
type LabelRange struct {
	GID   GID
	Label string
	Lo    LID
	Hi    LID
}

// CellLabelsAndGIDs carries the label ranges produced by the local cell
// group constructors, in gid order, for the label-map all-gather.
type CellLabelsAndGIDs struct {
	Ranges []LabelRange
}

// localContext is the single-process context. It satisfies every collective
// trivially.
type localContext struct{}

// NewLocalContext returns a context with size 1 and rank 0.
func NewLocalContext() Context {
	return localContext{}
}

func (localContext) Name() string { return "local" }
func (localContext) Rank() int { return 0 }
func (localContext) Size() int { return 1 }

func (localContext) MinTime(x Time) Time { return x }
func (localContext) MaxTime(x Time) Time { return x }
func (localContext) SumInt(x int) int { return x }

func (localContext) GatherSpikes(local []Spike) GatheredSpikes {
	return GatheredSpikes{
		Values: local,
		Part:   []uint{0, uint(len(local))},
	}
}

func (localContext) GatherGIDs(local []GID) GatheredGIDs {
	return GatheredGIDs{
		Values: local,
		Part:   []uint{0, uint(len(local))},
	}
}

func (localContext) GatherCellLabelsAndGIDs(local CellLabelsAndGIDs) CellLabelsAndGIDs {
	return local
}

func (localContext) Barrier() {}

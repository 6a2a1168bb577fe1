package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/neuron-sim/neuron-sim/sim"
	"github.com/neuron-sim/neuron-sim/sim/cable"
	"github.com/neuron-sim/neuron-sim/sim/domain"
	"github.com/neuron-sim/neuron-sim/sim/network"
)

// cellGroup is what the driver needs from every group implementation: the
// integration interface plus the label ranges for the resolver gather.
type cellGroup interface {
	sim.CellGroup
	Labels() sim.CellLabelsAndGIDs
}

// Config assembles a simulation.
type Config struct {
	Recipe  sim.Recipe
	Context sim.Context // nil means the single-process context
	Threads int         // intra-rank parallelism; 0 means NumCPU
	Hints   domain.PartitionHints
	GPU     bool
	// CVPolicy controls cable discretization; nil means one CV per branch.
	CVPolicy cable.CVPolicy
}

// Simulation owns the constructed network state of one rank and drives the
// epoch loop.
type Simulation struct {
	rec   sim.Recipe
	ctx   sim.Context
	pool  *sim.ThreadPool
	dec   *domain.Decomposition
	table *network.Table

	groups     []cellGroup
	generators [][]genState // per local cell

	// future holds undelivered events per local cell, sorted by time.
	future [][]sim.DeliveryEvent

	now        sim.Time
	epochID    int
	prevSpikes []sim.Spike
	numSpikes  uint64

	onLocalSpikes  func([]sim.Spike)
	onGlobalSpikes func([]sim.Spike)

	recording bool
	recorded  []sim.Spike
}

type genState struct {
	gen    sim.EventGenerator
	target sim.LID
}

// New builds the full per-rank state: decomposition, cell groups, label
// map, connection table and event queues.
func New(cfg Config) (*Simulation, error) {
	if cfg.Recipe == nil {
		return nil, fmt.Errorf("simulation: no recipe")
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = sim.NewLocalContext()
	}
	pool := sim.NewThreadPool(cfg.Threads)
	policy := cfg.CVPolicy
	if policy == nil {
		policy = cable.CVPolicyFixedPerBranch(1)
	}

	meters := sim.NewMeterManager(ctx)

	dec, err := domain.Partition(cfg.Recipe, ctx, domain.Resources{Threads: pool.Threads(), HasGPU: cfg.GPU}, cfg.Hints)
	if err != nil {
		return nil, fmt.Errorf("domain decomposition: %w", err)
	}
	meters.Checkpoint("decomposition")

	s := &Simulation{rec: cfg.Recipe, ctx: ctx, pool: pool, dec: dec}

	// Group construction also yields every cell's label ranges.
	var labels sim.CellLabelsAndGIDs
	for _, gd := range dec.Groups {
		var g cellGroup
		var gerr error
		switch gd.Kind {
		case sim.CableCell:
			g, gerr = cable.NewGroup(gd.GIDs, cfg.Recipe, gd.Backend, policy)
		case sim.LIFCell:
			g, gerr = NewLIFGroup(gd.GIDs, cfg.Recipe)
		case sim.SpikeSourceCell:
			g, gerr = NewSpikeSourceGroup(gd.GIDs, cfg.Recipe)
		case sim.BenchmarkCell:
			g, gerr = NewBenchmarkGroup(gd.GIDs, cfg.Recipe)
		default:
			gerr = fmt.Errorf("unknown cell kind %v", gd.Kind)
		}
		if gerr != nil {
			return nil, fmt.Errorf("constructing %s group: %w", gd.Kind, gerr)
		}
		s.groups = append(s.groups, g)
		labels.Ranges = append(labels.Ranges, g.Labels().Ranges...)
	}
	network.SortRanges(labels.Ranges)
	meters.Checkpoint("cell groups")

	resolver := network.NewResolver(network.BuildLabelMap(ctx, labels))
	meters.Checkpoint("label map")

	s.table, err = network.BuildTable(cfg.Recipe, dec, resolver, ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("connection table: %w", err)
	}
	meters.Checkpoint("connection table")

	s.future = make([][]sim.DeliveryEvent, dec.NumLocalCells)

	// Event generators resolve their targets against the same resolver.
	s.generators = make([][]genState, dec.NumLocalCells)
	idx := 0
	for _, gd := range dec.Groups {
		for _, gid := range gd.GIDs {
			for _, gen := range cfg.Recipe.EventGeneratorsOn(gid) {
				lid, rerr := resolver.Resolve(gid, gen.Target(), network.RoundRobin)
				if rerr != nil {
					return nil, rerr
				}
				s.generators[idx] = append(s.generators[idx], genState{gen: gen, target: lid})
			}
			idx++
		}
	}

	logrus.Infof("simulation: rank %d/%d, %s cells in %d groups, %s connections, min delay %g ms",
		ctx.Rank(), ctx.Size(),
		humanize.Comma(int64(dec.NumLocalCells)), len(s.groups),
		humanize.Comma(int64(s.table.NumConnections())), s.table.MinDelay())
	logrus.Debug(meters.Report())
	return s, nil
}

// MinDelay is the global minimum connection delay.
func (s *Simulation) MinDelay() sim.Time { return s.table.MinDelay() }

// NumSpikes is the number of spikes seen in exchanges so far.
func (s *Simulation) NumSpikes() uint64 { return s.numSpikes }

// SetLocalSpikeCallback registers a callback invoked after every epoch
// with the spikes produced on this rank.
func (s *Simulation) SetLocalSpikeCallback(fn func([]sim.Spike)) { s.onLocalSpikes = fn }

// SetGlobalSpikeCallback registers a callback invoked after every exchange
// with the gathered global spikes.
func (s *Simulation) SetGlobalSpikeCallback(fn func([]sim.Spike)) { s.onGlobalSpikes = fn }

// RecordSpikes toggles in-memory accumulation of gathered spikes,
// retrievable with Spikes.
func (s *Simulation) RecordSpikes(on bool) { s.recording = on }

// Spikes returns the recorded global spikes.
func (s *Simulation) Spikes() []sim.Spike { return s.recorded }

// AddSampler attaches schedule-driven sampling to every probe matched by
// the predicate, on every group, returning the association handle.
func (s *Simulation) AddSampler(probes func(sim.ProbeInfo) bool, sched sim.Schedule, fn sim.SamplerFunc) sim.SamplerHandle {
	h := sim.SamplerHandle(uuid.NewString())
	assoc := sim.SamplerAssociation{Handle: h, Probes: probes, Schedule: sched, Sampler: fn}
	for _, g := range s.groups {
		g.AddSampler(assoc)
	}
	return h
}

// RemoveSampler detaches a sampler from every group.
func (s *Simulation) RemoveSampler(h sim.SamplerHandle) {
	for _, g := range s.groups {
		g.RemoveSampler(h)
	}
}

// Reset rewinds the simulation to time zero: group state, event queues,
// generators and the epoch pipeline.
func (s *Simulation) Reset() {
	for _, g := range s.groups {
		g.Reset()
		g.ClearSpikes()
	}
	for i := range s.future {
		s.future[i] = nil
	}
	for _, gens := range s.generators {
		for _, gs := range gens {
			gs.gen.Reset()
		}
	}
	s.now = 0
	s.epochID = 0
	s.prevSpikes = nil
	s.numSpikes = 0
	s.recorded = nil
}

// interval is the half-epoch length: half the min delay, clamped to the
// remaining simulated time.
func (s *Simulation) interval(tfinal sim.Time) sim.Time {
	half := s.table.MinDelay() / 2
	if math.IsInf(half, 1) || half > tfinal-s.now || half >= math.MaxFloat64/4 {
		return tfinal - s.now
	}
	return half
}

// Run advances every group to tfinal with sub-steps of at most dt.
//
// The loop runs two pipelines per epoch: while the groups integrate epoch
// k, the exchange task gathers the spikes of epoch k-1 and turns them into
// delivery events, which is safe because every connection delay spans at
// least two epochs.
func (s *Simulation) Run(tfinal sim.Time, dt sim.Time) error {
	if dt <= 0 {
		return fmt.Errorf("simulation: non-positive dt %g", dt)
	}
	if tfinal <= s.now {
		return nil
	}

	// Seed the first epoch's generator events.
	first := sim.Epoch{ID: s.epochID, T0: s.now, T1: s.now + s.interval(tfinal)}
	s.pullGenerators(first)

	ep := first
	for s.now < tfinal {
		lanes := s.extractLanes(ep)

		next := ep.Advance(minTime(ep.T1+s.interval(tfinal), tfinal))

		// Pipeline 1: exchange the previous epoch's spikes, build events
		// for epoch ep.ID+2, and pull generators for epoch ep.ID+1.
		exchangeDone := make(chan []sim.Spike, 1)
		go func(prev []sim.Spike, next sim.Epoch) {
			gathered := network.Exchange(s.ctx, prev)
			network.MakeEventQueues(gathered, s.table, s.future)
			if next.T1 > next.T0 {
				s.pullGenerators(next)
			}
			exchangeDone <- gathered.Values
		}(s.prevSpikes, next)

		// Pipeline 2: integrate the current epoch.
		err := s.pool.ParallelFor(len(s.groups), func(i int) error {
			lo, _ := s.table.GroupQueueRange(i)
			return s.groups[i].Advance(ep, dt, groupLanes{lanes: lanes, base: int(lo)})
		})
		global := <-exchangeDone
		if err != nil {
			return err
		}

		s.numSpikes += uint64(len(global))
		if s.onGlobalSpikes != nil && len(global) > 0 {
			s.onGlobalSpikes(global)
		}
		if s.recording {
			s.recorded = append(s.recorded, global...)
		}

		// Collect this epoch's local spikes for the next exchange.
		var local []sim.Spike
		for _, g := range s.groups {
			local = append(local, g.Spikes()...)
			g.ClearSpikes()
		}
		if s.onLocalSpikes != nil && len(local) > 0 {
			s.onLocalSpikes(local)
		}
		s.prevSpikes = local

		logrus.Debugf("[t %010.3f] epoch %d done: %s local spikes", ep.T1, ep.ID, humanize.Comma(int64(len(local))))
		s.now = ep.T1
		s.epochID = next.ID
		ep = next
	}

	// Flush the pipeline so the last epoch's spikes reach callbacks and
	// the recorder even though nothing remains to integrate.
	gathered := network.Exchange(s.ctx, s.prevSpikes)
	network.MakeEventQueues(gathered, s.table, s.future)
	s.numSpikes += uint64(len(gathered.Values))
	if s.onGlobalSpikes != nil && len(gathered.Values) > 0 {
		s.onGlobalSpikes(gathered.Values)
	}
	if s.recording {
		s.recorded = append(s.recorded, gathered.Values...)
	}
	s.prevSpikes = nil
	return nil
}

// extractLanes removes the events due before ep.T1 from the future queues
// and returns them as sorted per-cell lanes.
func (s *Simulation) extractLanes(ep sim.Epoch) [][]sim.DeliveryEvent {
	lanes := make([][]sim.DeliveryEvent, len(s.future))
	for i, q := range s.future {
		if len(q) == 0 {
			continue
		}
		sim.SortEvents(q)
		cut := sort.Search(len(q), func(k int) bool { return q[k].Time >= ep.T1 })
		if cut == 0 {
			s.future[i] = q
			continue
		}
		lanes[i] = q[:cut:cut]
		s.future[i] = append([]sim.DeliveryEvent(nil), q[cut:]...)
	}
	return lanes
}

// pullGenerators appends the generator events of the epoch window to the
// future queues.
func (s *Simulation) pullGenerators(ep sim.Epoch) {
	for ci, gens := range s.generators {
		for _, gs := range gens {
			for _, ev := range gs.gen.EventsBetween(ep.T0, ep.T1) {
				ev.Target = gs.target
				s.future[ci] = append(s.future[ci], ev)
			}
		}
	}
}

// groupLanes exposes the slice of lanes belonging to one group.
type groupLanes struct {
	lanes [][]sim.DeliveryEvent
	base  int
}

func (g groupLanes) Lane(i int) []sim.DeliveryEvent {
	return g.lanes[g.base+i]
}

func minTime(a, b sim.Time) sim.Time {
	if a < b {
		return a
	}
	return b
}

package sim

import (
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Schedule enumerates a monotone sequence of times. Callers pull the times
// in consecutive half-open windows [t0, t1); a schedule may be stateful
// between calls, and Reset rewinds it to the start of the run.
type Schedule interface {
	// EventsBetween returns the schedule's times in [t0, t1), ascending.
	// Successive calls must use non-overlapping, ascending windows.
	EventsBetween(t0, t1 Time) []Time
	// Reset rewinds the schedule to time zero.
	Reset()
}

// regularSchedule fires every dt starting at t0, optionally stopping at t1.
type regularSchedule struct {
	start Time
	stop  Time
	dt    Time
}

// RegularSchedule fires at start, start+dt, start+2dt, ... without end.
func RegularSchedule(start, dt Time) Schedule {
	return &regularSchedule{start: start, stop: terminalTime, dt: dt}
}

// RegularScheduleUntil fires every dt in [start, stop).
func RegularScheduleUntil(start, stop, dt Time) Schedule {
	return &regularSchedule{start: start, stop: stop, dt: dt}
}

const terminalTime = Time(1e300)

func (s *regularSchedule) EventsBetween(t0, t1 Time) []Time {
	if s.dt <= 0 {
		return nil
	}
	if t1 > s.stop {
		t1 = s.stop
	}
	if t0 < s.start {
		t0 = s.start
	}
	var out []Time
	// first multiple of dt at or after t0
	n := int64((t0 - s.start) / s.dt)
	for {
		t := s.start + Time(n)*s.dt
		if t < t0 {
			n++
			continue
		}
		if t >= t1 {
			break
		}
		out = append(out, t)
		n++
	}
	return out
}

func (s *regularSchedule) Reset() {}

// explicitSchedule fires at a fixed list of times.
type explicitSchedule struct {
	times []Time
}

// ExplicitSchedule fires at exactly the given times. The input is copied
// and sorted.
func ExplicitSchedule(times []Time) Schedule {
	ts := make([]Time, len(times))
	copy(ts, times)
	sort.Float64s(ts)
	return &explicitSchedule{times: ts}
}

func (s *explicitSchedule) EventsBetween(t0, t1 Time) []Time {
	lo := sort.SearchFloat64s(s.times, t0)
	hi := sort.SearchFloat64s(s.times, t1)
	return s.times[lo:hi]
}

func (s *explicitSchedule) Reset() {}

// poissonSchedule fires as a Poisson process with the given rate. The
// underlying stream is seeded explicitly, so the schedule is deterministic
// for a fixed (key, subsystem, gid) and identical after Reset.
type poissonSchedule struct {
	start Time
	exp   distuv.Exponential
	seed  int64
	next  Time
}

// PoissonSchedule fires with mean rate rateKHz (events per ms) from start
// onward, drawing interarrival times from the stream seeded with seed.
func PoissonSchedule(start Time, rateKHz float64, seed int64) Schedule {
	s := &poissonSchedule{start: start, seed: seed}
	s.exp = distuv.Exponential{Rate: rateKHz, Src: rand.NewSource(uint64(seed))}
	s.next = start + s.exp.Rand()
	return s
}

func (s *poissonSchedule) EventsBetween(t0, t1 Time) []Time {
	var out []Time
	for s.next < t1 {
		if s.next >= t0 {
			out = append(out, s.next)
		}
		s.next += s.exp.Rand()
	}
	return out
}

func (s *poissonSchedule) Reset() {
	s.exp.Src = rand.NewSource(uint64(s.seed))
	s.next = s.start + s.exp.Rand()
}

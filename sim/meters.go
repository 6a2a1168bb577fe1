package sim

import (
	"fmt"
	"strings"
	"time"
)

// MeterManager measures the wall time of construction phases. Checkpoints
// reduce with MaxTime over the context so the report shows the slowest
// rank, which is the one everyone waited for.
type MeterManager struct {
	ctx  Context
	last time.Time

	names     []string
	durations []float64 // ms, max over ranks
}

// NewMeterManager starts measuring immediately.
func NewMeterManager(ctx Context) *MeterManager {
	return &MeterManager{ctx: ctx, last: time.Now()}
}

// Checkpoint closes the phase since the previous checkpoint under the
// given name. The barrier keeps rank skew out of the next phase's
// measurement.
func (m *MeterManager) Checkpoint(name string) {
	elapsed := float64(time.Since(m.last)) / float64(time.Millisecond)
	m.names = append(m.names, name)
	m.durations = append(m.durations, m.ctx.MaxTime(elapsed))
	m.ctx.Barrier()
	m.last = time.Now()
}

// Report formats the recorded phases.
func (m *MeterManager) Report() string {
	var b strings.Builder
	b.WriteString("construction meters (slowest rank):")
	for i, name := range m.names {
		fmt.Fprintf(&b, " %s=%.1fms", name, m.durations[i])
	}
	return b.String()
}

// Durations exposes the per-phase times in ms, keyed by checkpoint name.
func (m *MeterManager) Durations() map[string]float64 {
	out := make(map[string]float64, len(m.names))
	for i, name := range m.names {
		out[name] = m.durations[i]
	}
	return out
}

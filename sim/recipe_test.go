package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConnection(t *testing.T) {
	ok := ConnectionDescription{
		Source: SourceDescription{GID: 3, Label: "det"},
		Target: "syn",
		Weight: 1,
		Delay:  0.5,
	}

	tests := []struct {
		name    string
		mutate  func(*ConnectionDescription)
		wantErr any
	}{
		{"valid", func(*ConnectionDescription) {}, nil},
		{"source out of range", func(c *ConnectionDescription) { c.Source.GID = 10 }, &BadConnectionSourceError{}},
		{"source above gid limit", func(c *ConnectionDescription) { c.Source.GID = MaxGID/2 + 1 }, &SourceGIDExceedsLimitError{}},
		{"nan weight", func(c *ConnectionDescription) { c.Weight = Weight(math.NaN()) }, &BadConnectionError{}},
		{"infinite weight", func(c *ConnectionDescription) { c.Weight = Weight(math.Inf(1)) }, &BadConnectionError{}},
		{"zero delay", func(c *ConnectionDescription) { c.Delay = 0 }, &BadConnectionError{}},
		{"negative delay", func(c *ConnectionDescription) { c.Delay = -1 }, &BadConnectionError{}},
		{"infinite delay", func(c *ConnectionDescription) { c.Delay = math.Inf(1) }, &BadConnectionError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ok
			tt.mutate(&c)
			err := ValidateConnection(7, c, 10)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			switch tt.wantErr.(type) {
			case *BadConnectionSourceError:
				var e *BadConnectionSourceError
				assert.ErrorAs(t, err, &e)
			case *SourceGIDExceedsLimitError:
				var e *SourceGIDExceedsLimitError
				assert.ErrorAs(t, err, &e)
			default:
				var e *BadConnectionError
				assert.ErrorAs(t, err, &e)
			}
		})
	}
}

func TestScheduleGenerator(t *testing.T) {
	g := &ScheduleGenerator{
		Site:     "syn",
		Weight:   2,
		Schedule: ExplicitSchedule([]Time{1, 3, 9}),
	}
	assert.Equal(t, "syn", g.Target())

	evs := g.EventsBetween(0, 5)
	require.Len(t, evs, 2)
	assert.Equal(t, Time(1), evs[0].Time)
	assert.Equal(t, Weight(2), evs[0].Weight)

	g.Reset()
	assert.Len(t, g.EventsBetween(0, 5), 2)
}

func TestTiledContext_GatherGIDs(t *testing.T) {
	ctx := NewTiledContext(2, 50)
	g := ctx.GatherGIDs([]GID{1, 7})
	require.Equal(t, []uint{0, 2, 4}, g.Part)
	assert.Equal(t, []GID{1, 7, 51, 57}, g.Values)
}

package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/neuron-sim/neuron-sim/sim"
	"github.com/neuron-sim/neuron-sim/sim/cable"
	"github.com/neuron-sim/neuron-sim/sim/engine"
)

func TestRingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RingConfig)
		wantErr bool
	}{
		{"defaults", func(*RingConfig) {}, false},
		{"too few cells", func(c *RingConfig) { c.Cells = 1 }, true},
		{"unknown kind", func(c *RingConfig) { c.Kind = "izhikevich" }, true},
		{"zero delay", func(c *RingConfig) { c.Delay = 0 }, true},
		{"negative dt", func(c *RingConfig) { c.DT = -1 }, true},
		{"cable kind", func(c *RingConfig) { c.Kind = "cable" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRingConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRingConfig_YAMLRoundTrip(t *testing.T) {
	raw := []byte("cells: 8\nkind: cable\nweight: 0.1\ndelay: 2.5\nduration: 30\ndt: 0.05\n")
	cfg := DefaultRingConfig()
	require.NoError(t, yaml.Unmarshal(raw, &cfg))
	assert.Equal(t, 8, cfg.Cells)
	assert.Equal(t, "cable", cfg.Kind)
	assert.Equal(t, 2.5, cfg.Delay)
	require.NoError(t, cfg.Validate())
}

func TestRingRecipe_WiresARing(t *testing.T) {
	rec := NewRingRecipe(DefaultRingConfig())
	require.Equal(t, 20, rec.NumCells())

	// cell 0's input comes from the last cell
	conns := rec.ConnectionsOn(0)
	require.Len(t, conns, 1)
	assert.Equal(t, sim.GID(19), conns[0].Source.GID)

	conns = rec.ConnectionsOn(7)
	assert.Equal(t, sim.GID(6), conns[0].Source.GID)

	// only cell 0 is kicked
	assert.Len(t, rec.EventGeneratorsOn(0), 1)
	assert.Empty(t, rec.EventGeneratorsOn(1))
}

func TestRingRecipe_CableDescription(t *testing.T) {
	cfg := DefaultRingConfig()
	cfg.Kind = "cable"
	rec := NewRingRecipe(cfg)

	assert.Equal(t, sim.CableCell, rec.Kind(0))
	cd, err := rec.Description(0)
	require.NoError(t, err)
	desc, ok := cd.(*cable.Description)
	require.True(t, ok)
	assert.Len(t, desc.Placings, 2)
	require.Len(t, rec.ProbesOn(0), 1)
}

func TestRingRecipe_LIFRingRuns(t *testing.T) {
	cfg := DefaultRingConfig()
	cfg.Cells = 6
	rec := NewRingRecipe(cfg)

	s, err := engine.New(engine.Config{Recipe: rec})
	require.NoError(t, err)
	s.RecordSpikes(true)
	require.NoError(t, s.Run(10, cfg.DT))
	assert.NotEmpty(t, s.Spikes())
}

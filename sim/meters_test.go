package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeterManager_RecordsPhases(t *testing.T) {
	m := NewMeterManager(NewLocalContext())
	time.Sleep(time.Millisecond)
	m.Checkpoint("build")
	m.Checkpoint("wire")

	d := m.Durations()
	require.Len(t, d, 2)
	assert.Greater(t, d["build"], 0.0)
	assert.GreaterOrEqual(t, d["wire"], 0.0)

	report := m.Report()
	assert.Contains(t, report, "build=")
	assert.Contains(t, report, "wire=")
}

package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegularSchedule_Windows(t *testing.T) {
	s := RegularSchedule(0, 0.5)

	assert.Equal(t, []Time{0, 0.5}, s.EventsBetween(0, 1))
	assert.Equal(t, []Time{1, 1.5}, s.EventsBetween(1, 2))
	// window boundaries are half-open
	assert.Equal(t, []Time{2}, s.EventsBetween(2, 2.5))
	assert.Empty(t, s.EventsBetween(2.6, 2.9))
}

func TestRegularScheduleUntil_Stops(t *testing.T) {
	s := RegularScheduleUntil(0, 1.0, 0.25)
	assert.Equal(t, []Time{0, 0.25, 0.5, 0.75}, s.EventsBetween(0, 10))
}

func TestExplicitSchedule_SortsInput(t *testing.T) {
	s := ExplicitSchedule([]Time{3, 1, 2})
	assert.Equal(t, []Time{1, 2}, s.EventsBetween(0.5, 2.5))
	assert.Equal(t, []Time{3}, s.EventsBetween(2.5, 10))
}

func TestPoissonSchedule_DeterministicAndResettable(t *testing.T) {
	s1 := PoissonSchedule(0, 0.1, 42)
	s2 := PoissonSchedule(0, 0.1, 42)

	a := s1.EventsBetween(0, 100)
	b := s2.EventsBetween(0, 100)
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)

	// consecutive windows continue the stream without overlap
	c := s1.EventsBetween(100, 200)
	for _, tt := range c {
		assert.GreaterOrEqual(t, tt, Time(100))
		assert.Less(t, tt, Time(200))
	}

	// reset rewinds to the identical sequence
	s1.Reset()
	assert.Equal(t, a, s1.EventsBetween(0, 100))
}

func TestPoissonSchedule_DistinctSeeds(t *testing.T) {
	a := PoissonSchedule(0, 0.1, 1).EventsBetween(0, 1000)
	b := PoissonSchedule(0, 0.1, 2).EventsBetween(0, 1000)
	assert.NotEqual(t, a, b)
}

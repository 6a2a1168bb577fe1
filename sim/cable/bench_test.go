package cable

import (
	"math/rand"
	"testing"

	"github.com/neuron-sim/neuron-sim/sim"
)

// BenchmarkSolveHines measures the packed elimination on 64 cells of 128
// CVs each.
func BenchmarkSolveHines(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	const cells, cvs = 64, 128
	n := cells * cvs

	d0 := make([]float64, n)
	u0 := make([]float64, n)
	rhs0 := make([]float64, n)
	parent := make([]int32, n)
	divs := make([]uint32, cells+1)
	for c := 0; c < cells; c++ {
		base := c * cvs
		divs[c+1] = uint32(base + cvs)
		cd, cu, cr, cp := randomHinesTree(rng, cvs)
		copy(d0[base:], cd)
		copy(u0[base:], cu)
		copy(rhs0[base:], cr)
		for i, p := range cp {
			parent[base+i] = int32(base) + p
		}
	}

	d := make([]float64, n)
	u := make([]float64, n)
	rhs := make([]float64, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		copy(d, d0)
		copy(u, u0)
		copy(rhs, rhs0)
		SolveHines(d, u, rhs, parent, divs)
	}
}

// BenchmarkDiscretize measures CV construction for a 64-branch cell.
func BenchmarkDiscretize(b *testing.B) {
	branches := []Branch{{Parent: -1, Segments: []Segment{{Length: 20, RProx: 3, RDist: 2}}}}
	for i := 1; i < 64; i++ {
		branches = append(branches, Branch{
			Parent:   (i - 1) / 2,
			Segments: []Segment{{Length: 50, RProx: 1.5, RDist: 1}},
		})
	}
	m, err := NewMorphology(branches)
	if err != nil {
		b.Fatal(err)
	}
	desc := &Description{Morph: m}
	props := sim.NeuronDefaults()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Discretize(desc, props, CVPolicyFixedPerBranch(4)); err != nil {
			b.Fatal(err)
		}
	}
}

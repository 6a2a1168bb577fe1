package cable

import (
	"fmt"

	"github.com/neuron-sim/neuron-sim/sim"
)

// MatrixState is the numeric backend of the cable matrix. Implementations
// own the factorization workspace; the engine programs against this
// interface so a device backend can slot in.
type MatrixState interface {
	// Assemble builds the matrix for one step: dt per cell, the current
	// voltage, and the per-CV current [nA] and conductance [µS]
	// accumulated from the mechanisms.
	Assemble(dtCell []sim.Time, voltage, current, conductance []float64)
	// Solve factorizes in place and writes the solution into to.
	Solve(to []float64)
}

// HinesMatrix is the packed cable matrix of one cell group. Indexing CVs
// parent-first makes every off-diagonal entry of row i live in column
// Parent[i] with Parent[i] <= i; elimination then needs one bottom-up pass
// and one top-down pass.
type HinesMatrix struct {
	// Parent is the packed CV parent index; roots are self-parented.
	Parent []int32
	// CellCVDivs partitions rows by cell; elimination never crosses it.
	CellCVDivs []uint32

	// Invariant parts, set at construction.
	faceConductance []float64 // u[i]: off-diagonal between i and Parent[i]
	cvCapacitance   []float64 // pF
	d0              []float64 // diagonal sum of face conductances

	// Step state.
	d   []float64
	u   []float64
	rhs []float64
}

// NewHinesMatrix builds the invariant structure from the group layout.
func NewHinesMatrix(parent []int32, cellCVDivs []uint32, capacitance, faceConductance []float64) (*HinesMatrix, error) {
	n := len(parent)
	if len(capacitance) != n || len(faceConductance) != n {
		return nil, fmt.Errorf("hines: mismatched array lengths")
	}
	if int(cellCVDivs[len(cellCVDivs)-1]) != n {
		return nil, fmt.Errorf("hines: cell partition does not cover the matrix")
	}
	m := &HinesMatrix{
		Parent:          parent,
		CellCVDivs:      cellCVDivs,
		faceConductance: faceConductance,
		cvCapacitance:   capacitance,
		d0:              make([]float64, n),
		d:               make([]float64, n),
		u:               make([]float64, n),
		rhs:             make([]float64, n),
	}
	for i := 0; i < n; i++ {
		p := int(parent[i])
		if p > i {
			return nil, fmt.Errorf("hines: row %d has parent %d after it", i, p)
		}
		if p != i {
			g := faceConductance[i]
			m.u[i] = -g
			m.d0[i] += g
			m.d0[p] += g
		}
	}
	return m, nil
}

// Size is the matrix dimension.
func (m *HinesMatrix) Size() int { return len(m.Parent) }

// NumCells is the number of packed cell blocks.
func (m *HinesMatrix) NumCells() int { return len(m.CellCVDivs) - 1 }

// Assemble builds d and rhs for one step. With gi = 1e-3·C_i/dt + g_i:
//
//	d_i   = gi + Σ faces
//	rhs_i = gi·v_i − i_i
//
// where i_i is the mechanism current evaluated at v_i and g_i its
// conductance, so the membrane current enters implicitly to first order.
// C is in pF, dt in ms, g in µS, i in nA; every term is µS·mV = nA.
// A cell with dt = 0 gets a zero diagonal block and rhs = v: the solve
// leaves it unchanged.
func (m *HinesMatrix) Assemble(dtCell []sim.Time, voltage, current, conductance []float64) {
	for c := 0; c < m.NumCells(); c++ {
		lo, hi := m.CellCVDivs[c], m.CellCVDivs[c+1]
		dt := dtCell[c]
		if dt == 0 {
			for i := lo; i < hi; i++ {
				m.d[i] = 0
				m.rhs[i] = voltage[i]
			}
			continue
		}
		oodt := 1e-3 / dt
		for i := lo; i < hi; i++ {
			gi := m.cvCapacitance[i]*oodt + conductance[i]
			m.d[i] = gi + m.d0[i]
			m.rhs[i] = gi*voltage[i] - current[i]
		}
	}
}

// Solve eliminates in place and writes the solution into to.
func (m *HinesMatrix) Solve(to []float64) {
	SolveHines(m.d, m.u, m.rhs, m.Parent, m.CellCVDivs)
	copy(to, m.rhs)
}

// SolveHines performs the in-place Thomas-like elimination of a packed
// Hines system: one bottom-up pass folding every row into its parent, then
// a top-down back-substitution. Blocks whose root diagonal is zero are
// identity blocks and keep their rhs.
func SolveHines(d, u, rhs []float64, parent []int32, cellCVDivs []uint32) {
	for c := 0; c < len(cellCVDivs)-1; c++ {
		lo, hi := int(cellCVDivs[c]), int(cellCVDivs[c+1])
		if lo == hi {
			continue
		}
		if d[lo] == 0 {
			continue
		}
		for i := hi - 1; i > lo; i-- {
			factor := u[i] / d[i]
			p := parent[i]
			d[p] -= factor * u[i]
			rhs[p] -= factor * rhs[i]
		}
		rhs[lo] /= d[lo]
		for i := lo + 1; i < hi; i++ {
			rhs[i] -= u[i] * rhs[parent[i]]
			rhs[i] /= d[i]
		}
	}
}

package cable

import (
	"fmt"

	"github.com/neuron-sim/neuron-sim/sim"
)

// ArrayView is the backend's storage for per-CV quantities. The multicore
// backend stores plain host slices; a device backend would mirror them.
type ArrayView []float64

// Fill sets every element to v.
func (a ArrayView) Fill(v float64) {
	for i := range a {
		a[i] = v
	}
}

// Backend creates the numeric state of a cell group. The engine holds only
// MatrixState and ArrayView values, so backends are interchangeable.
type Backend interface {
	Name() string
	NewArray(n int) ArrayView
	NewMatrixState(parent []int32, cellCVDivs []uint32, capacitance, faceConductance []float64) (MatrixState, error)
}

// MulticoreBackend is the host backend.
type MulticoreBackend struct{}

func (MulticoreBackend) Name() string { return "multicore" }

func (MulticoreBackend) NewArray(n int) ArrayView { return make(ArrayView, n) }

func (MulticoreBackend) NewMatrixState(parent []int32, cellCVDivs []uint32, capacitance, faceConductance []float64) (MatrixState, error) {
	return NewHinesMatrix(parent, cellCVDivs, capacitance, faceConductance)
}

// NewBackend returns the backend for the requested kind. The device
// backend is an interface contract only; requesting it without device
// support is a resource error.
func NewBackend(kind sim.BackendKind) (Backend, error) {
	switch kind {
	case sim.Multicore:
		return MulticoreBackend{}, nil
	default:
		return nil, fmt.Errorf("backend %s not built into this binary", kind)
	}
}

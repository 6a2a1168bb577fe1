package cable

import (
	"fmt"
	"math"

	"github.com/neuron-sim/neuron-sim/sim"
)

// Physical constants for the Nernst equation.
const (
	gasConstant = 8.31446261815324 // J/(mol·K)
	faraday     = 96485.33212      // C/mol
)

// NernstPotential returns the reversal potential in mV of an ion with
// valence z at temperature tempK, given internal and external
// concentrations in mM.
func NernstPotential(z int, tempK, xi, xo float64) (float64, error) {
	if z == 0 {
		return 0, fmt.Errorf("nernst: ion valence must be non-zero")
	}
	if xi <= 0 || xo <= 0 {
		return 0, fmt.Errorf("nernst: concentrations must be positive, got internal %g external %g", xi, xo)
	}
	return 1e3 * gasConstant * tempK / (float64(z) * faraday) * math.Log(xo/xi), nil
}

// reversalPotential resolves one ion's reversal potential at a site: the
// painted override wins, then the configured method.
func reversalPotential(def sim.IonDefaults, tempK float64, override *float64) (float64, error) {
	if override != nil {
		return *override, nil
	}
	if def.Method == sim.RevPotNernst {
		return NernstPotential(def.Charge, tempK, def.InternalConc, def.ExternalConc)
	}
	return def.ReversalPotential, nil
}

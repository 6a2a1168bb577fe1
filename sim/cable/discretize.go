package cable

import (
	"fmt"
	"math"
	"sort"

	"github.com/neuron-sim/neuron-sim/sim"
)

// CVPolicy decides how many control volumes subdivide each branch.
type CVPolicy interface {
	NumCV(m *Morphology, branch int) int
}

// CVPolicyFixedPerBranch splits every branch into n equal CVs.
type CVPolicyFixedPerBranch int

func (n CVPolicyFixedPerBranch) NumCV(*Morphology, int) int {
	if n < 1 {
		return 1
	}
	return int(n)
}

// CVPolicyEverySegment gives each segment of a branch its own CV.
type CVPolicyEverySegment struct{}

func (CVPolicyEverySegment) NumCV(m *Morphology, branch int) int {
	return len(m.Branches[branch].Segments)
}

// Discretization is the control-volume view of one cell. CVs are indexed
// parent-first: CVParent[i] < i for every non-root CV.
type Discretization struct {
	Morph *Morphology

	CVParent []int32 // -1 for the root
	CVCable  []Cable // the interval of the branch each CV covers

	FaceConductance []float64            // µS, between CV i and its parent
	FaceDiffusivity map[string][]float64 // µm²/ms, per diffusive ion
	CVArea          []float64            // µm²
	CVCapacitance   []float64            // pF
	InitPotential   []float64            // mV
	TemperatureK    []float64            // K
	DiamUM          []float64            // µm
	CVLength        []float64            // µm

	branchCVs   [][]int32
	resistivity []paramPieces // per branch, Ω·cm
}

// paramPieces is a piecewise-constant parameter along one branch: the value
// on [Cuts[i], Cuts[i+1]) is Values[i]. Cuts[0] = 0 and the implicit end is 1.
type paramPieces struct {
	Cuts   []float64
	Values []float64
}

func (p paramPieces) at(pos float64) float64 {
	i := sort.SearchFloat64s(p.Cuts, pos)
	if i == len(p.Cuts) || p.Cuts[i] > pos {
		i--
	}
	return p.Values[i]
}

// buildPieces lays the paintings' values for one parameter over one branch.
// Later paintings override earlier ones where they overlap.
func buildPieces(branch int, dflt float64, paintings []Painting, pick func(*Painting) *float64) paramPieces {
	cutset := map[float64]bool{0: true}
	for i := range paintings {
		if pick(&paintings[i]) == nil {
			continue
		}
		for _, c := range paintings[i].Region {
			if c.Branch == branch {
				cutset[c.Lo] = true
				cutset[c.Hi] = true
			}
		}
	}
	cuts := make([]float64, 0, len(cutset))
	for c := range cutset {
		if c < 1 {
			cuts = append(cuts, c)
		}
	}
	sort.Float64s(cuts)
	values := make([]float64, len(cuts))
	for i, lo := range cuts {
		values[i] = dflt
		for j := range paintings {
			v := pick(&paintings[j])
			if v == nil {
				continue
			}
			for _, c := range paintings[j].Region {
				if c.Branch == branch && c.Lo <= lo && lo < c.Hi {
					values[i] = *v
				}
			}
		}
	}
	return paramPieces{Cuts: cuts, Values: values}
}

// integrateParamArea integrates the piecewise parameter against membrane
// area over the cable, splitting at parameter cuts.
func integrateParamArea(m *Morphology, c Cable, p paramPieces) float64 {
	var sum float64
	lo := c.Lo
	for lo < c.Hi {
		hi := c.Hi
		// clip at the next parameter cut
		for _, cut := range p.Cuts {
			if cut > lo && cut < hi {
				hi = cut
				break
			}
		}
		sum += p.at(lo) * m.integrateArea(Cable{Branch: c.Branch, Lo: lo, Hi: hi})
		lo = hi
	}
	return sum
}

func integrateParamIXA(m *Morphology, c Cable, p paramPieces) float64 {
	var sum float64
	lo := c.Lo
	for lo < c.Hi {
		hi := c.Hi
		for _, cut := range p.Cuts {
			if cut > lo && cut < hi {
				hi = cut
				break
			}
		}
		sum += p.at(lo) * m.integrateIXA(Cable{Branch: c.Branch, Lo: lo, Hi: hi})
		lo = hi
	}
	return sum
}

// Discretize reduces one cable cell to its control-volume system.
func Discretize(desc *Description, props sim.GlobalProperties, policy CVPolicy) (*Discretization, error) {
	m := desc.Morph
	if m == nil || len(m.Branches) == 0 {
		return nil, fmt.Errorf("discretize: cell has no morphology")
	}

	d := &Discretization{
		Morph:           m,
		FaceDiffusivity: make(map[string][]float64),
	}

	// Assign CVs branch by branch; branch order implies parent-first CV
	// order.
	d.branchCVs = make([][]int32, len(m.Branches))
	for b := range m.Branches {
		n := policy.NumCV(m, b)
		ids := make([]int32, n)
		for k := 0; k < n; k++ {
			id := int32(len(d.CVParent))
			ids[k] = id
			var parent int32
			switch {
			case k > 0:
				parent = ids[k-1]
			case m.Branches[b].Parent == -1:
				parent = -1
			default:
				pcvs := d.branchCVs[m.Branches[b].Parent]
				parent = pcvs[len(pcvs)-1]
			}
			d.CVParent = append(d.CVParent, parent)
			d.CVCable = append(d.CVCable, Cable{
				Branch: b,
				Lo:     float64(k) / float64(n),
				Hi:     float64(k+1) / float64(n),
			})
		}
		d.branchCVs[b] = ids
	}

	nCV := len(d.CVParent)
	d.FaceConductance = make([]float64, nCV)
	d.CVArea = make([]float64, nCV)
	d.CVCapacitance = make([]float64, nCV)
	d.InitPotential = make([]float64, nCV)
	d.TemperatureK = make([]float64, nCV)
	d.DiamUM = make([]float64, nCV)
	d.CVLength = make([]float64, nCV)

	// Per-branch piecewise parameters from the paintings.
	d.resistivity = make([]paramPieces, len(m.Branches))
	capacitance := make([]paramPieces, len(m.Branches))
	potential := make([]paramPieces, len(m.Branches))
	temperature := make([]paramPieces, len(m.Branches))
	for b := range m.Branches {
		d.resistivity[b] = buildPieces(b, props.AxialResistivity, desc.Paintings,
			func(p *Painting) *float64 { return p.AxialResistivity })
		capacitance[b] = buildPieces(b, props.MembraneCapacitance, desc.Paintings,
			func(p *Painting) *float64 { return p.Capacitance })
		potential[b] = buildPieces(b, props.InitPotential, desc.Paintings,
			func(p *Painting) *float64 { return p.InitPotential })
		temperature[b] = buildPieces(b, props.TemperatureK, desc.Paintings,
			func(p *Painting) *float64 { return p.TemperatureK })
	}

	diffusive := map[string]float64{}
	for name, ion := range props.Ions {
		if ion.Diffusivity != 0 {
			if ion.Diffusivity < 0 || math.IsNaN(ion.Diffusivity) {
				return nil, fmt.Errorf("discretize: ion %q has non-positive diffusivity", name)
			}
			// m²/s to µm²/ms
			diffusive[name] = ion.Diffusivity * 1e9
			d.FaceDiffusivity[name] = make([]float64, nCV)
		}
	}

	for i := 0; i < nCV; i++ {
		cv := d.CVCable[i]
		b := cv.Branch

		// Face conductance between this CV and its parent: flux is taken
		// over the span from the parent reference point to this CV's
		// midpoint, both on this branch. The parent reference is its
		// midpoint when the parent lies on the same branch, else the
		// branch point at the proximal end.
		if p := d.CVParent[i]; p != -1 {
			parentRef := 0.0
			if pc := d.CVCable[p]; pc.Branch == b {
				parentRef = 0.5 * (pc.Lo + pc.Hi)
			}
			cvRef := 0.5 * (cv.Lo + cv.Hi)
			span := Cable{Branch: b, Lo: parentRef, Hi: cvRef}
			resistance := integrateParamIXA(m, span, d.resistivity[b])
			d.FaceConductance[i] = 100 / resistance // 100 scales to µS
			for name, D := range diffusive {
				inv := paramPieces{Cuts: []float64{0}, Values: []float64{1 / D}}
				r := integrateParamIXA(m, span, inv)
				d.FaceDiffusivity[name][i] = 1 / r
			}
		}

		d.CVArea[i] = m.integrateArea(cv)
		d.CVLength[i] = m.integrateLength(cv)
		d.CVCapacitance[i] = integrateParamArea(m, cv, capacitance[b])
		d.InitPotential[i] = integrateParamArea(m, cv, potential[b])
		d.TemperatureK[i] = integrateParamArea(m, cv, temperature[b])

		if a := d.CVArea[i]; a > 0 {
			d.InitPotential[i] /= a
			d.TemperatureK[i] /= a
			for name := range diffusive {
				d.FaceDiffusivity[name][i] /= a
			}
			d.DiamUM[i] = a / (d.CVLength[i] * math.Pi)
		}
	}

	// Zero-area CVs take their intensive values from a neighbour.
	for i := 0; i < nCV; i++ {
		if d.CVArea[i] > 0 {
			continue
		}
		if p := d.CVParent[i]; p != -1 && d.CVArea[p] > 0 {
			d.InitPotential[i] = d.InitPotential[p]
			d.TemperatureK[i] = d.TemperatureK[p]
			continue
		}
		for j := i + 1; j < nCV; j++ {
			if d.CVParent[j] == int32(i) && d.CVArea[j] > 0 {
				d.InitPotential[i] = d.InitPotential[j]
				d.TemperatureK[i] = d.TemperatureK[j]
				break
			}
		}
	}

	return d, nil
}

// NumCV is the number of control volumes of the cell.
func (d *Discretization) NumCV() int { return len(d.CVParent) }

// CVAt returns the CV containing the site.
func (d *Discretization) CVAt(s Site) int32 {
	cvs := d.branchCVs[s.Branch]
	for _, id := range cvs {
		c := d.CVCable[id]
		if s.Pos <= c.Hi {
			return id
		}
	}
	return cvs[len(cvs)-1]
}

// Children returns the CVs whose parent is i, ascending.
func (d *Discretization) Children(i int32) []int32 {
	var out []int32
	for j := i + 1; j < int32(len(d.CVParent)); j++ {
		if d.CVParent[j] == i {
			out = append(out, j)
		}
	}
	return out
}

// InterpolateVoltage evaluates the membrane voltage at a site from the
// cell-local CV voltage vector. The value interpolates between the
// reference point of the site's CV and that of an adjacent CV spanning the
// site, with coefficients proportional to axial resistance.
func (d *Discretization) InterpolateVoltage(s Site, v []float64) float64 {
	i := d.CVAt(s)
	c := d.CVCable[i]
	mid := 0.5 * (c.Lo + c.Hi)

	var j int32 = -1
	var refJ float64
	if s.Pos < mid {
		if p := d.CVParent[i]; p != -1 {
			j = p
			if pc := d.CVCable[p]; pc.Branch == s.Branch {
				refJ = 0.5 * (pc.Lo + pc.Hi)
			} else {
				refJ = 0 // branch point
			}
		}
	} else {
		for _, ch := range d.Children(i) {
			if cc := d.CVCable[ch]; cc.Branch == s.Branch {
				j = ch
				refJ = 0.5 * (cc.Lo + cc.Hi)
				break
			}
		}
	}
	if j == -1 {
		return v[i]
	}

	rTo := func(a, b float64) float64 {
		if a > b {
			a, b = b, a
		}
		return integrateParamIXA(d.Morph, Cable{Branch: s.Branch, Lo: a, Hi: b}, d.resistivity[s.Branch])
	}
	r1 := rTo(s.Pos, mid)
	r2 := rTo(s.Pos, refJ)
	if r1+r2 == 0 {
		return v[i]
	}
	return (r2*v[i] + r1*v[j]) / (r1 + r2)
}

// Package cable implements the multi-compartment cell kind: branched
// morphologies, the finite-volume discretization, the mechanism catalogue,
// the Hines matrix backend, and the cable cell group integrator.
package cable

import (
	"fmt"
	"math"
)

// Segment is one tapered cylindrical frustum. Lengths and radii in µm.
type Segment struct {
	Length float64
	RProx  float64
	RDist  float64
}

// Branch is a maximal unbranched cable: a chain of segments. Parent is the
// index of the parent branch, or -1 for the root. The distal end of the
// parent joins the proximal end of the child.
type Branch struct {
	Parent   int
	Segments []Segment
}

// Length is the total length of the branch in µm.
func (b Branch) Length() float64 {
	var l float64
	for _, s := range b.Segments {
		l += s.Length
	}
	return l
}

// Morphology is the tree of branches of one cell. Branches are indexed so
// that every branch's parent precedes it.
type Morphology struct {
	Branches []Branch
}

// NewMorphology validates the branch tree: parents precede children, the
// first branch is the root, segments have positive length and non-negative
// radii.
func NewMorphology(branches []Branch) (*Morphology, error) {
	for i, b := range branches {
		if i == 0 && b.Parent != -1 {
			return nil, fmt.Errorf("morphology: branch 0 must be the root")
		}
		if i > 0 && (b.Parent < 0 || b.Parent >= i) {
			return nil, fmt.Errorf("morphology: branch %d has invalid parent %d", i, b.Parent)
		}
		if len(b.Segments) == 0 {
			return nil, fmt.Errorf("morphology: branch %d has no segments", i)
		}
		for j, s := range b.Segments {
			if s.Length <= 0 || math.IsNaN(s.Length) {
				return nil, fmt.Errorf("morphology: branch %d segment %d has non-positive length", i, j)
			}
			if s.RProx < 0 || s.RDist < 0 {
				return nil, fmt.Errorf("morphology: branch %d segment %d has negative radius", i, j)
			}
		}
	}
	return &Morphology{Branches: branches}, nil
}

// SomaMorphology is the degenerate single-branch cell: one cylinder with
// the given radius and length.
func SomaMorphology(radius, length float64) *Morphology {
	return &Morphology{Branches: []Branch{{
		Parent:   -1,
		Segments: []Segment{{Length: length, RProx: radius, RDist: radius}},
	}}}
}

// Cable is a contiguous interval of one branch, with relative positions in
// [0, 1] measured from the proximal end.
type Cable struct {
	Branch int
	Lo     float64
	Hi     float64
}

// Site is a point on a branch at relative position in [0, 1].
type Site struct {
	Branch int
	Pos    float64
}

// Region is a set of cables.
type Region []Cable

// Locset is a list of sites. Order matters: a placement on a locset with k
// sites produces k items with consecutive lids.
type Locset []Site

// WholeCell returns the region covering every branch.
func (m *Morphology) WholeCell() Region {
	r := make(Region, len(m.Branches))
	for i := range m.Branches {
		r[i] = Cable{Branch: i, Lo: 0, Hi: 1}
	}
	return r
}

// Root returns the locset holding the proximal end of the root branch.
func (m *Morphology) Root() Locset {
	return Locset{{Branch: 0, Pos: 0}}
}

// radiusAt returns the interpolated radius at relative position pos of
// branch b.
func (m *Morphology) radiusAt(b int, pos float64) float64 {
	br := m.Branches[b]
	total := br.Length()
	x := pos * total
	for _, s := range br.Segments {
		if x <= s.Length {
			f := 0.0
			if s.Length > 0 {
				f = x / s.Length
			}
			return s.RProx + f*(s.RDist-s.RProx)
		}
		x -= s.Length
	}
	last := br.Segments[len(br.Segments)-1]
	return last.RDist
}

// integrateArea returns the lateral surface area in µm² of the cable c,
// summing exact frustum areas over the covered segment pieces.
func (m *Morphology) integrateArea(c Cable) float64 {
	var area float64
	m.overPieces(c, func(l, r1, r2 float64) {
		slant := math.Sqrt(l*l + (r2-r1)*(r2-r1))
		area += math.Pi * (r1 + r2) * slant
	})
	return area
}

// integrateLength returns the length in µm of the cable c.
func (m *Morphology) integrateLength(c Cable) float64 {
	return (c.Hi - c.Lo) * m.Branches[c.Branch].Length()
}

// integrateIXA returns ∫ 1/(π a(x)²) dx over the cable c, in 1/µm. The
// per-piece closed form for a linear taper is l/(π·r1·r2).
func (m *Morphology) integrateIXA(c Cable) float64 {
	var ixa float64
	m.overPieces(c, func(l, r1, r2 float64) {
		if r1 <= 0 || r2 <= 0 {
			ixa += math.Inf(1)
			return
		}
		ixa += l / (math.Pi * r1 * r2)
	})
	return ixa
}

// overPieces visits each segment piece covered by c with its length and end
// radii.
func (m *Morphology) overPieces(c Cable, visit func(l, r1, r2 float64)) {
	br := m.Branches[c.Branch]
	total := br.Length()
	lo := c.Lo * total
	hi := c.Hi * total
	var x float64
	for _, s := range br.Segments {
		segLo := x
		segHi := x + s.Length
		x = segHi
		pLo := math.Max(lo, segLo)
		pHi := math.Min(hi, segHi)
		if pHi <= pLo {
			continue
		}
		f1 := (pLo - segLo) / s.Length
		f2 := (pHi - segLo) / s.Length
		r1 := s.RProx + f1*(s.RDist-s.RProx)
		r2 := s.RProx + f2*(s.RDist-s.RProx)
		visit(pHi-pLo, r1, r2)
	}
}

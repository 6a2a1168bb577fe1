package cable

import (
	"fmt"
	"sort"

	"github.com/neuron-sim/neuron-sim/sim"
)

// TargetHandle maps a target lid to the point mechanism site that consumes
// its events.
type TargetHandle struct {
	Mech PointMechanism
	Site int
}

// Detector is one placed threshold detector.
type Detector struct {
	Cell      int
	CV        int32 // packed CV index
	Threshold float64
	LID       sim.LID
}

// Stimulus is one placed current clamp.
type Stimulus struct {
	Cell  int
	CV    int32 // packed CV index
	Clamp IClamp
}

// IonConfig is the per-ion instantiation over the group: the CVs the ion
// lives on and its reversal potential there.
type IonConfig struct {
	Name      string
	Charge    int
	Support   []int32 // packed CV indices, ascending
	Erev      []float64
	Diffusive bool
}

// GroupLayout packs the CV systems of a group's cells into one dense index
// space and instantiates mechanism, detector, stimulus and gap-junction
// state over it.
type GroupLayout struct {
	GIDs       []sim.GID
	Discs      []*Discretization
	CellCVDivs []uint32 // cell c owns CVs [CellCVDivs[c], CellCVDivs[c+1])

	// Packed geometry. Roots are self-parented.
	CVParent        []int32
	FaceConductance []float64
	CVArea          []float64
	CVCapacitance   []float64
	InitPotential   []float64
	TemperatureK    []float64

	Density []Mechanism
	Points  []PointMechanism
	Targets [][]TargetHandle // per cell, indexed by target lid

	Detectors []Detector
	Stimuli   []Stimulus

	Junction      *linearGJ
	JunctionPeers []int32 // packed CV of the peer side per junction site

	Ions map[string]*IonConfig

	// Labels carries the source/target/junction label ranges of every
	// cell, for the label-map gather.
	Labels sim.CellLabelsAndGIDs

	// Multiplicity per point mechanism, by site, after coalescing.
	PointMultiplicity [][]float64
}

// NumCV is the total packed CV count.
func (l *GroupLayout) NumCV() int { return len(l.CVParent) }

// density sites accumulate per (mechanism, packed CV) while scanning the
// paintings, so overlapping paintings of the same mechanism area-average
// into one site.
type densityAcc struct {
	info  *MechanismInfo
	byCV  map[int32]*densitySite
	order []int32
}

type densitySite struct {
	area   float64
	params map[string]float64 // area-weighted sums
	erev   map[string]float64
	temp   float64
}

// BuildGroupLayout discretizes and instruments every cell of a cable
// group.
func BuildGroupLayout(gids []sim.GID, rec sim.Recipe, cat *Catalogue, policy CVPolicy) (*GroupLayout, error) {
	props := rec.GlobalProperties(sim.CableCell)
	l := &GroupLayout{
		GIDs: gids,
		Ions: make(map[string]*IonConfig),
	}

	// Pack per-cell discretizations.
	l.CellCVDivs = append(l.CellCVDivs, 0)
	descs := make([]*Description, len(gids))
	for ci, gid := range gids {
		cd, err := rec.Description(gid)
		if err != nil {
			return nil, err
		}
		desc, ok := cd.(*Description)
		if !ok {
			return nil, &sim.BadCellDescriptionError{GID: gid, Kind: sim.CableCell}
		}
		descs[ci] = desc
		disc, err := Discretize(desc, props, policy)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", gid, err)
		}
		l.Discs = append(l.Discs, disc)

		base := int32(l.CellCVDivs[ci])
		for i := 0; i < disc.NumCV(); i++ {
			p := disc.CVParent[i]
			if p == -1 {
				l.CVParent = append(l.CVParent, base+int32(i)) // root: self
			} else {
				l.CVParent = append(l.CVParent, base+p)
			}
		}
		l.FaceConductance = append(l.FaceConductance, disc.FaceConductance...)
		l.CVArea = append(l.CVArea, disc.CVArea...)
		l.CVCapacitance = append(l.CVCapacitance, disc.CVCapacitance...)
		l.InitPotential = append(l.InitPotential, disc.InitPotential...)
		l.TemperatureK = append(l.TemperatureK, disc.TemperatureK...)
		l.CellCVDivs = append(l.CellCVDivs, uint32(len(l.CVParent)))
	}

	if err := l.buildDensity(descs, cat, props); err != nil {
		return nil, err
	}
	if err := l.buildPlacements(descs, cat, props); err != nil {
		return nil, err
	}
	if err := l.buildGapJunctions(rec, descs, cat); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *GroupLayout) packedCV(cell int, cv int32) int32 {
	return int32(l.CellCVDivs[cell]) + cv
}

// cvIntersection returns the overlap of the region with the CV's cable and
// its membrane area.
func cvIntersection(disc *Discretization, region Region, cv int32) (float64, bool) {
	c := disc.CVCable[cv]
	var area float64
	for _, rc := range region {
		if rc.Branch != c.Branch {
			continue
		}
		lo := maxf(rc.Lo, c.Lo)
		hi := minf(rc.Hi, c.Hi)
		if hi > lo {
			area += disc.Morph.integrateArea(Cable{Branch: c.Branch, Lo: lo, Hi: hi})
		}
	}
	return area, area > 0
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// buildDensity scans the density paintings of every cell, accumulates
// area-weighted sites per (mechanism, CV), runs the ion passes, and
// instantiates the mechanisms.
func (l *GroupLayout) buildDensity(descs []*Description, cat *Catalogue, props sim.GlobalProperties) error {
	accs := make(map[string]*densityAcc)
	var accOrder []string

	for ci, desc := range descs {
		disc := l.Discs[ci]
		for _, p := range desc.Paintings {
			if p.Density == nil {
				continue
			}
			info, err := cat.Info(p.Density.Name)
			if err != nil {
				return err
			}
			if info.Kind != DensityKind {
				return &sim.CableCellError{GID: l.GIDs[ci], Detail: fmt.Sprintf("mechanism %q is not a density mechanism", info.Name)}
			}
			params, err := resolveParams(info, *p.Density, 1)
			if err != nil {
				return err
			}
			acc, ok := accs[info.Name]
			if !ok {
				acc = &densityAcc{info: info, byCV: make(map[int32]*densitySite)}
				accs[info.Name] = acc
				accOrder = append(accOrder, info.Name)
			}
			for cv := int32(0); cv < int32(disc.NumCV()); cv++ {
				area, ok := cvIntersection(disc, p.Region, cv)
				if !ok {
					continue
				}
				pcv := l.packedCV(ci, cv)
				site, ok := acc.byCV[pcv]
				if !ok {
					site = &densitySite{
						params: make(map[string]float64),
						erev:   make(map[string]float64),
						temp:   disc.TemperatureK[cv],
					}
					acc.byCV[pcv] = site
					acc.order = append(acc.order, pcv)
				}
				site.area += area
				for name := range params {
					site.params[name] += params[name][0] * area
				}
				for ion := range info.Ions {
					var override *float64
					if ov, ok := p.IonReversalPotential[ion]; ok {
						override = &ov
					}
					erev, rerr := reversalPotential(props.Ions[ion], site.temp, override)
					if rerr != nil {
						return &sim.CableCellError{GID: l.GIDs[ci], Detail: rerr.Error()}
					}
					site.erev[ion] = erev
				}
			}
		}
	}

	// Ion pass 1: per-ion CV support and charge checks from the scanned
	// mechanism usage.
	support := make(map[string]map[int32]bool)
	writers := make(map[string]map[int32]int)
	for _, name := range accOrder {
		acc := accs[name]
		for ion, dep := range acc.info.Ions {
			def, ok := props.Ions[ion]
			if !ok {
				return &sim.CableCellError{GID: l.GIDs[0], Detail: fmt.Sprintf("ion %q of mechanism %q missing from global properties", ion, name)}
			}
			if def.Charge != dep.Charge {
				return &sim.CableCellError{GID: l.GIDs[0], Detail: fmt.Sprintf("mechanism %q expects ion %q with charge %d, global properties say %d", name, ion, dep.Charge, def.Charge)}
			}
			if support[ion] == nil {
				support[ion] = make(map[int32]bool)
				writers[ion] = make(map[int32]int)
			}
			for _, pcv := range acc.order {
				support[ion][pcv] = true
				if dep.WritesConc {
					writers[ion][pcv]++
					if writers[ion][pcv] > 1 {
						return &sim.CableCellError{GID: l.GIDs[0], Detail: fmt.Sprintf("two mechanisms write the concentration of ion %q on one control volume", ion)}
					}
				}
			}
		}
	}

	// Ion pass 2: build the ion configs. Diffusive ions are instantiated
	// everywhere.
	for ion, cvs := range support {
		def := props.Ions[ion]
		cfg := &IonConfig{Name: ion, Charge: def.Charge, Diffusive: def.Diffusivity != 0}
		if cfg.Diffusive {
			for i := 0; i < l.NumCV(); i++ {
				cfg.Support = append(cfg.Support, int32(i))
			}
		} else {
			for cv := range cvs {
				cfg.Support = append(cfg.Support, cv)
			}
			sort.Slice(cfg.Support, func(i, j int) bool { return cfg.Support[i] < cfg.Support[j] })
		}
		cfg.Erev = make([]float64, len(cfg.Support))
		for i, cv := range cfg.Support {
			erev, rerr := reversalPotential(def, l.TemperatureK[cv], nil)
			if rerr != nil {
				return &sim.CableCellError{GID: l.GIDs[0], Detail: rerr.Error()}
			}
			cfg.Erev[i] = erev
		}
		l.Ions[ion] = cfg
	}

	// Ion pass 3: instantiate mechanisms with their per-site views.
	for _, name := range accOrder {
		acc := accs[name]
		n := len(acc.order)
		cfg := instanceConfig{
			node:  make([]int32, n),
			param: make(map[string][]float64),
			area:  make([]float64, n),
			temp:  make([]float64, n),
			erev:  make(map[string][]float64),
		}
		for pname := range acc.info.Params {
			cfg.param[pname] = make([]float64, n)
		}
		for ion := range acc.info.Ions {
			cfg.erev[ion] = make([]float64, n)
		}
		for k, pcv := range acc.order {
			site := acc.byCV[pcv]
			cfg.node[k] = pcv
			cfg.area[k] = site.area
			cfg.temp[k] = site.temp
			for pname := range acc.info.Params {
				cfg.param[pname][k] = site.params[pname] / site.area
			}
			for ion := range acc.info.Ions {
				cfg.erev[ion][k] = site.erev[ion]
			}
		}
		m, err := cat.build(name, cfg)
		if err != nil {
			return err
		}
		l.Density = append(l.Density, m)
	}
	return nil
}

// paramSignature serializes a parameter override set for coalescing.
func paramSignature(desc MechanismDesc) string {
	names := make([]string, 0, len(desc.Params))
	for n := range desc.Params {
		names = append(names, n)
	}
	sort.Strings(names)
	sig := desc.Name
	for _, n := range names {
		sig += fmt.Sprintf(";%s=%g", n, desc.Params[n])
	}
	return sig
}

// buildPlacements numbers the placed items of every cell and instantiates
// point mechanisms, detectors and stimuli. Lids count per category in
// placement order; labels are unique per cell.
func (l *GroupLayout) buildPlacements(descs []*Description, cat *Catalogue, props sim.GlobalProperties) error {
	type pointSite struct {
		cell int
		cv   int32
		desc MechanismDesc
		lid  sim.LID
	}
	sitesByMech := make(map[string][]pointSite)
	var mechOrder []string

	l.Targets = make([][]TargetHandle, len(descs))
	targetCount := make([]sim.LID, len(descs))
	sourceCount := make([]sim.LID, len(descs))

	for ci, desc := range descs {
		gid := l.GIDs[ci]
		disc := l.Discs[ci]
		seen := make(map[string]bool)
		for _, p := range desc.Placings {
			if p.Label == "" {
				return &sim.CableCellError{GID: gid, Detail: "placement without a label"}
			}
			if seen[p.Label] {
				return &sim.CableCellError{GID: gid, Detail: fmt.Sprintf("label %q placed twice", p.Label)}
			}
			seen[p.Label] = true

			switch p.Kind {
			case PlaceSynapse:
				info, err := cat.Info(p.Synapse.Name)
				if err != nil {
					return err
				}
				if info.Kind != PointKind {
					return &sim.CableCellError{GID: gid, Detail: fmt.Sprintf("mechanism %q is not a point mechanism", info.Name)}
				}
				lo := targetCount[ci]
				for _, s := range p.Locset {
					lid := targetCount[ci]
					targetCount[ci]++
					if _, ok := sitesByMech[info.Name]; !ok {
						mechOrder = append(mechOrder, info.Name)
					}
					sitesByMech[info.Name] = append(sitesByMech[info.Name], pointSite{
						cell: ci,
						cv:   l.packedCV(ci, disc.CVAt(s)),
						desc: *p.Synapse,
						lid:  lid,
					})
				}
				l.addLabel(gid, p.Label, lo, targetCount[ci])

			case PlaceDetector:
				lo := sourceCount[ci]
				for _, s := range p.Locset {
					lid := sourceCount[ci]
					sourceCount[ci]++
					l.Detectors = append(l.Detectors, Detector{
						Cell:      ci,
						CV:        l.packedCV(ci, disc.CVAt(s)),
						Threshold: p.Threshold,
						LID:       lid,
					})
				}
				l.addLabel(gid, p.Label, lo, sourceCount[ci])

			case PlaceStimulus:
				for _, s := range p.Locset {
					l.Stimuli = append(l.Stimuli, Stimulus{
						Cell:  ci,
						CV:    l.packedCV(ci, disc.CVAt(s)),
						Clamp: *p.Stimulus,
					})
				}
				// Stimuli take no network events; no label range.

			case PlaceGapJunction:
				// Numbered in buildGapJunctions, which needs the recipe's
				// edge list; here only the label range is reserved.
			}
		}
	}

	// Instantiate point mechanisms, coalescing identical sites on one CV
	// when the catalogue marks the mechanism linear.
	for _, name := range mechOrder {
		sites := sitesByMech[name]
		info, _ := cat.Info(name)
		coalesce := props.CoalesceSynapses && info.Linear

		type key struct {
			cv  int32
			sig string
		}
		idx := make(map[key]int)
		cfg := instanceConfig{param: make(map[string][]float64)}
		for pname := range info.Params {
			cfg.param[pname] = nil
		}
		var mult []float64
		var handleOf []int // site index per input site

		for _, s := range sites {
			k := key{cv: s.cv, sig: paramSignature(s.desc)}
			if site, ok := idx[k]; ok && coalesce {
				mult[site]++
				handleOf = append(handleOf, site)
				continue
			}
			params, err := resolveParams(info, s.desc, 1)
			if err != nil {
				return err
			}
			site := len(cfg.node)
			idx[k] = site
			cfg.node = append(cfg.node, s.cv)
			for pname := range info.Params {
				cfg.param[pname] = append(cfg.param[pname], params[pname][0])
			}
			mult = append(mult, 1)
			handleOf = append(handleOf, site)
		}
		cfg.mult = mult

		m, err := cat.build(name, cfg)
		if err != nil {
			return err
		}
		pm, ok := m.(PointMechanism)
		if !ok {
			return &sim.CableCellError{GID: l.GIDs[0], Detail: fmt.Sprintf("mechanism %q does not accept events", name)}
		}
		l.Points = append(l.Points, pm)
		l.PointMultiplicity = append(l.PointMultiplicity, mult)

		for i, s := range sites {
			handles := l.Targets[s.cell]
			for sim.LID(len(handles)) <= s.lid {
				handles = append(handles, TargetHandle{})
			}
			handles[s.lid] = TargetHandle{Mech: pm, Site: handleOf[i]}
			l.Targets[s.cell] = handles
		}
	}
	return nil
}

func (l *GroupLayout) addLabel(gid sim.GID, label string, lo, hi sim.LID) {
	l.Labels.Ranges = append(l.Labels.Ranges, sim.LabelRange{
		GID: gid, Label: label, Lo: lo, Hi: hi,
	})
}

// buildGapJunctions numbers the junction sites of every cell and wires the
// peer CV of each site from the recipe's edge list. Every peer must be a
// member of this group.
func (l *GroupLayout) buildGapJunctions(rec sim.Recipe, descs []*Description, cat *Catalogue) error {
	cellOf := make(map[sim.GID]int, len(l.GIDs))
	for ci, gid := range l.GIDs {
		cellOf[gid] = ci
	}

	// Number the junction sites per cell, in placement order.
	type gjSite struct {
		cv int32
	}
	siteOf := make(map[sim.GID]map[string]gjSite)
	gjCount := make([]sim.LID, len(descs))
	for ci, desc := range descs {
		gid := l.GIDs[ci]
		disc := l.Discs[ci]
		siteOf[gid] = make(map[string]gjSite)
		for _, p := range desc.Placings {
			if p.Kind != PlaceGapJunction {
				continue
			}
			if len(p.Locset) != 1 {
				return &sim.GJUnsupportedLidSelectionPolicy{GID: gid, Label: p.Label}
			}
			lo := gjCount[ci]
			gjCount[ci]++
			siteOf[gid][p.Label] = gjSite{cv: l.packedCV(ci, disc.CVAt(p.Locset[0]))}
			l.addLabel(gid, p.Label, lo, gjCount[ci])
		}
	}

	var cfg instanceConfig
	cfg.param = map[string][]float64{"g": nil}
	for _, gid := range l.GIDs {
		for _, gj := range rec.GapJunctionsOn(gid) {
			local, ok := siteOf[gid][gj.Local]
			if !ok {
				return &sim.BadConnectionLabelError{GID: gid, Label: gj.Local, Reason: "gap junction label not placed"}
			}
			if _, ok := cellOf[gj.Peer]; !ok {
				return &sim.GJDomainMismatchError{A: gid, B: gj.Peer}
			}
			peer, ok := siteOf[gj.Peer][gj.PeerLabel]
			if !ok {
				return &sim.BadConnectionLabelError{GID: gj.Peer, Label: gj.PeerLabel, Reason: "gap junction label not placed"}
			}
			cfg.node = append(cfg.node, local.cv)
			cfg.mult = append(cfg.mult, gj.Conductance)
			cfg.param["g"] = append(cfg.param["g"], 1)
			l.JunctionPeers = append(l.JunctionPeers, peer.cv)
		}
	}
	if len(cfg.node) > 0 {
		m, err := cat.build("gj", cfg)
		if err != nil {
			return err
		}
		l.Junction = m.(*linearGJ)
	}
	return nil
}

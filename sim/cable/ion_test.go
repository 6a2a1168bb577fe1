package cable

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuron-sim/neuron-sim/sim"
)

// concWriter is a test density mechanism that writes the ca concentration.
func concWriterInfo(name string) *MechanismInfo {
	return &MechanismInfo{
		Name:   name,
		Kind:   DensityKind,
		Params: map[string]ParamSpec{"rate": {Default: 1, Min: 0, Max: math.MaxFloat64}},
		Ions: map[string]IonDependency{
			"ca": {Charge: 2, WritesConc: true},
		},
	}
}

type concWriter struct {
	cfg instanceConfig
	mi  *MechanismInfo
}

func (m *concWriter) Info() *MechanismInfo { return m.mi }
func (m *concWriter) Node() []int32 { return m.cfg.node }
func (m *concWriter) InitState([]float64) {}
func (m *concWriter) Current([]float64, []float64, []float64) {}
func (m *concWriter) Advance(sim.Time, []float64) {}

func catalogueWithWriters(t *testing.T, names ...string) *Catalogue {
	t.Helper()
	cat := DefaultCatalogue()
	for _, name := range names {
		mi := concWriterInfo(name)
		cat.register(mi, func(cfg instanceConfig) (Mechanism, error) {
			return &concWriter{cfg: cfg, mi: mi}, nil
		})
	}
	return cat
}

func TestLayout_SingleConcentrationWriterAllowed(t *testing.T) {
	rec := newCableRecipe()
	desc := passiveSoma()
	desc.Paint(Painting{
		Region:  desc.Morph.WholeCell(),
		Density: &MechanismDesc{Name: "cadyn"},
	})
	rec.descs[0] = desc

	layout, err := BuildGroupLayout([]sim.GID{0}, rec, catalogueWithWriters(t, "cadyn"), CVPolicyFixedPerBranch(1))
	require.NoError(t, err)
	require.Contains(t, layout.Ions, "ca")
	assert.Equal(t, 2, layout.Ions["ca"].Charge)
}

func TestLayout_OverlappingConcentrationWritersFail(t *testing.T) {
	rec := newCableRecipe()
	desc := passiveSoma()
	desc.Paint(Painting{
		Region:  desc.Morph.WholeCell(),
		Density: &MechanismDesc{Name: "cadyn"},
	})
	desc.Paint(Painting{
		Region:  Region{{Branch: 0, Lo: 0.25, Hi: 0.75}},
		Density: &MechanismDesc{Name: "cadyn2"},
	})
	rec.descs[0] = desc

	_, err := BuildGroupLayout([]sim.GID{0}, rec, catalogueWithWriters(t, "cadyn", "cadyn2"), CVPolicyFixedPerBranch(1))
	var cableErr *sim.CableCellError
	require.ErrorAs(t, err, &cableErr)
}

func TestNernstPotential(t *testing.T) {
	// sodium at 6.3 degC with the neuron defaults
	e, err := NernstPotential(1, 279.45, 10, 140)
	require.NoError(t, err)
	assert.InDelta(t, 63.5, e, 0.5)

	// divalent calcium halves the slope
	eCa, err := NernstPotential(2, 279.45, 10, 140)
	require.NoError(t, err)
	assert.InDelta(t, e/2, eCa, 1e-9)

	// reversed gradient flips the sign
	eRev, err := NernstPotential(1, 279.45, 140, 10)
	require.NoError(t, err)
	assert.InDelta(t, -e, eRev, 1e-9)

	_, err = NernstPotential(1, 279.45, 0, 140)
	assert.Error(t, err)
	_, err = NernstPotential(0, 279.45, 10, 140)
	assert.Error(t, err)
}

func TestLayout_NernstReversalFromConcentrations(t *testing.T) {
	rec := newCableRecipe()
	na := rec.props.Ions["na"]
	na.Method = sim.RevPotNernst
	rec.props.Ions["na"] = na

	desc := passiveSoma()
	desc.Paint(Painting{
		Region:  desc.Morph.WholeCell(),
		Density: &MechanismDesc{Name: "hh"},
	})
	rec.descs[0] = desc

	layout, err := BuildGroupLayout([]sim.GID{0}, rec, DefaultCatalogue(), CVPolicyFixedPerBranch(1))
	require.NoError(t, err)

	want, err := NernstPotential(na.Charge, rec.props.TemperatureK, na.InternalConc, na.ExternalConc)
	require.NoError(t, err)
	require.Contains(t, layout.Ions, "na")
	assert.InDelta(t, want, layout.Ions["na"].Erev[0], 1e-9)
	// the constant-method potassium keeps its configured value
	assert.InDelta(t, rec.props.Ions["k"].ReversalPotential, layout.Ions["k"].Erev[0], 1e-9)
}

func TestLayout_DiffusiveIonCoversAllCVs(t *testing.T) {
	rec := newCableRecipe()
	ca := rec.props.Ions["ca"]
	ca.Diffusivity = 1e-9
	rec.props.Ions["ca"] = ca

	desc := yShapedCell()
	// writer only on branch 1, but the diffusive ion must span every CV
	desc.Paint(Painting{
		Region:  Region{{Branch: 1, Lo: 0, Hi: 1}},
		Density: &MechanismDesc{Name: "cadyn"},
	})
	rec.descs[0] = desc

	layout, err := BuildGroupLayout([]sim.GID{0}, rec, catalogueWithWriters(t, "cadyn"), CVPolicyFixedPerBranch(2))
	require.NoError(t, err)
	require.Contains(t, layout.Ions, "ca")
	assert.Len(t, layout.Ions["ca"].Support, layout.NumCV())
	assert.True(t, layout.Ions["ca"].Diffusive)
}

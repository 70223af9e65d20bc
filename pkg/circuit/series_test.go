package circuit

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-pv/pkg/device"
)

func TestSeriesReference(t *testing.T) {
	s := newString10(t)

	total := sumPower(s.Bind)
	assert.InDelta(t, referencePower, total, 1.0)
}

func TestSeriesReferenceReduced(t *testing.T) {
	r := newString10(t).Reduce()

	total := sumPower(r.Reduced.Bind)
	assert.InDelta(t, referencePower, total, 1.0)
}

func TestSeriesReduceEquivalent(t *testing.T) {
	s := newString10(t)
	reduced := s.Reduce().Reduced
	vtol := s.Solver().VTol

	for _, cond := range referenceConditions[1:3] {
		orig := s.Bind(cond.Irradiance, cond.Temperature)
		red := reduced.Bind(cond.Irradiance, cond.Temperature)

		for _, i := range []float64{0.5, 2, 3.5} {
			want, ev := orig.VFromI(nil, i)
			require.Nil(t, ev, "%v i=%g", cond, i)
			got, ev := red.VFromI(nil, i)
			require.Nil(t, ev, "%v i=%g", cond, i)
			assert.InDelta(t, want, got, 0.01, "%v i=%g", cond, i)
		}

		for _, v := range referenceVoltages[:4] {
			i, ev := red.IFromV(nil, v)
			require.Nil(t, ev, "%v v=%g", cond, v)

			// The reduced current lands within tolerance on the original string
			back, _ := orig.VFromI(nil, i)
			assert.InDelta(t, v, back, vtol+0.01, "%v v=%g", cond, v)
		}
	}
}

func TestSeriesVFromIAdditive(t *testing.T) {
	s := newString10(t)
	states := s.UniformStates(800, 30)

	for _, i := range []float64{0.5, 3, 6.5} {
		want := 0.0
		for k, c := range s.Cells() {
			v, _ := c.VFromI(nil, states[k], i)
			want += v
		}
		got, ev := s.VFromI(nil, states, i)
		require.Nil(t, ev)
		assert.Equal(t, want, got)

		vs, _ := s.VsFromI(nil, states, i)
		assert.Len(t, vs, s.Len())
	}
}

func TestSeriesRoundTrip(t *testing.T) {
	s := newString10(t)
	for _, cond := range referenceConditions[1:3] {
		states := s.UniformStates(cond.Irradiance, cond.Temperature)
		for _, v := range referenceVoltages[:4] {
			i, ev := s.IFromV(nil, states, v)
			require.Nil(t, ev, "%v v=%g", cond, v)
			v2, _ := s.VFromI(nil, states, i)
			assert.Less(t, math.Abs(v2-v), s.Solver().VTol, "%v v=%g", cond, v)
		}
	}
}

func TestSeriesReduce(t *testing.T) {
	s := newString10(t)
	before := s.Describe()

	r := s.Reduce()

	assert.Equal(t, "[{15,1}, {2,2}, {3,1}]", r.Reduced.Describe())
	if diff := cmp.Diff([]int{0, 1, 2, 2, 0, 2, 1, 0, 0, 0}, r.OriginToReduced); diff != "" {
		t.Errorf("OriginToReduced mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]int{{0, 4, 7, 8, 9}, {1, 6}, {2, 3, 5}}, r.ReducedToOrigin); diff != "" {
		t.Errorf("ReducedToOrigin mismatch (-want +got):\n%s", diff)
	}

	// Maps are mutually consistent
	for j, origins := range r.ReducedToOrigin {
		for _, i := range origins {
			assert.Equal(t, j, r.OriginToReduced[i])
		}
	}

	assert.Equal(t, before, s.Describe(), "receiver must not change")
	assert.Equal(t, s.Solver(), r.Reduced.Solver())
	assert.Equal(t, s.Name(), r.Reduced.Name())
}

func TestSeriesReduceIdempotent(t *testing.T) {
	r := newString10(t).Reduce()
	again := r.Reduced.Reduce()

	assert.Equal(t, r.Reduced.Describe(), again.Reduced.Describe())
	assert.Equal(t, []int{0, 1, 2}, again.OriginToReduced)
	assert.Equal(t, [][]int{{0}, {1}, {2}}, again.ReducedToOrigin)
}

func TestSeriesReduceEmpty(t *testing.T) {
	r := NewSeries("empty").Reduce()
	assert.Equal(t, 0, r.Reduced.Len())
	assert.Empty(t, r.OriginToReduced)
	assert.Empty(t, r.ReducedToOrigin)
}

func TestSeriesSearchGainFloor(t *testing.T) {
	s := newString10(t)
	s.SetSolver(SeriesSolver{MaxIter: 50, VTol: 1e-6, MinGain: 0.5})
	states := s.UniformStates(800, 30)

	res := s.search(device.Nop, states, 480)
	assert.LessOrEqual(t, res.iterations, 50)
	assert.GreaterOrEqual(t, res.minGain, 0.5)
}

func TestSeriesNonConvergence(t *testing.T) {
	s := newString10(t)
	s.SetSolver(SeriesSolver{MaxIter: 1, VTol: 0.1, MinGain: 0})
	states := s.UniformStates(800, 30)
	ob := newCountingObserver()

	i, ev := s.IFromV(ob, states, 480)
	require.NotNil(t, ev)
	assert.ErrorIs(t, ev, device.ErrNonConvergence)
	assert.Equal(t, device.LevelSeries, ev.Level)
	assert.Equal(t, "IFromV", ev.Op)
	assert.Equal(t, "string10", ev.Element)
	assert.Equal(t, i, ev.Result)
	assert.Equal(t, 1, ob.eventsAt(device.LevelSeries))
	assert.Equal(t, 1, ob.calls[device.LevelSeries])
	assert.Positive(t, ob.calls[device.LevelCell])
}

func TestSeriesStates(t *testing.T) {
	s := newString10(t)

	conds := make([]device.Conditions, s.Len())
	for k := range conds {
		conds[k] = device.Conditions{Irradiance: 600, Temperature: 25}
	}
	states, err := s.States(conds)
	require.NoError(t, err)
	assert.Equal(t, s.UniformStates(600, 25), states)

	_, err = s.States(conds[:3])
	assert.ErrorIs(t, err, ErrConditionCount)
}

func TestSeriesAccessors(t *testing.T) {
	p := newPanels(t)
	s := NewSeries("s", p.pnl0)
	s.Push(p.pnl1)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, p.pnl1, s.Cell(1))

	clone := s.Clone()
	clone.Push(p.pnl2)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 3, clone.Len())

	cells := s.Cells()
	cells[0].Ns = 99
	assert.Equal(t, 3, s.Cell(0).Ns)

	assert.Equal(t, "Series s [{3,1}, {1,2}]", s.String())
}

func TestSeriesSolverValidate(t *testing.T) {
	assert.NoError(t, DefaultSeriesSolver().Validate())
	assert.ErrorIs(t, SeriesSolver{MaxIter: 0, VTol: 0.1}.Validate(), ErrInvalidSolver)
	assert.ErrorIs(t, SeriesSolver{MaxIter: 10, VTol: 0}.Validate(), ErrInvalidSolver)
	assert.ErrorIs(t, SeriesSolver{MaxIter: 10, VTol: 0.1, MinGain: -1}.Validate(), ErrInvalidSolver)
}

func TestSeriesIsParallelEquivalent(t *testing.T) {
	p := newPanels(t)
	double := p.pnl0
	double.Np = 2
	doublePnl2 := p.pnl2
	doublePnl2.Np = 2

	x := NewSeries("x", p.pnl0, p.pnl2)
	y := NewSeries("y", double, doublePnl2)
	z := NewSeries("z", double, p.pnl2)

	assert.True(t, x.IsParallelEquivalent(y))
	assert.True(t, y.IsParallelEquivalent(x))
	assert.False(t, x.IsParallelEquivalent(z), "parallel counts must stay proportional")
	assert.False(t, x.IsParallelEquivalent(NewSeries("w", p.pnl0)))
	assert.False(t, x.IsParallelEquivalent(NewSeries("v", p.pnl2, p.pnl0)))

	k, ok := x.Find(&p.pnl2)
	assert.True(t, ok)
	assert.Equal(t, 1, k)
	_, ok = x.Find(&double)
	assert.False(t, ok)
}

func TestSeriesEmpty(t *testing.T) {
	s := NewSeries("empty")
	ob := newCountingObserver()

	for _, v := range []float64{0, 10} {
		i, ev := s.IFromV(ob, nil, v)
		assert.Nil(t, ev)
		assert.Equal(t, 0.0, i)
	}
	v, ev := s.VFromI(ob, nil, 1)
	assert.Nil(t, ev)
	assert.Equal(t, 0.0, v)
	assert.Equal(t, 2, ob.calls[device.LevelSeries])
	assert.Zero(t, ob.calls[device.LevelCell])
}

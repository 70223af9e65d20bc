package circuit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-pv/pkg/device"
)

const referencePower = 49475.47731878234

var (
	referenceConditions = []device.Conditions{
		{Irradiance: 200, Temperature: 60},
		{Irradiance: 800, Temperature: 30},
		{Irradiance: 600, Temperature: 25},
		{Irradiance: 999, Temperature: 45},
	}
	referenceVoltages = []float64{40 * 6, 80 * 6, 90 * 6, 110 * 6, 125 * 6}
)

type panels struct {
	pnl0, pnl1, pnl2 device.Cell
}

func newPanels(t *testing.T) panels {
	t.Helper()

	pnl0, err := device.NewCell(device.BasicParams{
		A: 1.81, IoRef: 8.5e-11, IlRef: 7.4, Rs: 0.6, RshRef: 600, AlphaSc: 3.8e-3, VocRef: 48.6,
	}, device.WithSeriesCount(3), device.WithParallelCount(1),
		device.WithSolver(device.CellSolver{MaxIter: 100, ITol: 0.001, VTol: 0.01}))
	require.NoError(t, err)

	basic := device.BasicParams{
		A: 1.94, IoRef: 2.5e-11, IlRef: 9.3, Rs: 0.4, RshRef: 600, AlphaSc: 3.8e-3, VocRef: 47.4,
	}
	pnl1, err := device.NewExtendedCell(device.ExtendedParams{
		BasicParams: basic,
		VBypass:     -0.65 * 3.0,
		RBypass:     0.1,
		EgRef:       1.121,
		DEgDT:       -0.0002677,
	}, device.WithParallelCount(2))
	require.NoError(t, err)

	pnl2, err := device.NewCell(basic)
	require.NoError(t, err)

	return panels{pnl0: pnl0, pnl1: pnl1, pnl2: pnl2}
}

// newString10 builds the ten panel reference string.
func newString10(t *testing.T) *Series {
	t.Helper()
	p := newPanels(t)
	s := NewSeries("string10", p.pnl0, p.pnl1, p.pnl2, p.pnl2, p.pnl0, p.pnl2, p.pnl1, p.pnl0, p.pnl0, p.pnl0)
	s.SetSolver(SeriesSolver{MaxIter: 1000, VTol: 0.1, MinGain: 0})
	return s
}

// sumPower accumulates VFromI(IFromV(v)) * IFromV(v) over the reference grid.
func sumPower(op func(irr, temp float64) Operator) float64 {
	total := 0.0
	for _, cond := range referenceConditions {
		bound := op(cond.Irradiance, cond.Temperature)
		for _, v := range referenceVoltages {
			i, _ := bound.IFromV(nil, v)
			v2, _ := bound.VFromI(nil, i)
			total += v2 * i
		}
	}
	return total
}

type countingObserver struct {
	calls  map[device.Level]int
	events []*device.NonConvergence
}

func newCountingObserver() *countingObserver {
	return &countingObserver{calls: make(map[device.Level]int)}
}

func (o *countingObserver) SolverCall(level device.Level) { o.calls[level]++ }

func (o *countingObserver) NonConvergence(ev *device.NonConvergence) {
	o.events = append(o.events, ev)
}

func (o *countingObserver) eventsAt(level device.Level) int {
	n := 0
	for _, ev := range o.events {
		if ev.Level == level {
			n++
		}
	}
	return n
}

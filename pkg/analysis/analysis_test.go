package analysis

import (
	"context"
	"os"
	"testing"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-pv/pkg/circuit"
	"github.com/edp1096/toy-pv/pkg/device"
	"github.com/edp1096/toy-pv/pkg/metrics"
	"github.com/edp1096/toy-pv/pkg/netlist"
)

const referencePower = 49475.47731878234

func loadNetlist(t *testing.T, path string) (*circuit.Circuit, *netlist.NetlistData) {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	data, err := netlist.Parse(string(content))
	require.NoError(t, err)

	ckt := circuit.New(data.Title)
	ckt.SetModels(data.Models)
	for level, params := range data.Solvers {
		require.NoError(t, ckt.SetSolverParameters(level, params))
	}
	require.NoError(t, ckt.SetupDevices(data.Elements))
	ckt.SetTop(data.Top)
	return ckt, data
}

func runSweep(t *testing.T, opts ...Option) *Sweep {
	t.Helper()
	ckt, data := loadNetlist(t, "../../examples/netlists/string10.cir")

	dc := NewSweep(data.Conditions, data.Voltages(), opts...)
	require.NoError(t, dc.Setup(ckt))
	require.NoError(t, dc.Execute(context.Background()))
	return dc
}

func TestSweepReference(t *testing.T) {
	for _, reduce := range []bool{false, true} {
		dc := runSweep(t, WithReduction(reduce))
		report := dc.Report()

		assert.InDelta(t, referencePower, report.TotalPower, 1.0, "reduce=%v", reduce)
		assert.Equal(t, reduce, report.Reduced)
		assert.Len(t, report.Points, 20)
		assert.Len(t, report.MaxPower, 4)
	}
}

func TestSweepReducedStructure(t *testing.T) {
	assert.Equal(t, "[{3,1}, {1,2}, {1,1}, {1,1}, {3,1}, {1,1}, {1,2}, {3,1}, {3,1}, {3,1}]",
		runSweep(t).Report().Structure)
	assert.Equal(t, "[{15,1}, {2,2}, {3,1}]", runSweep(t, WithReduction(true)).Report().Structure)
}

func TestSweepOrderAndResults(t *testing.T) {
	dc := runSweep(t, WithWorkers(4))
	report := dc.Report()

	voltages := dc.Voltages()
	for k, p := range report.Points {
		assert.Equal(t, voltages[k%len(voltages)], p.Voltage)
		assert.Equal(t, p.VoltageBack*p.Current, p.Power)
	}
	assert.Equal(t, 200.0, report.Points[0].Irradiance)
	assert.Equal(t, 999.0, report.Points[19].Irradiance)

	results := dc.GetResults()
	for _, key := range []string{"IRRAD", "TEMP", "SWEEP1", "I", "V(I)", "P"} {
		assert.Len(t, results[key], 20, key)
	}

	for k, mp := range report.MaxPower {
		row := report.Points[k*5 : (k+1)*5]
		for _, p := range row {
			assert.LessOrEqual(t, p.Power, mp.Power)
		}
		assert.Equal(t, row[0].Irradiance, mp.Irradiance)
	}
}

func TestSweepWorkersDeterministic(t *testing.T) {
	serial := runSweep(t, WithWorkers(1)).Report()
	parallel := runSweep(t, WithWorkers(8)).Report()
	assert.Equal(t, serial, parallel)
}

func TestSweepObserver(t *testing.T) {
	rec, err := metrics.NewRecorder(prometheus.NewRegistry(), logr.Discard())
	require.NoError(t, err)

	runSweep(t, WithObserver(rec), WithWorkers(4))
	assert.Equal(t, 20.0, rec.Calls(device.LevelSeries))
	assert.Greater(t, rec.Calls(device.LevelCell), 20.0)
	assert.Equal(t, 0.0, rec.Calls(device.LevelParallel))
}

func TestSweepCanceled(t *testing.T) {
	ckt, data := loadNetlist(t, "../../examples/netlists/string10.cir")
	dc := NewSweep(data.Conditions, data.Voltages())
	require.NoError(t, dc.Setup(ckt))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, dc.Execute(ctx), context.Canceled)
}

func TestSweepSetupErrors(t *testing.T) {
	ckt, data := loadNetlist(t, "../../examples/netlists/string10.cir")

	assert.ErrorIs(t, NewSweep(nil, data.Voltages()).Setup(ckt), ErrNoConditions)
	assert.ErrorIs(t, NewSweep(data.Conditions, nil).Setup(ckt), ErrNoVoltages)
	assert.ErrorIs(t, NewSweep(data.Conditions, data.Voltages()).Setup(circuit.New("empty")), circuit.ErrNoTopology)
	assert.ErrorIs(t, NewSweep(data.Conditions, data.Voltages()).Execute(context.Background()), ErrNotSetup)
}

func TestDCSweepRange(t *testing.T) {
	dc := NewDCSweep([]device.Conditions{{Irradiance: 1000, Temperature: 25}}, 0, 450, 15)
	voltages := dc.Voltages()
	require.Len(t, voltages, 31)
	assert.Equal(t, 0.0, voltages[0])
	assert.InDelta(t, 450.0, voltages[30], 1e-9)
}

func TestArraySweep(t *testing.T) {
	ckt, data := loadNetlist(t, "../../examples/netlists/array.cir")
	dc := NewSweep(data.Conditions, data.Voltages(), WithReduction(true))
	require.NoError(t, dc.Setup(ckt))
	require.NoError(t, dc.Execute(context.Background()))

	report := dc.Report()
	assert.Equal(t, "P1", report.Array)
	assert.Equal(t, "([{9,2}] | [{6,1}, {3,1}])", report.Structure)
	assert.Len(t, report.Points, 2*len(data.Voltages()))
	require.Len(t, report.MaxPower, 2)
	assert.Greater(t, report.MaxPower[0].Power, report.MaxPower[1].Power)
}

func TestOperatingPoint(t *testing.T) {
	ckt, data := loadNetlist(t, "../../examples/netlists/op.cir")
	require.Equal(t, netlist.AnalysisOP, data.Analysis)

	op := NewOP(data.OPParam.Irradiance, data.OPParam.Temperature, data.OPParam.Voltage)
	require.NoError(t, op.Setup(ckt))
	require.NoError(t, op.Execute(context.Background()))

	p := op.Point()
	assert.Equal(t, 240.0, p.Voltage)
	assert.Positive(t, p.Current)
	assert.InDelta(t, 240.0, p.VoltageBack, 0.1)
	assert.Equal(t, p.VoltageBack*p.Current, p.Power)

	results := op.GetResults()
	assert.Equal(t, []float64{p.Current}, results["I"])
	assert.Equal(t, []float64{p.Power}, results["P"])
	assert.Empty(t, op.Events())
}

func TestReduce(t *testing.T) {
	ckt, _ := loadNetlist(t, "../../examples/netlists/string10.cir")

	report, err := Reduce(ckt)
	require.NoError(t, err)
	assert.Equal(t, "S1", report.Array)
	assert.Equal(t, 10, report.Elements)
	assert.Equal(t, 3, report.ReducedElements)
	assert.Equal(t, "[{15,1}, {2,2}, {3,1}]", report.Reduced)
	assert.Equal(t, []int{0, 1, 2, 2, 0, 2, 1, 0, 0, 0}, report.OriginToReduced)
	assert.Equal(t, [][]int{{0, 4, 7, 8, 9}, {1, 6}, {2, 3, 5}}, report.ReducedToOrigin)

	_, err = Reduce(circuit.New("empty"))
	assert.ErrorIs(t, err, circuit.ErrNoTopology)
}

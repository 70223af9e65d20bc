package metrics

import (
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-pv/pkg/device"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg, logr.Discard())
	require.NoError(t, err)

	r.SolverCall(device.LevelCell)
	r.SolverCall(device.LevelCell)
	r.SolverCall(device.LevelSeries)

	assert.Equal(t, 2.0, r.Calls(device.LevelCell))
	assert.Equal(t, 1.0, r.Calls(device.LevelSeries))
	assert.Equal(t, 0.0, r.Calls(device.LevelParallel))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.calls.WithLabelValues("cell")))

	expected := `
# HELP pvsim_solver_calls_total Number of solver invocations by topology level.
# TYPE pvsim_solver_calls_total counter
pvsim_solver_calls_total{level="cell"} 2
pvsim_solver_calls_total{level="parallel"} 0
pvsim_solver_calls_total{level="series"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "pvsim_solver_calls_total"))
}

func TestRecorderNonConvergence(t *testing.T) {
	var lines []string
	log := funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{})

	r, err := NewRecorder(prometheus.NewRegistry(), log)
	require.NoError(t, err)

	r.NonConvergence(device.NewNonConvergence(device.LevelCell, "SolveI", "X1", 10, 1e-3, 1, 2.5))
	r.NonConvergence(device.NewNonConvergence(device.LevelSeries, "IFromV", "S1", 300, 0.1, 1000, 0))

	assert.Equal(t, 1.0, r.NonConvergences(device.LevelCell, device.SeverityWarning))
	assert.Equal(t, 1.0, r.NonConvergences(device.LevelSeries, device.SeverityError))
	assert.Equal(t, 0.0, r.NonConvergences(device.LevelCell, device.SeverityError))

	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"op"="SolveI"`)
	assert.Contains(t, lines[0], `"severity"="warning"`)
	assert.Contains(t, lines[1], `"element"="S1"`)
	assert.Contains(t, lines[1], `"error"=`)
}

func TestRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg, logr.Discard())
	require.NoError(t, err)

	_, err = NewRecorder(reg, logr.Discard())
	assert.Error(t, err)
}

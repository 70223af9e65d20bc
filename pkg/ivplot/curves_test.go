package ivplot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-pv/pkg/analysis"
)

func curveReport() analysis.Report {
	var points []analysis.Point
	for _, irr := range []float64{400, 800} {
		for k, v := range []float64{0, 100, 200, 300} {
			i := irr / 100 * float64(4-k) / 4
			points = append(points, analysis.Point{
				Irradiance: irr, Temperature: 25,
				Voltage: v, Current: i, VoltageBack: v, Power: v * i,
			})
		}
	}
	return analysis.Report{Array: "S1", Points: points}
}

func TestSplitByCondition(t *testing.T) {
	curves := splitByCondition(curveReport().Points)
	require.Len(t, curves, 2)
	assert.Equal(t, "400 W/m2, 25 C", curves[0].label)
	assert.Len(t, curves[1].points, 4)
}

func TestCurves(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"iv.png", "iv.svg"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Curves(curveReport(), path))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestCurvesUnsupportedFormat(t *testing.T) {
	err := Curves(curveReport(), filepath.Join(t.TempDir(), "iv.bmp"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

package ivplot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	_ "gonum.org/v1/plot/vg/vgimg"
	_ "gonum.org/v1/plot/vg/vgpdf"
	_ "gonum.org/v1/plot/vg/vgsvg"

	"github.com/edp1096/toy-pv/pkg/analysis"
)

var ErrUnsupportedFormat = errors.New("ivplot: unsupported image format")

const (
	width  = 8 * vg.Inch
	height = 4 * vg.Inch
)

// series groups the points of one condition in sweep order.
type series struct {
	label  string
	points []analysis.Point
}

func splitByCondition(points []analysis.Point) []series {
	var out []series
	for _, p := range points {
		label := fmt.Sprintf("%g W/m2, %g C", p.Irradiance, p.Temperature)
		if n := len(out); n > 0 && out[n-1].label == label {
			out[n-1].points = append(out[n-1].points, p)
			continue
		}
		out = append(out, series{label: label, points: []analysis.Point{p}})
	}
	return out
}

func newCurvePlot(title, yLabel string, curves []series, y func(analysis.Point) float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Voltage (V)"
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	for k, c := range curves {
		xys := make(plotter.XYs, len(c.points))
		for j, pt := range c.points {
			xys[j].X = pt.VoltageBack
			xys[j].Y = y(pt)
		}
		line, scatter, err := plotter.NewLinePoints(xys)
		if err != nil {
			return nil, fmt.Errorf("curve %s: %w", c.label, err)
		}
		line.Color = plotutil.Color(k)
		scatter.Color = plotutil.Color(k)
		scatter.Shape = plotutil.Shape(k)
		p.Add(line, scatter)
		p.Legend.Add(c.label, line, scatter)
	}
	return p, nil
}

// Curves renders the I-V curve above the P-V curve of every condition in the
// report. The image format follows the extension of path (png, svg, pdf).
func Curves(report analysis.Report, path string) error {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch format {
	case "png", "svg", "pdf", "jpg", "jpeg":
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	curves := splitByCondition(report.Points)
	iv, err := newCurvePlot(report.Array+" I-V", "Current (A)", curves,
		func(p analysis.Point) float64 { return p.Current })
	if err != nil {
		return err
	}
	pv, err := newCurvePlot(report.Array+" P-V", "Power (W)", curves,
		func(p analysis.Point) float64 { return p.Power })
	if err != nil {
		return err
	}

	img, err := draw.NewFormattedCanvas(width, 2*height, format)
	if err != nil {
		return err
	}
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 2, Cols: 1}
	canvases := plot.Align([][]*plot.Plot{{iv}, {pv}}, tiles, dc)
	iv.Draw(canvases[0][0])
	pv.Draw(canvases[1][0])

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := img.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

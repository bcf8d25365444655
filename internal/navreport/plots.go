package navreport

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	estimateColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	measurementColor = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	biasColors       = [3]color.Color{
		color.RGBA{R: 44, G: 160, B: 44, A: 255},
		color.RGBA{R: 214, G: 39, B: 40, A: 255},
		color.RGBA{R: 148, G: 103, B: 189, A: 255},
	}
)

// Plot size for every PNG.
const (
	plotWidth  = 14 * vg.Inch
	plotHeight = 6 * vg.Inch
)

// WritePlots renders one PNG per velocity axis, one per position axis and
// one for the accelerometer bias into dir. It returns the files written.
func WritePlots(s Series, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}

	var files []string
	for axis := 0; axis < 3; axis++ {
		for _, c := range []struct {
			prefix string
			cmp    Comparison
		}{
			{"velocity", s.Velocity[axis]},
			{"position", s.Position[axis]},
		} {
			p, err := comparisonPlot(c.cmp)
			if err != nil {
				return files, err
			}
			file := filepath.Join(dir, fmt.Sprintf("%s_%s.png", c.prefix, axisNames[axis]))
			if err := p.Save(plotWidth, plotHeight, file); err != nil {
				return files, fmt.Errorf("save %s: %w", file, err)
			}
			files = append(files, file)
		}
	}

	p, err := biasPlot(s.Bias)
	if err != nil {
		return files, err
	}
	file := filepath.Join(dir, "accel_bias.png")
	if err := p.Save(plotWidth, plotHeight, file); err != nil {
		return files, fmt.Errorf("save %s: %w", file, err)
	}
	return append(files, file), nil
}

func comparisonPlot(c Comparison) (*plot.Plot, error) {
	p := newPlot(c.Title, c.Unit)

	if len(c.Estimate) > 0 {
		line, err := plotter.NewLine(xys(c.Estimate))
		if err != nil {
			return nil, err
		}
		line.Color = estimateColor
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("estimate", line)
	}

	if len(c.Measurement) > 0 {
		scatter, err := plotter.NewScatter(xys(c.Measurement))
		if err != nil {
			return nil, err
		}
		scatter.Color = measurementColor
		scatter.Shape = draw.CircleGlyph{}
		scatter.Radius = vg.Points(1.5)
		p.Add(scatter)
		p.Legend.Add("measurement", scatter)
	}
	return p, nil
}

func biasPlot(bias [3][]Point) (*plot.Plot, error) {
	p := newPlot("Accelerometer bias", "m/s²")
	for axis, pts := range bias {
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(xys(pts))
		if err != nil {
			return nil, err
		}
		line.Color = biasColors[axis]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(axisNames[axis], line)
	}
	return p, nil
}

func newPlot(title, unit string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = unit
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p
}

func xys(pts []Point) plotter.XYs {
	out := make(plotter.XYs, len(pts))
	for i, pt := range pts {
		out[i] = plotter.XY{X: pt.T, Y: pt.V}
	}
	return out
}

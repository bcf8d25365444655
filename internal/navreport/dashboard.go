package navreport

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderDashboard writes an HTML page with one line chart per plotted
// quantity.
func RenderDashboard(w io.Writer, s Series, subtitle string) error {
	page := components.NewPage()
	page.SetPageTitle("Navigation")

	for axis := 0; axis < 3; axis++ {
		page.AddCharts(comparisonChart(s.Velocity[axis], subtitle))
	}
	for axis := 0; axis < 3; axis++ {
		page.AddCharts(comparisonChart(s.Position[axis], subtitle))
	}
	page.AddCharts(biasChart(s.Bias, subtitle))

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render dashboard: %w", err)
	}
	return nil
}

func newLineChart(title, unit, subtitle string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: unit}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)
	return line
}

func comparisonChart(c Comparison, subtitle string) *charts.Line {
	line := newLineChart(c.Title, c.Unit, subtitle)
	line.AddSeries("estimate", lineData(c.Estimate),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.AddSeries("measurement", lineData(c.Measurement),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true), SymbolSize: 3}),
		charts.WithLineStyleOpts(opts.LineStyle{Width: 0}))
	return line
}

func biasChart(bias [3][]Point, subtitle string) *charts.Line {
	line := newLineChart("Accelerometer bias", "m/s²", subtitle)
	for axis, pts := range bias {
		line.AddSeries(axisNames[axis], lineData(pts),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}
	return line
}

func lineData(pts []Point) []opts.LineData {
	data := make([]opts.LineData, len(pts))
	for i, pt := range pts {
		data[i] = opts.LineData{Value: []interface{}{pt.T, pt.V}}
	}
	return data
}

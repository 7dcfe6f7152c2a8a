package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// NewTracePlot creates a new time series plot of the closed loop trace:
// the first plant output against the constant reference r and the first
// applied input. It returns error if the trace is empty or either of the
// gonum plotters fails to be created.
func NewTracePlot(trace *Trace, r float64) (*plot.Plot, error) {
	if trace == nil || trace.Samples() == 0 {
		return nil, fmt.Errorf("invalid trace supplied")
	}

	p := plot.New()

	p.Title.Text = "Closed loop simulation"
	p.X.Label.Text = "time"
	p.Y.Label.Text = "magnitude"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	n := trace.Samples()

	// output time series
	yData := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		yData[i].X = trace.Time(i)
		yData[i].Y = trace.y.At(i, 0)
	}
	yLine, err := plotter.NewLine(yData)
	if err != nil {
		return nil, err
	}
	yLine.Color = color.RGBA{B: 255, A: 255}

	p.Add(yLine)
	p.Legend.Add("output", yLine)

	// constant reference
	refData := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		refData[i].X = trace.Time(i)
		refData[i].Y = r
	}
	refLine, err := plotter.NewLine(refData)
	if err != nil {
		return nil, err
	}
	refLine.Color = color.RGBA{R: 255, A: 255}
	refLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(refLine)
	p.Legend.Add("reference", refLine)

	// applied input
	uData := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		uData[i].X = trace.Time(i)
		uData[i].Y = trace.u.At(i, 0)
	}
	uScatter, err := plotter.NewScatter(uData)
	if err != nil {
		return nil, fmt.Errorf("failed to create scatter: %v", err)
	}
	uScatter.GlyphStyle.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}
	uScatter.Shape = draw.CrossGlyph{}

	p.Add(uScatter)
	p.Legend.Add("input", uScatter)

	return p, nil
}

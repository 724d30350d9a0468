package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// New2DPlot creates a new scatter plot of the simulation from three data
// sources, each a matrix whose first two columns are X and Y coordinates:
// truth:   idealised model output
// measure: noisy measurements
// filter:  filter estimates
// It returns error if any of the matrices is nil or has fewer than 2 columns.
func New2DPlot(truth, measure, filter *mat.Dense) (*plot.Plot, error) {
	p := plot.New()

	p.Title.Text = "Simulation"
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	p.Legend.Top = true

	series := []struct {
		name  string
		data  *mat.Dense
		color color.RGBA
		shape draw.GlyphDrawer
	}{
		{"truth", truth, color.RGBA{R: 255, B: 128, A: 255}, draw.PyramidGlyph{}},
		{"measurement", measure, color.RGBA{G: 255, A: 128}, draw.RingGlyph{}},
		{"filtered", filter, color.RGBA{R: 169, G: 169, B: 169, A: 255}, draw.CrossGlyph{}},
	}

	for _, s := range series {
		if s.data == nil {
			return nil, fmt.Errorf("invalid %s data", s.name)
		}
		if _, c := s.data.Dims(); c < 2 {
			return nil, fmt.Errorf("invalid %s data dimensions", s.name)
		}

		scatter, err := plotter.NewScatter(makePoints(s.data))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s scatter: %v", s.name, err)
		}
		scatter.GlyphStyle.Color = s.color
		scatter.Shape = s.shape
		scatter.GlyphStyle.Radius = vg.Points(3)

		p.Add(scatter)
		p.Legend.Add(s.name, scatter)
	}

	return p, nil
}

func makePoints(m *mat.Dense) plotter.XYs {
	r, _ := m.Dims()
	pts := make(plotter.XYs, r)
	for i := 0; i < r; i++ {
		pts[i].X = m.At(i, 0)
		pts[i].Y = m.At(i, 1)
	}

	return pts
}

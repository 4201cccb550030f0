// Package report renders experiment plots as PNG files.
package report

import (
	"fmt"
	"image/color"

	"github.com/juju/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"churn/pkg/data"
	"churn/pkg/segment"
	"churn/pkg/train"
)

var palette = []color.RGBA{
	{R: 228, G: 26, B: 28, A: 255},
	{R: 55, G: 126, B: 184, A: 255},
	{R: 77, G: 175, B: 74, A: 255},
	{R: 152, G: 78, B: 163, A: 255},
	{R: 255, G: 127, B: 0, A: 255},
	{R: 166, G: 86, B: 40, A: 255},
}

// Elbow plots inertia against k and marks the suggested k.
func Elbow(res *segment.ElbowResult, path string) error {
	if res == nil || len(res.K) == 0 {
		return errors.NotValidf("empty elbow result")
	}
	p := plot.New()
	p.Title.Text = "Elbow Method for Optimal k"
	p.X.Label.Text = "Number of clusters (k)"
	p.Y.Label.Text = "Inertia"

	pts := make(plotter.XYs, len(res.K))
	for i := range res.K {
		pts[i] = plotter.XY{X: float64(res.K[i]), Y: res.Inertia[i]}
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return errors.Trace(err)
	}
	line.LineStyle.Width = vg.Points(2)
	p.Add(line, points)

	if s := res.Suggested; s >= 1 && s <= len(res.Inertia) {
		mark, err := plotter.NewScatter(plotter.XYs{{X: float64(s), Y: res.Inertia[s-1]}})
		if err != nil {
			return errors.Trace(err)
		}
		mark.Color = palette[0]
		mark.Shape = draw.CrossGlyph{}
		mark.Radius = vg.Points(6)
		p.Add(mark)
		p.Legend.Add(fmt.Sprintf("suggested k=%d", s), mark)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Annotatef(err, "save %s", path)
	}
	return nil
}

// Comparison draws F1 and ROC-AUC bars for every evaluated model.
func Comparison(results []train.EvaluationResult, path string) error {
	if len(results) == 0 {
		return errors.NotValidf("no results to compare")
	}
	p := plot.New()
	p.Title.Text = "Model comparison"
	p.Y.Label.Text = "Score"
	p.Y.Min, p.Y.Max = 0, 1

	f1 := make(plotter.Values, len(results))
	auc := make(plotter.Values, len(results))
	names := make([]string, len(results))
	for i, r := range results {
		f1[i], auc[i] = r.F1, r.ROCAUC
		names[i] = r.Model + "\n" + r.Variant
	}

	w := vg.Points(10)
	f1Bars, err := plotter.NewBarChart(f1, w)
	if err != nil {
		return errors.Trace(err)
	}
	f1Bars.Color = palette[1]
	f1Bars.Offset = -w / 2
	aucBars, err := plotter.NewBarChart(auc, w)
	if err != nil {
		return errors.Trace(err)
	}
	aucBars.Color = palette[2]
	aucBars.Offset = w / 2

	p.Add(f1Bars, aucBars)
	p.Legend.Add("F1", f1Bars)
	p.Legend.Add("ROC-AUC", aucBars)
	p.Legend.Top = true
	p.NominalX(names...)

	width := vg.Length(len(results)) * 0.8 * vg.Inch
	if width < 6*vg.Inch {
		width = 6 * vg.Inch
	}
	if err := p.Save(width, 5*vg.Inch, path); err != nil {
		return errors.Annotatef(err, "save %s", path)
	}
	return nil
}

// Clusters scatters transaction amount against transaction count coloured by
// cluster label, with the segmenter's centroids mapped back to raw units.
func Clusters(m *data.Matrix, labels []int, seg *segment.Segmenter, path string) error {
	if len(labels) != m.Rows() {
		return errors.Errorf("clusters plot: %d labels for %d rows", len(labels), m.Rows())
	}
	const xCol, yCol = "Total_Trans_Amt", "Total_Trans_Ct"
	xi, yi := m.Index(xCol), m.Index(yCol)
	if xi < 0 || yi < 0 {
		return errors.NotFoundf("columns %s and %s", xCol, yCol)
	}

	p := plot.New()
	p.Title.Text = "Customer segments"
	p.X.Label.Text = xCol
	p.Y.Label.Text = yCol

	k := 0
	for _, l := range labels {
		k = max(k, l)
	}
	for c := 1; c <= k; c++ {
		var pts plotter.XYs
		for i, l := range labels {
			if l == c {
				pts = append(pts, plotter.XY{X: m.X[i][xi], Y: m.X[i][yi]})
			}
		}
		if len(pts) == 0 {
			continue
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return errors.Trace(err)
		}
		s.Color = palette[(c-1)%len(palette)]
		s.Radius = vg.Points(1.5)
		p.Add(s)
		p.Legend.Add(fmt.Sprintf("cluster %d", c), s)
	}

	if seg != nil {
		if cx, cy := columnOf(seg, xCol), columnOf(seg, yCol); cx >= 0 && cy >= 0 {
			centroids := make(plotter.XYs, len(seg.Centroids))
			for i, c := range seg.Centroids {
				centroids[i] = plotter.XY{
					X: c[cx]*seg.Scaler.Std[cx] + seg.Scaler.Mean[cx],
					Y: c[cy]*seg.Scaler.Std[cy] + seg.Scaler.Mean[cy],
				}
			}
			s, err := plotter.NewScatter(centroids)
			if err != nil {
				return errors.Trace(err)
			}
			s.Color = color.RGBA{A: 255}
			s.Shape = draw.CrossGlyph{}
			s.Radius = vg.Points(5)
			p.Add(s)
		}
	}

	if err := p.Save(6*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Annotatef(err, "save %s", path)
	}
	return nil
}

func columnOf(seg *segment.Segmenter, name string) int {
	for i, c := range seg.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Package plots renders the per-run comparison charts as PNG files.
package plots

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Entry is one method's outcome. Score is nil when the method failed.
type Entry struct {
	Method   string
	Score    *float64
	Selected []string
	Seconds  float64
}

// Input collects everything drawn for one run.
type Input struct {
	Dataset        string
	Metric         string // "mse" or "accuracy"
	HigherIsBetter bool
	History        []float64 // GA best score per generation, in Metric units
	GA             Entry
	Baselines      []Entry
}

type Renderer struct {
	Width  vg.Length
	Height vg.Length
}

func NewRenderer() *Renderer {
	return &Renderer{Width: 8 * vg.Inch, Height: 5 * vg.Inch}
}

var (
	barColor     = color.RGBA{R: 68, G: 114, B: 196, A: 255}
	jaccardColor = color.RGBA{R: 84, G: 160, B: 94, A: 255}
	pointColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Render writes the charts into dir and returns the produced file names in
// drawing order. A failing chart does not stop the others; their errors are
// joined.
func (r *Renderer) Render(dir string, in Input) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("plots: create %s: %w", dir, err)
	}
	label := metricLabel(in.Metric)
	suffix := ""
	if in.Dataset != "" {
		suffix = "_" + in.Dataset
	}

	charts := []struct {
		name string
		skip bool
		draw func() (*plot.Plot, error)
	}{
		{"ga_" + in.Metric + "_per_gen" + suffix + ".png", len(in.History) == 0, func() (*plot.Plot, error) { return historyPlot(in, label) }},
		{"comparison_" + in.Metric + suffix + ".png", false, func() (*plot.Plot, error) { return scorePlot(in, label) }},
		{"comparison_jaccard" + suffix + ".png", len(in.Baselines) == 0, func() (*plot.Plot, error) { return jaccardPlot(in) }},
		{"comparison_time_vs_" + in.Metric + suffix + ".png", !anyTime(in), func() (*plot.Plot, error) { return timePlot(in, label) }},
		{"comparison_counts" + suffix + ".png", false, func() (*plot.Plot, error) { return countPlot(in) }},
	}

	var (
		files []string
		errs  []error
	)
	for _, c := range charts {
		if c.skip {
			continue
		}
		p, err := c.draw()
		if err == nil {
			err = p.Save(r.Width, r.Height, filepath.Join(dir, c.name))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("plots: %s: %w", c.name, err))
			continue
		}
		files = append(files, c.name)
	}
	return files, errors.Join(errs...)
}

// Jaccard is |a ∩ b| / |a ∪ b| over the distinct names; two empty sets are
// identical.
func Jaccard(a, b []string) float64 {
	A := make(map[string]bool, len(a))
	for _, s := range a {
		A[s] = true
	}
	B := make(map[string]bool, len(b))
	for _, s := range b {
		B[s] = true
	}
	if len(A) == 0 && len(B) == 0 {
		return 1
	}
	inter := 0
	for s := range A {
		if B[s] {
			inter++
		}
	}
	return float64(inter) / float64(len(A)+len(B)-inter)
}

func metricLabel(metric string) string {
	if metric == "accuracy" {
		return "Accuracy"
	}
	return "MSE"
}

func titleSuffix(ds string) string {
	if ds == "" {
		return ""
	}
	return " - " + ds
}

func historyPlot(in Input, label string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "GA Best " + label + " per Generation" + titleSuffix(in.Dataset)
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Best " + label

	pts := make(plotter.XYs, len(in.History))
	for i, v := range in.History {
		pts[i].X = float64(i + 1)
		pts[i].Y = finite(v)
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, err
	}
	line.Color = barColor
	points.Color = barColor
	p.Add(plotter.NewGrid(), line, points)
	return p, nil
}

func scorePlot(in Input, label string) (*plot.Plot, error) {
	direction := "lower"
	if in.HigherIsBetter {
		direction = "higher"
	}
	entries := all(in)
	vals := make(plotter.Values, len(entries))
	for i, e := range entries {
		if e.Score != nil {
			vals[i] = finite(*e.Score)
		}
	}
	p, err := horizontalBars(entries, vals, barColor)
	if err != nil {
		return nil, err
	}
	p.Title.Text = "Comparison: CV " + label + " by method" + titleSuffix(in.Dataset)
	p.X.Label.Text = fmt.Sprintf("CV %s (%s is better)", label, direction)
	return p, nil
}

func countPlot(in Input) (*plot.Plot, error) {
	entries := all(in)
	vals := make(plotter.Values, len(entries))
	for i, e := range entries {
		vals[i] = float64(len(e.Selected))
	}
	p, err := horizontalBars(entries, vals, barColor)
	if err != nil {
		return nil, err
	}
	p.Title.Text = "Comparison: selected feature counts" + titleSuffix(in.Dataset)
	p.X.Label.Text = "Number of selected features"
	return p, nil
}

func jaccardPlot(in Input) (*plot.Plot, error) {
	vals := make(plotter.Values, len(in.Baselines))
	for i, e := range in.Baselines {
		vals[i] = Jaccard(in.GA.Selected, e.Selected)
	}
	p, err := horizontalBars(in.Baselines, vals, jaccardColor)
	if err != nil {
		return nil, err
	}
	p.Title.Text = "Overlap between GA and other methods" + titleSuffix(in.Dataset)
	p.X.Label.Text = "Jaccard similarity with GA"
	p.X.Min, p.X.Max = 0, 1
	return p, nil
}

func timePlot(in Input, label string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Time vs " + label + " by method" + titleSuffix(in.Dataset)
	p.X.Label.Text = "Time (seconds)"
	p.Y.Label.Text = "CV " + label

	var (
		pts    plotter.XYs
		labels []string
	)
	for _, e := range all(in) {
		if e.Score == nil || math.IsNaN(*e.Score) || math.IsInf(*e.Score, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: e.Seconds, Y: *e.Score})
		labels = append(labels, e.Method)
	}
	if len(pts) == 0 {
		return nil, errors.New("no scored methods")
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	sc.GlyphStyle.Color = pointColor
	sc.GlyphStyle.Radius = vg.Points(4)
	names, err := plotter.NewLabels(plotter.XYLabels{XYs: pts, Labels: labels})
	if err != nil {
		return nil, err
	}
	p.Add(plotter.NewGrid(), sc, names)
	return p, nil
}

func horizontalBars(entries []Entry, vals plotter.Values, c color.Color) (*plot.Plot, error) {
	p := plot.New()
	bars, err := plotter.NewBarChart(vals, vg.Points(18))
	if err != nil {
		return nil, err
	}
	bars.Horizontal = true
	bars.Color = c
	bars.LineStyle.Width = 0
	p.Add(bars)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Method
	}
	p.NominalY(names...)
	return p, nil
}

func all(in Input) []Entry {
	out := make([]Entry, 0, len(in.Baselines)+1)
	ga := in.GA
	if ga.Method == "" {
		ga.Method = "GA"
	}
	return append(append(out, ga), in.Baselines...)
}

func anyTime(in Input) bool {
	for _, e := range all(in) {
		if e.Seconds > 0 {
			return true
		}
	}
	return false
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

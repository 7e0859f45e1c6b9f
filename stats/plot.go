// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"errors"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Series is a named sequence of defect norms, one per iteration.
type Series struct {
	Name    string
	Defects []float64
}

// PlotConvergence draws the defect histories in series on a logarithmic
// scale and writes the image in the given format ("png", "svg", "pdf", ...)
// to w. Nonpositive norms cannot be drawn and are skipped.
func PlotConvergence(w io.Writer, format, title string, series ...Series) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "defect"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	var drawn int
	for i, s := range series {
		xys := make(plotter.XYs, 0, len(s.Defects))
		for k, d := range s.Defects {
			if d > 0 {
				xys = append(xys, plotter.XY{X: float64(k), Y: d})
			}
		}
		if len(xys) == 0 {
			continue
		}
		l, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		l.Color = plotutil.Color(i)
		l.Dashes = plotutil.Dashes(i)
		p.Add(l)
		p.Legend.Add(s.Name, l)
		drawn++
	}
	if drawn == 0 {
		return errors.New("stats: no positive defect norms to plot")
	}
	p.Legend.Top = true
	if p.Y.Min == p.Y.Max {
		p.Y.Min /= 10
		p.Y.Max *= 10
	}

	wt, err := p.WriterTo(16*vg.Centimeter, 10*vg.Centimeter, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SeriesOf returns the defect history of the solver name recorded by r.
func SeriesOf(r *Recorder, name string) Series {
	return Series{Name: name, Defects: r.Defects(name)}
}

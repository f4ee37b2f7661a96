package calib

import (
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotViewErrors saves a bar chart of the per view RMS reprojection error, with a line at the overall RMS. The
// format follows the extension of path.
func PlotViewErrors(cal *Calibration, path string) error {
	if cal == nil || len(cal.PerViewRMS) == 0 {
		return errors.New("no per view errors to plot")
	}
	p := plot.New()
	p.Title.Text = "Reprojection error per view"
	p.Y.Label.Text = "RMS (px)"

	bars, err := plotter.NewBarChart(plotter.Values(cal.PerViewRMS), vg.Points(12))
	if err != nil {
		return errors.Wrap(err, "cannot build bar chart")
	}
	p.Add(bars, plotter.NewGrid())

	overall, err := plotter.NewLine(plotter.XYs{
		{X: -0.5, Y: cal.RMS},
		{X: float64(len(cal.PerViewRMS)) - 0.5, Y: cal.RMS},
	})
	if err != nil {
		return errors.Wrap(err, "cannot build rms line")
	}
	overall.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(overall)
	p.Legend.Add("overall", overall)

	labels := make([]string, len(cal.PerViewRMS))
	for i := range labels {
		if i < len(cal.ViewNames) {
			labels[i] = filepath.Base(cal.ViewNames[i])
		} else {
			labels[i] = strconv.Itoa(i)
		}
	}
	p.NominalX(labels...)

	width := vg.Length(len(labels))*vg.Centimeter + 4*vg.Inch
	return errors.Wrapf(p.Save(width, 4*vg.Inch, path), "cannot save plot to %q", path)
}

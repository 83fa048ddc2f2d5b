package main

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"carrot-tracker/tracker/purepursuit"
)

// writeTrajectoryPlot renders the planned path and the traversed track
// into a PNG for post-session inspection.
func writeTrajectoryPlot(path string, planned, traversed []purepursuit.Waypoint) error {
	p := plot.New()
	p.Title.Text = "Path tracking session"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(plotter.NewGrid())

	plannedLine, err := plotter.NewLine(toXYs(planned))
	if err != nil {
		return fmt.Errorf("planned line: %w", err)
	}
	plannedLine.Width = vg.Points(1)
	plannedLine.Color = color.RGBA{B: 200, A: 255}
	p.Add(plannedLine)
	p.Legend.Add("planned", plannedLine)

	if len(traversed) > 0 {
		trackLine, err := plotter.NewLine(toXYs(traversed))
		if err != nil {
			return fmt.Errorf("track line: %w", err)
		}
		trackLine.Width = vg.Points(1)
		trackLine.Color = color.RGBA{R: 200, A: 255}
		p.Add(trackLine)
		p.Legend.Add("traversed", trackLine)
	}

	return p.Save(8*vg.Inch, 8*vg.Inch, path)
}

func toXYs(points []purepursuit.Waypoint) plotter.XYs {
	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X = pt.X
		xys[i].Y = pt.Y
	}
	return xys
}

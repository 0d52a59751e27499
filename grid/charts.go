package grid

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Chart sizes.
const (
	heatmapPageSize = "900px"
	histogramWidth  = 8 * vg.Inch
	histogramHeight = 4 * vg.Inch
)

// Diverging palette for the heatmap: cleared cells blue, occupied red.
var heatmapColors = []string{"#2166ac", "#67a9cf", "#d1e5f0", "#f7f7f7", "#fddbc7", "#ef8a62", "#b2182b"}

// RenderHeatmap writes an HTML page with a heatmap of the raw accumulator
// values. Untouched cells are left out so the background shows through.
func RenderHeatmap(w io.Writer, snap *Snapshot) error {
	sx, sy := snap.SizeX(), snap.SizeY()
	cols := make([]string, sx)
	for i := range cols {
		cols[i] = strconv.Itoa(i)
	}
	rows := make([]string, sy)
	for i := range rows {
		rows[i] = strconv.Itoa(i)
	}

	data := make([]opts.HeatMapData, 0, sx*sy/4)
	for row := 0; row < sy; row++ {
		for col := 0; col < sx; col++ {
			v, _ := snap.Value(col, row)
			if v == 0 {
				continue
			}
			data = append(data, opts.HeatMapData{Value: [3]interface{}{col, row, v}})
		}
	}

	st := snap.Stats()
	// Symmetric range keeps zero at the palette midpoint.
	bound := st.Max
	if -st.Min > bound {
		bound = -st.Min
	}
	if bound == 0 {
		bound = 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Occupancy grid", Width: heatmapPageSize, Height: heatmapPageSize}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Accumulator values",
			Subtitle: fmt.Sprintf("snapshot=%s r=%d cells=%dx%d touched=%d", snap.ID, snap.Resolution, sx, sy, st.Touched),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "col", Type: "category", Data: cols}),
		charts.WithYAxisOpts(opts.YAxis{Name: "row", Type: "category", Data: rows}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(-bound),
			Max:        float32(bound),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: heatmapColors},
		}),
	)
	hm.SetXAxis(cols).AddSeries("value", data)

	if err := hm.Render(w); err != nil {
		return fmt.Errorf("rendering heatmap: %w", err)
	}
	return nil
}

// RenderHistogram writes a PNG histogram of the non-zero cell values.
// bins <= 0 lets the plotter pick a bin count.
func RenderHistogram(w io.Writer, snap *Snapshot, bins int) error {
	var vals plotter.Values
	for _, v := range snap.Values() {
		if v != 0 {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return &EmptyStateError{Op: "histogram"}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Cell values (r=%d)", snap.Resolution)
	p.X.Label.Text = "accumulated value"
	p.Y.Label.Text = "cells"

	h, err := plotter.NewHist(vals, bins)
	if err != nil {
		return fmt.Errorf("building histogram: %w", err)
	}
	p.Add(h)

	wt, err := p.WriterTo(histogramWidth, histogramHeight, "png")
	if err != nil {
		return fmt.Errorf("preparing histogram image: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("writing histogram image: %w", err)
	}
	return nil
}

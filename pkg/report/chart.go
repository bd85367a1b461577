package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/rbarena/pkg/workload"
)

const (
	chartWidth  = "100%"
	chartHeight = "500px"

	seriesHeight = "Height"
	seriesBound  = "2·log2(n+1)"
	seriesSize   = "Nodes"

	colorHeight = "#e5534b"
	colorBound  = "#768390"
	colorSize   = "#539bf5"
)

// HeightChart plots tree height against the red-black bound 2·log2(n+1)
// over a workload's sampled series. Node count uses the second y axis.
func HeightChart(series []workload.Point) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Tree height",
			Subtitle: fmt.Sprintf("%d samples", len(series)),
			Left:     "center",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "8%", Left: "center"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}, opts.DataZoom{Type: "inside"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Operation"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Levels"}),
	)
	line.ExtendYAxis(opts.YAxis{Name: seriesSize, Position: "right"})

	labels := make([]string, len(series))
	heights := make([]opts.LineData, len(series))
	bounds := make([]opts.LineData, len(series))
	sizes := make([]opts.LineData, len(series))

	for idx, point := range series {
		labels[idx] = strconv.Itoa(point.Op)
		heights[idx] = opts.LineData{Value: point.Height}
		bounds[idx] = opts.LineData{Value: heightBound(point.Size)}
		sizes[idx] = opts.LineData{Value: point.Size}
	}

	line.SetXAxis(labels).
		AddSeries(seriesHeight, heights,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: colorHeight}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorHeight}),
		).
		AddSeries(seriesBound, bounds,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBound}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorBound, Type: "dashed"}),
		).
		AddSeries(seriesSize, sizes,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: colorSize}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorSize}),
			charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1}),
		)

	return line
}

// WriteHeightChart renders HeightChart as a standalone HTML page.
func WriteHeightChart(w io.Writer, series []workload.Point) error {
	err := HeightChart(series).Render(w)
	if err != nil {
		return fmt.Errorf("render height chart: %w", err)
	}

	return nil
}

// heightBound is the red-black height limit 2·log2(n+1), rounded to two
// decimals.
func heightBound(size int) float64 {
	const scale = 100

	return math.Round(2*math.Log2(float64(size)+1)*scale) / scale
}

package render

import (
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"
	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/phenowatch/phenowatch/internal/compute"
	"github.com/phenowatch/phenowatch/pkg/types"
)

const (
	ChartTitle = "Percentage Distribution of Phenotypes per Week"

	defaultChartWidth  = 1024
	defaultChartHeight = 512

	// xPad widens the time axis so a single week still has a non-zero range.
	xPad = 3 * 24 * time.Hour
)

// Chart renders the weekly percentage line chart.
type Chart struct {
	Width  int
	Height int
	svg    bool
}

// NewPNG returns a PNG chart renderer with default dimensions.
func NewPNG() *Chart { return &Chart{Width: defaultChartWidth, Height: defaultChartHeight} }

// NewSVG returns an SVG chart renderer with default dimensions.
func NewSVG() *Chart {
	return &Chart{Width: defaultChartWidth, Height: defaultChartHeight, svg: true}
}

// ContentType implements pipeline.Renderer.
func (c *Chart) ContentType() string {
	if c.svg {
		return "image/svg+xml"
	}
	return "image/png"
}

// Render implements pipeline.Renderer.
func (c *Chart) Render(w io.Writer, r *compute.Report) error {
	if len(r.Weeks) == 0 {
		return goerr.New("no weeks to chart")
	}

	ch := c.build(r)
	provider := chart.PNG
	if c.svg {
		provider = chart.SVG
	}
	if err := ch.Render(provider, w); err != nil {
		return goerr.Wrap(err, "render chart", goerr.V("content_type", c.ContentType()))
	}
	return nil
}

func (c *Chart) build(r *compute.Report) chart.Chart {
	times := make([]time.Time, len(r.Weeks))
	for i, w := range r.Weeks {
		times[i] = w.Week
	}

	series := make([]chart.Series, 0, len(types.Categories))
	for _, cat := range types.Categories {
		ys := make([]float64, len(r.Weeks))
		for i, w := range r.Weeks {
			ys[i] = w.Percent[cat]
		}
		col := categoryColor(cat)
		series = append(series, chart.TimeSeries{
			Name:    cat.PercentColumn(),
			XValues: times,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: col,
				StrokeWidth: 2,
				DotColor:    col,
				DotWidth:    3,
			},
		})
	}

	minX := chart.TimeToFloat64(times[0].Add(-xPad))
	maxX := chart.TimeToFloat64(times[len(times)-1].Add(xPad))

	width, height := c.Width, c.Height
	if width <= 0 {
		width = defaultChartWidth
	}
	if height <= 0 {
		height = defaultChartHeight
	}

	ch := chart.Chart{
		Title:      ChartTitle,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 28}},
		XAxis: chart.XAxis{
			Name:           "Week",
			ValueFormatter: chart.TimeDateValueFormatter,
			Range:          &chart.ContinuousRange{Min: minX, Max: maxX},
		},
		YAxis: chart.YAxis{
			Name:  "% of Cases",
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
			Ticks: []chart.Tick{
				{Value: 0, Label: "0"}, {Value: 25, Label: "25"}, {Value: 50, Label: "50"},
				{Value: 75, Label: "75"}, {Value: 100, Label: "100"},
			},
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return ch
}

// Package charts draws the dashboard panels as SVG charts and the density
// heatmap as a PNG image.
package charts

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/KaramelBytes/crashlens/internal/analysis"
	"github.com/KaramelBytes/crashlens/internal/dashboard"
	"github.com/KaramelBytes/crashlens/internal/utils"
)

// ErrNoData is returned when the panel has nothing to draw.
var ErrNoData = errors.New("chart has no data")

// Default chart size in pixels.
const (
	Width  = 960
	Height = 420
)

var seriesColors = []drawing.Color{chart.ColorBlue, chart.ColorGreen, chart.ColorRed, chart.ColorOrange, chart.ColorAlternateGray}

// pointStyle returns a style that renders points only.
func pointStyle(col drawing.Color, dot float64) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    dot,
		DotColor:    col,
	}
}

func lineStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeColor: col,
		StrokeWidth: 2,
		DotWidth:    3,
		DotColor:    col,
	}
}

func background() chart.Style {
	return chart.Style{Padding: chart.Box{Top: 30, Left: 16, Right: 16, Bottom: 16}}
}

// countRange is a y-axis range from zero with a minimal positive height.
func countRange(maxY float64) *chart.ContinuousRange {
	if maxY <= 0 {
		maxY = 1
	}
	return &chart.ContinuousRange{Min: 0, Max: math.Ceil(maxY * 1.1)}
}

// Map draws the filtered collision locations as a scatter plot.
func Map(w io.Writer, p dashboard.MapPanel) error {
	if !p.OK() || len(p.Points) == 0 {
		return ErrNoData
	}
	xs := make([]float64, len(p.Points))
	ys := make([]float64, len(p.Points))
	for i, pt := range p.Points {
		xs[i], ys[i] = pt.Lon, pt.Lat
	}
	st := pointStyle(chart.ColorRed, 3)
	if len(xs) == 1 {
		// go-chart needs two distinct x values to build a range
		st.DotWidth = 6
		xs = append(xs, xs[0]+1e-4)
		ys = append(ys, ys[0])
	}
	b, _ := analysis.PointBounds(p.Points)
	ch := chart.Chart{
		Title:      p.Message,
		Width:      Width,
		Height:     Width * 3 / 4,
		Background: background(),
		XAxis:      chart.XAxis{Name: "longitude", Range: padded(b.MinLon, b.MaxLon)},
		YAxis:      chart.YAxis{Name: "latitude", Range: padded(b.MinLat, b.MaxLat)},
		Series:     []chart.Series{chart.ContinuousSeries{Name: "collisions", XValues: xs, YValues: ys, Style: st}},
	}
	return render(w, ch)
}

func padded(lo, hi float64) *chart.ContinuousRange {
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = 1e-3
	}
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

// Daily draws collisions per calendar day as a line.
func Daily(w io.Writer, p dashboard.TimeSeriesPanel) error {
	if !p.OK() || len(p.Daily) == 0 {
		return ErrNoData
	}
	times := make([]time.Time, len(p.Daily))
	ys := make([]float64, len(p.Daily))
	maxY := 0.0
	for i, d := range p.Daily {
		times[i] = d.Day
		ys[i] = float64(d.Count)
		maxY = math.Max(maxY, ys[i])
	}
	if len(times) == 1 {
		times = append(times, times[0].Add(24*time.Hour))
		ys = append(ys, ys[0])
	}
	ch := chart.Chart{
		Title:      "Daily Vehicle Collisions",
		Width:      Width,
		Height:     Height,
		Background: background(),
		XAxis:      chart.XAxis{Name: "date", ValueFormatter: chart.TimeDateValueFormatter},
		YAxis:      chart.YAxis{Name: "collisions", Range: countRange(maxY)},
		Series:     []chart.Series{chart.TimeSeries{Name: "collisions", XValues: times, YValues: ys, Style: lineStyle(chart.ColorBlue)}},
	}
	return render(w, ch)
}

// Hourly draws the all-data collision count per hour of day.
func Hourly(w io.Writer, p dashboard.TimeSeriesPanel) error {
	if !p.OK() {
		return ErrNoData
	}
	bars := make([]chart.Value, 24)
	maxY := 0.0
	for h, n := range p.Hourly {
		v := chart.Value{Value: float64(n), Label: strconv.Itoa(h)}
		if h == p.Hour {
			v.Style = chart.Style{FillColor: chart.ColorOrange, StrokeColor: chart.ColorOrange}
		}
		bars[h] = v
		maxY = math.Max(maxY, float64(n))
	}
	bc := chart.BarChart{
		Title:      "Collisions by Hour of Day (All Data)",
		Width:      Width,
		Height:     Height,
		BarWidth:   28,
		Background: background(),
		YAxis:      chart.YAxis{Name: "collisions", Range: countRange(maxY)},
		Bars:       bars,
	}
	return bc.Render(chart.SVG, w)
}

// Factors draws the factor ranking as bars.
func Factors(w io.Writer, p dashboard.FactorPanel) error {
	if !p.OK() || len(p.Ranking) == 0 {
		return ErrNoData
	}
	bars := make([]chart.Value, len(p.Ranking))
	maxY := 0.0
	for i, cc := range p.Ranking {
		bars[i] = chart.Value{Value: float64(cc.Count), Label: utils.Truncate(cc.Value, 24)}
		maxY = math.Max(maxY, float64(cc.Count))
	}
	bc := chart.BarChart{
		Title:      fmt.Sprintf("Top Contributing Factors (%s)", p.Column),
		Width:      Width,
		Height:     Height + 120,
		BarWidth:   40,
		Background: chart.Style{Padding: chart.Box{Top: 30, Left: 16, Right: 16, Bottom: 120}},
		XAxis:      chart.Style{TextRotationDegrees: 45},
		YAxis:      chart.YAxis{Name: "collisions", Range: countRange(maxY)},
		Bars:       bars,
	}
	return bc.Render(chart.SVG, w)
}

// FactorHour draws one hourly line per top factor label.
func FactorHour(w io.Writer, p dashboard.FactorHourPanel) error {
	if !p.OK() || len(p.Series) == 0 {
		return ErrNoData
	}
	xs := make([]float64, 24)
	for h := range xs {
		xs[h] = float64(h)
	}
	series := make([]chart.Series, 0, len(p.Series))
	maxY := 0.0
	for i, s := range p.Series {
		ys := make([]float64, 24)
		for h, n := range s.Counts {
			ys[h] = float64(n)
			maxY = math.Max(maxY, ys[h])
		}
		series = append(series, chart.ContinuousSeries{
			Name:    utils.Truncate(s.Label, 32),
			XValues: xs,
			YValues: ys,
			Style:   lineStyle(seriesColors[i%len(seriesColors)]),
		})
	}
	ticks := make([]chart.Tick, 0, 9)
	for h := 0; h < 24; h += 3 {
		ticks = append(ticks, chart.Tick{Value: float64(h), Label: strconv.Itoa(h)})
	}
	ticks = append(ticks, chart.Tick{Value: 23, Label: "23"})
	ch := chart.Chart{
		Title:      fmt.Sprintf("Hourly Pattern for Top Factors (%s)", p.Column),
		Width:      Width,
		Height:     Height,
		Background: background(),
		XAxis:      chart.XAxis{Name: "hour of day", Range: &chart.ContinuousRange{Min: 0, Max: 23}, Ticks: ticks},
		YAxis:      chart.YAxis{Name: "collisions", Range: countRange(maxY)},
		Series:     series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return render(w, ch)
}

func render(w io.Writer, ch chart.Chart) error {
	if err := ch.Render(chart.SVG, w); err != nil {
		return fmt.Errorf("render chart %q: %w", ch.Title, err)
	}
	return nil
}

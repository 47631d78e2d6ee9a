// Package dashboard turns a normalized collision table and a control state
// into a render tree of independent panels. Rendering is pure: the same
// table and controls always produce the same page.
package dashboard

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/crashlens/internal/analysis"
	"github.com/KaramelBytes/crashlens/internal/normalize"
)

// Status is the render state of a panel.
type Status string

const (
	StatusOK      Status = "ok"
	StatusInfo    Status = "info"
	StatusWarning Status = "warning"
)

// Title is the page heading.
const Title = "Vehicle Collisions Dashboard"

// Limits applied by the panels.
const (
	TopFactorCount      = 15
	ComparisonCount     = 5
	FactorHourLabels    = 3
	SampleRowCount      = 100
	DefaultHeatmapGrid  = 128
	DefaultHeatmapSigma = 3.0
)

// Panel carries the shared header of every view.
type Panel struct {
	Title   string `json:"title"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// OK reports whether the panel has content to draw.
func (p Panel) OK() bool { return p.Status == StatusOK }

// MapPanel plots crash locations with at least Threshold injuries.
type MapPanel struct {
	Panel
	Threshold    int              `json:"threshold"`
	MaxThreshold int              `json:"max_threshold"`
	Points       []analysis.Point `json:"points,omitempty"`
	Bounds       *analysis.Bounds `json:"bounds,omitempty"`
}

// TimeSeriesPanel holds the daily counts and the hourly distribution.
type TimeSeriesPanel struct {
	Panel
	Daily     []analysis.DayCount `json:"daily,omitempty"`
	Hour      int                 `json:"hour"`
	HourCount int                 `json:"hour_count"`
	HourLabel string              `json:"hour_label,omitempty"`
	Hourly    [24]int             `json:"hourly"`
}

// FactorTable is a top-N value table for one factor column.
type FactorTable struct {
	Column string                   `json:"column"`
	Top    []analysis.CategoryCount `json:"top"`
}

// FactorPanel ranks the values of the selected factor column.
type FactorPanel struct {
	Panel
	Column     string                   `json:"column,omitempty"`
	Options    []string                 `json:"options,omitempty"`
	Ranking    []analysis.CategoryCount `json:"ranking,omitempty"`
	Comparison []FactorTable            `json:"comparison,omitempty"`
}

// HeatmapPanel is the crash density grid.
type HeatmapPanel struct {
	Panel
	Grid *analysis.Grid `json:"grid,omitempty"`
}

// FactorHourPanel shows hourly counts for the top factors of a column.
type FactorHourPanel struct {
	Panel
	Column  string                `json:"column,omitempty"`
	Options []string              `json:"options,omitempty"`
	Series  []analysis.HourSeries `json:"series,omitempty"`
}

// SamplePanel is the head of the normalized table.
type SamplePanel struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// DebugPanel exposes the load details.
type DebugPanel struct {
	Rows          int                      `json:"rows"`
	Columns       int                      `json:"columns"`
	Profile       []analysis.ColumnSummary `json:"profile"`
	DateRange     *analysis.TimeRange      `json:"date_range,omitempty"`
	FactorSamples map[string][]string      `json:"factor_samples,omitempty"`
}

// Mapping names the source column of a derived column.
type Mapping struct {
	Target string `json:"target"`
	Source string `json:"source"`
}

// Sidebar summarises the loaded source and its column mapping.
type Sidebar struct {
	Source    string    `json:"source"`
	Loaded    int       `json:"loaded"`
	Dropped   int       `json:"dropped"`
	Truncated bool      `json:"truncated"`
	Columns   []string  `json:"columns"`
	Mapping   []Mapping `json:"mapping"`
}

// Page is the full render tree.
type Page struct {
	Title      string          `json:"title"`
	Controls   Controls        `json:"controls"`
	Sidebar    Sidebar         `json:"sidebar"`
	Map        MapPanel        `json:"map"`
	TimeSeries TimeSeriesPanel `json:"time_series"`
	Factors    FactorPanel     `json:"factors"`
	Heatmap    HeatmapPanel    `json:"heatmap"`
	FactorHour FactorHourPanel `json:"factor_hour"`
	Sample     *SamplePanel    `json:"sample,omitempty"`
	Debug      *DebugPanel     `json:"debug,omitempty"`
}

// Renderer holds rendering parameters that are not user controls.
type Renderer struct {
	// HeatmapGrid is the density grid edge in cells.
	HeatmapGrid int
	// HeatmapRadius is the kernel standard deviation in cells.
	HeatmapRadius float64
}

// Render builds the page with default rendering parameters.
func Render(t *normalize.Table, c Controls) *Page {
	return Renderer{}.Render(t, c)
}

// Render builds the page for t under controls c. Panels whose columns are
// missing carry a message instead of data; Render never fails.
func (r Renderer) Render(t *normalize.Table, c Controls) *Page {
	c = c.clamp(t.Schema, analysis.MaxInjuries(t))
	p := &Page{Title: Title, Controls: c}
	p.Sidebar = sidebar(t)
	p.Map = mapPanel(t, c)
	p.TimeSeries = timeSeriesPanel(t, c)
	p.Factors = factorPanel(t, c)
	p.Heatmap = r.heatmapPanel(t)
	p.FactorHour = factorHourPanel(t, c)
	if c.ShowSample {
		p.Sample = samplePanel(t)
	}
	if c.ShowDebug {
		p.Debug = debugPanel(t)
	}
	return p
}

func missingMessage(what string, missing []string) string {
	quoted := make([]string, len(missing))
	for i, m := range missing {
		quoted[i] = "'" + m + "'"
	}
	return fmt.Sprintf("Cannot show %s. Missing columns: %s", what, strings.Join(quoted, ", "))
}

func sidebar(t *normalize.Table) Sidebar {
	sb := Sidebar{Source: t.Name, Loaded: len(t.Records), Dropped: t.Dropped, Truncated: t.Truncated}
	cols := append([]string(nil), t.Schema.Columns...)
	if t.Schema.HasDatetime {
		cols = append(cols, normalize.ColDatetime)
	}
	for _, c := range cols {
		if !normalize.IsUnnamed(c) {
			sb.Columns = append(sb.Columns, c)
		}
	}
	s := t.Schema
	add := func(target, source string) {
		if source != "" {
			sb.Mapping = append(sb.Mapping, Mapping{Target: target, Source: source})
		}
	}
	dtSource := s.DateSource
	if s.TimeSource != "" {
		dtSource += " + " + s.TimeSource
	}
	add(normalize.ColDatetime, dtSource)
	add(normalize.ColLatitude, s.LatitudeSource)
	add(normalize.ColLongitude, s.LongitudeSource)
	add(normalize.ColInjured, s.InjuredSource)
	for i, col := range normalize.FactorColumns {
		add(col, s.FactorSources[i])
	}
	return sb
}

func mapPanel(t *normalize.Table, c Controls) MapPanel {
	mp := MapPanel{Panel: Panel{Title: "1. Injury Locations Map"}}
	if missing := t.Schema.Missing(normalize.ColInjured, normalize.ColLatitude, normalize.ColLongitude); len(missing) > 0 {
		mp.Status = StatusWarning
		mp.Message = missingMessage("map", missing)
		return mp
	}
	mp.Threshold = c.MinInjuries
	mp.MaxThreshold = analysis.MaxInjuries(t)
	mp.Points = analysis.InjuryPoints(t, float64(c.MinInjuries))
	if len(mp.Points) == 0 {
		mp.Status = StatusInfo
		mp.Message = "No data matches the filter. Try a lower injury count."
		return mp
	}
	if b, ok := analysis.PointBounds(mp.Points); ok {
		mp.Bounds = &b
	}
	mp.Status = StatusOK
	mp.Message = fmt.Sprintf("Showing %d locations with %d+ injuries", len(mp.Points), c.MinInjuries)
	return mp
}

func timeSeriesPanel(t *normalize.Table, c Controls) TimeSeriesPanel {
	tp := TimeSeriesPanel{Panel: Panel{Title: "2. Collisions Over Time"}, Hour: c.Hour}
	if !t.Schema.Has(normalize.ColDatetime) {
		tp.Status = StatusInfo
		tp.Message = "Cannot show temporal charts: No datetime column found."
		return tp
	}
	tp.Status = StatusOK
	tp.Daily = analysis.DailyCounts(t)
	tp.Hourly = analysis.HourlyCounts(t)
	tp.HourCount = tp.Hourly[c.Hour]
	tp.HourLabel = fmt.Sprintf("%d collisions occurred between %d:00 and %d:00", tp.HourCount, c.Hour, c.Hour+1)
	return tp
}

func factorPanel(t *normalize.Table, c Controls) FactorPanel {
	fp := FactorPanel{Panel: Panel{Title: "3. Contributing Factor Analysis"}}
	fp.Options = t.Schema.Factors()
	if len(fp.Options) == 0 {
		fp.Status = StatusInfo
		fp.Message = "No contributing factor columns available for analysis"
		return fp
	}
	fp.Column = c.FactorColumn
	fp.Ranking = analysis.RankFactors(t, fp.Column, TopFactorCount)
	if len(fp.Ranking) == 0 {
		fp.Status = StatusInfo
		fp.Message = fmt.Sprintf("No significant factor data found for %s (mostly 'Unspecified' or 'Unknown')", fp.Column)
		return fp
	}
	fp.Status = StatusOK
	if len(fp.Options) >= 2 {
		for _, col := range fp.Options[:2] {
			fp.Comparison = append(fp.Comparison, FactorTable{Column: col, Top: analysis.TopFactors(t, col, ComparisonCount)})
		}
	}
	return fp
}

// heatmapPanel requires datetime alongside the coordinates even though the
// density only uses coordinates.
func (r Renderer) heatmapPanel(t *normalize.Table) HeatmapPanel {
	hp := HeatmapPanel{Panel: Panel{Title: "4. Collisions Heatmap"}}
	if missing := t.Schema.Missing(normalize.ColDatetime, normalize.ColLatitude, normalize.ColLongitude); len(missing) > 0 {
		hp.Status = StatusWarning
		hp.Message = missingMessage("heatmap", missing)
		return hp
	}
	size, radius := r.HeatmapGrid, r.HeatmapRadius
	if size <= 0 {
		size = DefaultHeatmapGrid
	}
	if radius <= 0 {
		radius = DefaultHeatmapSigma
	}
	hp.Grid = analysis.Density(analysis.AllPoints(t), size, radius)
	if hp.Grid == nil {
		hp.Status = StatusInfo
		hp.Message = "No located collisions to plot."
		return hp
	}
	hp.Status = StatusOK
	hp.Message = fmt.Sprintf("Density of %d located collisions", hp.Grid.Points)
	return hp
}

func factorHourPanel(t *normalize.Table, c Controls) FactorHourPanel {
	fh := FactorHourPanel{Panel: Panel{Title: "5. Factors by Time of Day"}}
	fh.Options = t.Schema.Factors()
	var missing []string
	if !t.Schema.Has(normalize.ColDatetime) {
		missing = append(missing, normalize.ColDatetime)
	}
	if len(fh.Options) == 0 {
		missing = append(missing, normalize.ColFactor1)
	}
	if len(missing) > 0 {
		fh.Status = StatusInfo
		fh.Message = missingMessage("factors by time of day", missing)
		return fh
	}
	fh.Column = c.TimeFactorColumn
	fh.Series = analysis.FactorByHour(t, fh.Column, FactorHourLabels)
	if len(fh.Series) == 0 {
		fh.Status = StatusInfo
		fh.Message = fmt.Sprintf("No significant factors found in %s", fh.Column)
		return fh
	}
	total := 0
	for _, s := range fh.Series {
		for _, n := range s.Counts {
			total += n
		}
	}
	if total == 0 {
		fh.Series = nil
		fh.Status = StatusInfo
		fh.Message = fmt.Sprintf("No data available for the top factors in %s", fh.Column)
		return fh
	}
	fh.Status = StatusOK
	return fh
}

func samplePanel(t *normalize.Table) *SamplePanel {
	s := t.Schema
	type column struct {
		name  string
		value func(normalize.Record) string
	}
	var cols []column
	if s.HasDatetime {
		cols = append(cols, column{normalize.ColDatetime, func(r normalize.Record) string { return formatTime(r.Datetime) }})
	}
	if s.LatitudeSource != "" {
		cols = append(cols, column{normalize.ColLatitude, func(r normalize.Record) string { return formatFloatPtr(r.Latitude) }})
	}
	if s.LongitudeSource != "" {
		cols = append(cols, column{normalize.ColLongitude, func(r normalize.Record) string { return formatFloatPtr(r.Longitude) }})
	}
	if s.InjuredSource != "" {
		cols = append(cols, column{normalize.ColInjured, func(r normalize.Record) string { return formatFloat(r.InjuredPersons) }})
	}
	for _, f := range s.Factors() {
		col := f
		cols = append(cols, column{col, func(r normalize.Record) string { return analysis.CellText(r.Factor(col)) }})
	}
	if len(cols) == 0 {
		for i, name := range s.Columns {
			idx := i
			cols = append(cols, column{name, func(r normalize.Record) string {
				if idx >= len(r.Values) {
					return ""
				}
				return analysis.CellText(r.Values[idx])
			}})
		}
	}
	sp := &SamplePanel{Columns: make([]string, len(cols))}
	for i, c := range cols {
		sp.Columns[i] = c.name
	}
	n := min(len(t.Records), SampleRowCount)
	sp.Rows = make([][]string, 0, n)
	for _, rec := range t.Records[:n] {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = c.value(rec)
		}
		sp.Rows = append(sp.Rows, row)
	}
	return sp
}

func debugPanel(t *normalize.Table) *DebugPanel {
	rep := analysis.Profile(t, analysis.DefaultOptions())
	return &DebugPanel{
		Rows:          rep.Rows,
		Columns:       len(rep.Cols),
		Profile:       rep.Cols,
		DateRange:     rep.DateRange,
		FactorSamples: rep.FactorSamples,
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateTime)
}

func formatFloatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

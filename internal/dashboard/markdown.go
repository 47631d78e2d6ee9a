package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/KaramelBytes/crashlens/internal/analysis"
)

// Markdown renders the page as a text report. Charts become tables.
func (p *Page) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Title)
	sb := p.Sidebar
	fmt.Fprintf(&b, "Source: %s\n", sb.Source)
	fmt.Fprintf(&b, "Loaded %d valid rows", sb.Loaded)
	if sb.Dropped > 0 {
		fmt.Fprintf(&b, " (%d dropped without coordinates)", sb.Dropped)
	}
	b.WriteString("\n")
	if sb.Truncated {
		b.WriteString("Read stopped at the row limit.\n")
	}
	if len(sb.Mapping) > 0 {
		b.WriteString("\nDetected columns:\n")
		for _, m := range sb.Mapping {
			fmt.Fprintf(&b, "- %s ← %s\n", m.Target, m.Source)
		}
	}

	writeHeader(&b, p.Map.Panel)
	if p.Map.OK() {
		if p.Map.Bounds != nil {
			lat, lon := p.Map.Bounds.Center()
			fmt.Fprintf(&b, "Center: %.5f, %.5f\n", lat, lon)
		}
	}

	writeHeader(&b, p.TimeSeries.Panel)
	if p.TimeSeries.OK() {
		b.WriteString("| date | collisions |\n| --- | --- |\n")
		for _, d := range p.TimeSeries.Daily {
			fmt.Fprintf(&b, "| %s | %d |\n", d.Day.Format(time.DateOnly), d.Count)
		}
		fmt.Fprintf(&b, "\n**%s**\n\n", p.TimeSeries.HourLabel)
		b.WriteString("| hour | collisions |\n| --- | --- |\n")
		for h, n := range p.TimeSeries.Hourly {
			fmt.Fprintf(&b, "| %d | %d |\n", h, n)
		}
	}

	writeHeader(&b, p.Factors.Panel)
	if p.Factors.OK() {
		fmt.Fprintf(&b, "Top contributing factors (%s):\n\n", p.Factors.Column)
		writeCounts(&b, "factor", p.Factors.Ranking)
		for _, ft := range p.Factors.Comparison {
			fmt.Fprintf(&b, "\n**%s**\n\n", ft.Column)
			writeCounts(&b, "factor", ft.Top)
		}
	}

	writeHeader(&b, p.Heatmap.Panel)
	if p.Heatmap.OK() {
		g := p.Heatmap.Grid
		fmt.Fprintf(&b, "Grid %dx%d over lat %.5f..%.5f, lon %.5f..%.5f\n",
			g.Width, g.Height, g.Bounds.MinLat, g.Bounds.MaxLat, g.Bounds.MinLon, g.Bounds.MaxLon)
	}

	writeHeader(&b, p.FactorHour.Panel)
	if p.FactorHour.OK() {
		b.WriteString("| hour |")
		for _, s := range p.FactorHour.Series {
			fmt.Fprintf(&b, " %s |", analysis.SafeVal(s.Label))
		}
		b.WriteString("\n| --- |")
		for range p.FactorHour.Series {
			b.WriteString(" --- |")
		}
		b.WriteString("\n")
		for h := 0; h < 24; h++ {
			fmt.Fprintf(&b, "| %d |", h)
			for _, s := range p.FactorHour.Series {
				fmt.Fprintf(&b, " %d |", s.Counts[h])
			}
			b.WriteString("\n")
		}
	}

	if p.Sample != nil {
		b.WriteString("\n## Sample of Loaded Data\n\n")
		b.WriteString("| " + strings.Join(p.Sample.Columns, " | ") + " |\n")
		b.WriteString("|" + strings.Repeat(" --- |", len(p.Sample.Columns)) + "\n")
		for _, row := range p.Sample.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = analysis.SafeVal(v)
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	}

	if p.Debug != nil {
		b.WriteString("\n## Debug Information\n\n")
		fmt.Fprintf(&b, "Data shape: (%d, %d)\n", p.Debug.Rows, p.Debug.Columns)
		if p.Debug.DateRange != nil {
			fmt.Fprintf(&b, "Date range: %s to %s\n",
				p.Debug.DateRange.Min.Format(time.DateTime), p.Debug.DateRange.Max.Format(time.DateTime))
		}
		for _, c := range p.Debug.Profile {
			fmt.Fprintf(&b, "- **%s**: %s, %d non-null values\n", c.Name, c.Kind, c.NonNull)
			if vals, ok := p.Debug.FactorSamples[c.Name]; ok {
				fmt.Fprintf(&b, "  Sample values: %s\n", strings.Join(vals, ", "))
			}
		}
	}
	return b.String()
}

func writeHeader(b *strings.Builder, p Panel) {
	fmt.Fprintf(b, "\n## %s\n\n", p.Title)
	if p.Message == "" {
		return
	}
	switch p.Status {
	case StatusWarning:
		fmt.Fprintf(b, "> ⚠ %s\n\n", p.Message)
	case StatusInfo:
		fmt.Fprintf(b, "> %s\n\n", p.Message)
	default:
		fmt.Fprintf(b, "%s\n\n", p.Message)
	}
}

func writeCounts(b *strings.Builder, label string, counts []analysis.CategoryCount) {
	fmt.Fprintf(b, "| %s | count |\n| --- | --- |\n", label)
	for _, cc := range counts {
		fmt.Fprintf(b, "| %s | %d |\n", analysis.SafeVal(cc.Value), cc.Count)
	}
}

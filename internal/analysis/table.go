package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/crashlens/internal/dataset"
	"github.com/KaramelBytes/crashlens/internal/normalize"
	"github.com/KaramelBytes/crashlens/internal/utils"
)

// Options controls column profiling.
type Options struct {
	// TopValues caps the categorical top-value list per column.
	TopValues int
	// FactorSamples is the number of example values kept per factor column.
	FactorSamples int
	// Numbers is the separator configuration used to recognise numeric text.
	// The zero value falls back to the table's own format.
	Numbers normalize.NumberFormat
}

// DefaultOptions returns reasonable defaults for profiling.
func DefaultOptions() Options {
	return Options{TopValues: 8, FactorSamples: 5}
}

// Report is a markdown-friendly profile of a normalized collision table.
type Report struct {
	Name      string          `json:"name"`
	Rows      int             `json:"rows"`
	Dropped   int             `json:"dropped"`
	Truncated bool            `json:"truncated"`
	Cols      []ColumnSummary `json:"columns"`
	// DateRange is set when the table has a datetime column with values.
	DateRange *TimeRange `json:"date_range,omitempty"`
	// FactorSamples holds example raw values per factor column.
	FactorSamples map[string][]string `json:"factor_samples,omitempty"`
	Warnings      []string            `json:"warnings,omitempty"`
}

// TimeRange is an inclusive span of timestamps.
type TimeRange struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

// ColumnSummary captures inferred type and statistics per column.
type ColumnSummary struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"` // numeric|datetime|categorical|text|unknown
	NonNull int    `json:"non_null"`
	Missing int    `json:"missing"`
	Unique  int    `json:"unique,omitempty"`
	// Numeric stats
	Min  float64 `json:"min,omitempty"`
	Max  float64 `json:"max,omitempty"`
	Mean float64 `json:"mean,omitempty"`
	Std  float64 `json:"std,omitempty"`
	// Categorical top values
	TopValues    []CategoryCount `json:"top_values,omitempty"`
	ExampleTexts []string        `json:"examples,omitempty"`
}

// CategoryCount is a value with its number of occurrences.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

type colAcc struct {
	name   string
	nonNil int
	miss   int

	// numeric stats via Welford
	n      int
	mean   float64
	m2     float64
	min    float64
	max    float64
	numCnt int
	dtCnt  int
	txtCnt int
	cats   map[string]int
	exText []string
}

func newColAcc(name string) *colAcc {
	return &colAcc{name: name, min: math.Inf(1), max: math.Inf(-1), cats: make(map[string]int)}
}

func (c *colAcc) addNumber(x float64) {
	c.numCnt++
	c.n++
	if x < c.min {
		c.min = x
	}
	if x > c.max {
		c.max = x
	}
	delta := x - c.mean
	c.mean += delta / float64(c.n)
	c.m2 += delta * (x - c.mean)
}

func (c *colAcc) addText(v string) {
	c.txtCnt++
	if len(c.cats) <= 10000 { // guard memory
		if len(v) <= 64 {
			c.cats[v]++
		}
	}
	if len(c.exText) < 3 {
		c.exText = append(c.exText, v)
	}
}

// Profile summarises every column of t. Derived coordinate and injury
// columns are profiled from their coerced values; other columns are typed by
// the predominant parse result of their raw text.
func Profile(t *normalize.Table, opt Options) *Report {
	if opt.TopValues <= 0 {
		opt.TopValues = 8
	}
	if opt.FactorSamples <= 0 {
		opt.FactorSamples = 5
	}
	if opt.Numbers == (normalize.NumberFormat{}) {
		opt.Numbers = t.Numbers
	}
	rep := &Report{Name: t.Name, Rows: len(t.Records), Dropped: t.Dropped, Truncated: t.Truncated}

	ncol := len(t.Schema.Columns)
	cols := make([]*colAcc, ncol)
	for i, name := range t.Schema.Columns {
		cols[i] = newColAcc(name)
	}
	derived := derivedIndexes(t.Schema)

	var dt *colAcc
	if t.Schema.HasDatetime {
		dt = newColAcc(normalize.ColDatetime)
	}

	for _, rec := range t.Records {
		for j := 0; j < ncol && j < len(rec.Values); j++ {
			c := cols[j]
			if f, ok := derived[j]; ok {
				if v, valid := f(rec); valid {
					c.nonNil++
					c.addNumber(v)
				} else {
					c.miss++
				}
				continue
			}
			cell := rec.Values[j]
			if !cell.Valid || strings.TrimSpace(cell.Text) == "" {
				c.miss++
				continue
			}
			c.nonNil++
			v := strings.TrimSpace(cell.Text)
			if x, ok := normalize.ParseNumber(v, opt.Numbers); ok {
				c.addNumber(x)
				continue
			}
			if _, ok := normalize.ParseTime(v); ok {
				c.dtCnt++
				continue
			}
			c.addText(v)
		}
		if dt != nil {
			if rec.Datetime == nil {
				dt.miss++
				continue
			}
			dt.nonNil++
			dt.dtCnt++
			if rep.DateRange == nil {
				rep.DateRange = &TimeRange{Min: *rec.Datetime, Max: *rec.Datetime}
			} else {
				if rec.Datetime.Before(rep.DateRange.Min) {
					rep.DateRange.Min = *rec.Datetime
				}
				if rec.Datetime.After(rep.DateRange.Max) {
					rep.DateRange.Max = *rec.Datetime
				}
			}
		}
	}
	if dt != nil {
		cols = append(cols, dt)
	}

	rep.Cols = make([]ColumnSummary, 0, len(cols))
	for _, c := range cols {
		rep.Cols = append(rep.Cols, c.summary(opt.TopValues))
	}

	if factors := t.Schema.Factors(); len(factors) > 0 {
		rep.FactorSamples = map[string][]string{}
		for _, col := range factors {
			rep.FactorSamples[col] = SampleFactorValues(t, col, opt.FactorSamples)
		}
	}
	if t.Dropped > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("dropped %d rows without latitude/longitude", t.Dropped))
	}
	if t.Truncated {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("read stopped at %d rows due to max_rows", t.RawRows))
	}
	return rep
}

func (c *colAcc) summary(topN int) ColumnSummary {
	s := ColumnSummary{Name: c.name, NonNull: c.nonNil, Missing: c.miss}
	// Decide kind by predominant parsed type
	kind := "unknown"
	if c.numCnt >= c.dtCnt && c.numCnt >= c.txtCnt && c.numCnt > 0 {
		kind = "numeric"
		s.Min = c.min
		s.Max = c.max
		s.Mean = c.mean
		if c.n > 1 {
			s.Std = math.Sqrt(c.m2 / float64(c.n-1))
		}
	} else if c.dtCnt >= c.txtCnt && c.dtCnt > 0 {
		kind = "datetime"
	} else if len(c.cats) > 0 && len(c.cats) < c.txtCnt {
		kind = "categorical"
		s.TopValues = topOf(c.cats, topN)
		s.Unique = len(c.cats)
	} else if c.txtCnt > 0 {
		kind = "text"
		s.ExampleTexts = c.exText
	}
	s.Kind = kind
	return s
}

func derivedIndexes(s normalize.Schema) map[int]func(normalize.Record) (float64, bool) {
	out := map[int]func(normalize.Record) (float64, bool){}
	for i, name := range s.Columns {
		switch name {
		case normalize.ColLatitude:
			if s.LatitudeSource != "" {
				out[i] = func(r normalize.Record) (float64, bool) { return deref(r.Latitude) }
			}
		case normalize.ColLongitude:
			if s.LongitudeSource != "" {
				out[i] = func(r normalize.Record) (float64, bool) { return deref(r.Longitude) }
			}
		case normalize.ColInjured:
			if s.InjuredSource != "" {
				out[i] = func(r normalize.Record) (float64, bool) { return r.InjuredPersons, true }
			}
		}
	}
	return out
}

func deref(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

// SampleFactorValues returns up to n distinct non-null values of a factor
// column in order of first appearance.
func SampleFactorValues(t *normalize.Table, col string, n int) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, rec := range t.Records {
		if len(out) >= n {
			break
		}
		c := rec.Factor(col)
		if !c.Valid {
			continue
		}
		if _, dup := seen[c.Text]; dup {
			continue
		}
		seen[c.Text] = struct{}{}
		out = append(out, c.Text)
	}
	return out
}

// Markdown renders the profile as a compact text report.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n", len(r.Cols)))
	if r.DateRange != nil {
		b.WriteString(fmt.Sprintf("Date range: %s to %s\n", r.DateRange.Min.Format(time.DateTime), r.DateRange.Max.Format(time.DateTime)))
	}
	b.WriteString("\n[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.NonNull, missPct))
		switch c.Kind {
		case "numeric":
			b.WriteString(fmt.Sprintf(" — min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std))
		case "categorical":
			if len(c.TopValues) > 0 {
				b.WriteString(" — top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", SafeVal(kv.Value), kv.Count))
				}
				if c.Unique > len(c.TopValues) {
					b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
				}
			}
		case "text":
			if len(c.ExampleTexts) > 0 {
				b.WriteString(" — e.g., ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(SafeVal(ex))
				}
			}
		}
		b.WriteString("\n")
	}
	if len(r.FactorSamples) > 0 {
		b.WriteString("\n[FACTOR SAMPLES]\n")
		keys := make([]string, 0, len(r.FactorSamples))
		for k := range r.FactorSamples {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			vals := make([]string, len(r.FactorSamples[k]))
			for i, v := range r.FactorSamples[k] {
				vals[i] = SafeVal(v)
			}
			b.WriteString(fmt.Sprintf("- %s: %s\n", k, strings.Join(vals, " | ")))
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

// SafeVal flattens a value for a single Markdown table cell.
func SafeVal(s string) string {
	return utils.OneLine(s)
}

// CellText renders a raw cell for display; null becomes "".
func CellText(c dataset.Cell) string {
	if !c.Valid {
		return ""
	}
	return c.Text
}

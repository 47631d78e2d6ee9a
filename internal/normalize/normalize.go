// Package normalize applies column-name heuristics to a raw collision table
// and produces typed records with a derived timestamp, coordinates, injury
// counts and the first two vehicle contributing factors.
package normalize

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/KaramelBytes/crashlens/internal/dataset"
)

// Options controls coercion during normalization.
type Options struct {
	Numbers NumberFormat
	// Logger receives detection details at debug level; nil discards them.
	Logger *slog.Logger
}

// Schema describes the detected mapping from source columns to derived fields.
type Schema struct {
	// OriginalColumns are the source names as read.
	OriginalColumns []string `json:"original_columns"`
	// Columns are the canonical names after renames, aligned with Record.Values.
	Columns []string `json:"columns"`

	DateSource      string    `json:"date_source,omitempty"`
	TimeSource      string    `json:"time_source,omitempty"`
	HasDatetime     bool      `json:"has_datetime"`
	LatitudeSource  string    `json:"latitude_source,omitempty"`
	LongitudeSource string    `json:"longitude_source,omitempty"`
	InjuredSource   string    `json:"injured_source,omitempty"`
	FactorSources   [2]string `json:"factor_sources"`
}

// Has reports whether a normalized column exists.
func (s Schema) Has(col string) bool {
	switch col {
	case ColDatetime:
		return s.HasDatetime
	case ColLatitude:
		return s.LatitudeSource != ""
	case ColLongitude:
		return s.LongitudeSource != ""
	case ColInjured:
		return s.InjuredSource != ""
	case ColFactor1:
		return s.FactorSources[0] != ""
	case ColFactor2:
		return s.FactorSources[1] != ""
	}
	return false
}

// Missing returns the columns from want that are absent, in order.
func (s Schema) Missing(want ...string) []string {
	var out []string
	for _, c := range want {
		if !s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Factors returns the available factor columns in vehicle order.
func (s Schema) Factors() []string {
	var out []string
	for i, c := range FactorColumns {
		if s.FactorSources[i] != "" {
			out = append(out, c)
		}
	}
	return out
}

// Record is one normalized collision row.
type Record struct {
	Datetime       *time.Time
	Latitude       *float64
	Longitude      *float64
	InjuredPersons float64
	Factors        [2]dataset.Cell
	// Values holds the raw cells aligned with Schema.Columns.
	Values []dataset.Cell
}

// Coords returns the record's coordinates when both are valid.
func (r Record) Coords() (lat, lon float64, ok bool) {
	if r.Latitude == nil || r.Longitude == nil {
		return 0, 0, false
	}
	return *r.Latitude, *r.Longitude, true
}

// Hour returns the hour of day of Datetime.
func (r Record) Hour() (int, bool) {
	if r.Datetime == nil {
		return 0, false
	}
	return r.Datetime.Hour(), true
}

// Factor returns the value of a factor column by normalized name.
func (r Record) Factor(col string) dataset.Cell {
	for i, c := range FactorColumns {
		if c == col {
			return r.Factors[i]
		}
	}
	return dataset.Null
}

// Table is the normalized record table. It is read-only once returned.
type Table struct {
	Name    string   `json:"name"`
	Schema  Schema   `json:"schema"`
	Records []Record `json:"-"`
	// RawRows counts rows read from the source before coordinate drops.
	RawRows   int  `json:"raw_rows"`
	Dropped   int  `json:"dropped"`
	Truncated bool `json:"truncated"`
	// Numbers is the separator configuration the table was normalized with.
	Numbers NumberFormat `json:"-"`
}

// Normalize applies the detection rules to raw and builds the normalized
// table. It never fails: values that do not coerce become null (or 0 for
// injuries).
func Normalize(raw *dataset.Table, opt Options) *Table {
	log := opt.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	canon := CanonicalizeAll(raw.Columns)
	det := Detect(canon)
	log.Debug("columns canonicalized", "original", raw.Columns, "cleaned", canon)

	s := Schema{OriginalColumns: append([]string(nil), raw.Columns...)}
	cols := append([]string(nil), canon...)
	name := func(i int) string {
		if i < 0 {
			return ""
		}
		return canon[i]
	}

	dateIdx, timeIdx := det.Source(FieldDate), det.Source(FieldTime)
	if timeIdx == dateIdx {
		// A single "datetime"-like column matched both rules; parse it alone.
		timeIdx = -1
	}
	s.DateSource, s.TimeSource = name(dateIdx), name(timeIdx)
	s.HasDatetime = dateIdx >= 0

	latIdx, lonIdx := det.Source(FieldLatitude), det.Source(FieldLongitude)
	if latIdx >= 0 && latIdx == lonIdx {
		lonIdx = -1
	}
	injIdx := det.Source(FieldInjured)
	s.LatitudeSource, s.LongitudeSource, s.InjuredSource = name(latIdx), name(lonIdx), name(injIdx)
	if latIdx >= 0 {
		cols[latIdx] = ColLatitude
	}
	if lonIdx >= 0 {
		cols[lonIdx] = ColLongitude
	}
	if injIdx >= 0 {
		cols[injIdx] = ColInjured
	}
	for v, idx := range det.Factors {
		if idx < 0 {
			continue
		}
		s.FactorSources[v] = canon[idx]
		cols[idx] = FactorColumns[v]
	}
	s.Columns = cols
	log.Debug("schema detected",
		"date", s.DateSource, "time", s.TimeSource,
		"latitude", s.LatitudeSource, "longitude", s.LongitudeSource,
		"injured", s.InjuredSource, "factors", s.Factors())

	t := &Table{Name: raw.Name, Schema: s, RawRows: len(raw.Rows), Truncated: raw.Truncated, Numbers: opt.Numbers}
	dropCoords := latIdx >= 0 && lonIdx >= 0
	t.Records = make([]Record, 0, len(raw.Rows))
	for _, row := range raw.Rows {
		if dropCoords && (!row[latIdx].Valid || !row[lonIdx].Valid) {
			t.Dropped++
			continue
		}
		rec := Record{Values: row}
		if dateIdx >= 0 {
			rec.Datetime = parseRowTime(row, dateIdx, timeIdx)
		}
		if latIdx >= 0 {
			rec.Latitude = numberPtr(row[latIdx], opt.Numbers)
		}
		if lonIdx >= 0 {
			rec.Longitude = numberPtr(row[lonIdx], opt.Numbers)
		}
		if injIdx >= 0 && row[injIdx].Valid {
			if f, ok := ParseNumber(row[injIdx].Text, opt.Numbers); ok {
				rec.InjuredPersons = f
			}
		}
		for v, idx := range det.Factors {
			if idx >= 0 {
				rec.Factors[v] = row[idx]
			}
		}
		t.Records = append(t.Records, rec)
	}
	if t.Dropped > 0 {
		log.Debug("rows without coordinates dropped", "dropped", t.Dropped)
	}
	return t
}

func parseRowTime(row []dataset.Cell, dateIdx, timeIdx int) *time.Time {
	d := row[dateIdx]
	if !d.Valid {
		return nil
	}
	var (
		ts time.Time
		ok bool
	)
	if timeIdx >= 0 {
		c := row[timeIdx]
		if !c.Valid {
			return nil
		}
		ts, ok = ParseDateTime(d.Text, c.Text)
	} else {
		ts, ok = ParseTime(d.Text)
	}
	if !ok {
		return nil
	}
	return &ts
}

func numberPtr(c dataset.Cell, nf NumberFormat) *float64 {
	if !c.Valid {
		return nil
	}
	f, ok := ParseNumber(c.Text, nf)
	if !ok {
		return nil
	}
	return &f
}

// IsUnnamed reports whether a column is a spreadsheet index artifact.
func IsUnnamed(col string) bool {
	return strings.HasPrefix(col, "unnamed")
}

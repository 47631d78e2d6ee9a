package analysis

import (
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/crashlens/internal/dataset"
	"github.com/KaramelBytes/crashlens/internal/normalize"
)

// Placeholder labels for missing factor values.
const (
	LabelUnknown     = "Unknown"
	LabelUnspecified = "Unspecified"
)

// FactorLabel maps a raw factor cell to its display label: null becomes
// "Unknown" and a blank value becomes "Unspecified".
func FactorLabel(c dataset.Cell) string {
	if !c.Valid {
		return LabelUnknown
	}
	if strings.TrimSpace(c.Text) == "" {
		return LabelUnspecified
	}
	return c.Text
}

// IsPlaceholder reports whether label is "Unknown" or "Unspecified",
// ignoring case.
func IsPlaceholder(label string) bool {
	return strings.EqualFold(label, LabelUnknown) || strings.EqualFold(label, LabelUnspecified)
}

func topOf(counts map[string]int, n int) []CategoryCount {
	out := make([]CategoryCount, 0, len(counts))
	for k, v := range counts {
		out = append(out, CategoryCount{Value: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Value < out[j].Value
		}
		return out[i].Count > out[j].Count
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// FactorCounts counts every label of a factor column, most frequent first;
// ties are ordered by value.
func FactorCounts(t *normalize.Table, col string) []CategoryCount {
	counts := map[string]int{}
	for _, rec := range t.Records {
		counts[FactorLabel(rec.Factor(col))]++
	}
	return topOf(counts, 0)
}

// TopFactors returns the n most frequent labels, placeholders included.
func TopFactors(t *normalize.Table, col string, n int) []CategoryCount {
	all := FactorCounts(t, col)
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// RankFactors takes the n most frequent labels and then removes the
// placeholders, so the result can be shorter than n.
func RankFactors(t *normalize.Table, col string, n int) []CategoryCount {
	var out []CategoryCount
	for _, cc := range TopFactors(t, col, n) {
		if IsPlaceholder(cc.Value) {
			continue
		}
		out = append(out, cc)
	}
	return out
}

// DayCount is the number of records on one calendar day.
type DayCount struct {
	Day   time.Time `json:"day"`
	Count int       `json:"count"`
}

// DailyCounts groups records with a timestamp by calendar day, ordered by day.
func DailyCounts(t *normalize.Table) []DayCount {
	counts := map[time.Time]int{}
	for _, rec := range t.Records {
		if rec.Datetime == nil {
			continue
		}
		d := rec.Datetime
		counts[time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())]++
	}
	out := make([]DayCount, 0, len(counts))
	for d, n := range counts {
		out = append(out, DayCount{Day: d, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out
}

// HourlyCounts counts records with a timestamp per hour of day.
func HourlyCounts(t *normalize.Table) [24]int {
	var out [24]int
	for _, rec := range t.Records {
		if h, ok := rec.Hour(); ok {
			out[h]++
		}
	}
	return out
}

// Point is a located collision.
type Point struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Injured float64 `json:"injured"`
}

// MaxInjuries returns the largest injury count, truncated to an integer.
func MaxInjuries(t *normalize.Table) int {
	maxInj := 0.0
	for _, rec := range t.Records {
		if rec.InjuredPersons > maxInj {
			maxInj = rec.InjuredPersons
		}
	}
	return int(maxInj)
}

// InjuryPoints returns located records with at least minInjuries injured.
func InjuryPoints(t *normalize.Table, minInjuries float64) []Point {
	var out []Point
	for _, rec := range t.Records {
		lat, lon, ok := rec.Coords()
		if !ok || rec.InjuredPersons < minInjuries {
			continue
		}
		out = append(out, Point{Lat: lat, Lon: lon, Injured: rec.InjuredPersons})
	}
	return out
}

// AllPoints returns every record with valid coordinates.
func AllPoints(t *normalize.Table) []Point {
	var out []Point
	for _, rec := range t.Records {
		if lat, lon, ok := rec.Coords(); ok {
			out = append(out, Point{Lat: lat, Lon: lon, Injured: rec.InjuredPersons})
		}
	}
	return out
}

// HourSeries is the hourly count series of one factor label.
type HourSeries struct {
	Label  string  `json:"label"`
	Counts [24]int `json:"counts"`
}

// FactorByHour keeps the k most frequent labels of col (placeholders
// included) and counts their records per hour. Records without a timestamp
// are skipped. Series follow the frequency order of their labels.
func FactorByHour(t *normalize.Table, col string, k int) []HourSeries {
	top := TopFactors(t, col, k)
	idx := make(map[string]int, len(top))
	out := make([]HourSeries, len(top))
	for i, cc := range top {
		idx[cc.Value] = i
		out[i].Label = cc.Value
	}
	for _, rec := range t.Records {
		h, ok := rec.Hour()
		if !ok {
			continue
		}
		if i, ok := idx[FactorLabel(rec.Factor(col))]; ok {
			out[i].Counts[h]++
		}
	}
	return out
}
